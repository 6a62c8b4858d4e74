package artifact

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFetcher() *GitHub {
	return NewGitHub(nil, "app-bundle", testLogger())
}

// buildTarGz builds a gzip-compressed tarball from a map of path -> content.
// Paths ending in "/" become directories.
func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for path, content := range files {
		if len(path) > 0 && path[len(path)-1] == '/' {
			if err := tw.WriteHeader(&tar.Header{
				Name:     path,
				Typeflag: tar.TypeDir,
				Mode:     0755,
			}); err != nil {
				t.Fatalf("Failed to write tar dir header: %v", err)
			}
			continue
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:     path,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(content)),
		}); err != nil {
			t.Fatalf("Failed to write tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write tar content: %v", err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("Failed to close gzip writer: %v", err)
	}
	return buf.Bytes()
}

// buildWrapper wraps inner archive bytes in the outer zip layer.
func buildWrapper(t *testing.T, innerName string, inner []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create wrapper: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create(innerName)
	if err != nil {
		t.Fatalf("Failed to create zip entry: %v", err)
	}
	if _, err := w.Write(inner); err != nil {
		t.Fatalf("Failed to write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close wrapper file: %v", err)
	}
	return path
}

func TestUnpack_BothLayers(t *testing.T) {
	inner := buildTarGz(t, map[string]string{
		"app.py":           "print('v2')",
		"src/":             "",
		"src/worker.py":    "pass",
		"requirements.txt": "requests",
	})
	wrapper := buildWrapper(t, "bundle.tar.gz", inner)

	tree, err := testFetcher().Unpack(wrapper, t.TempDir())
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(tree, "app.py"))
	if err != nil {
		t.Fatalf("Failed to read unpacked file: %v", err)
	}
	if string(content) != "print('v2')" {
		t.Errorf("Unexpected content: %q", content)
	}
	if _, err := os.ReadFile(filepath.Join(tree, "src", "worker.py")); err != nil {
		t.Errorf("Nested file missing: %v", err)
	}
}

func TestUnpack_SingleTopLevelDirIsTree(t *testing.T) {
	inner := buildTarGz(t, map[string]string{
		"dist/":        "",
		"dist/app.py":  "code",
		"dist/conf.py": "conf",
	})
	wrapper := buildWrapper(t, "bundle.tar.gz", inner)

	tree, err := testFetcher().Unpack(wrapper, t.TempDir())
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}

	if filepath.Base(tree) != "dist" {
		t.Errorf("Expected tree root to descend into dist, got %s", tree)
	}
	if _, err := os.ReadFile(filepath.Join(tree, "app.py")); err != nil {
		t.Errorf("app.py missing from tree root: %v", err)
	}
}

func TestUnpack_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.zip")
	if err := os.WriteFile(path, []byte("not a zip archive"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	_, err := testFetcher().Unpack(path, t.TempDir())
	if err == nil {
		t.Fatal("Expected error for garbage archive")
	}
	assertCorrupt(t, err)
}

func TestUnpack_MissingInnerArchive(t *testing.T) {
	wrapper := buildWrapper(t, "readme.txt", []byte("no tarball here"))

	_, err := testFetcher().Unpack(wrapper, t.TempDir())
	if err == nil {
		t.Fatal("Expected error for wrapper without inner archive")
	}
	assertCorrupt(t, err)
}

func TestUnpack_CorruptInnerArchive(t *testing.T) {
	wrapper := buildWrapper(t, "bundle.tar.gz", []byte("definitely not gzip"))

	_, err := testFetcher().Unpack(wrapper, t.TempDir())
	if err == nil {
		t.Fatal("Expected error for corrupt inner archive")
	}
	assertCorrupt(t, err)
}

func TestUnpack_RejectsTraversalEntries(t *testing.T) {
	inner := buildTarGz(t, map[string]string{
		"../escape.py": "evil",
	})
	wrapper := buildWrapper(t, "bundle.tar.gz", inner)

	destDir := t.TempDir()
	_, err := testFetcher().Unpack(wrapper, destDir)
	if err == nil {
		t.Fatal("Expected traversal entry to be rejected")
	}
	assertCorrupt(t, err)

	if _, statErr := os.Stat(filepath.Join(filepath.Dir(destDir), "escape.py")); statErr == nil {
		t.Error("Traversal entry escaped the destination directory")
	}
}

func assertCorrupt(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
}

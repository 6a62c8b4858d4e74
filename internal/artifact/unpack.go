package artifact

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"shipyard/internal/security"
)

// The artifact is a nested package: an outer zip wrapper added by the CI
// provider for transport, containing a single inner tar.gz holding the
// application tree. Both layers must be extracted.

// Unpack extracts both archive layers of the artifact at archivePath into
// destDir and returns the directory containing the application tree. Any
// extraction failure wraps ErrCorrupt.
func (g *GitHub) Unpack(archivePath, destDir string) (string, error) {
	wrapperDir := filepath.Join(destDir, "wrapper")
	if err := extractZip(archivePath, wrapperDir); err != nil {
		return "", fmt.Errorf("%w: outer wrapper: %v", ErrCorrupt, err)
	}

	inner, err := findInnerArchive(wrapperDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	treeDir := filepath.Join(destDir, "tree")
	if err := extractTarGz(inner, treeDir); err != nil {
		return "", fmt.Errorf("%w: inner archive: %v", ErrCorrupt, err)
	}

	root, err := treeRoot(treeDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	g.logger.Info("unpacked artifact", "tree", root)
	return root, nil
}

// extractZip extracts a zip archive into dest.
func extractZip(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	for _, f := range r.File {
		if err := security.ValidateRelativePath(f.Name); err != nil {
			return fmt.Errorf("unsafe zip entry %q: %w", f.Name, err)
		}

		target := filepath.Join(dest, f.Name)
		if _, err := security.WithinRoot(dest, target); err != nil {
			return fmt.Errorf("zip entry %q: %w", f.Name, err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}

		if err := extractZipEntry(f, target); err != nil {
			return fmt.Errorf("extracting %q: %w", f.Name, err)
		}
	}

	return nil
}

func extractZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// extractTarGz extracts a gzip-compressed tarball into dest.
func extractTarGz(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading gzip stream: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}

		name := filepath.Clean(hdr.Name)
		if name == "." {
			continue
		}
		if err := security.ValidateRelativePath(name); err != nil {
			return fmt.Errorf("unsafe tar entry %q: %w", hdr.Name, err)
		}

		target := filepath.Join(dest, name)
		if _, err := security.WithinRoot(dest, target); err != nil {
			return fmt.Errorf("tar entry %q: %w", hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) {
				return fmt.Errorf("tar entry %q has absolute symlink target", hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		default:
			// Hard links, devices and the like have no business in a
			// build artifact.
			return fmt.Errorf("unsupported tar entry type %d for %q", hdr.Typeflag, hdr.Name)
		}
	}
}

// findInnerArchive locates the single inner tarball inside the extracted
// wrapper.
func findInnerArchive(dir string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".tgz") {
			if found != "" {
				return fmt.Errorf("wrapper contains more than one inner archive")
			}
			found = path
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("wrapper contains no inner .tar.gz archive")
	}
	return found, nil
}

// treeRoot returns the application tree root inside an extracted tarball.
// CI jobs usually tar a single build directory; when the extraction yields
// exactly one top-level directory and nothing else, that directory is the
// tree.
func treeRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("inner archive is empty")
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

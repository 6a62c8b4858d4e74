package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
}

func TestCopyTree_Basic(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	writeFile(t, filepath.Join(src, "app.py"), "print('hello')")
	writeFile(t, filepath.Join(src, "lib", "util.py"), "def f(): pass")

	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dst, "app.py"))
	if err != nil {
		t.Fatalf("Failed to read copied file: %v", err)
	}
	if string(content) != "print('hello')" {
		t.Errorf("Copied content mismatch: %q", content)
	}

	content, err = os.ReadFile(filepath.Join(dst, "lib", "util.py"))
	if err != nil {
		t.Fatalf("Failed to read nested copied file: %v", err)
	}
	if string(content) != "def f(): pass" {
		t.Errorf("Nested copied content mismatch: %q", content)
	}
}

func TestCopyTree_PreservesSymlinksAsLinks(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	writeFile(t, filepath.Join(src, "real.txt"), "data")
	if err := os.Symlink("real.txt", filepath.Join(src, "link.txt")); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree failed: %v", err)
	}

	linkPath := filepath.Join(dst, "link.txt")
	if !IsSymlink(linkPath) {
		t.Fatal("Expected copied entry to still be a symlink")
	}

	target, err := ReadSymlink(linkPath)
	if err != nil {
		t.Fatalf("Failed to read copied symlink: %v", err)
	}
	if target != "real.txt" {
		t.Errorf("Expected symlink target 'real.txt', got %q", target)
	}
}

func TestCopyTree_PreservesPermissions(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	script := filepath.Join(src, "run.sh")
	writeFile(t, script, "#!/bin/sh")
	if err := os.Chmod(script, 0755); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}

	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dst, "run.sh"))
	if err != nil {
		t.Fatalf("Failed to stat copied file: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("Expected permissions 0755, got %04o", info.Mode().Perm())
	}
}

func TestCopyTree_MissingSource(t *testing.T) {
	if err := CopyTree(filepath.Join(t.TempDir(), "nope"), t.TempDir()); err == nil {
		t.Error("Expected error for missing source directory")
	}
}

func TestRemoveContents(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "app.py"), "old")
	writeFile(t, filepath.Join(root, "src", "main.py"), "old")
	writeFile(t, filepath.Join(root, ".venv", "bin", "python"), "binary")
	writeFile(t, filepath.Join(root, "logs", "app.log"), "log line")

	if err := RemoveContents(root, []string{".venv", "logs"}); err != nil {
		t.Fatalf("RemoveContents failed: %v", err)
	}

	if PathExists(filepath.Join(root, "app.py")) {
		t.Error("app.py should have been removed")
	}
	if PathExists(filepath.Join(root, "src")) {
		t.Error("src directory should have been removed")
	}
	if !FileExists(filepath.Join(root, ".venv", "bin", "python")) {
		t.Error(".venv should have been preserved")
	}
	if !FileExists(filepath.Join(root, "logs", "app.log")) {
		t.Error("logs should have been preserved")
	}
}

func TestRemoveContents_EmptyKeepList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b", "c.txt"), "c")

	if err := RemoveContents(root, nil); err != nil {
		t.Fatalf("RemoveContents failed: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("Failed to read root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty directory, found %d entries", len(entries))
	}

	if !DirExists(root) {
		t.Error("Root directory itself should remain")
	}
}

func TestSearchPaths(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "apps.yaml")
	writeFile(t, existing, "apps: {}")

	found, err := SearchPaths([]string{
		filepath.Join(dir, "missing.yaml"),
		existing,
	})
	if err != nil {
		t.Fatalf("SearchPaths failed: %v", err)
	}
	if found != existing {
		t.Errorf("Expected %s, got %s", existing, found)
	}

	if _, err := SearchPaths([]string{filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Error("Expected error when no path exists")
	}

	if got := SearchPathsOptional([]string{filepath.Join(dir, "missing.yaml")}); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}
}

package scope

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestWalkBasic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.go"), "package a")
	writeFile(t, filepath.Join(root, "b.md"), "# doc")
	writeFile(t, filepath.Join(root, "sub", "c.go"), "package sub")

	m, err := Walk([]string{root}, 100)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if m.FileCount != 3 {
		t.Fatalf("expected 3 files, got %d", m.FileCount)
	}
	if m.ExtensionHist[".go"] != 2 {
		t.Fatalf("expected 2 .go files, got %d", m.ExtensionHist[".go"])
	}
}

func TestWalkMaxFilesCap(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, filepath.Join(root, string(rune('a'+i))+".txt"), "x")
	}
	m, err := Walk([]string{root}, 3)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if m.FileCount != 3 {
		t.Fatalf("expected cap of 3 files, got %d", m.FileCount)
	}
}

func TestWalkSymlinkCycleSuppressed(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(sub, "f.txt"), "x")
	loop := filepath.Join(sub, "loop")
	if err := os.Symlink(root, loop); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	m, err := Walk([]string{root}, 1000)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if m.FileCount != 1 {
		t.Fatalf("expected cycle suppression to yield 1 file, got %d", m.FileCount)
	}
}

func TestEnumerate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.go"), "x")
	if err := os.MkdirAll(filepath.Join(root, "pkg"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	dirs, files, err := Enumerate(root)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(dirs) != 1 || len(files) != 1 {
		t.Fatalf("expected 1 dir and 1 file, got dirs=%v files=%v", dirs, files)
	}
}

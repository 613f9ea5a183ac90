package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/deckmigrate/internal/apperr"
)

func TestPrepare_CreatesMissingDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "bundle", "42")
	d, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Fatalf("bundle dir not created: %v", err)
	}
}

func TestPrepare_EmptiesExistingDir(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "stale.png"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Prepare(); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("dir not emptied, %d entries remain", len(entries))
	}
}

func TestPrepare_FileAtRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "notadir")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Prepare(); err == nil {
		t.Error("Prepare succeeded on a plain file")
	}
}

func TestWriteReadFile(t *testing.T) {
	d := testDir(t)
	if err := d.WriteFile("map.png", []byte("payload")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := d.ReadFile("map.png")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("data = %q", data)
	}
}

func TestReadFile_MissingIsDependencyError(t *testing.T) {
	d := testDir(t)
	_, err := d.ReadFile("absent.png")
	if !errors.Is(err, apperr.ErrDependency) {
		t.Errorf("err = %v, want ErrDependency", err)
	}
}

func TestSafeName_RejectsTraversal(t *testing.T) {
	d := testDir(t)
	for _, name := range []string{"", "../escape.png", "a/b.png", ".."} {
		if err := d.WriteFile(name, []byte("x")); err == nil {
			t.Errorf("WriteFile(%q) succeeded", name)
		}
		if _, err := d.ReadFile(name); err == nil {
			t.Errorf("ReadFile(%q) succeeded", name)
		}
	}
}

func testDir(t *testing.T) *Dir {
	t.Helper()
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

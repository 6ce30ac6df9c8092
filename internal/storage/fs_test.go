package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempStore(t)
	content := []byte("---\nid: a\n---\n\nWorld\n")
	if err := s.Write("notes/a.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("notes/a.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteOverwrites(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("a.md", []byte("original content"))
	if err := s.Write("a.md", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("a.md")
	if string(got) != "updated" {
		t.Errorf("content = %q", got)
	}
	entries, _ := os.ReadDir(s.Root())
	if len(entries) != 1 {
		t.Errorf("leftover temp files: %v", entries)
	}
}

func TestDeletePrunesEmptyDir(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("cat/one.md", []byte("1"))
	_ = s.Write("cat/two.md", []byte("2"))

	if err := s.Delete("cat/one.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "cat")); err != nil {
		t.Fatalf("dir removed while still holding a file: %v", err)
	}
	if err := s.Delete("cat/two.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "cat")); !os.IsNotExist(err) {
		t.Errorf("empty category dir should be pruned, stat err = %v", err)
	}
	if _, err := os.Stat(s.Root()); err != nil {
		t.Errorf("root must survive: %v", err)
	}
}

func TestExists(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("x.md", []byte("x"))
	if ok, err := s.Exists("x.md"); err != nil || !ok {
		t.Errorf("Exists(x.md) = %v, %v", ok, err)
	}
	if ok, err := s.Exists("y.md"); err != nil || ok {
		t.Errorf("Exists(y.md) = %v, %v", ok, err)
	}
}

func TestList(t *testing.T) {
	s := tempStore(t)
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/b.md", []byte("bb"))
	_ = s.Write("readme.txt", []byte("not md"))
	_ = s.Write(".index/c.md", []byte("hidden"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	sizes := map[string]int64{}
	for _, it := range items {
		sizes[it.Path] = it.Size
		if it.ModTime.IsZero() {
			t.Errorf("%s: zero mtime", it.Path)
		}
	}
	if sizes["a.md"] != 1 || sizes["sub/b.md"] != 2 {
		t.Errorf("sizes = %v", sizes)
	}
}

func TestListMissingDir(t *testing.T) {
	s := tempStore(t)
	items, err := s.List("nope")
	if err != nil || len(items) != 0 {
		t.Errorf("List(nope) = %v, %v", items, err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempStore(t)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow"} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestNewFS_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")
	s, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if s.Root() != dir {
		t.Errorf("root = %q, want %q", s.Root(), dir)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "llm-mem-*")
	if err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}

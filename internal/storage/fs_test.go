package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func tempFS(t *testing.T) *FS {
	t.Helper()
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func TestFS_TraversalBlocked(t *testing.T) {
	s := tempFS(t)
	ctx := context.Background()

	for _, id := range []string{"../../etc/passwd", "../outside", "/etc/shadow", ".hidden", `a\b`} {
		if _, err := s.Get(ctx, id); err == nil {
			t.Errorf("expected error reading %q", id)
		}
		if err := s.Put(ctx, id, []byte("x")); err == nil {
			t.Errorf("expected error writing %q", id)
		}
	}
}

func TestFS_AtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempFS(t)
	ctx := context.Background()
	_ = s.Put(ctx, "atomic", []byte("original"))
	if err := s.Put(ctx, "atomic", []byte("updated")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, _ := s.Get(ctx, "atomic")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".basket-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestFS_ListSkipsForeignFiles(t *testing.T) {
	s := tempFS(t)
	ctx := context.Background()
	_ = s.Put(ctx, "one", []byte("{}"))
	_ = os.WriteFile(filepath.Join(s.Root(), "readme.txt"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(s.Root(), ".basket-tmp-123"), []byte("x"), 0o644)

	recs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "one" {
		t.Errorf("records = %+v, want only one", recs)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "basket-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}

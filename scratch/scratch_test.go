package scratch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireCreatesSessionDir(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir, err := s.Acquire("abc123")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if filepath.Base(dir) != "session_abc123" {
		t.Errorf("dir = %q, want session_abc123 basename", dir)
	}
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		t.Fatalf("scratch dir missing: %v", err)
	}
}

func TestAcquireIsIdempotent(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first, err := s.Acquire("abc")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Leave a file behind and acquire again; the dir and its contents must
	// survive.
	marker := filepath.Join(first, "partial.mp4")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	second, err := s.Acquire("abc")
	if err != nil {
		t.Fatalf("Acquire again: %v", err)
	}
	if first != second {
		t.Fatalf("acquire returned %q then %q", first, second)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("marker lost on reacquire: %v", err)
	}
}

func TestAcquireDistinctOwners(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, _ := s.Acquire("a")
	b, _ := s.Acquire("b")
	if a == b {
		t.Fatalf("owners share a dir: %q", a)
	}
}

func TestReclaimRemovesDirAndContents(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir, _ := s.Acquire("abc")
	if err := os.WriteFile(filepath.Join(dir, "video.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s.Reclaim("abc")
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("dir survived reclaim")
	}
	// Reclaiming a missing owner is a no-op.
	s.Reclaim("abc")
	s.Reclaim("never-acquired")
}

func TestSweepExpired(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	oldDir, _ := s.Acquire("old")
	freshDir, _ := s.Acquire("fresh")
	// An orphan dir from a previous process must be swept by name.
	orphan := filepath.Join(root, "session_orphan")
	if err := os.MkdirAll(orphan, 0o755); err != nil {
		t.Fatalf("mkdir orphan: %v", err)
	}
	// Non-session dirs are never touched.
	other := filepath.Join(root, "unrelated")
	if err := os.MkdirAll(other, 0o755); err != nil {
		t.Fatalf("mkdir other: %v", err)
	}

	removed := s.SweepExpired(func(owner string) bool { return owner != "fresh" })
	if removed != 2 {
		t.Fatalf("swept %d, want 2", removed)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Errorf("expired dir survived")
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Errorf("orphan dir survived")
	}
	if _, err := os.Stat(freshDir); err != nil {
		t.Errorf("fresh dir removed: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("unrelated dir removed: %v", err)
	}
}

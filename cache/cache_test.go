package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ytget/fetchvideo/errs"
	"github.com/ytget/fetchvideo/types"
)

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := New(filepath.Join(dir, "index"), time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, dir
}

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestStoreLookupRoundTrip(t *testing.T) {
	c, dir := newTestCache(t)
	key := types.ArtifactKey{VideoID: "dQw4w9WgXcQ", Quality: "1080p"}
	path := writeArtifact(t, dir, "out.mp4")

	meta := map[string]string{"fps": "60", "job_id": "j-1"}
	if err := c.Store(key, path, meta); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok := c.Lookup(key)
	if !ok {
		t.Fatalf("Lookup miss after Store")
	}
	if got.FilePath != path {
		t.Errorf("file path = %q, want %q", got.FilePath, path)
	}
	if got.Key != key {
		t.Errorf("key = %v, want %v", got.Key, key)
	}
	if got.Metadata["fps"] != "60" || got.Metadata["job_id"] != "j-1" {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestLookupMissUnknownKey(t *testing.T) {
	c, _ := newTestCache(t)
	if _, ok := c.Lookup(types.ArtifactKey{VideoID: "nope", Quality: "720p"}); ok {
		t.Fatalf("unexpected hit")
	}
}

func TestLookupPurgesStaleEntry(t *testing.T) {
	c, dir := newTestCache(t)
	key := types.ArtifactKey{VideoID: "abc", Quality: "720p"}
	path := writeArtifact(t, dir, "out.mp4")
	if err := c.Store(key, path, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// Simulate external file loss: the entry is now corrupt.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}
	if _, ok := c.Lookup(key); ok {
		t.Fatalf("hit with missing backing file")
	}
	// The stale index entry must be gone too.
	if _, err := os.Stat(c.entryPath(key)); !os.IsNotExist(err) {
		t.Fatalf("stale index entry not purged")
	}
}

func TestLookupMissingFileIsCorruption(t *testing.T) {
	c, dir := newTestCache(t)
	key := types.ArtifactKey{VideoID: "abc", Quality: "720p"}
	path := writeArtifact(t, dir, "out.mp4")
	if err := c.Store(key, path, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}

	_, err := c.lookupLocked(key)
	if !errors.Is(err, errs.ErrCacheCorruption) {
		t.Fatalf("err = %v, want ErrCacheCorruption", err)
	}
}

func TestLookupGarbledEntryIsCorruption(t *testing.T) {
	c, _ := newTestCache(t)
	key := types.ArtifactKey{VideoID: "abc", Quality: "720p"}
	if err := os.WriteFile(c.entryPath(key), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write entry: %v", err)
	}

	_, err := c.lookupLocked(key)
	if !errors.Is(err, errs.ErrCacheCorruption) {
		t.Fatalf("err = %v, want ErrCacheCorruption", err)
	}
	// Self-heal: the garbled entry is gone.
	if _, err := os.Stat(c.entryPath(key)); !os.IsNotExist(err) {
		t.Fatalf("garbled index entry not purged")
	}
}

func TestStoreSupersedesPreviousFile(t *testing.T) {
	c, dir := newTestCache(t)
	key := types.ArtifactKey{VideoID: "abc", Quality: "720p"}
	first := writeArtifact(t, dir, "first.mp4")
	second := writeArtifact(t, dir, "second.mp4")

	if err := c.Store(key, first, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Store(key, second, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok := c.Lookup(key)
	if !ok || got.FilePath != second {
		t.Fatalf("lookup after overwrite: %v, %v", got, ok)
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Fatalf("superseded file not reclaimed")
	}
}

func TestSweepKeepsFreshEntries(t *testing.T) {
	c, dir := newTestCache(t)
	key := types.ArtifactKey{VideoID: "abc", Quality: "720p"}
	path := writeArtifact(t, dir, "out.mp4")
	if err := c.Store(key, path, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if removed := c.SweepExpired(); removed != 0 {
		t.Fatalf("sweep removed %d fresh entries", removed)
	}
	if _, ok := c.Lookup(key); !ok {
		t.Fatalf("fresh entry lost after sweep")
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	c, dir := newTestCache(t)
	key := types.ArtifactKey{VideoID: "abc", Quality: "720p"}
	path := writeArtifact(t, dir, "out.mp4")
	if err := c.Store(key, path, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if removed := c.SweepExpired(); removed != 1 {
		t.Fatalf("sweep removed %d, want 1", removed)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expired artifact file not deleted")
	}
	if _, ok := c.Lookup(key); ok {
		t.Fatalf("expired entry still visible")
	}
}

func TestSweepPurgesEntriesWithMissingFiles(t *testing.T) {
	c, dir := newTestCache(t)
	key := types.ArtifactKey{VideoID: "abc", Quality: "720p"}
	path := writeArtifact(t, dir, "out.mp4")
	if err := c.Store(key, path, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if removed := c.SweepExpired(); removed != 1 {
		t.Fatalf("sweep removed %d, want 1", removed)
	}
}

func TestLookupExpiredByTTL(t *testing.T) {
	c, dir := newTestCache(t)
	key := types.ArtifactKey{VideoID: "abc", Quality: "720p"}
	path := writeArtifact(t, dir, "out.mp4")
	if err := c.Store(key, path, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok := c.Lookup(key); ok {
		t.Fatalf("lookup hit past TTL")
	}
}

func TestClearWithFilter(t *testing.T) {
	c, dir := newTestCache(t)
	keyA := types.ArtifactKey{VideoID: "aaa", Quality: "720p"}
	keyB := types.ArtifactKey{VideoID: "bbb", Quality: "720p"}
	pathA := writeArtifact(t, dir, "a.mp4")
	pathB := writeArtifact(t, dir, "b.mp4")
	if err := c.Store(keyA, pathA, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Store(keyB, pathB, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	removed := c.Clear(func(k types.ArtifactKey) bool { return k.VideoID == "aaa" })
	if removed != 1 {
		t.Fatalf("cleared %d, want 1", removed)
	}
	if _, ok := c.Lookup(keyA); ok {
		t.Fatalf("filtered key survived clear")
	}
	if _, ok := c.Lookup(keyB); !ok {
		t.Fatalf("unfiltered key removed")
	}

	if removed := c.Clear(nil); removed != 1 {
		t.Fatalf("full clear removed %d, want 1", removed)
	}
}

// Package cache is the on-disk artifact cache. Completed downloads are
// registered under an ArtifactKey; index entries live as one JSON file per
// key under the index directory, named by the key hash, while artifact files
// stay where the pipeline produced them.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ytget/fetchvideo/errs"
	"github.com/ytget/fetchvideo/internal/logger"
	"github.com/ytget/fetchvideo/types"
)

// DefaultTTL is the artifact time-to-live.
const DefaultTTL = 3600 * time.Second

const indexEntryExt = ".json"

type indexEntry struct {
	VideoID      string            `json:"video_id"`
	Quality      string            `json:"quality"`
	AudioQuality string            `json:"audio_quality,omitempty"`
	FilePath     string            `json:"file_path"`
	CreatedAt    time.Time         `json:"created_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (e indexEntry) key() types.ArtifactKey {
	return types.ArtifactKey{VideoID: e.VideoID, Quality: e.Quality, AudioQuality: e.AudioQuality}
}

// Cache maps artifact keys to cached files with TTL expiry. Index mutation
// is serialized; a Store racing a sweep resolves as last-write-wins.
type Cache struct {
	indexDir string
	ttl      time.Duration
	mu       sync.Mutex
	log      *logger.ComponentLogger

	now func() time.Time
}

// New creates a cache with its index under indexDir. The directory is
// created if missing. ttl<=0 uses DefaultTTL.
func New(indexDir string, ttl time.Duration) (*Cache, error) {
	if indexDir == "" {
		return nil, errors.New("cache: index dir is required")
	}
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		indexDir: indexDir,
		ttl:      ttl,
		log:      logger.WithComponent(logger.ComponentCache),
		now:      time.Now,
	}, nil
}

func (c *Cache) entryPath(key types.ArtifactKey) string {
	return filepath.Join(c.indexDir, key.Hash()+indexEntryExt)
}

// Lookup returns the cached artifact for key if the index entry exists, the
// backing file exists, and the entry is within TTL. A corrupt entry found
// during lookup is purged on the spot.
func (c *Cache) Lookup(key types.ArtifactKey) (*types.CachedArtifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	art, err := c.lookupLocked(key)
	if err != nil {
		if errors.Is(err, errs.ErrCacheCorruption) {
			c.log.Warn("purging corrupt cache entry", map[string]interface{}{
				"key": key.String(), "error": err.Error(),
			})
		}
		return nil, false
	}
	return art, true
}

var errEntryExpired = errors.New("cache: entry expired")

// lookupLocked resolves key to an artifact, self-healing as it goes:
// unreadable entries and entries whose backing file is gone are purged and
// reported as ErrCacheCorruption. Callers must hold mu.
func (c *Cache) lookupLocked(key types.ArtifactKey) (*types.CachedArtifact, error) {
	fn := c.entryPath(key)
	b, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	var e indexEntry
	if err := json.Unmarshal(b, &e); err != nil {
		_ = os.Remove(fn)
		return nil, fmt.Errorf("%w: unreadable index entry for %s: %v", errs.ErrCacheCorruption, key.String(), err)
	}
	if _, err := os.Stat(e.FilePath); err != nil {
		_ = os.Remove(fn)
		return nil, fmt.Errorf("%w: index entry without backing file %s", errs.ErrCacheCorruption, e.FilePath)
	}
	if c.now().Sub(e.CreatedAt) > c.ttl {
		_ = os.Remove(e.FilePath)
		_ = os.Remove(fn)
		return nil, errEntryExpired
	}
	return &types.CachedArtifact{
		Key:       e.key(),
		FilePath:  e.FilePath,
		CreatedAt: e.CreatedAt,
		Metadata:  e.Metadata,
	}, nil
}

// Store registers filePath as the artifact for key, unconditionally
// overwriting any previous entry and reclaiming its superseded file. The TTL
// clock restarts at store time.
func (c *Cache) Store(key types.ArtifactKey, filePath string, metadata map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fn := c.entryPath(key)
	if b, err := os.ReadFile(fn); err == nil {
		var prev indexEntry
		if json.Unmarshal(b, &prev) == nil && prev.FilePath != filePath {
			if err := os.Remove(prev.FilePath); err != nil && !os.IsNotExist(err) {
				c.log.Warn("failed to remove superseded artifact", map[string]interface{}{
					"file": prev.FilePath, "error": err.Error(),
				})
			}
		}
	}

	now := c.now()
	e := indexEntry{
		VideoID:      key.VideoID,
		Quality:      key.Quality,
		AudioQuality: key.AudioQuality,
		FilePath:     filePath,
		CreatedAt:    now,
		Metadata:     metadata,
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tmp := fn + ".tmp"
	if err := os.WriteFile(tmp, b, fs.FileMode(0o644)); err != nil {
		return err
	}
	if err := os.Rename(tmp, fn); err != nil {
		return err
	}
	// Reset the file clock so the age-based sweep agrees with CreatedAt.
	_ = os.Chtimes(filePath, now, now)
	c.log.Info("cached artifact", map[string]interface{}{
		"key": key.String(), "file": filePath,
	})
	return nil
}

// SweepExpired walks the index: entries whose backing file is missing are
// purged; entries whose file modification age exceeds the TTL lose both the
// file and the entry. Returns the number of purged entries.
func (c *Cache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	entries, err := os.ReadDir(c.indexDir)
	if err != nil {
		return 0
	}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), indexEntryExt) {
			continue
		}
		fn := filepath.Join(c.indexDir, de.Name())
		b, err := os.ReadFile(fn)
		if err != nil {
			continue
		}
		var e indexEntry
		if err := json.Unmarshal(b, &e); err != nil {
			_ = os.Remove(fn)
			removed++
			continue
		}
		fi, err := os.Stat(e.FilePath)
		if err != nil {
			_ = os.Remove(fn)
			removed++
			continue
		}
		if c.now().Sub(fi.ModTime()) > c.ttl {
			_ = os.Remove(e.FilePath)
			_ = os.Remove(fn)
			removed++
		}
	}
	if removed > 0 {
		c.log.Info("swept expired artifacts", map[string]interface{}{"count": removed})
	}
	return removed
}

// Clear deletes entries and their files. A nil filter clears everything;
// otherwise only keys the filter accepts are removed. Returns the number of
// cleared entries.
func (c *Cache) Clear(filter func(types.ArtifactKey) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	entries, err := os.ReadDir(c.indexDir)
	if err != nil {
		return 0
	}
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), indexEntryExt) {
			continue
		}
		fn := filepath.Join(c.indexDir, de.Name())
		b, err := os.ReadFile(fn)
		if err != nil {
			continue
		}
		var e indexEntry
		if err := json.Unmarshal(b, &e); err != nil {
			_ = os.Remove(fn)
			removed++
			continue
		}
		if filter != nil && !filter(e.key()) {
			continue
		}
		_ = os.Remove(e.FilePath)
		_ = os.Remove(fn)
		removed++
	}
	return removed
}

// TTL reports the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

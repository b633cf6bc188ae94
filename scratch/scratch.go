// Package scratch manages per-job temporary directories. Each owner key maps
// to exactly one directory under the root; directories are never shared and
// are deleted wholesale on reclaim.
package scratch

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ytget/fetchvideo/internal/logger"
)

const dirPrefix = "session_"

// Space hands out and reclaims owner-scoped scratch directories.
type Space struct {
	root string
	mu   sync.Mutex
	dirs map[string]string // owner -> absolute dir
	log  *logger.ComponentLogger
}

// New creates a scratch space rooted at root, creating it if needed.
func New(root string) (*Space, error) {
	if root == "" {
		return nil, errors.New("scratch: root dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Space{
		root: root,
		dirs: make(map[string]string),
		log:  logger.WithComponent(logger.ComponentScratch),
	}, nil
}

// Acquire returns the scratch directory for owner, creating it on first
// use. Repeated acquisition for the same owner returns the same directory.
func (s *Space) Acquire(owner string) (string, error) {
	if owner == "" {
		return "", errors.New("scratch: owner key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir, ok := s.dirs[owner]; ok {
		// Recreate if an external cleanup removed it from under us.
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		return dir, nil
	}
	dir := filepath.Join(s.root, dirPrefix+owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	s.dirs[owner] = dir
	return dir, nil
}

// Reclaim recursively deletes the owner's directory. Failures are logged,
// not returned as fatal.
func (s *Space) Reclaim(owner string) {
	s.mu.Lock()
	dir, ok := s.dirs[owner]
	if !ok {
		dir = filepath.Join(s.root, dirPrefix+owner)
	}
	delete(s.dirs, owner)
	s.mu.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		s.log.Warn("failed to reclaim scratch dir", map[string]interface{}{
			"owner": owner, "dir": dir, "error": err.Error(),
		})
		return
	}
	s.log.Debug("reclaimed scratch dir", map[string]interface{}{"owner": owner})
}

// SweepExpired reclaims every scratch directory whose owner the provided
// authority confirms as expired. Owners are recovered from directory names,
// so directories surviving a process restart are swept too. Returns the
// number of reclaimed directories.
func (s *Space) SweepExpired(isExpired func(owner string) bool) int {
	if isExpired == nil {
		return 0
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0
	}
	removed := 0
	for _, de := range entries {
		if !de.IsDir() || !strings.HasPrefix(de.Name(), dirPrefix) {
			continue
		}
		owner := strings.TrimPrefix(de.Name(), dirPrefix)
		if !isExpired(owner) {
			continue
		}
		s.Reclaim(owner)
		removed++
	}
	return removed
}

// Root reports the scratch root directory.
func (s *Space) Root() string {
	return s.root
}

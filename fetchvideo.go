// Package fetchvideo downloads YouTube videos at a chosen quality, merges
// the separate video and audio tracks with ffmpeg, and serves repeated
// requests from an on-disk artifact cache.
package fetchvideo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ytget/fetchvideo/cache"
	"github.com/ytget/fetchvideo/client"
	"github.com/ytget/fetchvideo/config"
	"github.com/ytget/fetchvideo/downloader"
	"github.com/ytget/fetchvideo/errs"
	"github.com/ytget/fetchvideo/internal/logger"
	"github.com/ytget/fetchvideo/pipeline"
	"github.com/ytget/fetchvideo/progress"
	"github.com/ytget/fetchvideo/scratch"
	"github.com/ytget/fetchvideo/selector"
	"github.com/ytget/fetchvideo/transcode"
	"github.com/ytget/fetchvideo/types"
	"github.com/ytget/fetchvideo/youtube/catalog"
	"github.com/ytget/fetchvideo/youtube/cipher"
)

// Artifact is an opened cached file ready to stream to a caller.
type Artifact struct {
	File     *os.File
	Size     int64
	Filename string // attachment name for Content-Disposition
}

// Service is the public entry point tying the catalog, selector, cache,
// pipeline, and cleanup together.
type Service struct {
	cfg        config.Config
	httpClient *client.Client
	artifacts  *cache.Cache
	tracker    *progress.Tracker
	space      *scratch.Space
	log        *logger.ComponentLogger

	catalog    pipeline.Catalog
	fetcher    pipeline.Fetcher
	transcoder pipeline.Transcoder
	pipe       *pipeline.Pipeline

	viewsMu sync.Mutex
	views   map[string]uint64
}

// New builds a Service from the configuration. The media root and its cache
// index directory are created if missing.
func New(cfg config.Config) (*Service, error) {
	if err := os.MkdirAll(cfg.MediaRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	artifacts, err := cache.New(filepath.Join(cfg.MediaRoot, ".index"), cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	space, err := scratch.New(cfg.MediaRoot)
	if err != nil {
		return nil, err
	}

	httpClient := client.NewWith(client.Config{
		Timeout:  cfg.HTTPTimeout,
		ProxyURL: cfg.ProxyURL,
	})
	solver := cipher.NewSolver(httpClient)

	s := &Service{
		cfg:        cfg,
		httpClient: httpClient,
		artifacts:  artifacts,
		tracker:    progress.NewTracker(cfg.ProgressTTL),
		space:      space,
		log:        logger.WithComponent(logger.ComponentApp),
		catalog:    catalog.New(httpClient, solver),
		fetcher:    downloader.New(httpClient.HTTPClient, nil, cfg.RateLimitBps),
		transcoder: transcode.NewRunner(
			transcode.WithFFmpegPath(cfg.FFmpegPath),
			transcode.WithTimeouts(cfg.NormalizeTimeout, cfg.MuxTimeout),
		),
		views: make(map[string]uint64),
	}
	s.rebuildPipeline()
	return s, nil
}

func (s *Service) rebuildPipeline() {
	s.pipe = pipeline.New(s.catalog, s.fetcher, s.transcoder,
		s.artifacts, s.tracker, s.space, s.cfg.MediaRoot)
}

// WithCatalog overrides the stream catalog.
func (s *Service) WithCatalog(c pipeline.Catalog) *Service {
	s.catalog = c
	s.rebuildPipeline()
	return s
}

// WithFetcher overrides the stream fetcher.
func (s *Service) WithFetcher(f pipeline.Fetcher) *Service {
	s.fetcher = f
	s.rebuildPipeline()
	return s
}

// WithTranscoder overrides the ffmpeg runner.
func (s *Service) WithTranscoder(t pipeline.Transcoder) *Service {
	s.transcoder = t
	s.rebuildPipeline()
	return s
}

// Qualities lists the downloadable (video, audio) pairs for presentation
// along with the video metadata. Each call counts as one detail view.
func (s *Service) Qualities(ctx context.Context, videoID string) ([]types.QualityPair, *types.VideoRef, error) {
	streams, ref, err := s.catalog.Streams(ctx, videoID)
	if err != nil {
		return nil, nil, err
	}
	ref.Views = s.countView(videoID)
	return selector.PairForDisplay(streams), ref, nil
}

func (s *Service) countView(videoID string) uint64 {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()
	s.views[videoID]++
	return s.views[videoID]
}

// Download runs the pipeline for videoID at the requested quality, sharing
// in-flight runs between concurrent callers.
func (s *Service) Download(ctx context.Context, videoID, quality string) (*pipeline.Result, error) {
	return s.pipe.Run(ctx, videoID, quality)
}

// Status reports the last known progress for videoID.
func (s *Service) Status(videoID string) types.ProgressState {
	return s.tracker.Get(videoID)
}

// OpenArtifact opens a cached artifact by its media-root-relative path.
// Paths escaping the media root are rejected; a missing file reports
// ErrArtifactNotFound.
func (s *Service) OpenArtifact(relPath string) (*Artifact, error) {
	cleaned := filepath.Clean(relPath)
	if cleaned == "." || filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return nil, fmt.Errorf("%w: invalid path %q", errs.ErrArtifactNotFound, relPath)
	}
	full := filepath.Join(s.cfg.MediaRoot, cleaned)
	fi, err := os.Stat(full)
	if err != nil || fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", errs.ErrArtifactNotFound, cleaned)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrArtifactNotFound, cleaned)
	}
	return &Artifact{File: f, Size: fi.Size(), Filename: filepath.Base(full)}, nil
}

// Sweep purges expired cache entries, stale progress records, and orphaned
// scratch directories not owned by an in-flight run. Returns the number of
// removed cache entries.
func (s *Service) Sweep() int {
	removed := s.artifacts.SweepExpired()
	stale := s.tracker.Sweep()
	dirs := s.space.SweepExpired(func(owner string) bool {
		return !s.pipe.Busy(owner)
	})
	s.log.Info("sweep finished", map[string]interface{}{
		"cache_entries": removed, "progress_records": stale, "scratch_dirs": dirs,
	})
	return removed
}

// RunSweeper runs Sweep on the interval until the context is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.cfg.SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

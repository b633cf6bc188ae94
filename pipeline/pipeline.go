// Package pipeline orchestrates a download end to end: metadata fetch,
// stream selection, cache short-circuit, stream downloads into a scratch
// dir, audio normalization, muxing, and cache registration. Progress is
// reported after every stage transition.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ytget/fetchvideo/cache"
	"github.com/ytget/fetchvideo/errs"
	"github.com/ytget/fetchvideo/internal/logger"
	"github.com/ytget/fetchvideo/internal/sanitize"
	"github.com/ytget/fetchvideo/progress"
	"github.com/ytget/fetchvideo/scratch"
	"github.com/ytget/fetchvideo/selector"
	"github.com/ytget/fetchvideo/types"
)

// Catalog lists streams and resolves their protected URLs.
type Catalog interface {
	Streams(ctx context.Context, videoID string) ([]types.StreamDescriptor, *types.VideoRef, error)
	Resolve(ctx context.Context, videoID, directURL, signatureCipher string) (string, error)
}

// Fetcher downloads one stream URL to a local file.
type Fetcher interface {
	Download(ctx context.Context, url, outputPath string) error
}

// Transcoder runs the audio normalization and mux subprocesses.
type Transcoder interface {
	NormalizeAudio(ctx context.Context, inputPath, container string) (string, error)
	Mux(ctx context.Context, videoPath, audioPath, outputPath string) error
}

// Result is the outcome of one pipeline run.
type Result struct {
	Key      types.ArtifactKey
	JobID    string
	FilePath string // absolute path of the final artifact
	RelPath  string // path relative to the media root
	CacheHit bool
}

type inflightRun struct {
	done chan struct{}
	res  *Result
	err  error
}

// Pipeline runs downloads with per-key single-flight semantics.
type Pipeline struct {
	catalog    Catalog
	fetcher    Fetcher
	transcoder Transcoder
	artifacts  *cache.Cache
	tracker    *progress.Tracker
	scratch    *scratch.Space
	mediaRoot  string
	log        *logger.ComponentLogger

	mu       sync.Mutex
	inflight map[string]*inflightRun
}

// New wires a pipeline. All collaborators are required.
func New(catalog Catalog, fetcher Fetcher, transcoder Transcoder,
	artifacts *cache.Cache, tracker *progress.Tracker, space *scratch.Space,
	mediaRoot string) *Pipeline {
	return &Pipeline{
		catalog:    catalog,
		fetcher:    fetcher,
		transcoder: transcoder,
		artifacts:  artifacts,
		tracker:    tracker,
		scratch:    space,
		mediaRoot:  mediaRoot,
		log:        logger.WithComponent(logger.ComponentPipeline),
		inflight:   make(map[string]*inflightRun),
	}
}

// Run executes a download for videoID at the requested quality. Concurrent
// calls for the same (videoID, quality) share one run and one result.
func (p *Pipeline) Run(ctx context.Context, videoID, quality string) (*Result, error) {
	key := types.ArtifactKey{VideoID: videoID, Quality: quality}
	hash := key.Hash()

	p.mu.Lock()
	if run, ok := p.inflight[hash]; ok {
		p.mu.Unlock()
		select {
		case <-run.done:
			return run.res, run.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	run := &inflightRun{done: make(chan struct{})}
	p.inflight[hash] = run
	p.mu.Unlock()

	run.res, run.err = p.execute(ctx, key)
	close(run.done)

	p.mu.Lock()
	delete(p.inflight, hash)
	p.mu.Unlock()
	return run.res, run.err
}

func (p *Pipeline) execute(ctx context.Context, key types.ArtifactKey) (result *Result, err error) {
	jobID := uuid.NewString()
	videoID := key.VideoID

	defer func() {
		if err != nil {
			// Terminal error state always reads 0 percent.
			p.tracker.Set(videoID, types.StageError, 0, err.Error())
			p.log.Error("pipeline failed", map[string]interface{}{
				"job_id": jobID, "key": key.String(), "error": err.Error(),
			})
		}
	}()

	p.tracker.Set(videoID, types.StageInitialized, 0, "starting download")

	p.tracker.Set(videoID, types.StageFetching, 10, "fetching video metadata")
	streams, ref, err := p.catalog.Streams(ctx, videoID)
	if err != nil {
		return nil, err
	}

	p.tracker.Set(videoID, types.StageProcessing, 20, "selecting streams")
	if hit, ok := p.artifacts.Lookup(key); ok {
		rel := p.relPath(hit.FilePath)
		p.tracker.Set(videoID, types.StageCompleted, 100, rel)
		p.log.Info("cache hit, short-circuiting pipeline", map[string]interface{}{
			"job_id": jobID, "key": key.String(), "file": rel,
		})
		return &Result{Key: key, JobID: jobID, FilePath: hit.FilePath, RelPath: rel, CacheHit: true}, nil
	}

	videoStream, err := selector.SelectVideoStream(streams, key.Quality)
	if err != nil {
		return nil, err
	}
	audioStream, err := selector.SelectAudioStream(streams)
	if err != nil {
		return nil, err
	}

	owner := key.Hash()[:16]
	workDir, err := p.scratch.Acquire(owner)
	if err != nil {
		return nil, err
	}
	defer p.scratch.Reclaim(owner)

	p.tracker.Set(videoID, types.StageDownloading, 30, "downloading video stream")
	videoPath := filepath.Join(workDir, "video."+containerOrDefault(videoStream.Container))
	if err := p.fetchStream(ctx, videoID, videoStream, videoPath); err != nil {
		return nil, err
	}

	p.tracker.Set(videoID, types.StageDownloading, 55, "downloading audio stream")
	audioPath := filepath.Join(workDir, "audio."+containerOrDefault(audioStream.Container))
	if err := p.fetchStream(ctx, videoID, audioStream, audioPath); err != nil {
		return nil, err
	}

	if err := verifyFile(videoPath); err != nil {
		return nil, err
	}
	if err := verifyFile(audioPath); err != nil {
		return nil, err
	}

	p.tracker.Set(videoID, types.StageDownloading, 70, "normalizing audio track")
	normalizedAudio, err := p.transcoder.NormalizeAudio(ctx, audioPath, audioStream.Container)
	if err != nil {
		return nil, err
	}
	if normalizedAudio != audioPath {
		if rmErr := os.Remove(audioPath); rmErr != nil {
			p.log.Warn("failed to remove raw audio track", map[string]interface{}{
				"job_id": jobID, "error": rmErr.Error(),
			})
		}
	}

	p.tracker.Set(videoID, types.StageDownloading, 85, "muxing final file")
	outName := outputFilename(ref.Title, key.Quality, videoStream.FPS)
	// Mux inside the scratch dir so a failed or timed-out run leaves its
	// partial output where Reclaim sweeps it, not in the media root.
	muxPath := filepath.Join(workDir, outName)
	if err := p.transcoder.Mux(ctx, videoPath, normalizedAudio, muxPath); err != nil {
		return nil, err
	}
	outPath := filepath.Join(p.mediaRoot, outName)
	if err := os.Rename(muxPath, outPath); err != nil {
		return nil, fmt.Errorf("%w: publish muxed file: %v", errs.ErrMuxFailed, err)
	}

	meta := map[string]string{
		"job_id": jobID,
		"title":  ref.Title,
		"fps":    strconv.Itoa(videoStream.FPS),
	}
	if err := p.artifacts.Store(key, outPath, meta); err != nil {
		p.log.Warn("failed to register artifact in cache", map[string]interface{}{
			"job_id": jobID, "error": err.Error(),
		})
	}

	rel := p.relPath(outPath)
	p.tracker.Set(videoID, types.StageCompleted, 100, rel)
	p.log.Info("pipeline completed", map[string]interface{}{
		"job_id": jobID, "key": key.String(), "file": rel,
	})
	return &Result{Key: key, JobID: jobID, FilePath: outPath, RelPath: rel}, nil
}

// Busy reports whether a run currently owns the scratch key. Sweepers use
// it to avoid reclaiming a live working directory.
func (p *Pipeline) Busy(owner string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for hash := range p.inflight {
		if strings.HasPrefix(hash, owner) {
			return true
		}
	}
	return false
}

func (p *Pipeline) fetchStream(ctx context.Context, videoID string, s *types.StreamDescriptor, outputPath string) error {
	streamURL, err := p.catalog.Resolve(ctx, videoID, s.URL, s.SignatureCipher)
	if err != nil {
		return fmt.Errorf("%w: resolve stream url: %v", errs.ErrStreamDownloadFailed, err)
	}
	return p.fetcher.Download(ctx, streamURL, outputPath)
}

func (p *Pipeline) relPath(abs string) string {
	if rel, err := filepath.Rel(p.mediaRoot, abs); err == nil {
		return rel
	}
	return filepath.Base(abs)
}

func verifyFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: missing downloaded file %s", errs.ErrStreamDownloadFailed, filepath.Base(path))
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%w: empty downloaded file %s", errs.ErrStreamDownloadFailed, filepath.Base(path))
	}
	return nil
}

func containerOrDefault(container string) string {
	if container == "" {
		return "mp4"
	}
	return container
}

// outputFilename composes the artifact name from the sanitized title, the
// requested quality label, and the video frame rate.
func outputFilename(title, quality string, fps int) string {
	return fmt.Sprintf("%s_-_%s_%dfps.mp4", sanitize.Title(title), quality, fps)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ytget/fetchvideo/cache"
	"github.com/ytget/fetchvideo/errs"
	"github.com/ytget/fetchvideo/progress"
	"github.com/ytget/fetchvideo/scratch"
	"github.com/ytget/fetchvideo/types"
)

type fakeCatalog struct {
	streams []types.StreamDescriptor
	ref     *types.VideoRef
	err     error
}

func (f *fakeCatalog) Streams(ctx context.Context, videoID string) ([]types.StreamDescriptor, *types.VideoRef, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.streams, f.ref, nil
}

func (f *fakeCatalog) Resolve(ctx context.Context, videoID, directURL, signatureCipher string) (string, error) {
	if directURL != "" {
		return directURL, nil
	}
	return "resolved://" + signatureCipher, nil
}

type fakeFetcher struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (f *fakeFetcher) Download(ctx context.Context, url, outputPath string) error {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("stream-bytes"), 0o644)
}

type fakeTranscoder struct {
	normalizeCalls int32
	muxCalls       int32
	muxErr         error
	muxPartial     bool // write a truncated output file before failing
	muxDelay       time.Duration
}

func (f *fakeTranscoder) NormalizeAudio(ctx context.Context, inputPath, container string) (string, error) {
	atomic.AddInt32(&f.normalizeCalls, 1)
	out := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".m4a"
	if err := os.WriteFile(out, []byte("normalized"), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

func (f *fakeTranscoder) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	atomic.AddInt32(&f.muxCalls, 1)
	if f.muxDelay > 0 {
		time.Sleep(f.muxDelay)
	}
	if f.muxErr != nil {
		if f.muxPartial {
			_ = os.WriteFile(outputPath, []byte("mux"), 0o644)
		}
		return f.muxErr
	}
	return os.WriteFile(outputPath, []byte("muxed"), 0o644)
}

func sampleStreams() []types.StreamDescriptor {
	return []types.StreamDescriptor{
		{Itag: 299, Kind: types.KindVideo, QualityLabel: "1080p", Codec: "avc1.64002a", Container: "mp4", FPS: 30, URL: "https://v/1080"},
		{Itag: 298, Kind: types.KindVideo, QualityLabel: "720p", Codec: "avc1.64001f", Container: "mp4", FPS: 30, URL: "https://v/720"},
		{Itag: 140, Kind: types.KindAudio, BitrateLabel: "128kbps", Container: "mp4", URL: "https://a/128"},
	}
}

type testEnv struct {
	pipeline  *Pipeline
	catalog   *fakeCatalog
	fetcher   *fakeFetcher
	transcode *fakeTranscoder
	cache     *cache.Cache
	tracker   *progress.Tracker
	mediaRoot string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	c, err := cache.New(filepath.Join(root, "index"), time.Hour)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	space, err := scratch.New(filepath.Join(root, "scratch"))
	if err != nil {
		t.Fatalf("scratch.New: %v", err)
	}
	env := &testEnv{
		catalog: &fakeCatalog{
			streams: sampleStreams(),
			ref:     &types.VideoRef{VideoID: "vid123", Title: "My Video: Part 1!", Duration: 213},
		},
		fetcher:   &fakeFetcher{},
		transcode: &fakeTranscoder{},
		cache:     c,
		tracker:   progress.NewTracker(time.Hour),
		mediaRoot: root,
	}
	env.pipeline = New(env.catalog, env.fetcher, env.transcode, env.cache, env.tracker, space, root)
	return env
}

func TestRunFullPipelineThenCacheHit(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.pipeline.Run(context.Background(), "vid123", "720p")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.CacheHit {
		t.Fatalf("first run reported a cache hit")
	}
	wantName := "My_Video_Part_1_-_720p_30fps.mp4"
	if res.RelPath != wantName {
		t.Errorf("rel path = %q, want %q", res.RelPath, wantName)
	}
	if _, err := os.Stat(filepath.Join(env.mediaRoot, wantName)); err != nil {
		t.Errorf("final artifact missing: %v", err)
	}
	if got := env.tracker.Get("vid123"); got.Stage != types.StageCompleted || got.Percent != 100 {
		t.Errorf("final progress = %+v", got)
	}
	// 720p requested: the 720p stream must have been fetched, not 1080p.
	if len(env.fetcher.urls) != 2 || env.fetcher.urls[0] != "https://v/720" {
		t.Errorf("fetched urls = %v", env.fetcher.urls)
	}

	// Second run short-circuits from the cache without another subprocess.
	res2, err := env.pipeline.Run(context.Background(), "vid123", "720p")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !res2.CacheHit {
		t.Fatalf("second run missed the cache")
	}
	if n := atomic.LoadInt32(&env.transcode.muxCalls); n != 1 {
		t.Fatalf("mux ran %d times, want 1", n)
	}
}

func TestRunFallsBackToNearestQuality(t *testing.T) {
	env := newTestEnv(t)

	// No 1440p stream listed; the 1080p stream is nearest.
	res, err := env.pipeline.Run(context.Background(), "vid123", "1440p")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if env.fetcher.urls[0] != "https://v/1080" {
		t.Errorf("fetched %q, want nearest 1080p stream", env.fetcher.urls[0])
	}
	// The artifact stays keyed and named by the requested quality.
	if !strings.Contains(res.RelPath, "1440p") {
		t.Errorf("rel path = %q, want requested quality in name", res.RelPath)
	}
}

func TestRunMuxFailureLeavesNothingCached(t *testing.T) {
	env := newTestEnv(t)
	env.transcode.muxErr = fmt.Errorf("%w: ffmpeg exceeded 600s", errs.ErrOperationTimedOut)
	env.transcode.muxPartial = true

	_, err := env.pipeline.Run(context.Background(), "vid123", "720p")
	if !errors.Is(err, errs.ErrOperationTimedOut) {
		t.Fatalf("err = %v, want ErrOperationTimedOut", err)
	}
	if got := env.tracker.Get("vid123"); got.Stage != types.StageError || got.Percent != 0 {
		t.Errorf("progress after failure = %+v, want error/0", got)
	}
	key := types.ArtifactKey{VideoID: "vid123", Quality: "720p"}
	if _, ok := env.cache.Lookup(key); ok {
		t.Fatalf("failed run left a cache entry")
	}
	// The truncated mux output stays in the reclaimed scratch dir; the
	// media root must hold no untracked orphan.
	leftovers, err := filepath.Glob(filepath.Join(env.mediaRoot, "*.mp4"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("failed run left partial output in the media root: %v", leftovers)
	}
}

func TestRunMetadataFailure(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.err = fmt.Errorf("%w: player endpoint status 503", errs.ErrRemoteUnavailable)

	_, err := env.pipeline.Run(context.Background(), "vid123", "720p")
	if !errors.Is(err, errs.ErrRemoteUnavailable) {
		t.Fatalf("err = %v, want ErrRemoteUnavailable", err)
	}
	if got := env.tracker.Get("vid123"); got.Stage != types.StageError {
		t.Errorf("progress = %+v, want error stage", got)
	}
}

func TestRunNoCompatibleStream(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.streams = []types.StreamDescriptor{
		{Itag: 140, Kind: types.KindAudio, BitrateLabel: "128kbps", Container: "mp4", URL: "https://a/128"},
	}

	_, err := env.pipeline.Run(context.Background(), "vid123", "720p")
	if !errors.Is(err, errs.ErrNoCompatibleStream) {
		t.Fatalf("err = %v, want ErrNoCompatibleStream", err)
	}
}

func TestRunConcurrentSameKeySharesOneRun(t *testing.T) {
	env := newTestEnv(t)
	env.transcode.muxDelay = 50 * time.Millisecond

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errsOut := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errsOut[i] = env.pipeline.Run(context.Background(), "vid123", "720p")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errsOut[i] != nil {
			t.Fatalf("run %d: %v", i, errsOut[i])
		}
	}
	if n := atomic.LoadInt32(&env.transcode.muxCalls); n != 1 {
		t.Fatalf("mux ran %d times for one key, want 1", n)
	}
	if results[0].JobID != results[1].JobID {
		t.Fatalf("concurrent callers got different runs: %q vs %q", results[0].JobID, results[1].JobID)
	}
}

func TestRunDistinctQualitiesRunIndependently(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.pipeline.Run(context.Background(), "vid123", "720p"); err != nil {
		t.Fatalf("Run 720p: %v", err)
	}
	if _, err := env.pipeline.Run(context.Background(), "vid123", "1080p"); err != nil {
		t.Fatalf("Run 1080p: %v", err)
	}
	if n := atomic.LoadInt32(&env.transcode.muxCalls); n != 2 {
		t.Fatalf("mux ran %d times for two keys, want 2", n)
	}
}

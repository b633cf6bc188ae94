// Package transcode drives ffmpeg as a subprocess for the two media
// operations the pipeline needs: extracting a clean audio track and muxing
// it with a video track. ffmpeg output is never parsed for progress; only
// the exit status and the presence of the output file matter.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ytget/fetchvideo/errs"
	"github.com/ytget/fetchvideo/internal/logger"
)

// Default subprocess deadlines. Muxing gets a longer deadline since it
// reads both tracks end to end.
const (
	DefaultNormalizeTimeout = 300 * time.Second
	DefaultMuxTimeout       = 600 * time.Second
)

// Runner executes ffmpeg with per-operation timeouts.
type Runner struct {
	ffmpegPath       string
	normalizeTimeout time.Duration
	muxTimeout       time.Duration
	log              *logger.ComponentLogger

	execute func(ctx context.Context, args []string) (stderr string, err error)
}

// Option adjusts a Runner.
type Option func(*Runner)

// WithFFmpegPath overrides the ffmpeg binary path.
func WithFFmpegPath(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.ffmpegPath = path
		}
	}
}

// WithTimeouts overrides the normalize and mux deadlines. Zero values keep
// the defaults.
func WithTimeouts(normalize, mux time.Duration) Option {
	return func(r *Runner) {
		if normalize > 0 {
			r.normalizeTimeout = normalize
		}
		if mux > 0 {
			r.muxTimeout = mux
		}
	}
}

// NewRunner creates a Runner with default timeouts and "ffmpeg" resolved
// from PATH.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		ffmpegPath:       "ffmpeg",
		normalizeTimeout: DefaultNormalizeTimeout,
		muxTimeout:       DefaultMuxTimeout,
		log:              logger.WithComponent(logger.ComponentTranscode),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.execute == nil {
		r.execute = r.runFFmpeg
	}
	return r
}

func (r *Runner) runFFmpeg(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// NormalizeAudio converts the downloaded audio track at inputPath into an
// m4a file alongside it. An mp4 source already carries AAC and is
// stream-copied; a webm source (Opus) is re-encoded. Returns the output
// path.
func (r *Runner) NormalizeAudio(ctx context.Context, inputPath, container string) (string, error) {
	outputPath := trimExt(inputPath) + ".m4a"
	args := []string{"-y", "-i", inputPath, "-vn"}
	switch strings.ToLower(container) {
	case "mp4", "m4a":
		args = append(args, "-c:a", "copy")
	default:
		// Opus and anything else becomes AAC.
		args = append(args, "-c:a", "aac", "-strict", "-2")
	}
	args = append(args, outputPath)

	if err := r.run(ctx, args, outputPath, r.normalizeTimeout, errs.ErrAudioNormalizationFailed); err != nil {
		return "", err
	}
	return outputPath, nil
}

// Mux joins the video and normalized audio tracks into outputPath without
// re-encoding either stream.
func (r *Runner) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "copy",
		outputPath,
	}
	return r.run(ctx, args, outputPath, r.muxTimeout, errs.ErrMuxFailed)
}

func (r *Runner) run(ctx context.Context, args []string, outputPath string, timeout time.Duration, opErr error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stderr, err := r.execute(ctx, args)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			r.log.Error("ffmpeg timed out", map[string]interface{}{
				"args": strings.Join(args, " "), "timeout": timeout.String(),
			})
			return fmt.Errorf("%w: ffmpeg exceeded %s", errs.ErrOperationTimedOut, timeout)
		}
		r.log.Error("ffmpeg failed", map[string]interface{}{
			"args": strings.Join(args, " "), "stderr": tail(stderr, 512), "error": err.Error(),
		})
		return fmt.Errorf("%w: %v", opErr, err)
	}
	if fi, statErr := os.Stat(outputPath); statErr != nil || fi.Size() == 0 {
		return fmt.Errorf("%w: ffmpeg produced no output at %s", opErr, outputPath)
	}
	r.log.Debug("ffmpeg finished", map[string]interface{}{
		"output": outputPath, "elapsed": time.Since(start).String(),
	})
	return nil
}

// Available reports whether the configured ffmpeg binary can be resolved.
func (r *Runner) Available() error {
	if _, err := exec.LookPath(r.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found at %q: %w", r.ffmpegPath, err)
	}
	return nil
}

func trimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Package downloader fetches media streams over chunked ranged HTTP. It
// resumes from a partial temp file, retries failed chunks with backoff, and
// can throttle throughput.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/fetchvideo/errs"
	"github.com/ytget/fetchvideo/internal/logger"
)

const (
	defaultChunkSizeBytes  = 1 << 20 // 1MB
	defaultMaxRetries      = 3       // chunk retries
	temporaryFileSuffix    = ".tmp"
	initialBackoffDuration = 200 * time.Millisecond
	maxBackoffDuration     = 3 * time.Second
	copyBufferSizeBytes    = 32 * 1024

	headerRange         = "Range"
	headerContentRange  = "Content-Range"
	headerContentLength = "Content-Length"

	userAgentValue = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
)

// Progress holds information about download progress.
type Progress struct {
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// Downloader downloads media files with chunked HTTP requests, simple
// retry/backoff, and optional rate limiting.
type Downloader struct {
	Client       *http.Client
	ProgressFunc func(Progress)

	chunkSize    int64
	maxRetries   int
	rateLimitBps int64
	log          *logger.ComponentLogger
}

// New creates a downloader. If client is nil, a default http.Client is
// used. rateLimitBps=0 disables limiting.
func New(client *http.Client, progressFunc func(Progress), rateLimitBps int64) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	return &Downloader{
		Client:       client,
		ProgressFunc: progressFunc,
		chunkSize:    defaultChunkSizeBytes,
		maxRetries:   defaultMaxRetries,
		rateLimitBps: rateLimitBps,
		log:          logger.WithComponent(logger.ComponentDownloader),
	}
}

func isGoogleVideoHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Host)
	return strings.HasSuffix(h, ".googlevideo.com") || h == "googlevideo.com"
}

func setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Cache-Control", "no-cache")
	if !isGoogleVideoHost(req.URL.String()) {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}
}

func totalFromHeaders(h http.Header) (int64, bool) {
	if cr := h.Get(headerContentRange); cr != "" {
		parts := strings.Split(cr, "/")
		if len(parts) == 2 {
			if v, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				return v, true
			}
		}
	}
	if cl := h.Get(headerContentLength); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// detectTotalSize tries HEAD first, then a GET with a tiny range to infer
// the total size. googlevideo hosts reject HEAD, so they go straight to GET.
func (d *Downloader) detectTotalSize(ctx context.Context, urlStr string) (int64, error) {
	if !isGoogleVideoHost(urlStr) {
		headReq, _ := http.NewRequestWithContext(ctx, http.MethodHead, urlStr, nil)
		setCommonHeaders(headReq)
		headReq.Header.Set(headerRange, "bytes=0-1")
		if resp, err := d.Client.Do(headReq); err == nil && resp != nil {
			total, ok := totalFromHeaders(resp.Header)
			_ = resp.Body.Close()
			if ok {
				return total, nil
			}
		}
	}

	getReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	setCommonHeaders(getReq)
	getReq.Header.Set(headerRange, "bytes=0-1")
	resp, err := d.Client.Do(getReq)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if total, ok := totalFromHeaders(resp.Header); ok {
		return total, nil
	}
	return 0, errors.New("cannot determine total size")
}

// sleepForRate enforces a simple rate limit based on bytes written in this step.
func (d *Downloader) sleepForRate(written int64) {
	if d.rateLimitBps <= 0 || written <= 0 {
		return
	}
	dur := time.Duration(int64(time.Second) * written / d.rateLimitBps)
	if dur > 0 {
		time.Sleep(dur)
	}
}

func (d *Downloader) fetchChunk(ctx context.Context, urlStr string, start, end int64) (*http.Response, error) {
	var lastErr error
	backoff := initialBackoffDuration
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		setCommonHeaders(req)
		req.Header.Set(headerRange, fmt.Sprintf("bytes=%d-%d", start, end))

		resp, err := d.Client.Do(req)
		if err == nil && resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 400 {
			return resp, nil
		}
		if resp != nil {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("HTTP status %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		d.log.Debug("chunk request failed", map[string]interface{}{
			"attempt": attempt + 1, "error": fmt.Sprint(lastErr),
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoffDuration {
			backoff = maxBackoffDuration
		}
	}
	return nil, lastErr
}

// Download fetches urlStr into outputPath. It resumes from an existing
// temporary file and reports progress through ProgressFunc. Failures wrap
// the stream download sentinel.
func (d *Downloader) Download(ctx context.Context, urlStr string, outputPath string) error {
	tmpPath := outputPath + temporaryFileSuffix
	var outFile *os.File
	var err error
	if _, statErr := os.Stat(tmpPath); statErr == nil {
		outFile, err = os.OpenFile(tmpPath, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("%w: open tmp for append: %v", errs.ErrStreamDownloadFailed, err)
		}
		d.log.Debug("resuming from existing temp file", map[string]interface{}{"path": tmpPath})
	} else {
		outFile, err = os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("%w: create output file: %v", errs.ErrStreamDownloadFailed, err)
		}
	}
	defer func() { _ = outFile.Close() }()

	currentInfo, _ := outFile.Stat()
	downloaded := currentInfo.Size()

	totalSize, err := d.detectTotalSize(ctx, urlStr)
	if err != nil {
		d.log.Warn("could not determine total size", map[string]interface{}{"error": err.Error()})
		totalSize = 0
	}
	d.log.Info("starting download", map[string]interface{}{
		"output": outputPath, "resume_offset": downloaded, "total": totalSize,
	})

	for downloaded < totalSize || totalSize == 0 {
		start := downloaded
		end := start + d.chunkSize - 1
		if totalSize > 0 && end >= totalSize {
			end = totalSize - 1
		}

		resp, err := d.fetchChunk(ctx, urlStr, start, end)
		if err != nil {
			return fmt.Errorf("%w: chunk at offset %d: %v", errs.ErrStreamDownloadFailed, start, err)
		}

		buf := make([]byte, copyBufferSizeBytes)
		for {
			n, rerr := resp.Body.Read(buf)
			if n > 0 {
				if _, werr := outFile.Write(buf[:n]); werr != nil {
					_ = resp.Body.Close()
					return fmt.Errorf("%w: write chunk: %v", errs.ErrStreamDownloadFailed, werr)
				}
				downloaded += int64(n)
				if d.ProgressFunc != nil {
					p := Progress{TotalSize: totalSize, DownloadedSize: downloaded}
					if totalSize > 0 {
						p.Percent = float64(downloaded) / float64(totalSize) * 100
					}
					d.ProgressFunc(p)
				}
				d.sleepForRate(int64(n))
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				_ = resp.Body.Close()
				return fmt.Errorf("%w: read response body: %v", errs.ErrStreamDownloadFailed, rerr)
			}
		}
		_ = resp.Body.Close()

		if totalSize == 0 {
			// Size unknown; bounded chunks continue until the server stops
			// returning data.
			if downloaded == start {
				break
			}
			continue
		}
		if downloaded >= totalSize {
			break
		}
	}

	if fi, err := os.Stat(tmpPath); err == nil && fi.Size() == 0 {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: empty download, 0 bytes written", errs.ErrStreamDownloadFailed)
	}
	return os.Rename(tmpPath, outputPath)
}

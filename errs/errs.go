package errs

import (
	"errors"
)

var (
	// ErrRemoteUnavailable indicates the metadata provider cannot be reached
	// or the video is private/deleted.
	ErrRemoteUnavailable = errors.New("remote unavailable")
	// ErrNoCompatibleStream indicates no stream matched the selection criteria.
	ErrNoCompatibleStream = errors.New("no compatible stream")
	// ErrStreamDownloadFailed indicates a selected stream could not be downloaded.
	ErrStreamDownloadFailed = errors.New("stream download failed")
	// ErrAudioNormalizationFailed indicates the audio transcode step failed.
	ErrAudioNormalizationFailed = errors.New("audio normalization failed")
	// ErrMuxFailed indicates the mux step failed or produced no output file.
	ErrMuxFailed = errors.New("mux failed")
	// ErrOperationTimedOut indicates a subprocess stage exceeded its time bound.
	ErrOperationTimedOut = errors.New("operation timed out")
	// ErrArtifactNotFound indicates a requested artifact file does not exist.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrCacheCorruption indicates a cache index entry whose backing file is
	// missing. The entry is purged on sight, never surfaced as fatal.
	ErrCacheCorruption = errors.New("cache corruption")
)

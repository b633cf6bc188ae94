package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorConstants(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "ErrRemoteUnavailable", err: ErrRemoteUnavailable, expected: "remote unavailable"},
		{name: "ErrNoCompatibleStream", err: ErrNoCompatibleStream, expected: "no compatible stream"},
		{name: "ErrStreamDownloadFailed", err: ErrStreamDownloadFailed, expected: "stream download failed"},
		{name: "ErrAudioNormalizationFailed", err: ErrAudioNormalizationFailed, expected: "audio normalization failed"},
		{name: "ErrMuxFailed", err: ErrMuxFailed, expected: "mux failed"},
		{name: "ErrOperationTimedOut", err: ErrOperationTimedOut, expected: "operation timed out"},
		{name: "ErrArtifactNotFound", err: ErrArtifactNotFound, expected: "artifact not found"},
		{name: "ErrCacheCorruption", err: ErrCacheCorruption, expected: "cache corruption"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected error message '%s', got '%s'", tt.expected, tt.err.Error())
			}
		})
	}
}

func TestErrorUniqueness(t *testing.T) {
	errorList := []error{
		ErrRemoteUnavailable,
		ErrNoCompatibleStream,
		ErrStreamDownloadFailed,
		ErrAudioNormalizationFailed,
		ErrMuxFailed,
		ErrOperationTimedOut,
		ErrArtifactNotFound,
		ErrCacheCorruption,
	}

	for i, err1 := range errorList {
		for j, err2 := range errorList {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Error %d and %d should not be equal", i, j)
			}
		}
	}
}

func TestWrappedErrorsMatch(t *testing.T) {
	wrapped := fmt.Errorf("mux video and audio: %w: ffmpeg exited with 1", ErrMuxFailed)
	if !errors.Is(wrapped, ErrMuxFailed) {
		t.Fatalf("wrapped error should match ErrMuxFailed")
	}
	if errors.Is(wrapped, ErrOperationTimedOut) {
		t.Fatalf("wrapped error should not match ErrOperationTimedOut")
	}
}

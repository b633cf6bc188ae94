package mimeext

import (
	"strings"
)

const (
	// DefaultExt is the extension used when MIME is unknown or empty.
	DefaultExt = "mp4"

	// ExtM4A is the file extension for MP4 audio.
	ExtM4A = "m4a"
	// ExtWebM is the file extension for WebM media.
	ExtWebM = "webm"

	// MimeVideoMP4 is the MIME type for MP4 video.
	MimeVideoMP4 = "video/mp4"
	// MimeAudioMP4 is the MIME type for MP4 audio.
	MimeAudioMP4 = "audio/mp4"
	// MimeVideoWebM is the MIME type for WebM video.
	MimeVideoWebM = "video/webm"
	// MimeAudioWebM is the MIME type for WebM audio.
	MimeAudioWebM = "audio/webm"
)

// base strips parameters and whitespace from a mime type string.
func base(mime string) string {
	mime = strings.TrimSpace(mime)
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}

// ExtFromMime returns file extension (without dot) for given mime type.
// Falls back to subtype or mp4 if unknown.
func ExtFromMime(mime string) string {
	b := base(mime)
	if b == "" {
		return DefaultExt
	}
	switch b {
	case MimeVideoMP4:
		return DefaultExt
	case MimeAudioMP4:
		return ExtM4A
	case MimeVideoWebM, MimeAudioWebM:
		return ExtWebM
	}
	parts := strings.Split(b, "/")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}
	return DefaultExt
}

// SubtypeFromMime returns the mime subtype ("mp4", "webm"), the container
// identifier used by stream descriptors. Empty for malformed input.
func SubtypeFromMime(mime string) string {
	parts := strings.Split(base(mime), "/")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

// TypeFromMime returns the mime top-level type ("video", "audio").
func TypeFromMime(mime string) string {
	parts := strings.Split(base(mime), "/")
	if len(parts) == 2 {
		return parts[0]
	}
	return ""
}

// CodecsFromMime extracts the codecs parameter from a full mime type string,
// e.g. `video/webm; codecs="vp9"` -> "vp9". Empty when absent.
func CodecsFromMime(mime string) string {
	i := strings.Index(mime, "codecs=")
	if i < 0 {
		return ""
	}
	v := mime[i+len("codecs="):]
	v = strings.Trim(v, `" `)
	return v
}

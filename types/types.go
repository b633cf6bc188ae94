package types

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// StreamKind distinguishes video and audio streams.
type StreamKind string

const (
	KindVideo StreamKind = "video"
	KindAudio StreamKind = "audio"
)

// StreamDescriptor describes an available remote media stream. Fields are
// exposed as received from the provider; descriptors are re-derived per
// request and never persisted (stream URLs are short-lived).
type StreamDescriptor struct {
	Itag            int
	Kind            StreamKind
	QualityLabel    string // e.g. "1080p", "720p60" for video
	BitrateLabel    string // e.g. "128kbps" for audio
	Codec           string // e.g. "av01.0.08M.08", "vp9", "avc1.64001F"
	Container       string // mime subtype: "mp4", "webm"
	FPS             int
	Size            int64 // approximate content length in bytes, 0 if unknown
	URL             string
	SignatureCipher string
}

// VideoRef holds basic metadata for a video, created on first successful
// metadata fetch. Immutable except the view counter.
type VideoRef struct {
	VideoID      string
	Title        string
	Channel      string
	Duration     int // seconds
	ThumbnailURL string
	Views        uint64
}

// DurationString formats the duration as HH:MM:SS.
func (v VideoRef) DurationString() string {
	h := v.Duration / 3600
	m := (v.Duration % 3600) / 60
	s := v.Duration % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ArtifactKey identifies one cached download result.
type ArtifactKey struct {
	VideoID      string
	Quality      string
	AudioQuality string // optional
}

// Hash returns a stable fixed-length key derived from the tuple. Field order
// is fixed, so equal tuples always hash equally.
func (k ArtifactKey) Hash() string {
	sum := sha256.Sum256([]byte(k.VideoID + "\x00" + k.Quality + "\x00" + k.AudioQuality))
	return fmt.Sprintf("%x", sum[:])
}

func (k ArtifactKey) String() string {
	if k.AudioQuality == "" {
		return k.VideoID + "/" + k.Quality
	}
	return k.VideoID + "/" + k.Quality + "/" + k.AudioQuality
}

// CachedArtifact is one completed pipeline result registered in the cache.
// It is valid only while the referenced file exists on disk and its age is
// within the cache TTL.
type CachedArtifact struct {
	Key       ArtifactKey
	FilePath  string
	CreatedAt time.Time
	Metadata  map[string]string
}

// Stage is a pipeline progress stage.
type Stage string

const (
	StageInitialized Stage = "initialized"
	StageFetching    Stage = "fetching"
	StageProcessing  Stage = "processing"
	StageDownloading Stage = "downloading"
	StageCompleted   Stage = "completed"
	StageError       Stage = "error"
	// StageUnknown is reported for jobs with no recorded status.
	StageUnknown Stage = "unknown"
)

// IsTerminal returns true for stages after which no further updates occur.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageError
}

// ProgressState is the last known status of one in-flight job. Overwritten
// on each update, never appended.
type ProgressState struct {
	Stage     Stage     `json:"stage"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// QualityPair is one (video, audio) candidate row for presentation. Either
// side may be nil when the other list had no counterpart at all.
type QualityPair struct {
	Video *StreamDescriptor
	Audio *StreamDescriptor
}

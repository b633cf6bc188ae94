// Package selector picks download streams from a catalog listing. All
// functions are pure and deterministic for a given input ordering.
package selector

import (
	"sort"
	"strings"

	"github.com/ytget/fetchvideo/errs"
	"github.com/ytget/fetchvideo/types"
)

// Codec preference for video streams. Lower rank wins a tie.
const (
	rankAV1 = iota
	rankVP9
	rankH264
	rankOtherCodec
)

// Container preference for audio streams. Lower rank wins.
const (
	rankWebM = iota
	rankMP4
	rankOtherContainer
)

// ParseLeadingInt extracts the leading integer from a quality or bitrate
// label: "720p60" -> 720, "128kbps" -> 128. Absent or garbled labels parse
// to 0 instead of failing.
func ParseLeadingInt(label string) int {
	label = strings.TrimSpace(label)
	n := 0
	seen := false
	for _, r := range label {
		if r < '0' || r > '9' {
			break
		}
		seen = true
		n = n*10 + int(r-'0')
	}
	if !seen {
		return 0
	}
	return n
}

func codecRank(codec string) int {
	c := strings.ToLower(codec)
	switch {
	case strings.HasPrefix(c, "av01") || strings.HasPrefix(c, "av1"):
		return rankAV1
	case strings.HasPrefix(c, "vp9") || strings.HasPrefix(c, "vp09"):
		return rankVP9
	case strings.HasPrefix(c, "avc1") || strings.HasPrefix(c, "h264"):
		return rankH264
	default:
		return rankOtherCodec
	}
}

func containerRank(container string) int {
	switch strings.ToLower(container) {
	case "webm":
		return rankWebM
	case "mp4":
		return rankMP4
	default:
		return rankOtherContainer
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// SelectVideoStream picks the best matching video stream for a requested
// quality label. An exact resolution match is preferred; otherwise the
// stream with minimal absolute resolution distance wins. Ties break on codec
// preference (AV1 > VP9 > H.264), then on input order, so the choice is
// stable for a given listing.
func SelectVideoStream(streams []types.StreamDescriptor, requestedQuality string) (*types.StreamDescriptor, error) {
	want := ParseLeadingInt(requestedQuality)

	var best *types.StreamDescriptor
	bestDist := 0
	bestRank := 0
	for i := range streams {
		if streams[i].Kind != types.KindVideo {
			continue
		}
		dist := abs(ParseLeadingInt(streams[i].QualityLabel) - want)
		rank := codecRank(streams[i].Codec)
		if best == nil || dist < bestDist || (dist == bestDist && rank < bestRank) {
			best = &streams[i]
			bestDist = dist
			bestRank = rank
		}
	}
	if best == nil {
		return nil, errs.ErrNoCompatibleStream
	}
	return best, nil
}

// SelectAudioStream picks the best audio stream: container webm over mp4
// over anything else, then the highest numeric bitrate within the container.
func SelectAudioStream(streams []types.StreamDescriptor) (*types.StreamDescriptor, error) {
	var best *types.StreamDescriptor
	bestRank := 0
	bestBitrate := 0
	for i := range streams {
		if streams[i].Kind != types.KindAudio {
			continue
		}
		rank := containerRank(streams[i].Container)
		bitrate := ParseLeadingInt(streams[i].BitrateLabel)
		if best == nil || rank < bestRank || (rank == bestRank && bitrate > bestBitrate) {
			best = &streams[i]
			bestRank = rank
			bestBitrate = bitrate
		}
	}
	if best == nil {
		return nil, errs.ErrNoCompatibleStream
	}
	return best, nil
}

// SortVideoStreamsDesc returns the video streams ordered by descending
// resolution, codec preference breaking ties.
func SortVideoStreamsDesc(streams []types.StreamDescriptor) []types.StreamDescriptor {
	out := make([]types.StreamDescriptor, 0, len(streams))
	for _, s := range streams {
		if s.Kind == types.KindVideo {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri := ParseLeadingInt(out[i].QualityLabel)
		rj := ParseLeadingInt(out[j].QualityLabel)
		if ri != rj {
			return ri > rj
		}
		return codecRank(out[i].Codec) < codecRank(out[j].Codec)
	})
	return out
}

// SortAudioStreamsDesc returns the audio streams ordered by descending
// numeric bitrate, de-duplicated by itag (the last listing for an itag wins,
// matching provider ordering).
func SortAudioStreamsDesc(streams []types.StreamDescriptor) []types.StreamDescriptor {
	byItag := make(map[int]types.StreamDescriptor)
	order := make([]int, 0)
	for _, s := range streams {
		if s.Kind != types.KindAudio {
			continue
		}
		if _, seen := byItag[s.Itag]; !seen {
			order = append(order, s.Itag)
		}
		byItag[s.Itag] = s
	}
	out := make([]types.StreamDescriptor, 0, len(order))
	for _, itag := range order {
		out = append(out, byItag[itag])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return ParseLeadingInt(out[i].BitrateLabel) > ParseLeadingInt(out[j].BitrateLabel)
	})
	return out
}

// PairForDisplay builds the UI list of (video, audio) candidate pairs. Both
// lists are ranked descending and paired by rank index. When one list is
// longer, its unmatched entries pair with the best available counterpart
// from the shorter list; the counterpart is nil only when that list is
// empty. Entries are never dropped.
func PairForDisplay(streams []types.StreamDescriptor) []types.QualityPair {
	videos := SortVideoStreamsDesc(streams)
	audios := SortAudioStreamsDesc(streams)

	n := len(videos)
	if len(audios) > n {
		n = len(audios)
	}
	pairs := make([]types.QualityPair, 0, n)
	for i := 0; i < n; i++ {
		var p types.QualityPair
		switch {
		case i < len(videos):
			p.Video = &videos[i]
		case len(videos) > 0:
			p.Video = &videos[0]
		}
		switch {
		case i < len(audios):
			p.Audio = &audios[i]
		case len(audios) > 0:
			p.Audio = &audios[0]
		}
		pairs = append(pairs, p)
	}
	return pairs
}

package fetchvideo

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID pulls the 11-character video ID out of the common YouTube
// URL shapes: watch, youtu.be, embed, and shorts. A bare ID passes through.
func ExtractVideoID(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if videoIDRegex.MatchString(raw) {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid video url %q", rawURL)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.Trim(strings.TrimPrefix(u.Path, "/embed/"), "/")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.Trim(strings.TrimPrefix(u.Path, "/shorts/"), "/")
		case strings.HasPrefix(u.Path, "/v/"):
			id = strings.Trim(strings.TrimPrefix(u.Path, "/v/"), "/")
		}
	}
	if i := strings.IndexByte(id, '/'); i >= 0 {
		id = id[:i]
	}
	if !videoIDRegex.MatchString(id) {
		return "", fmt.Errorf("no video id in url %q", rawURL)
	}
	return id, nil
}

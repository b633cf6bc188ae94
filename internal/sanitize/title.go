package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxTitleLength is the maximum allowed length for the sanitized title.
	MaxTitleLength = 120
	// DefaultName is the replacement name when the title is empty.
	DefaultName = "video"
)

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_\s.-]+`)

// Title builds a filesystem-safe name from a video title: everything except
// letters, digits, '_', whitespace, '.' and '-' is stripped and spaces become
// underscores. Long names are cut at a rune boundary so the result stays
// valid UTF-8. The transform is idempotent.
func Title(title string) string {
	name := unsafeChars.ReplaceAllString(title, "")
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" {
		name = DefaultName
	}
	if len(name) > MaxTitleLength {
		cut := MaxTitleLength
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return name
}

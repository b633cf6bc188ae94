package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTitle_Basics(t *testing.T) {
	got := Title("My Video: Part 1!")
	if got != "My_Video_Part_1" {
		t.Fatalf("got %q", got)
	}
}

func TestTitle_KeepsDotsAndDashes(t *testing.T) {
	got := Title("v1.2 - final")
	if got != "v1.2_-_final" {
		t.Fatalf("got %q", got)
	}
}

func TestTitle_Idempotent(t *testing.T) {
	inputs := []string{
		"My Video: Part 1!",
		"plain",
		"  padded  ",
		"emoji \U0001F600 title",
		"slash/back\\slash",
	}
	for _, in := range inputs {
		once := Title(in)
		twice := Title(once)
		if once != twice {
			t.Errorf("Title(%q) not idempotent: %q -> %q", in, once, twice)
		}
	}
}

func TestTitle_Empty(t *testing.T) {
	if got := Title("!!!"); got != "video" {
		t.Fatalf("got %q", got)
	}
	if got := Title(""); got != "video" {
		t.Fatalf("got %q", got)
	}
}

func TestTitle_Long(t *testing.T) {
	title := "a"
	for len(title) < 300 {
		title += "a"
	}
	got := Title(title)
	if len(got) > MaxTitleLength {
		t.Fatalf("too long: %d", len(got))
	}
}

func TestTitle_KeepsUnicodeLetters(t *testing.T) {
	if got := Title("Café del Mar"); got != "Café_del_Mar" {
		t.Fatalf("got %q", got)
	}
}

func TestTitle_TruncatesOnRuneBoundary(t *testing.T) {
	// The leading 'a' shifts every two-byte rune onto an odd offset, so a
	// naive byte cut at MaxTitleLength would split one in half.
	title := "a" + strings.Repeat("é", 200)
	got := Title(title)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated name is not valid UTF-8: %q", got)
	}
	if len(got) > MaxTitleLength {
		t.Fatalf("too long: %d", len(got))
	}
	if got != Title(got) {
		t.Fatalf("truncation not idempotent: %q", got)
	}
}

package respond

import (
	"strings"
	"unicode/utf8"
)

const truncationMarker = "…"

// Truncate hard-caps text to limit characters, cutting at a sentence boundary
// when one is close enough and at a word boundary otherwise. It never cuts
// mid-word or mid-rune. The marker counts against the limit.
func Truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}

	cut := limit - len(truncationMarker)
	if cut <= 0 {
		return truncationMarker
	}

	// Back the window up to a rune boundary so the slice is valid UTF-8.
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	head := text[:cut]

	// Prefer the last sentence end inside the window, if it keeps a
	// reasonable share of the text.
	if idx := lastSentenceEnd(head); idx > cut/2 {
		return strings.TrimRight(head[:idx+1], " ")
	}

	// Otherwise back up to the last space so we never split a word. A single
	// token longer than the window is dropped whole.
	idx := strings.LastIndexByte(head, ' ')
	if idx <= 0 {
		return truncationMarker
	}
	head = head[:idx]
	return strings.TrimRight(head, " ,;:-") + truncationMarker
}

func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}

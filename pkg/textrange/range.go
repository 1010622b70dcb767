// Package textrange computes and validates rune-offset ranges against a
// contract's canonical text. Offsets never depend on rendered markup, so a
// stored range stays valid across re-renders.
package textrange

import (
	"errors"
	"unicode/utf8"
)

// ErrInvalidRange reports a range that is not a well-formed half-open
// interval inside the text.
var ErrInvalidRange = errors.New("invalid range")

// Validate checks that r is well-formed against a text of textLen runes.
func Validate(r TextRange, textLen int) error {
	if r.Start < 0 || r.End <= r.Start || r.End > textLen {
		return ErrInvalidRange
	}
	return nil
}

// TextRange mirrors domain.TextRange without importing it, keeping this
// package dependency-free for reuse from both domain and render code.
type TextRange struct {
	Start int
	End   int
}

// Compute converts a selection over the canonical text into a validated
// range. The selection endpoints are rune offsets supplied by the client;
// they are clamped to the text bounds and reordered if reversed. The second
// return value is false when the selection collapses to nothing.
func Compute(text string, selStart, selEnd int) (TextRange, bool) {
	n := utf8.RuneCountInString(text)
	if selStart > selEnd {
		selStart, selEnd = selEnd, selStart
	}
	if selStart < 0 {
		selStart = 0
	}
	if selEnd > n {
		selEnd = n
	}
	if selStart >= selEnd || selStart >= n {
		return TextRange{}, false
	}
	return TextRange{Start: selStart, End: selEnd}, true
}

// Slice returns the text covered by r. The caller must have validated r.
func Slice(text string, r TextRange) string {
	runes := []rune(text)
	if r.Start < 0 || r.End > len(runes) || r.Start >= r.End {
		return ""
	}
	return string(runes[r.Start:r.End])
}

// Len returns the rune length of text, the unit all ranges are measured in.
func Len(text string) int {
	return utf8.RuneCountInString(text)
}

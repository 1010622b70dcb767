// Package render merges canonical text with comment highlights into an
// ordered sequence of display segments.
package render

import "sort"

// Highlight is one comment-anchored range over the text, in rune offsets.
type Highlight struct {
	Start     int
	End       int
	CommentID string
	Label     string
}

// Segment is a run of text, either plain or attributed to the comment whose
// highlight covers it.
type Segment struct {
	Text        string `json:"text"`
	Highlighted bool   `json:"highlighted"`
	CommentID   string `json:"commentId,omitempty"`
	Label       string `json:"label,omitempty"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

// Render sweeps the highlights over text left to right. Ranges whose end
// runs past the text are clamped rather than rejected, so stale data still
// renders. Sorting by start is stable, so equal starts keep comment creation
// order. When highlights overlap, the earlier-starting one keeps the
// contested runes and later ones cover only what remains past the cursor.
// The concatenation of all segment texts always equals text.
func Render(text string, highlights []Highlight) []Segment {
	runes := []rune(text)
	n := len(runes)

	hs := make([]Highlight, 0, len(highlights))
	for _, h := range highlights {
		if h.End > n {
			h.End = n
		}
		if h.Start < 0 || h.Start >= h.End {
			continue
		}
		hs = append(hs, h)
	}
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].Start < hs[j].Start })

	segments := make([]Segment, 0, 2*len(hs)+1)
	cursor := 0
	for _, h := range hs {
		if h.End <= cursor {
			continue
		}
		if h.Start > cursor {
			segments = append(segments, Segment{
				Text:  string(runes[cursor:h.Start]),
				Start: cursor,
				End:   h.Start,
			})
			cursor = h.Start
		}
		from := cursor
		if h.Start > from {
			from = h.Start
		}
		segments = append(segments, Segment{
			Text:        string(runes[from:h.End]),
			Highlighted: true,
			CommentID:   h.CommentID,
			Label:       h.Label,
			Start:       from,
			End:         h.End,
		})
		cursor = h.End
	}
	if cursor < n {
		segments = append(segments, Segment{
			Text:  string(runes[cursor:n]),
			Start: cursor,
			End:   n,
		})
	}
	return segments
}

// Package pdftext extracts the canonical text of an uploaded contract. The
// result is the single source of truth for all highlight offsets, so the
// normalization here must be deterministic: the same blob always yields the
// same text.
package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// Extract reads the blob and returns its normalized text. The file kind is
// decided by the original filename's extension; anything that is not a PDF
// is treated as plain text.
func Extract(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(data)
	default:
		return Normalize(string(data)), nil
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var pages []string
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing the whole document.
			continue
		}
		text = Normalize(text)
		if text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("no text extracted from pdf")
	}
	return strings.Join(pages, "\n\n"), nil
}

// Normalize cleans extracted text while preserving line structure: CRLF
// becomes LF, control and zero-width characters are dropped, NBSP becomes a
// plain space, runs of spaces collapse, and each line is trimmed. Blank
// lines survive so paragraph boundaries stay visible.
func Normalize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteRune('\n')
		case r == '\ufeff', r == '\u200b', r == '\u2060', r == '\u00ad':
			// BOM, zero-width space/joiner, soft hyphen: drop.
		case r == '\u00a0', r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
			// Other control characters vanish.
		default:
			b.WriteRune(r)
		}
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	out := strings.Join(lines, "\n")
	out = collapseBlankRuns(out)
	return strings.Trim(out, "\n")
}

// collapseBlankRuns reduces three or more consecutive newlines to a single
// blank line.
func collapseBlankRuns(text string) string {
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

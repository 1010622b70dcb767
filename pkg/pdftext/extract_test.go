package pdftext

import (
	"strings"
	"testing"
)

func TestNormalizePreservesLineStructure(t *testing.T) {
	raw := "\uFEFF  Title \x00\t\nLine​ one\r\n\r\nSecond⁠ line­"
	got := Normalize(raw)
	want := "Title\nLine one\n\nSecond line"
	if got != want {
		t.Fatalf("Normalize() = %q, want %q", got, want)
	}
}

func TestNormalizeCollapsesBlankRuns(t *testing.T) {
	got := Normalize("a\n\n\n\n\nb")
	if got != "a\n\nb" {
		t.Fatalf("Normalize() = %q, want %q", got, "a\n\nb")
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"Clause 1. Payment\n\nClause 2. Term",
		"  spaced   out  \n\n\n tail ",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestExtractPlainText(t *testing.T) {
	got, err := Extract(strings.NewReader("hello\r\nworld"), "notes.txt")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "hello\nworld" {
		t.Fatalf("Extract = %q", got)
	}
}

func TestExtractBadPDF(t *testing.T) {
	if _, err := Extract(strings.NewReader("definitely not a pdf"), "contract.pdf"); err == nil {
		t.Fatal("expected error for invalid pdf bytes")
	}
}

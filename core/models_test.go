package core

import (
	"testing"
)

func TestContentHash(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "same content produces same hash",
			content: "test content",
		},
		{
			name:    "empty string",
			content: "",
		},
		{
			name:    "multi line canonical text",
			content: "A summary.\n\nFirst sentence. Second sentence.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1 := ContentHash(tt.content)
			h2 := ContentHash(tt.content)

			if h1 != h2 {
				t.Errorf("ContentHash() produced different hashes for same content: %s vs %s", h1, h2)
			}
			if len(h1) != 16 {
				t.Errorf("ContentHash() length = %d, want 16", len(h1))
			}
		})
	}
}

func TestContentHash_Different(t *testing.T) {
	h1 := ContentHash("content1")
	h2 := ContentHash("content2")

	if h1 == h2 {
		t.Errorf("ContentHash() produced same hash for different content")
	}
}

func TestDocIDFromPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "absolute path", path: "/data/in/report.pdf", want: "report.pdf"},
		{name: "relative path", path: "docs/notes.txt", want: "notes.txt"},
		{name: "bare name", path: "memo.docx", want: "memo.docx"},
		{name: "empty", path: "", want: ""},
		{name: "whitespace", path: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DocIDFromPath(tt.path); got != tt.want {
				t.Errorf("DocIDFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestDocIDFromContent(t *testing.T) {
	a := DocIDFromContent("summary", []string{"one", "two"})
	b := DocIDFromContent("summary", []string{"one", "two"})
	c := DocIDFromContent("summary", []string{"one two"})

	if a != b {
		t.Errorf("DocIDFromContent() not stable: %s vs %s", a, b)
	}
	if a == c {
		t.Errorf("DocIDFromContent() ignored sentence boundaries")
	}
}

func TestMetric_Normalized(t *testing.T) {
	if !MetricInnerProduct.Normalized() {
		t.Errorf("inner product metric should normalize")
	}
	if MetricL2.Normalized() {
		t.Errorf("l2 metric should not normalize")
	}
}

func TestIndexSummary_Merge(t *testing.T) {
	s := IndexSummary{Added: 1, SkippedDuplicate: 2}
	s.Merge(IndexSummary{Added: 3, Failed: 4})

	want := IndexSummary{Added: 4, SkippedDuplicate: 2, Failed: 4}
	if s != want {
		t.Errorf("Merge() = %+v, want %+v", s, want)
	}
	if s.Total() != 10 {
		t.Errorf("Total() = %d, want 10", s.Total())
	}
}

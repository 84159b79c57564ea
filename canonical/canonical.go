// Package canonical derives the indexable text and content hash of a chunk.
package canonical

import (
	"strings"

	"github.com/poiesic/semindex/core"
)

// Separator joins a summary to the sentence body.
const Separator = "\n\n"

// Text builds the canonical text for a chunk: the trimmed summary, then
// Separator, then the sentences joined by single spaces. When either part
// is empty the other is returned alone.
func Text(summary string, sentences []string) string {
	base := strings.TrimSpace(summary)
	body := strings.Join(sentences, " ")
	var text string
	switch {
	case base != "" && body != "":
		text = base + Separator + body
	case base != "":
		text = base
	default:
		text = body
	}
	return strings.TrimSpace(text)
}

// Document canonicalizes every chunk of doc, preserving chunk order.
// A chunk without a summary borrows the document summary. Chunks whose
// canonical text is empty are skipped. If nothing survives, the result is
// core.ErrEmptyDocument.
func Document(doc *core.Document) ([]core.Item, error) {
	if doc == nil {
		return nil, core.ErrInvalidDocument
	}

	items := make([]core.Item, 0, len(doc.Chunks))
	for _, chunk := range doc.Chunks {
		summary := chunk.Summary
		if summary == "" {
			summary = doc.DocSummary
		}

		text := Text(summary, chunk.Sentences)
		if text == "" {
			continue
		}

		items = append(items, core.Item{
			Text: text,
			Metadata: core.Metadata{
				DocID:       doc.DocID,
				ChunkID:     chunk.ChunkID,
				FileType:    doc.FileType,
				FilePath:    doc.FilePath,
				ContentHash: core.ContentHash(text),
				Summary:     summary,
				Sentences:   chunk.Sentences,
			},
		})
	}

	if len(items) == 0 {
		return nil, core.ErrEmptyDocument
	}
	return items, nil
}

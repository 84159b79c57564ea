// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package chunker splits an ordered sentence sequence into bounded chunks.
//
// Chunks are assembled greedily: sentences are appended to the current chunk
// until the next one would push the word count past the budget, at which point
// the chunk is sealed. A sentence is never split, so a single sentence longer
// than the budget becomes a chunk of its own.
package chunker

import (
	"errors"
	"strings"

	"github.com/poiesic/semindex/core"
)

// DefaultWordBudget is the maximum number of words per chunk.
const DefaultWordBudget = 100

// ErrInvalidWordBudget is returned for a non-positive word budget.
var ErrInvalidWordBudget = errors.New("word budget must be positive")

// Chunker groups sentences into chunks of at most WordBudget words.
// It is stateless after construction and safe for concurrent use.
type Chunker struct {
	wordBudget       int
	summaryFromFirst bool
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithWordBudget sets the per-chunk word budget.
func WithWordBudget(words int) Option {
	return func(c *Chunker) error {
		if words <= 0 {
			return ErrInvalidWordBudget
		}
		c.wordBudget = words
		return nil
	}
}

// WithSummaryFromFirstSentence controls whether each produced chunk gets its
// first sentence as a placeholder summary. Enabled by default.
func WithSummaryFromFirstSentence(enabled bool) Option {
	return func(c *Chunker) error {
		c.summaryFromFirst = enabled
		return nil
	}
}

// New creates a Chunker.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		wordBudget:       DefaultWordBudget,
		summaryFromFirst: true,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WordBudget returns the configured word budget.
func (c *Chunker) WordBudget() int {
	return c.wordBudget
}

// Split groups sentences into chunks. Blank sentences are dropped.
// An empty input yields an empty result.
func (c *Chunker) Split(sentences []string) []core.Chunk {
	var (
		chunks  []core.Chunk
		current []string
		words   int
	)

	seal := func() {
		chunk := core.Chunk{
			ChunkID:   len(chunks) + 1,
			Sentences: current,
		}
		if c.summaryFromFirst {
			chunk.Summary = current[0]
		}
		chunks = append(chunks, chunk)
		current = nil
		words = 0
	}

	for _, sentence := range sentences {
		if strings.TrimSpace(sentence) == "" {
			continue
		}
		n := len(strings.Fields(sentence))
		if words+n > c.wordBudget && len(current) > 0 {
			seal()
		}
		current = append(current, sentence)
		words += n
	}
	if len(current) > 0 {
		seal()
	}

	return chunks
}

// ChunkDocument fills in a document's chunks from its sentences when it has
// none yet, and derives a doc ID when it is missing. Documents that already
// carry chunks keep them as they are.
func (c *Chunker) ChunkDocument(doc *core.Document) {
	if doc == nil {
		return
	}
	if doc.DocID == "" {
		doc.DocID = core.DocIDFromPath(doc.FilePath)
	}
	if doc.DocID == "" {
		doc.DocID = core.DocIDFromContent(doc.DocSummary, doc.Sentences)
	}
	if len(doc.Chunks) == 0 && len(doc.Sentences) > 0 {
		doc.Chunks = c.Split(doc.Sentences)
	}
}

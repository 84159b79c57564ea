package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDocuments(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		docs, err := DecodeDocuments([]byte(`  {"doc_id":"a","file_type":"pdf","chunks":[{"chunk_id":1,"sentences":["x"],"entities":{"ORG":["Acme"]}}]}`))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "a", docs[0].DocID)
		assert.Equal(t, "pdf", docs[0].FileType)
		require.Len(t, docs[0].Chunks, 1)
		assert.Equal(t, []string{"Acme"}, docs[0].Chunks[0].Entities["ORG"])
	})

	t.Run("array", func(t *testing.T) {
		docs, err := DecodeDocuments([]byte(`[{"doc_id":"a"},{"doc_id":"b","sentences":["s"]}]`))
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, []string{"s"}, docs[1].Sentences)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, input := range []string{"", "   ", "{", "[1,2]", "nope"} {
			_, err := DecodeDocuments([]byte(input))
			require.Error(t, err, input)
			assert.True(t, errors.Is(err, ErrValidation), input)
		}
	})
}

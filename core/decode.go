package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeDocuments parses a JSON document record or a JSON array of them.
func DecodeDocuments(data []byte) ([]*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidDocument)
	}

	if trimmed[0] == '[' {
		var docs []*Document
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
		return docs, nil
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return []*Document{&doc}, nil
}

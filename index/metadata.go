package index

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/poiesic/semindex/core"
)

// maxMetadataLine bounds a single JSONL record.
const maxMetadataLine = 16 * 1024 * 1024

// marshalMetadata renders one JSON record per line, in index order.
func marshalMetadata(records []core.Metadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range records {
		// Encode appends the newline.
		if err := enc.Encode(&records[i]); err != nil {
			return nil, fmt.Errorf("metadata record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// unmarshalMetadata parses a JSONL metadata file. Blank lines are ignored;
// any undecodable line is an error, since skipping it would shift every
// later record out of alignment.
func unmarshalMetadata(data []byte) ([]core.Metadata, error) {
	var records []core.Metadata
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxMetadataLine)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var m core.Metadata
		if err := json.Unmarshal(text, &m); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if m.ContentHash == "" {
			return nil, fmt.Errorf("line %d: missing content_hash", line)
		}
		records = append(records, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

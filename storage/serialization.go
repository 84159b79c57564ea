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


package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/semindex/core"
)

// MarshalDocumentRecord serializes a ledger entry to bytes. Documents are
// kept in the same JSON form they arrive in.
func MarshalDocumentRecord(record *DocumentRecord) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalDocumentRecord deserializes a ledger entry from bytes.
func UnmarshalDocumentRecord(data []byte) (*DocumentRecord, error) {
	var record DocumentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *Checkpoint) []byte {
	strs := []string{checkpoint.Name, checkpoint.Generation, string(checkpoint.Metric), checkpoint.Model}
	ints := []int64{int64(checkpoint.Size), int64(checkpoint.Dimension), checkpoint.UpdatedAt.UnixMicro()}

	size := 0
	for _, s := range strs {
		size += ord.String.Size(s)
	}
	for _, v := range ints {
		size += varint.Int64.Size(v)
	}

	buf := make([]byte, size)
	n := 0
	for _, s := range strs {
		n += ord.String.Marshal(s, buf[n:])
	}
	for _, v := range ints {
		n += varint.Int64.Marshal(v, buf[n:])
	}
	return buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	strs := make([]string, 4)
	ints := make([]int64, 3)

	n := 0
	for i := range strs {
		s, read, err := ord.String.Unmarshal(data[n:])
		if err != nil {
			return nil, fmt.Errorf("%w: checkpoint field %d: %w", ErrSerializationFailed, i, err)
		}
		strs[i] = s
		n += read
	}
	for i := range ints {
		v, read, err := varint.Int64.Unmarshal(data[n:])
		if err != nil {
			return nil, fmt.Errorf("%w: checkpoint field %d: %w", ErrSerializationFailed, len(strs)+i, err)
		}
		ints[i] = v
		n += read
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}

	return &Checkpoint{
		Name:       strs[0],
		Generation: strs[1],
		Metric:     core.Metric(strs[2]),
		Model:      strs[3],
		Size:       int(ints[0]),
		Dimension:  int(ints[1]),
		UpdatedAt:  time.UnixMicro(ints[2]).UTC(),
	}, nil
}

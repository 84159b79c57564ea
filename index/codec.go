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


package index

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/semindex/core"
)

// Binary layout shared by the vector collection and the search structure:
//
//	magic(4) | version | metric | dim | rows | rows*dim float32
//
// version, metric, dim and rows are varints; floats are fixed 4-byte values.
const (
	codecVersion = 1
	maxDimension = 1 << 16
)

var (
	vectorsMagic = []byte("SIVC")
	flatMagic    = []byte("SIFL")
)

var (
	errBadMagic   = errors.New("bad magic")
	errBadVersion = errors.New("unsupported version")
	errTrailing   = errors.New("trailing bytes")
)

func metricCode(m core.Metric) uint64 {
	switch m {
	case core.MetricInnerProduct:
		return 1
	case core.MetricL2:
		return 2
	}
	return 0
}

func metricFromCode(code uint64) (core.Metric, error) {
	switch code {
	case 1:
		return core.MetricInnerProduct, nil
	case 2:
		return core.MetricL2, nil
	}
	return "", fmt.Errorf("unknown metric code %d", code)
}

// matrix is the decoded form of either binary artifact.
type matrix struct {
	metric core.Metric
	dim    int
	rows   int
	data   []float32
}

func marshalMatrix(magic []byte, m matrix) []byte {
	header := []uint64{codecVersion, metricCode(m.metric), uint64(m.dim), uint64(m.rows)}

	size := len(magic)
	for _, v := range header {
		size += varint.Uint64.Size(v)
	}
	for _, f := range m.data {
		size += raw.Float32.Size(f)
	}

	bs := make([]byte, size)
	n := copy(bs, magic)
	for _, v := range header {
		n += varint.Uint64.Marshal(v, bs[n:])
	}
	for _, f := range m.data {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return bs
}

func unmarshalMatrix(magic []byte, bs []byte) (matrix, error) {
	var m matrix
	if !bytes.HasPrefix(bs, magic) {
		return m, errBadMagic
	}
	n := len(magic)

	header := make([]uint64, 4)
	for i := range header {
		v, read, err := varint.Uint64.Unmarshal(bs[n:])
		if err != nil {
			return m, fmt.Errorf("header field %d: %w", i, err)
		}
		header[i] = v
		n += read
	}
	if header[0] != codecVersion {
		return m, fmt.Errorf("%w: %d", errBadVersion, header[0])
	}
	metric, err := metricFromCode(header[1])
	if err != nil {
		return m, err
	}
	if header[2] > maxDimension {
		return m, fmt.Errorf("dimension %d out of range", header[2])
	}
	dim, rows := header[2], header[3]
	if dim == 0 && rows > 0 {
		return m, fmt.Errorf("%d rows without a dimension", rows)
	}
	remaining := uint64(len(bs) - n)
	if dim > 0 && rows > remaining/(4*dim) {
		return m, fmt.Errorf("truncated: %d rows of %d floats do not fit in %d bytes", rows, dim, remaining)
	}
	m.metric = metric
	m.dim = int(header[2])
	m.rows = int(header[3])

	count := m.dim * m.rows
	m.data = make([]float32, count)
	for i := range m.data {
		f, read, err := raw.Float32.Unmarshal(bs[n:])
		if err != nil {
			return m, fmt.Errorf("value %d: %w", i, err)
		}
		m.data[i] = f
		n += read
	}
	if n != len(bs) {
		return m, fmt.Errorf("%w: %d", errTrailing, len(bs)-n)
	}
	return m, nil
}

// marshalVectors encodes the vector collection.
func marshalVectors(metric core.Metric, dim int, vectors [][]float32) []byte {
	data := make([]float32, 0, len(vectors)*dim)
	for _, v := range vectors {
		data = append(data, v...)
	}
	return marshalMatrix(vectorsMagic, matrix{metric: metric, dim: dim, rows: len(vectors), data: data})
}

// unmarshalVectors decodes the vector collection into one slice per row.
func unmarshalVectors(bs []byte) (core.Metric, int, [][]float32, error) {
	m, err := unmarshalMatrix(vectorsMagic, bs)
	if err != nil {
		return "", 0, nil, err
	}
	vectors := make([][]float32, m.rows)
	for i := range vectors {
		vectors[i] = m.data[i*m.dim : (i+1)*m.dim : (i+1)*m.dim]
	}
	return m.metric, m.dim, vectors, nil
}

// marshalFlat encodes the search structure.
func marshalFlat(f *Flat) []byte {
	return marshalMatrix(flatMagic, matrix{metric: f.metric, dim: f.dim, rows: f.Len(), data: f.data})
}

// unmarshalFlat decodes the search structure.
func unmarshalFlat(bs []byte) (*Flat, error) {
	m, err := unmarshalMatrix(flatMagic, bs)
	if err != nil {
		return nil, err
	}
	if m.dim == 0 {
		return nil, errors.New("zero dimension")
	}
	return &Flat{metric: m.metric, dim: m.dim, data: m.data}, nil
}

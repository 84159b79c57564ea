package index

import (
	"fmt"
	"slices"

	"github.com/poiesic/semindex/core"
)

// Neighbor is one search-structure row with its score against a query.
type Neighbor struct {
	Row   int
	Score float32
}

// Flat is an exact search structure. Every query scans every row.
// Rows are addressed by insertion order, starting at 0.
type Flat struct {
	metric core.Metric
	dim    int
	data   []float32 // row-major, len == rows*dim
}

// NewFlat creates an empty search structure for vectors of length dim.
func NewFlat(metric core.Metric, dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", core.ErrValidation, dim)
	}
	switch metric {
	case core.MetricInnerProduct, core.MetricL2:
	default:
		return nil, fmt.Errorf("%w: unknown metric %q", core.ErrValidation, metric)
	}
	return &Flat{metric: metric, dim: dim}, nil
}

// Metric returns the similarity function the structure ranks by.
func (f *Flat) Metric() core.Metric { return f.metric }

// Dim returns the vector length.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of rows.
func (f *Flat) Len() int { return len(f.data) / f.dim }

// Row returns a copy of row i.
func (f *Flat) Row(i int) []float32 {
	return slices.Clone(f.data[i*f.dim : (i+1)*f.dim])
}

// Add appends rows. Either all rows are added or none are.
func (f *Flat) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: row %d has %d, want %d", core.ErrDimensionMismatch, i, len(v), f.dim)
		}
	}
	f.data = slices.Grow(f.data, len(vectors)*f.dim)
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Search returns the k best rows for query, best first. Inner product ranks
// by descending score, L2 by ascending squared distance. Ties keep row order.
func (f *Flat) Search(query []float32, k int) ([]Neighbor, error) {
	return f.searchRows(query, k, f.Len())
}

// searchRows is Search over the first n rows.
func (f *Flat) searchRows(query []float32, k, n int) ([]Neighbor, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", core.ErrDimensionMismatch, len(query), f.dim)
	}

	n = min(n, f.Len())
	results := make([]Neighbor, n)
	for row := 0; row < n; row++ {
		vec := f.data[row*f.dim : (row+1)*f.dim]
		var score float32
		if f.metric == core.MetricL2 {
			score = squaredL2(query, vec)
		} else {
			score = dotProduct(query, vec)
		}
		results[row] = Neighbor{Row: row, Score: score}
	}

	slices.SortStableFunc(results, func(a, b Neighbor) int {
		if f.metric == core.MetricL2 {
			return compare(a.Score, b.Score)
		}
		return compare(b.Score, a.Score)
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func compare(a, b float32) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// dotProduct calculates the dot product of two equal-length vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// squaredL2 calculates the squared Euclidean distance of two equal-length vectors.
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

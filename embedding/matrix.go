package embedding

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/mat"
)

// DimensionMismatchError is returned when a pretrained vector does not have
// the configured embedding dimension.
type DimensionMismatchError struct {
	Token string
	Got   int
	Want  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding for %q has dimension %d, want %d", e.Token, e.Got, e.Want)
}

// Matrix is the (maxWords x dim) weight matrix of an embedding layer.
type Matrix struct {
	dense      *mat.Dense
	filled     *roaring.Bitmap
	candidates int
}

// BuildMatrix fills row i with the vector of the token whose index is i.
// Rows of unknown tokens, of index 0 and of indices not below maxWords stay
// zero.
func BuildMatrix(wordIndex map[string]int, vectors *Vectors, maxWords, dim int) (*Matrix, error) {
	if maxWords <= 0 || dim <= 0 {
		return nil, fmt.Errorf("embedding matrix: invalid shape (%d, %d)", maxWords, dim)
	}

	m := &Matrix{
		dense:  mat.NewDense(maxWords, dim, nil),
		filled: roaring.New(),
	}

	for token, i := range wordIndex {
		if i <= 0 || i >= maxWords {
			continue
		}
		m.candidates++

		vec, ok := vectors.Lookup(token)
		if !ok {
			continue
		}
		if len(vec) != dim {
			return nil, &DimensionMismatchError{Token: token, Got: len(vec), Want: dim}
		}

		row := m.dense.RawRowView(i)
		for j, f := range vec {
			row[j] = float64(f)
		}
		m.filled.Add(uint32(i))
	}

	return m, nil
}

// Dense returns the underlying matrix.
func (m *Matrix) Dense() *mat.Dense {
	return m.dense
}

// Dims returns the matrix shape.
func (m *Matrix) Dims() (rows, cols int) {
	return m.dense.Dims()
}

// Filled reports whether row i holds a pretrained vector.
func (m *Matrix) Filled(i int) bool {
	return i >= 0 && m.filled.Contains(uint32(i))
}

// Coverage summarizes how much of the vocabulary has pretrained vectors.
type Coverage struct {
	// Hits is the number of rows filled from pretrained vectors.
	Hits int
	// Misses is the number of vocabulary rows left zero.
	Misses int
}

// Ratio returns Hits / (Hits + Misses).
func (c Coverage) Ratio() float64 {
	if c.Hits+c.Misses == 0 {
		return 0
	}
	return float64(c.Hits) / float64(c.Hits+c.Misses)
}

// Coverage returns hit and miss counts over the rows that map to a word.
func (m *Matrix) Coverage() Coverage {
	hits := int(m.filled.GetCardinality())
	return Coverage{Hits: hits, Misses: m.candidates - hits}
}

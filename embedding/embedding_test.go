package embedding

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadVectors(t *testing.T) {
	src := "brake 0.1 0.2 -0.3\n\nsensor 1 2 3e-1\n"
	v, err := LoadVectors(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 3, v.Dim())
	assert.Equal(t, 2, v.Len())

	vec, ok := v.Lookup("sensor")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{1, 2, 0.3}, vec, 1e-6)

	_, ok = v.Lookup("relay")
	assert.False(t, ok)
}

func TestLoadVectors_Errors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		line int
		dim  bool
	}{
		{"bad float", "a 0.1 0.2\nb 0.1 x\n", 2, false},
		{"dimension", "a 0.1 0.2\nb 0.1\n", 2, true},
		{"no components", "a\n", 1, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadVectors(strings.NewReader(tc.src))
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tc.line, pe.Line)
			assert.Equal(t, tc.dim, errors.Is(err, ErrDimension))
		})
	}
}

func TestLoadVectors_WithVocabulary(t *testing.T) {
	src := "brake 1 1\nsensor 2 2\nrelay 3 3\n"
	wordIndex := map[string]int{"sensor": 1, "relay": 5}

	v, err := LoadVectors(strings.NewReader(src), WithVocabulary(wordIndex, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, v.Len())
	_, ok := v.Lookup("sensor")
	assert.True(t, ok)

	// Filtered lines are still validated.
	_, err = LoadVectors(strings.NewReader("brake 1 x\n"), WithVocabulary(wordIndex, 3))
	assert.Error(t, err)
}

func TestBuildMatrix(t *testing.T) {
	v, err := LoadVectors(strings.NewReader("brake 0.5 0.25\nsensor 1 2\nrelay 9 9\n"))
	require.NoError(t, err)

	wordIndex := map[string]int{"sensor": 1, "housing": 2, "brake": 3, "relay": 4}
	m, err := BuildMatrix(wordIndex, v, 4, 2)
	require.NoError(t, err)

	r, c := m.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 2, c)

	d := m.Dense()
	assert.Equal(t, []float64{0, 0}, d.RawRowView(0))
	assert.Equal(t, []float64{1, 2}, d.RawRowView(1))
	assert.Equal(t, []float64{0, 0}, d.RawRowView(2))
	assert.Equal(t, []float64{0.5, 0.25}, d.RawRowView(3))

	assert.True(t, m.Filled(1))
	assert.False(t, m.Filled(2))
	assert.False(t, m.Filled(0))

	cov := m.Coverage()
	assert.Equal(t, Coverage{Hits: 2, Misses: 1}, cov)
	assert.InDelta(t, 2.0/3.0, cov.Ratio(), 1e-9)
}

func TestBuildMatrix_DimensionMismatch(t *testing.T) {
	v, err := LoadVectors(strings.NewReader("brake 1 2 3\n"))
	require.NoError(t, err)

	_, err = BuildMatrix(map[string]int{"brake": 1}, v, 10, 2)
	var dm *DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 3, dm.Got)
	assert.Equal(t, 2, dm.Want)

	_, err = BuildMatrix(nil, v, 0, 2)
	assert.Error(t, err)
}

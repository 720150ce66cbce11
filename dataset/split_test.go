package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(n int) ([][]int, []float64) {
	x := make([][]int, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = []int{i}
		y[i] = float64(i)
	}
	return x, y
}

func TestShuffle_Lockstep(t *testing.T) {
	x, y := records(100)
	seed := int64(42)

	require.NoError(t, Shuffle(x, y, NewRand(&seed)))

	moved := 0
	for i := range x {
		assert.Equal(t, float64(x[i][0]), y[i])
		if x[i][0] != i {
			moved++
		}
	}
	assert.Positive(t, moved)
}

func TestShuffle_Seeded(t *testing.T) {
	seed := int64(7)
	x1, y1 := records(50)
	x2, y2 := records(50)

	require.NoError(t, Shuffle(x1, y1, NewRand(&seed)))
	require.NoError(t, Shuffle(x2, y2, NewRand(&seed)))

	assert.Equal(t, y1, y2)
	assert.Equal(t, x1, x2)
}

func TestShuffle_LengthMismatch(t *testing.T) {
	x, _ := records(3)
	assert.Error(t, Shuffle(x, []float64{1}, NewRand(nil)))
}

func TestSplit(t *testing.T) {
	testCases := []struct {
		name                string
		total, trainN, valN int
		wantTrain, wantVal  int
		wantTest            int
	}{
		{"enough records", 100000, 90000, 5000, 90000, 5000, 5000},
		{"exact", 95000, 90000, 5000, 90000, 5000, 0},
		{"short validation", 92000, 90000, 5000, 90000, 2000, 0},
		{"tiny corpus", 2, 90000, 5000, 2, 0, 0},
		{"custom counts", 2, 1, 0, 1, 0, 1},
		{"empty", 0, 90000, 5000, 0, 0, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			x, y := records(tc.total)
			s, err := Split(x, y, tc.trainN, tc.valN)
			require.NoError(t, err)

			assert.Equal(t, tc.wantTrain, s.Train.Len())
			assert.Equal(t, tc.wantVal, s.Validation.Len())
			assert.Equal(t, tc.wantTest, s.Test.Len())
			assert.Equal(t, tc.total, s.Train.Len()+s.Validation.Len()+s.Test.Len())
			assert.Len(t, s.Train.X, s.Train.Len())
			assert.Len(t, s.Test.X, s.Test.Len())
		})
	}
}

func TestSplit_Contiguous(t *testing.T) {
	x, y := records(10)
	s, err := Split(x, y, 6, 2)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5}, s.Train.Y)
	assert.Equal(t, []float64{6, 7}, s.Validation.Y)
	assert.Equal(t, []float64{8, 9}, s.Test.Y)
}

func TestSplit_Invalid(t *testing.T) {
	x, y := records(3)
	_, err := Split(x, y[:2], 1, 1)
	assert.Error(t, err)
	_, err = Split(x, y, -1, 1)
	assert.Error(t, err)
}

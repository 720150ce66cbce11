// Package dataset shuffles encoded records and cuts them into train,
// validation and test partitions.
package dataset

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// Part is one partition of features and labels.
type Part struct {
	X [][]int
	Y []float64
}

// Len returns the number of records.
func (p Part) Len() int {
	return len(p.Y)
}

// Splits holds the three partitions.
type Splits struct {
	Train      Part
	Validation Part
	Test       Part
}

// NewRand returns a generator seeded with seed, or with a random seed when
// seed is nil.
func NewRand(seed *int64) *rand.Rand {
	var s uint64
	if seed != nil {
		s = uint64(*seed)
	} else {
		var b [8]byte
		_, _ = crand.Read(b[:])
		s = binary.LittleEndian.Uint64(b[:])
	}
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

// Shuffle permutes x and y in lockstep.
func Shuffle(x [][]int, y []float64, rng *rand.Rand) error {
	if len(x) != len(y) {
		return fmt.Errorf("shuffle: %d feature rows but %d labels", len(x), len(y))
	}
	rng.Shuffle(len(x), func(i, j int) {
		x[i], x[j] = x[j], x[i]
		y[i], y[j] = y[j], y[i]
	})
	return nil
}

// Split cuts x and y into [0,trainN), [trainN,trainN+valN) and the rest.
// Counts are clamped to the number of records, so small inputs produce short
// or empty validation and test partitions. The partitions share storage
// with x and y.
func Split(x [][]int, y []float64, trainN, valN int) (Splits, error) {
	if len(x) != len(y) {
		return Splits{}, fmt.Errorf("split: %d feature rows but %d labels", len(x), len(y))
	}
	if trainN < 0 || valN < 0 {
		return Splits{}, fmt.Errorf("split: negative count (train=%d, validation=%d)", trainN, valN)
	}

	n := len(y)
	trainEnd := min(trainN, n)
	valEnd := min(trainEnd+valN, n)

	return Splits{
		Train:      Part{X: x[:trainEnd], Y: y[:trainEnd]},
		Validation: Part{X: x[trainEnd:valEnd], Y: y[trainEnd:valEnd]},
		Test:       Part{X: x[valEnd:], Y: y[valEnd:]},
	}, nil
}

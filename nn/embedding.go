package nn

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Embedding maps token indices to dense vectors.
type Embedding struct {
	InputDim    int
	OutputDim   int
	InputLength int
	// Trainable controls whether Fit updates the embedding weights.
	Trainable bool

	name    string
	weights *mat.Dense
}

// NewEmbedding returns a trainable embedding for indices in [0, inputDim).
func NewEmbedding(inputDim, outputDim, inputLength int) *Embedding {
	return &Embedding{
		InputDim:    inputDim,
		OutputDim:   outputDim,
		InputLength: inputLength,
		Trainable:   true,
	}
}

func (e *Embedding) Name() string        { return e.name }
func (e *Embedding) Type() string        { return "Embedding" }
func (e *Embedding) setName(name string) { e.name = name }
func (e *Embedding) isTrainable() bool   { return e.Trainable }

func (e *Embedding) OutputShape() Shape {
	return Shape{e.InputLength, e.OutputDim}
}

func (e *Embedding) Params() []*mat.Dense {
	if e.weights == nil {
		return nil
	}
	return []*mat.Dense{e.weights}
}

// Weights returns the embedding matrix.
func (e *Embedding) Weights() *mat.Dense {
	return e.weights
}

// SetWeights replaces the embedding matrix with a copy of w.
func (e *Embedding) SetWeights(w *mat.Dense) error {
	r, c := w.Dims()
	if r != e.InputDim || c != e.OutputDim {
		return fmt.Errorf("%w: embedding %s expects (%d, %d), got (%d, %d)", ErrShapeMismatch, e.name, e.InputDim, e.OutputDim, r, c)
	}
	e.weights = mat.DenseCopyOf(w)
	return nil
}

func (e *Embedding) build(in Shape, rng *rand.Rand) error {
	if e.InputDim <= 0 || e.OutputDim <= 0 || e.InputLength <= 0 {
		return fmt.Errorf("embedding: invalid dimensions (%d, %d, %d)", e.InputDim, e.OutputDim, e.InputLength)
	}
	if in != nil {
		return fmt.Errorf("%w: embedding must be the first layer", ErrShapeMismatch)
	}
	if e.weights != nil {
		return nil
	}

	data := make([]float64, e.InputDim*e.OutputDim)
	for i := range data {
		data[i] = rng.Float64()*0.1 - 0.05
	}
	e.weights = mat.NewDense(e.InputDim, e.OutputDim, data)
	return nil
}

func (e *Embedding) forward(x *mat.Dense) (*mat.Dense, any) {
	batch, length := x.Dims()
	out := mat.NewDense(batch, length*e.OutputDim, nil)

	for b := 0; b < batch; b++ {
		row := out.RawRowView(b)
		for t := 0; t < length; t++ {
			idx := int(x.At(b, t))
			copy(row[t*e.OutputDim:(t+1)*e.OutputDim], e.weights.RawRowView(idx))
		}
	}
	return out, x
}

func (e *Embedding) backward(cache any, dout *mat.Dense, grads []*mat.Dense, _ bool) *mat.Dense {
	if !e.Trainable {
		return nil
	}

	x := cache.(*mat.Dense)
	g := grads[0]
	g.Zero()

	batch, length := x.Dims()
	for b := 0; b < batch; b++ {
		drow := dout.RawRowView(b)
		for t := 0; t < length; t++ {
			grow := g.RawRowView(int(x.At(b, t)))
			for j, v := range drow[t*e.OutputDim : (t+1)*e.OutputDim] {
				grow[j] += v
			}
		}
	}
	return nil
}

func (e *Embedding) config() layerConfig {
	return layerConfig{
		Type:        e.Type(),
		Name:        e.name,
		Trainable:   e.Trainable,
		InputDim:    e.InputDim,
		OutputDim:   e.OutputDim,
		InputLength: e.InputLength,
	}
}

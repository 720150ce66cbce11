package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Flatten collapses the per-sample shape to one dimension.
type Flatten struct {
	name string
	out  Shape
}

// NewFlatten returns a Flatten layer.
func NewFlatten() *Flatten {
	return &Flatten{}
}

func (f *Flatten) Name() string         { return f.name }
func (f *Flatten) Type() string         { return "Flatten" }
func (f *Flatten) OutputShape() Shape   { return f.out }
func (f *Flatten) Params() []*mat.Dense { return nil }
func (f *Flatten) setName(name string)  { f.name = name }
func (f *Flatten) isTrainable() bool    { return false }

func (f *Flatten) build(in Shape, _ *rand.Rand) error {
	f.out = Shape{in.Size()}
	return nil
}

// Activations are already stored row-major per sample.
func (f *Flatten) forward(x *mat.Dense) (*mat.Dense, any) {
	return x, nil
}

func (f *Flatten) backward(_ any, dout *mat.Dense, _ []*mat.Dense, _ bool) *mat.Dense {
	return dout
}

func (f *Flatten) config() layerConfig {
	return layerConfig{Type: f.Type(), Name: f.name}
}

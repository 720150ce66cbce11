package nn

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Shape is the per-sample shape of a layer output.
type Shape []int

// Size returns the number of values per sample.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) String() string {
	parts := make([]string, 0, len(s)+1)
	parts = append(parts, "None")
	for _, d := range s {
		parts = append(parts, fmt.Sprint(d))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Layer is a building block of a Sequential model.
type Layer interface {
	// Name is unique within a model.
	Name() string
	// Type is the layer kind, e.g. "Dense".
	Type() string
	// OutputShape is valid once the layer has been added to a model.
	OutputShape() Shape
	// Params returns the weight matrices in a fixed order.
	Params() []*mat.Dense

	setName(name string)
	isTrainable() bool
	build(in Shape, rng *rand.Rand) error
	// forward returns the layer output and whatever backward needs.
	forward(x *mat.Dense) (*mat.Dense, any)
	// backward writes the parameter gradients into grads (aligned with
	// Params) and returns the gradient with respect to the input when
	// needInput is set.
	backward(cache any, dout *mat.Dense, grads []*mat.Dense, needInput bool) *mat.Dense
	config() layerConfig
}

// layerConfig is the serialized form of a layer.
type layerConfig struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Trainable   bool   `json:"trainable"`
	InputDim    int    `json:"input_dim,omitempty"`
	OutputDim   int    `json:"output_dim,omitempty"`
	InputLength int    `json:"input_length,omitempty"`
	Units       int    `json:"units,omitempty"`
	Activation  string `json:"activation,omitempty"`
}

func layerFromConfig(c layerConfig) (Layer, error) {
	var l Layer
	switch c.Type {
	case "Embedding":
		e := NewEmbedding(c.InputDim, c.OutputDim, c.InputLength)
		e.Trainable = c.Trainable
		l = e
	case "Flatten":
		l = NewFlatten()
	case "Dense":
		d := NewDense(c.Units, Activation(c.Activation))
		d.Trainable = c.Trainable
		l = d
	default:
		return nil, fmt.Errorf("%w: unknown layer type %q", ErrBadArtifact, c.Type)
	}
	l.setName(c.Name)
	return l, nil
}

func paramCount(l Layer) int {
	n := 0
	for _, p := range l.Params() {
		r, c := p.Dims()
		n += r * c
	}
	return n
}

package nn

import (
	"fmt"
	"math"
)

// Activation names an element-wise activation function.
type Activation string

const (
	Linear  Activation = "linear"
	ReLU    Activation = "relu"
	Sigmoid Activation = "sigmoid"
)

func (a Activation) validate() error {
	switch a {
	case Linear, ReLU, Sigmoid:
		return nil
	default:
		return fmt.Errorf("unknown activation %q", string(a))
	}
}

func (a Activation) apply(v []float64) {
	switch a {
	case ReLU:
		for i, z := range v {
			if z < 0 {
				v[i] = 0
			}
		}
	case Sigmoid:
		for i, z := range v {
			v[i] = sigmoid(z)
		}
	}
}

// gradient multiplies d in place by the derivative, expressed through the
// activation output out.
func (a Activation) gradient(d, out []float64) {
	switch a {
	case ReLU:
		for i, o := range out {
			if o <= 0 {
				d[i] = 0
			}
		}
	case Sigmoid:
		for i, o := range out {
			d[i] *= o * (1 - o)
		}
	}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Optimizer applies gradients to weights.
type Optimizer interface {
	Name() string
	// Update applies grads[i] to params[i].
	Update(params, grads []*mat.Dense)
	config() optimizerConfig
}

type optimizerConfig struct {
	Name         string  `json:"name"`
	LearningRate float64 `json:"learning_rate"`
	Rho          float64 `json:"rho"`
	Epsilon      float64 `json:"epsilon"`
}

// RMSprop divides the gradient by a running root mean square of recent
// gradients:
//
//	acc = rho*acc + (1-rho)*g^2
//	w  -= lr * g / (sqrt(acc) + epsilon)
type RMSprop struct {
	LearningRate float64
	Rho          float64
	Epsilon      float64

	acc map[*mat.Dense][]float64
}

// NewRMSprop returns RMSprop with rho 0.9 and epsilon 1e-7.
func NewRMSprop(learningRate float64) *RMSprop {
	return &RMSprop{
		LearningRate: learningRate,
		Rho:          0.9,
		Epsilon:      1e-7,
	}
}

func (o *RMSprop) Name() string { return "rmsprop" }

func (o *RMSprop) Update(params, grads []*mat.Dense) {
	if o.acc == nil {
		o.acc = make(map[*mat.Dense][]float64)
	}

	for i, p := range params {
		w := p.RawMatrix().Data
		g := grads[i].RawMatrix().Data

		acc, ok := o.acc[p]
		if !ok {
			acc = make([]float64, len(w))
			o.acc[p] = acc
		}

		for j, gj := range g {
			acc[j] = o.Rho*acc[j] + (1-o.Rho)*gj*gj
			w[j] -= o.LearningRate * gj / (math.Sqrt(acc[j]) + o.Epsilon)
		}
	}
}

func (o *RMSprop) config() optimizerConfig {
	return optimizerConfig{
		Name:         o.Name(),
		LearningRate: o.LearningRate,
		Rho:          o.Rho,
		Epsilon:      o.Epsilon,
	}
}

func optimizerFromConfig(c optimizerConfig) (Optimizer, error) {
	switch c.Name {
	case "rmsprop":
		return &RMSprop{LearningRate: c.LearningRate, Rho: c.Rho, Epsilon: c.Epsilon}, nil
	default:
		return nil, fmt.Errorf("%w: unknown optimizer %q", ErrBadArtifact, c.Name)
	}
}

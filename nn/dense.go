package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer: activation(x·W + b).
type Dense struct {
	Units      int
	Activation Activation
	Trainable  bool

	name   string
	inDim  int
	kernel *mat.Dense
	bias   *mat.Dense
}

// NewDense returns a trainable Dense layer. The kernel is Glorot-uniform
// initialized when the layer is added to a model; the bias starts at zero.
func NewDense(units int, activation Activation) *Dense {
	if activation == "" {
		activation = Linear
	}
	return &Dense{
		Units:      units,
		Activation: activation,
		Trainable:  true,
	}
}

func (d *Dense) Name() string        { return d.name }
func (d *Dense) Type() string        { return "Dense" }
func (d *Dense) OutputShape() Shape  { return Shape{d.Units} }
func (d *Dense) setName(name string) { d.name = name }
func (d *Dense) isTrainable() bool   { return d.Trainable }

func (d *Dense) Params() []*mat.Dense {
	if d.kernel == nil {
		return nil
	}
	return []*mat.Dense{d.kernel, d.bias}
}

func (d *Dense) build(in Shape, rng *rand.Rand) error {
	if d.Units <= 0 {
		return fmt.Errorf("dense: units must be positive, got %d", d.Units)
	}
	if err := d.Activation.validate(); err != nil {
		return fmt.Errorf("dense: %w", err)
	}
	if len(in) != 1 {
		return fmt.Errorf("%w: dense expects a flat input, got %s (add a Flatten layer)", ErrShapeMismatch, in)
	}

	d.inDim = in[0]
	limit := math.Sqrt(6 / float64(d.inDim+d.Units))
	data := make([]float64, d.inDim*d.Units)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	d.kernel = mat.NewDense(d.inDim, d.Units, data)
	d.bias = mat.NewDense(1, d.Units, nil)
	return nil
}

type denseCache struct {
	x   *mat.Dense
	out *mat.Dense
}

func (d *Dense) forward(x *mat.Dense) (*mat.Dense, any) {
	batch, _ := x.Dims()
	out := mat.NewDense(batch, d.Units, nil)
	out.Mul(x, d.kernel)

	bias := d.bias.RawRowView(0)
	for b := 0; b < batch; b++ {
		row := out.RawRowView(b)
		for j := range row {
			row[j] += bias[j]
		}
		d.Activation.apply(row)
	}
	return out, denseCache{x: x, out: out}
}

func (d *Dense) backward(cache any, dout *mat.Dense, grads []*mat.Dense, needInput bool) *mat.Dense {
	c := cache.(denseCache)
	batch, _ := dout.Dims()

	dz := mat.DenseCopyOf(dout)
	for b := 0; b < batch; b++ {
		d.Activation.gradient(dz.RawRowView(b), c.out.RawRowView(b))
	}

	if d.Trainable {
		grads[0].Mul(c.x.T(), dz)

		gb := grads[1].RawRowView(0)
		for j := range gb {
			gb[j] = 0
		}
		for b := 0; b < batch; b++ {
			for j, v := range dz.RawRowView(b) {
				gb[j] += v
			}
		}
	}

	if !needInput {
		return nil
	}
	dx := mat.NewDense(batch, d.inDim, nil)
	dx.Mul(dz, d.kernel.T())
	return dx
}

func (d *Dense) config() layerConfig {
	return layerConfig{
		Type:       d.Type(),
		Name:       d.name,
		Trainable:  d.Trainable,
		Units:      d.Units,
		Activation: string(d.Activation),
	}
}

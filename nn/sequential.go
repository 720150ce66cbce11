package nn

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Sequential is a linear stack of layers.
type Sequential struct {
	name    string
	layers  []Layer
	rng     *rand.Rand
	workers int

	optimizer Optimizer
	loss      Loss
	metrics   []string

	names map[string]int
}

// ModelOption configures a Sequential model.
type ModelOption func(*Sequential)

// WithRand sets the generator used for weight initialization and epoch
// shuffling.
func WithRand(rng *rand.Rand) ModelOption {
	return func(m *Sequential) {
		if rng != nil {
			m.rng = rng
		}
	}
}

// WithWorkers bounds the number of goroutines used per batch. Zero selects
// GOMAXPROCS.
func WithWorkers(n int) ModelOption {
	return func(m *Sequential) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithName sets the model name shown by Summary.
func WithName(name string) ModelOption {
	return func(m *Sequential) {
		m.name = name
	}
}

// NewSequential returns an empty model.
func NewSequential(optFns ...ModelOption) *Sequential {
	m := &Sequential{
		name:    "sequential",
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		workers: runtime.GOMAXPROCS(0),
		names:   make(map[string]int),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(m)
		}
	}
	return m
}

// Add appends a layer and allocates its weights.
func (m *Sequential) Add(l Layer) error {
	var in Shape
	if len(m.layers) > 0 {
		in = m.layers[len(m.layers)-1].OutputShape()
	}

	if err := l.build(in, m.rng); err != nil {
		return fmt.Errorf("add %s: %w", l.Type(), err)
	}

	if l.Name() == "" {
		base := strings.ToLower(l.Type())
		n := m.names[base]
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		m.names[base] = n + 1
		l.setName(name)
	}

	m.layers = append(m.layers, l)
	return nil
}

// Layers returns the model layers.
func (m *Sequential) Layers() []Layer {
	return append([]Layer(nil), m.layers...)
}

// Compile sets the optimizer, loss and metrics used by Fit and Evaluate.
func (m *Sequential) Compile(optimizer Optimizer, loss Loss, metrics ...string) error {
	if len(m.layers) == 0 {
		return ErrNoLayers
	}
	if optimizer == nil || loss == nil {
		return fmt.Errorf("compile: optimizer and loss are required")
	}
	if out := m.layers[len(m.layers)-1].OutputShape(); out.Size() != 1 {
		return fmt.Errorf("compile: binary classifier needs a single output unit, got %s", out)
	}
	for _, name := range metrics {
		if err := validateMetric(name); err != nil {
			return fmt.Errorf("compile: %w", err)
		}
	}

	m.optimizer = optimizer
	m.loss = loss
	m.metrics = append([]string(nil), metrics...)
	return nil
}

// MetricsNames returns the labels of the values returned by Evaluate.
func (m *Sequential) MetricsNames() []string {
	return append([]string{"loss"}, m.metrics...)
}

// CountParams returns the total, trainable and non-trainable parameter
// counts.
func (m *Sequential) CountParams() (total, trainable, nonTrainable int) {
	for _, l := range m.layers {
		n := paramCount(l)
		total += n
		if l.isTrainable() {
			trainable += n
		} else {
			nonTrainable += n
		}
	}
	return total, trainable, nonTrainable
}

// Summary renders a table of layers, output shapes and parameter counts.
func (m *Sequential) Summary() string {
	var sb strings.Builder

	rule := strings.Repeat("_", 65) + "\n"
	double := strings.Repeat("=", 65) + "\n"
	row := func(a, b, c string) {
		fmt.Fprintf(&sb, "%-29s%-26s%-10s\n", a, b, c)
	}

	fmt.Fprintf(&sb, "Model: %q\n", m.name)
	sb.WriteString(rule)
	row("Layer (type)", "Output Shape", "Param #")
	sb.WriteString(double)
	for i, l := range m.layers {
		row(fmt.Sprintf("%s (%s)", l.Name(), l.Type()), l.OutputShape().String(), fmt.Sprint(paramCount(l)))
		if i < len(m.layers)-1 {
			sb.WriteString(rule)
		}
	}
	sb.WriteString(double)

	total, trainable, nonTrainable := m.CountParams()
	fmt.Fprintf(&sb, "Total params: %s\n", commas(total))
	fmt.Fprintf(&sb, "Trainable params: %s\n", commas(trainable))
	fmt.Fprintf(&sb, "Non-trainable params: %s\n", commas(nonTrainable))
	sb.WriteString(rule)

	return sb.String()
}

func commas(n int) string {
	if n < 0 {
		return "-" + commas(-n)
	}
	s := fmt.Sprint(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}

// inputs converts token sequences into the float matrix fed to the first
// layer and validates their shape and range.
func (m *Sequential) inputs(x [][]int) (*mat.Dense, error) {
	if len(m.layers) == 0 {
		return nil, ErrNoLayers
	}
	if len(x) == 0 {
		return nil, ErrEmptyInput
	}

	width := len(x[0])
	limit := -1
	if e, ok := m.layers[0].(*Embedding); ok {
		width = e.InputLength
		limit = e.InputDim
	}

	if width == 0 {
		return nil, fmt.Errorf("%w: samples have no features", ErrInvalidInput)
	}

	data := make([]float64, 0, len(x)*width)
	for i, row := range x {
		if len(row) != width {
			return nil, fmt.Errorf("%w: sample %d has length %d, want %d", ErrInvalidInput, i, len(row), width)
		}
		for _, v := range row {
			if v < 0 || (limit >= 0 && v >= limit) {
				return nil, fmt.Errorf("%w: sample %d has index %d outside [0, %d)", ErrInvalidInput, i, v, limit)
			}
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(x), width, data), nil
}

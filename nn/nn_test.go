package nn

import (
	"bytes"
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/carml/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// toyData is linearly separable: sequences of token 1 are positive, of
// token 2 negative.
func toyData(n int) ([][]int, []float64) {
	x := make([][]int, n)
	y := make([]float64, n)
	for i := range x {
		if i%2 == 0 {
			x[i], y[i] = []int{0, 1, 1}, 1
		} else {
			x[i], y[i] = []int{2, 2, 0}, 0
		}
	}
	return x, y
}

func newToyModel(t *testing.T, seed uint64, workers int, hidden bool) *Sequential {
	t.Helper()
	m := NewSequential(WithRand(seeded(seed)), WithWorkers(workers))
	require.NoError(t, m.Add(NewEmbedding(3, 4, 3)))
	require.NoError(t, m.Add(NewFlatten()))
	if hidden {
		require.NoError(t, m.Add(NewDense(5, ReLU)))
	}
	require.NoError(t, m.Add(NewDense(1, Sigmoid)))
	return m
}

func TestSummary_ClassifierArchitecture(t *testing.T) {
	m := NewSequential(WithRand(seeded(1)))
	emb := NewEmbedding(10000, 100, 100)
	require.NoError(t, m.Add(emb))
	require.NoError(t, m.Add(NewFlatten()))
	require.NoError(t, m.Add(NewDense(64, ReLU)))
	require.NoError(t, m.Add(NewDense(32, ReLU)))
	require.NoError(t, m.Add(NewDense(1, Sigmoid)))
	emb.Trainable = false

	total, trainable, nonTrainable := m.CountParams()
	assert.Equal(t, 1642177, total)
	assert.Equal(t, 642177, trainable)
	assert.Equal(t, 1000000, nonTrainable)

	summary := m.Summary()
	assert.Contains(t, summary, "embedding (Embedding)")
	assert.Contains(t, summary, "(None, 100, 100)")
	assert.Contains(t, summary, "flatten (Flatten)")
	assert.Contains(t, summary, "(None, 10000)")
	assert.Contains(t, summary, "dense_2 (Dense)")
	assert.Contains(t, summary, "Total params: 1,642,177")
	assert.Contains(t, summary, "Trainable params: 642,177")
	assert.Contains(t, summary, "Non-trainable params: 1,000,000")
}

func TestEmbedding_SetWeights(t *testing.T) {
	e := NewEmbedding(4, 2, 3)
	err := e.SetWeights(mat.NewDense(3, 2, nil))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	w := mat.NewDense(4, 2, []float64{0, 0, 1, 2, 3, 4, 5, 6})
	require.NoError(t, e.SetWeights(w))

	// Weights set before Add survive the build.
	m := NewSequential()
	require.NoError(t, m.Add(e))
	assert.True(t, mat.Equal(w, e.Weights()))

	// SetWeights copies.
	w.Set(1, 0, 99)
	assert.Equal(t, 1.0, e.Weights().At(1, 0))
}

func TestAdd_ShapeErrors(t *testing.T) {
	m := NewSequential()
	require.NoError(t, m.Add(NewEmbedding(10, 2, 3)))

	err := m.Add(NewDense(4, ReLU))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	err = m.Add(NewEmbedding(10, 2, 3))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	require.NoError(t, m.Add(NewFlatten()))
	assert.Error(t, m.Add(NewDense(4, "tanh")))
	assert.Error(t, m.Add(NewDense(0, ReLU)))
}

func TestCompile(t *testing.T) {
	m := NewSequential()
	assert.ErrorIs(t, m.Compile(NewRMSprop(0.1), BinaryCrossentropy{}), ErrNoLayers)

	m = newToyModel(t, 1, 1, false)
	assert.Error(t, m.Compile(NewRMSprop(0.1), BinaryCrossentropy{}, "auc"))
	require.NoError(t, m.Compile(NewRMSprop(0.1), BinaryCrossentropy{}, "acc"))
	assert.Equal(t, []string{"loss", "acc"}, m.MetricsNames())

	wide := NewSequential()
	require.NoError(t, wide.Add(NewEmbedding(3, 2, 1)))
	require.NoError(t, wide.Add(NewFlatten()))
	require.NoError(t, wide.Add(NewDense(2, Sigmoid)))
	assert.Error(t, wide.Compile(NewRMSprop(0.1), BinaryCrossentropy{}))
}

func TestFit_LearnsSeparableData(t *testing.T) {
	ctx := context.Background()
	m := newToyModel(t, 7, 2, false)
	require.NoError(t, m.Compile(NewRMSprop(0.01), BinaryCrossentropy{}, "acc"))

	x, y := toyData(32)
	before, err := m.Evaluate(ctx, x, y)
	require.NoError(t, err)

	var epochs []int
	hist, err := m.Fit(ctx, x, y, FitConfig{
		Epochs:     40,
		BatchSize:  8,
		Shuffle:    true,
		Validation: &ValidationData{X: x[:4], Y: y[:4]},
		OnEpochEnd: func(l EpochLog) { epochs = append(epochs, l.Epoch) },
	})
	require.NoError(t, err)
	require.Len(t, hist.Epochs, 40)
	assert.Equal(t, 40, len(epochs))
	assert.Equal(t, 1, epochs[0])

	last, ok := hist.Last()
	require.True(t, ok)
	assert.True(t, last.HasValidation)
	assert.False(t, math.IsNaN(last.Loss))

	after, err := m.Evaluate(ctx, x, y)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Less(t, after[0], before[0])
	assert.Equal(t, 1.0, after[1])
}

func TestFit_FrozenEmbeddingUnchanged(t *testing.T) {
	ctx := context.Background()
	m := newToyModel(t, 3, 4, true)
	emb := m.Layers()[0].(*Embedding)
	emb.Trainable = false
	before := mat.DenseCopyOf(emb.Weights())

	dense := m.Layers()[2].(*Dense)
	kernelBefore := mat.DenseCopyOf(dense.Params()[0])

	require.NoError(t, m.Compile(NewRMSprop(0.1), BinaryCrossentropy{}, "acc"))
	x, y := toyData(20)
	_, err := m.Fit(ctx, x, y, FitConfig{Epochs: 3, BatchSize: 32})
	require.NoError(t, err)

	assert.True(t, mat.Equal(before, emb.Weights()))
	assert.False(t, mat.Equal(kernelBefore, dense.Params()[0]))
}

func TestFit_Errors(t *testing.T) {
	ctx := context.Background()
	m := newToyModel(t, 1, 1, false)
	x, y := toyData(4)

	_, err := m.Fit(ctx, x, y, FitConfig{Epochs: 1})
	assert.ErrorIs(t, err, ErrNotCompiled)
	_, err = m.Evaluate(ctx, x, y)
	assert.ErrorIs(t, err, ErrNotCompiled)

	require.NoError(t, m.Compile(NewRMSprop(0.1), BinaryCrossentropy{}, "acc"))

	_, err = m.Fit(ctx, x, y, FitConfig{Epochs: 0})
	assert.Error(t, err)
	_, err = m.Fit(ctx, x, y[:3], FitConfig{Epochs: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = m.Fit(ctx, [][]int{{0, 1, 3}}, []float64{1}, FitConfig{Epochs: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = m.Fit(ctx, [][]int{{0, 1}}, []float64{1}, FitConfig{Epochs: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = m.Evaluate(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Fit(cancelled, x, y, FitConfig{Epochs: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFit_WorkerCountDoesNotChangeResult(t *testing.T) {
	ctx := context.Background()
	x, y := toyData(24)

	var kernels []*mat.Dense
	for _, workers := range []int{1, 4} {
		m := newToyModel(t, 11, workers, true)
		require.NoError(t, m.Compile(NewRMSprop(0.01), BinaryCrossentropy{}, "acc"))
		_, err := m.Fit(ctx, x, y, FitConfig{Epochs: 2, BatchSize: 8})
		require.NoError(t, err)
		kernels = append(kernels, m.Layers()[2].Params()[0])
	}

	assert.True(t, mat.EqualApprox(kernels[0], kernels[1], 1e-9))
}

// analyticGrads runs one forward and backward pass over the whole input.
func analyticGrads(t *testing.T, m *Sequential, x [][]int, y []float64) [][]*mat.Dense {
	t.Helper()
	in, err := m.inputs(x)
	require.NoError(t, err)

	grads := m.allocGrads(1)
	out, caches := m.forward(in)
	_, d := m.lossAndGradient(out, y, float64(len(y)))
	for li := len(m.layers) - 1; li >= 0 && d != nil; li-- {
		d = m.layers[li].backward(caches[li], d, grads[0][li], li > 0)
	}
	return grads[0]
}

func TestBackward_MatchesNumericGradient(t *testing.T) {
	ctx := context.Background()
	m := newToyModel(t, 5, 1, true)
	require.NoError(t, m.Compile(NewRMSprop(0.1), BinaryCrossentropy{}))

	x := [][]int{{0, 1, 2}, {2, 2, 1}, {1, 0, 0}}
	y := []float64{1, 0, 1}
	grads := analyticGrads(t, m, x, y)

	const h = 1e-6
	for li, l := range m.Layers() {
		for pi, p := range l.Params() {
			r, c := p.Dims()
			for _, rc := range [][2]int{{0, 0}, {r - 1, c - 1}, {r / 2, c / 2}} {
				orig := p.At(rc[0], rc[1])

				p.Set(rc[0], rc[1], orig+h)
				plus, err := m.Evaluate(ctx, x, y)
				require.NoError(t, err)
				p.Set(rc[0], rc[1], orig-h)
				minus, err := m.Evaluate(ctx, x, y)
				require.NoError(t, err)
				p.Set(rc[0], rc[1], orig)

				numeric := (plus[0] - minus[0]) / (2 * h)
				assert.InDelta(t, numeric, grads[li][pi].At(rc[0], rc[1]), 1e-5, "layer %s param %d at %v", l.Name(), pi, rc)
			}
		}
	}
}

func TestRMSprop_Update(t *testing.T) {
	o := NewRMSprop(0.1)
	w := mat.NewDense(1, 1, []float64{1})
	g := mat.NewDense(1, 1, []float64{0.5})

	o.Update([]*mat.Dense{w}, []*mat.Dense{g})
	acc := 0.1 * 0.25
	assert.InDelta(t, 1-0.1*0.5/(math.Sqrt(acc)+1e-7), w.At(0, 0), 1e-12)

	o.Update([]*mat.Dense{w}, []*mat.Dense{g})
	acc = 0.9*acc + 0.1*0.25
	assert.InDelta(t, 1-0.1*0.5/(math.Sqrt(0.025)+1e-7)-0.1*0.5/(math.Sqrt(acc)+1e-7), w.At(0, 0), 1e-12)
}

func TestBinaryCrossentropy(t *testing.T) {
	l := BinaryCrossentropy{}
	assert.InDelta(t, math.Ln2, l.Loss(1, 0.5), 1e-12)
	assert.InDelta(t, math.Ln2, l.Loss(0, 0.5), 1e-12)
	assert.InDelta(t, -math.Log(ClipEpsilon), l.Loss(1, 0), 1e-9)
	assert.False(t, math.IsInf(l.Loss(0, 1), 0))
	assert.InDelta(t, -2.0, l.Gradient(1, 0.5), 1e-12)

	assert.Equal(t, 1.0, binaryAccuracy(1, 0.7))
	assert.Equal(t, 0.0, binaryAccuracy(1, 0.5))
	assert.Equal(t, 1.0, binaryAccuracy(0, 0.5))
}

func TestPredict(t *testing.T) {
	m := newToyModel(t, 2, 3, true)
	x, _ := toyData(70)

	out, err := m.Predict(context.Background(), x)
	require.NoError(t, err)
	r, c := out.Dims()
	assert.Equal(t, 70, r)
	assert.Equal(t, 1, c)
	for i := 0; i < r; i++ {
		p := out.At(i, 0)
		assert.True(t, p > 0 && p < 1)
	}
	// Identical inputs give identical outputs regardless of batch.
	assert.InDelta(t, out.At(0, 0), out.At(68, 0), 1e-12)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	x, y := toyData(10)

	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(compression.String(), func(t *testing.T) {
			m := newToyModel(t, 9, 2, true)
			m.Layers()[0].(*Embedding).Trainable = false
			require.NoError(t, m.Compile(NewRMSprop(0.1), BinaryCrossentropy{}, "acc"))

			var buf bytes.Buffer
			require.NoError(t, m.Save(&buf, compression))

			loaded, err := Load(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)

			assert.Equal(t, m.Summary(), loaded.Summary())
			assert.Equal(t, []string{"loss", "acc"}, loaded.MetricsNames())
			assert.False(t, loaded.Layers()[0].(*Embedding).Trainable)

			want, err := m.Predict(ctx, x)
			require.NoError(t, err)
			got, err := loaded.Predict(ctx, x)
			require.NoError(t, err)
			assert.True(t, mat.Equal(want, got))

			scores, err := loaded.Evaluate(ctx, x, y)
			require.NoError(t, err)
			assert.Len(t, scores, 2)
		})
	}
}

func TestSaveLoad_LargeEmbeddingCompresses(t *testing.T) {
	m := NewSequential(WithRand(seeded(1)))
	emb := NewEmbedding(2000, 50, 4)
	// Mostly zero rows, as for a vocabulary without pretrained vectors.
	require.NoError(t, emb.SetWeights(mat.NewDense(2000, 50, nil)))
	require.NoError(t, m.Add(emb))
	require.NoError(t, m.Add(NewFlatten()))
	require.NoError(t, m.Add(NewDense(1, Sigmoid)))

	var plain, packed bytes.Buffer
	require.NoError(t, m.Save(&plain, CompressionNone))
	require.NoError(t, m.Save(&packed, CompressionZSTD))
	assert.Less(t, packed.Len(), plain.Len()/10)

	loaded, err := Load(&packed)
	require.NoError(t, err)
	assert.True(t, mat.Equal(emb.Weights(), loaded.Layers()[0].(*Embedding).Weights()))
}

func TestLoad_Corrupt(t *testing.T) {
	m := newToyModel(t, 4, 1, false)
	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf, CompressionNone))
	data := buf.Bytes()

	_, err := Load(bytes.NewReader([]byte("NOTAMODEL")))
	assert.ErrorIs(t, err, ErrBadArtifact)

	_, err = Load(bytes.NewReader(data[:len(data)/2]))
	assert.ErrorIs(t, err, ErrBadArtifact)

	// Last weight byte sits before the terminator and the checksum.
	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-4-blockHeaderSize-1] ^= 0xff
	_, err = Load(bytes.NewReader(flipped))
	assert.ErrorIs(t, err, ErrBadArtifact)
}

func TestSaveFile(t *testing.T) {
	m := newToyModel(t, 4, 1, false)
	path := filepath.Join(t.TempDir(), "outputs", "model", "model.h5")

	require.NoError(t, m.SaveFile(path, CompressionLZ4))
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Layers(), 3)
}

func TestSaveFile_FailureKeepsPreviousArtifact(t *testing.T) {
	m := newToyModel(t, 4, 1, false)
	path := filepath.Join(t.TempDir(), "model.h5")
	require.NoError(t, m.SaveFile(path, CompressionNone))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("model.h5", fs.Fault{FailAfterBytes: 16})

	err = m.saveFile(ffs, path, CompressionZSTD)
	require.ErrorIs(t, err, fs.ErrInjected)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestParseCompression(t *testing.T) {
	for _, s := range []string{"none", "lz4", "zstd"} {
		c, err := ParseCompression(s)
		require.NoError(t, err)
		assert.Equal(t, s, c.String())
	}
	_, err := ParseCompression("gzip")
	assert.Error(t, err)
}

func TestShapeAndCommas(t *testing.T) {
	assert.Equal(t, "(None, 100, 100)", Shape{100, 100}.String())
	assert.Equal(t, 10000, Shape{100, 100}.Size())
	assert.Equal(t, "1,642,177", commas(1642177))
	assert.Equal(t, "999", commas(999))
	assert.Equal(t, "0", commas(0))
	assert.True(t, strings.HasPrefix(NewSequential().Summary(), `Model: "sequential"`))
}

package nn

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// DefaultBatchSize is used when FitConfig.BatchSize is zero and by Evaluate
// and Predict.
const DefaultBatchSize = 32

// ValidationData is evaluated after every epoch for monitoring only.
type ValidationData struct {
	X [][]int
	Y []float64
}

// FitConfig controls Fit.
type FitConfig struct {
	Epochs    int
	BatchSize int
	// Validation may be nil or empty, in which case no validation metrics
	// are reported.
	Validation *ValidationData
	// Shuffle reorders the training samples before every epoch.
	Shuffle bool
	// OnEpochEnd is called after every epoch.
	OnEpochEnd func(EpochLog)
}

// EpochLog holds the metrics of one epoch. Loss and Acc are averaged over
// the epoch's batches as they were trained.
type EpochLog struct {
	Epoch         int
	Loss          float64
	Acc           float64
	ValLoss       float64
	ValAcc        float64
	HasValidation bool
	Duration      time.Duration
}

// History is the result of Fit.
type History struct {
	Epochs []EpochLog
}

// Last returns the log of the final epoch.
func (h *History) Last() (EpochLog, bool) {
	if h == nil || len(h.Epochs) == 0 {
		return EpochLog{}, false
	}
	return h.Epochs[len(h.Epochs)-1], true
}

type shardResult struct {
	loss    float64
	correct float64
}

// Fit trains the model for a fixed number of epochs.
func (m *Sequential) Fit(ctx context.Context, x [][]int, y []float64, cfg FitConfig) (*History, error) {
	if m.optimizer == nil {
		return nil, ErrNotCompiled
	}
	if cfg.Epochs <= 0 {
		return nil, fmt.Errorf("fit: epochs must be positive, got %d", cfg.Epochs)
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d samples but %d labels", ErrInvalidInput, len(x), len(y))
	}
	in, err := m.inputs(x)
	if err != nil {
		return nil, err
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var (
		n       = len(y)
		width   = in.RawMatrix().Cols
		order   = make([]int, n)
		grads   = m.allocGrads(min(m.workers, batchSize))
		history = &History{}
	)
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		start := time.Now()
		if cfg.Shuffle {
			m.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var lossSum, correct float64
		for lo := 0; lo < n; lo += batchSize {
			if err := ctx.Err(); err != nil {
				return history, err
			}

			hi := min(lo+batchSize, n)
			bx := mat.NewDense(hi-lo, width, nil)
			by := make([]float64, hi-lo)
			for i, idx := range order[lo:hi] {
				bx.SetRow(i, in.RawRowView(idx))
				by[i] = y[idx]
			}

			res, err := m.trainBatch(ctx, bx, by, grads)
			if err != nil {
				return history, err
			}
			lossSum += res.loss
			correct += res.correct
		}

		entry := EpochLog{
			Epoch: epoch,
			Loss:  lossSum / float64(n),
			Acc:   correct / float64(n),
		}

		if v := cfg.Validation; v != nil && len(v.Y) > 0 {
			scores, err := m.Evaluate(ctx, v.X, v.Y)
			if err != nil {
				return history, fmt.Errorf("validation: %w", err)
			}
			entry.ValLoss, entry.ValAcc, entry.HasValidation = scores[0], accuracyOf(scores), true
		}

		entry.Duration = time.Since(start)
		history.Epochs = append(history.Epochs, entry)
		if cfg.OnEpochEnd != nil {
			cfg.OnEpochEnd(entry)
		}
	}

	return history, nil
}

func accuracyOf(scores []float64) float64 {
	if len(scores) > 1 {
		return scores[1]
	}
	return 0
}

// allocGrads returns per-shard, per-layer gradient buffers for trainable
// layers. Frozen layers get nil entries.
func (m *Sequential) allocGrads(shards int) [][][]*mat.Dense {
	grads := make([][][]*mat.Dense, shards)
	for s := range grads {
		grads[s] = make([][]*mat.Dense, len(m.layers))
		for li, l := range m.layers {
			if !l.isTrainable() {
				continue
			}
			for _, p := range l.Params() {
				r, c := p.Dims()
				grads[s][li] = append(grads[s][li], mat.NewDense(r, c, nil))
			}
		}
	}
	return grads
}

// shardBounds cuts [0,n) into at most k contiguous, non-empty ranges.
func shardBounds(n, k int) [][2]int {
	if k < 1 {
		k = 1
	}
	size := (n + k - 1) / k
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		out = append(out, [2]int{lo, min(lo+size, n)})
	}
	return out
}

func (m *Sequential) trainBatch(ctx context.Context, bx *mat.Dense, by []float64, grads [][][]*mat.Dense) (shardResult, error) {
	batch, width := bx.Dims()
	bounds := shardBounds(batch, len(grads))
	results := make([]shardResult, len(bounds))

	// needInput[li] is set when some earlier layer has trainable weights.
	needInput := make([]bool, len(m.layers))
	for li := 1; li < len(m.layers); li++ {
		prev := m.layers[li-1]
		needInput[li] = needInput[li-1] || (prev.isTrainable() && len(prev.Params()) > 0)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for s, b := range bounds {
		g.Go(func() error {
			xs := bx.Slice(b[0], b[1], 0, width).(*mat.Dense)
			ys := by[b[0]:b[1]]

			out, caches := m.forward(xs)
			res, dout := m.lossAndGradient(out, ys, float64(batch))
			results[s] = res

			d := dout
			for li := len(m.layers) - 1; li >= 0 && d != nil; li-- {
				d = m.layers[li].backward(caches[li], d, grads[s][li], needInput[li])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return shardResult{}, err
	}

	var total shardResult
	for _, r := range results {
		total.loss += r.loss
		total.correct += r.correct
	}

	for li, l := range m.layers {
		if !l.isTrainable() || len(grads[0][li]) == 0 {
			continue
		}
		sum := grads[0][li]
		for s := 1; s < len(bounds); s++ {
			for pi := range sum {
				sum[pi].Add(sum[pi], grads[s][li][pi])
			}
		}
		m.optimizer.Update(l.Params(), sum)
	}

	return total, nil
}

func (m *Sequential) forward(x *mat.Dense) (*mat.Dense, []any) {
	caches := make([]any, len(m.layers))
	out := x
	for li, l := range m.layers {
		out, caches[li] = l.forward(out)
	}
	return out, caches
}

// lossAndGradient returns the summed loss and hit count of a shard and the
// gradient of the batch mean loss with respect to the predictions.
func (m *Sequential) lossAndGradient(out *mat.Dense, y []float64, batch float64) (shardResult, *mat.Dense) {
	rows, _ := out.Dims()
	dout := mat.NewDense(rows, 1, nil)

	var res shardResult
	for i := 0; i < rows; i++ {
		p := out.At(i, 0)
		res.loss += m.loss.Loss(y[i], p)
		res.correct += binaryAccuracy(y[i], p)
		dout.Set(i, 0, m.loss.Gradient(y[i], p)/batch)
	}
	return res, dout
}

// Evaluate returns the mean loss followed by one value per compiled metric,
// in MetricsNames order. Batches are scored concurrently.
func (m *Sequential) Evaluate(ctx context.Context, x [][]int, y []float64) ([]float64, error) {
	if m.loss == nil {
		return nil, ErrNotCompiled
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d samples but %d labels", ErrInvalidInput, len(x), len(y))
	}
	in, err := m.inputs(x)
	if err != nil {
		return nil, err
	}

	n, width := in.Dims()
	bounds := shardBounds(n, (n+DefaultBatchSize-1)/DefaultBatchSize)
	results := make([]shardResult, len(bounds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for s, b := range bounds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, _ := m.forward(in.Slice(b[0], b[1], 0, width).(*mat.Dense))
			results[s], _ = m.lossAndGradient(out, y[b[0]:b[1]], 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total shardResult
	for _, r := range results {
		total.loss += r.loss
		total.correct += r.correct
	}

	scores := []float64{total.loss / float64(n)}
	for range m.metrics {
		scores = append(scores, total.correct/float64(n))
	}
	return scores, nil
}

// Predict returns the model output for x, one row per sample.
func (m *Sequential) Predict(ctx context.Context, x [][]int) (*mat.Dense, error) {
	in, err := m.inputs(x)
	if err != nil {
		return nil, err
	}

	n, width := in.Dims()
	outDim := m.layers[len(m.layers)-1].OutputShape().Size()
	result := mat.NewDense(n, outDim, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, b := range shardBounds(n, (n+DefaultBatchSize-1)/DefaultBatchSize) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, _ := m.forward(in.Slice(b[0], b[1], 0, width).(*mat.Dense))
			result.Slice(b[0], b[1], 0, outDim).(*mat.Dense).Copy(out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

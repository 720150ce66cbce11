package carml

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"

	"github.com/hupe1980/carml/nn"
)

// buildModel assembles the classifier with the pretrained embedding frozen.
func (p *Pipeline) buildModel(j *job) (*nn.Sequential, error) {
	model := nn.NewSequential(
		nn.WithRand(rand.New(rand.NewPCG(j.rng.Uint64(), j.rng.Uint64()))),
		nn.WithWorkers(p.opts.workers),
	)

	emb := nn.NewEmbedding(p.opts.maxWords, p.opts.embeddingDim, p.opts.maxLen)

	for _, l := range []nn.Layer{
		emb,
		nn.NewFlatten(),
		nn.NewDense(64, nn.ReLU),
		nn.NewDense(32, nn.ReLU),
		nn.NewDense(1, nn.Sigmoid),
	} {
		if err := model.Add(l); err != nil {
			return nil, err
		}
	}

	if err := emb.SetWeights(j.matrix.Dense()); err != nil {
		return nil, err
	}
	emb.Trainable = false

	if err := model.Compile(nn.NewRMSprop(p.opts.learningRate), nn.BinaryCrossentropy{}, "acc"); err != nil {
		return nil, err
	}

	return model, nil
}

// train fits the classifier and writes the artifact below the outputs
// directory.
func (p *Pipeline) train(ctx context.Context, j *job) error {
	model, err := p.buildModel(j)
	if err != nil {
		return err
	}
	fmt.Fprintln(p.opts.summary, model.Summary())

	splits := j.res.Splits
	history, err := model.Fit(ctx, splits.Train.X, splits.Train.Y, nn.FitConfig{
		Epochs:    p.opts.epochs,
		BatchSize: p.opts.batchSize,
		Validation: &nn.ValidationData{
			X: splits.Validation.X,
			Y: splits.Validation.Y,
		},
		Shuffle: true,
		OnEpochEnd: func(e nn.EpochLog) {
			p.opts.metrics.RecordEpoch(e.Epoch, e.Loss, e.Acc, e.Duration)
			j.logger.LogEpoch(ctx, e)
		},
	})
	if err != nil {
		return err
	}

	path := filepath.Join(p.opts.outputsDir, "model", ModelFileName)
	if err := model.SaveFile(path, p.opts.compression); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	j.logger.InfoContext(ctx, "model saved", "path", path, "compression", p.opts.compression.String())

	j.model = model
	j.res.History = history
	j.res.ModelPath = path

	return nil
}

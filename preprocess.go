package carml

import (
	"context"
	"fmt"
	"os"

	"github.com/hupe1980/carml/dataset"
	"github.com/hupe1980/carml/embedding"
	"github.com/hupe1980/carml/text"
)

// preprocess tokenizes the texts, pads them, then shuffles and splits the
// records.
func (p *Pipeline) preprocess(ctx context.Context, j *job) error {
	tok := text.NewTokenizer(p.opts.maxWords)
	tok.FitOnTexts(j.texts)
	j.logger.InfoContext(ctx, "tokenizer fitted", "unique_tokens", tok.VocabularySize())

	data := text.PadSequences(tok.TextsToSequences(j.texts), p.opts.maxLen)
	labels := j.labels
	j.logger.InfoContext(ctx, "data tensor built",
		"data_shape", fmt.Sprintf("(%d, %d)", len(data), p.opts.maxLen),
		"label_shape", fmt.Sprintf("(%d,)", len(labels)),
	)

	if err := dataset.Shuffle(data, labels, j.rng); err != nil {
		return err
	}

	splits, err := dataset.Split(data, labels, p.opts.trainingSamples, p.opts.validationSamples)
	if err != nil {
		return err
	}

	j.tokenizer = tok
	j.res.Splits = splits
	j.logger.InfoContext(ctx, "data split",
		"train", splits.Train.Len(),
		"validation", splits.Validation.Len(),
		"test", splits.Test.Len(),
	)

	return nil
}

// embed reads the pretrained vectors of the fitted vocabulary and arranges
// them into the embedding weight matrix.
func (p *Pipeline) embed(ctx context.Context, j *job) error {
	f, err := os.Open(j.vectorsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	wordIndex := j.tokenizer.WordIndex()

	vectors, err := embedding.LoadVectors(f, embedding.WithVocabulary(wordIndex, p.opts.maxWords))
	if err != nil {
		return err
	}
	j.logger.InfoContext(ctx, "word vectors loaded", "vectors", vectors.Len())

	m, err := embedding.BuildMatrix(wordIndex, vectors, p.opts.maxWords, p.opts.embeddingDim)
	if err != nil {
		return err
	}

	j.matrix = m
	j.res.Coverage = m.Coverage()
	j.logger.LogCoverage(ctx, j.res.Coverage)

	return nil
}

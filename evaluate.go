package carml

import (
	"context"
	"fmt"

	"github.com/hupe1980/carml/workspace"
)

// evaluate scores the test split and reports loss and accuracy to the run.
func (p *Pipeline) evaluate(ctx context.Context, j *job) error {
	test := j.res.Splits.Test
	if test.Len() == 0 {
		return fmt.Errorf("test split: %w", ErrEmptySplit)
	}

	j.logger.InfoContext(ctx, "evaluating model", "metrics", j.model.MetricsNames())

	scores, err := j.model.Evaluate(ctx, test.X, test.Y)
	if err != nil {
		return err
	}

	j.res.Loss, j.res.Acc = scores[0], scores[1]

	for _, m := range []struct {
		name, description string
		value             float64
	}{
		{"loss", "Model test data loss", j.res.Loss},
		{"acc", "Model test data accuracy", j.res.Acc},
	} {
		if err := j.run.Log(ctx, m.name, m.value, m.description); err != nil {
			return err
		}
		j.logger.LogMetric(ctx, m.name, m.value, m.description)
	}

	return nil
}

// register records the saved artifact as a new model version linked to the
// components dataset it was trained on.
func (p *Pipeline) register(ctx context.Context, j *job) error {
	m, err := p.ws.RegisterModel(ctx, workspace.ModelRegistration{
		Path:        j.res.ModelPath,
		Name:        j.args.ModelName,
		Description: ModelDescription,
		Tags: map[string]string{
			"type":         "classification",
			"run_id":       j.run.ID,
			"build_number": j.args.BuildNumber,
		},
		Datasets: []workspace.DatasetReference{
			j.res.Components.Reference("training data"),
		},
		RunID: j.run.ID,
	})
	if err != nil {
		return err
	}

	j.res.Model = m
	j.logger.LogModel(ctx, m)

	return nil
}

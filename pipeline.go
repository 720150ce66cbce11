package carml

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/hupe1980/carml/dataset"
	"github.com/hupe1980/carml/embedding"
	"github.com/hupe1980/carml/nn"
	"github.com/hupe1980/carml/text"
	"github.com/hupe1980/carml/workspace"
)

// Stage names used in logs, metrics and StageError.
const (
	StageProvision  = "provision"
	StagePreprocess = "preprocess"
	StageEmbed      = "embed"
	StageTrain      = "train"
	StageEvaluate   = "evaluate"
	StageRegister   = "register"
)

// Registry names and fixed texts of the job.
const (
	EmbeddingsDatasetName        = "glove_6B_100d"
	EmbeddingsDatasetDescription = "GloVe embeddings 6B 100d"
	ComponentsDatasetName        = "connected_car_components"
	ComponentsDatasetDescription = "Connected car components data"
	ModelDescription             = "Deep learning model to classify the descriptions of car components as compliant or non-compliant."
	ModelFileName                = "model.h5"
)

// Args identifies a training run.
type Args struct {
	ModelName   string
	BuildNumber string
}

// Result summarizes a completed run.
type Result struct {
	RunID      string
	Embeddings *workspace.Dataset
	Components *workspace.Dataset
	Splits     dataset.Splits
	Coverage   embedding.Coverage
	History    *nn.History
	ModelPath  string
	Loss       float64
	Acc        float64
	Model      *workspace.Model
}

// Pipeline trains and registers the component classifier.
type Pipeline struct {
	ws   *workspace.Workspace
	opts options
}

// New creates a Pipeline on top of ws.
func New(ws *workspace.Workspace, optFns ...Option) *Pipeline {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.logger == nil {
		opts.logger = NoopLogger()
	}
	if opts.metrics == nil {
		opts.metrics = NoopMetricsCollector{}
	}

	return &Pipeline{ws: ws, opts: opts}
}

// job carries the state handed from one stage to the next.
type job struct {
	args   Args
	run    *workspace.Run
	logger *Logger
	rng    *rand.Rand

	vectorsPath string
	texts       []string
	labels      []float64

	tokenizer *text.Tokenizer
	matrix    *embedding.Matrix
	model     *nn.Sequential

	res *Result
}

// Run executes every stage in order. The run is marked failed when any
// stage returns an error.
func (p *Pipeline) Run(ctx context.Context, args Args) (res *Result, err error) {
	if args.ModelName == "" || args.BuildNumber == "" {
		return nil, errors.New("model name and build number are required")
	}

	run, err := p.ws.StartRun(ctx, p.opts.experiment)
	if err != nil {
		return nil, err
	}

	j := &job{
		args:   args,
		run:    run,
		logger: p.opts.logger.WithRun(run),
		rng:    dataset.NewRand(p.opts.seed),
		res:    &Result{RunID: run.ID},
	}

	defer func() {
		status := workspace.RunCompleted
		if err != nil {
			status = workspace.RunFailed
		}
		if ferr := run.Finish(context.WithoutCancel(ctx), status); ferr != nil && err == nil {
			err = ferr
		}
	}()

	j.logger.InfoContext(ctx, "pipeline started",
		"experiment", run.Experiment,
		"model_name", args.ModelName,
		"build_number", args.BuildNumber,
	)

	stages := []struct {
		name string
		fn   func(context.Context, *job) error
	}{
		{StageProvision, p.provision},
		{StagePreprocess, p.preprocess},
		{StageEmbed, p.embed},
		{StageTrain, p.train},
		{StageEvaluate, p.evaluate},
		{StageRegister, p.register},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: s.name, cause: err}
		}

		start := time.Now()
		serr := s.fn(ctx, j)
		d := time.Since(start)

		p.opts.metrics.RecordStage(s.name, d, serr)
		j.logger.LogStage(ctx, s.name, d, serr)

		if serr != nil {
			return nil, &StageError{Stage: s.name, cause: serr}
		}
	}

	return j.res, nil
}

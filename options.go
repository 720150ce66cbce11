package carml

import (
	"io"

	"github.com/hupe1980/carml/config"
	"github.com/hupe1980/carml/nn"
)

// options holds the pipeline configuration.
type options struct {
	experiment        string
	datasetsDir       string
	outputsDir        string
	gloveURL          string
	cardataURL        string
	seed              *int64
	embeddingDim      int
	maxWords          int
	maxLen            int
	trainingSamples   int
	validationSamples int
	epochs            int
	batchSize         int
	learningRate      float64
	workers           int
	compression       nn.Compression
	logger            *Logger
	metrics           MetricsCollector
	summary           io.Writer
}

func defaultOptions() options {
	d := config.Default()
	return options{
		experiment:        d.Experiment,
		datasetsDir:       d.DatasetsDir,
		outputsDir:        d.OutputsDir,
		gloveURL:          d.Sources.GloveURL,
		cardataURL:        d.Sources.CardataURL,
		embeddingDim:      d.Training.EmbeddingDim,
		maxWords:          d.Training.MaxWords,
		maxLen:            d.Training.MaxLen,
		trainingSamples:   d.Training.TrainingSamples,
		validationSamples: d.Training.ValidationSamples,
		epochs:            d.Training.Epochs,
		batchSize:         d.Training.BatchSize,
		learningRate:      d.Training.LearningRate,
		compression:       nn.CompressionNone,
		logger:            NoopLogger(),
		metrics:           NoopMetricsCollector{},
		summary:           io.Discard,
	}
}

// Option configures a Pipeline.
type Option func(*options)

// WithConfig applies every pipeline setting of a loaded configuration.
// The compression name must already be validated.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		o.experiment = cfg.Experiment
		o.datasetsDir = cfg.DatasetsDir
		o.outputsDir = cfg.OutputsDir
		o.gloveURL = cfg.Sources.GloveURL
		o.cardataURL = cfg.Sources.CardataURL
		o.seed = cfg.Seed
		o.embeddingDim = cfg.Training.EmbeddingDim
		o.maxWords = cfg.Training.MaxWords
		o.maxLen = cfg.Training.MaxLen
		o.trainingSamples = cfg.Training.TrainingSamples
		o.validationSamples = cfg.Training.ValidationSamples
		o.epochs = cfg.Training.Epochs
		o.batchSize = cfg.Training.BatchSize
		o.learningRate = cfg.Training.LearningRate
		o.workers = cfg.Training.Workers
		if c, err := nn.ParseCompression(cfg.Training.ArtifactCompression); err == nil {
			o.compression = c
		}
	}
}

// WithExperiment sets the experiment the run is recorded under.
func WithExperiment(name string) Option {
	return func(o *options) {
		o.experiment = name
	}
}

// WithDatasetsDir sets where the embeddings are downloaded to.
func WithDatasetsDir(dir string) Option {
	return func(o *options) {
		o.datasetsDir = dir
	}
}

// WithOutputsDir sets the directory the model artifact is written below.
func WithOutputsDir(dir string) Option {
	return func(o *options) {
		o.outputsDir = dir
	}
}

// WithSources overrides the embeddings and components source URLs.
func WithSources(gloveURL, cardataURL string) Option {
	return func(o *options) {
		o.gloveURL = gloveURL
		o.cardataURL = cardataURL
	}
}

// WithSeed makes shuffling and weight initialization reproducible.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = &seed
	}
}

// WithVocabulary sets the embedding dimension, vocabulary cap and
// sequence length.
func WithVocabulary(embeddingDim, maxWords, maxLen int) Option {
	return func(o *options) {
		o.embeddingDim = embeddingDim
		o.maxWords = maxWords
		o.maxLen = maxLen
	}
}

// WithSplit sets the training and validation sample counts.
func WithSplit(training, validation int) Option {
	return func(o *options) {
		o.trainingSamples = training
		o.validationSamples = validation
	}
}

// WithTraining sets epochs, batch size and learning rate.
func WithTraining(epochs, batchSize int, learningRate float64) Option {
	return func(o *options) {
		o.epochs = epochs
		o.batchSize = batchSize
		o.learningRate = learningRate
	}
}

// WithWorkers bounds the gradient workers. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithCompression sets the model artifact compression.
func WithCompression(c nn.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetricsCollector sets the metrics collector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metrics = mc
	}
}

// WithSummaryWriter sets where the model summary table is printed.
func WithSummaryWriter(w io.Writer) Option {
	return func(o *options) {
		o.summary = w
	}
}

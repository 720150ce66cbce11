// Package config loads the training job configuration from an optional HCL
// file. Every setting has a default matching the production training job,
// so an empty or missing file is a valid configuration.
//
// Example:
//
//	experiment = "connected-car"
//	seed       = 42
//
//	workspace {
//	  backend = "s3"
//	  bucket  = "ml-workspace"
//	  table   = "carml-versions"
//	  region  = env("AWS_REGION", "eu-central-1")
//	}
//
//	training {
//	  epochs               = 3
//	  artifact_compression = "zstd"
//	}
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// EnvVar names the environment variable that points at the config file.
const EnvVar = "CARML_CONFIG"

// DefaultFile is used when EnvVar is unset and the file exists.
const DefaultFile = "carml.hcl"

const (
	DefaultGloveURL   = "https://quickstartsws9073123377.blob.core.windows.net/azureml-blobstore-0d1c4218-a5f9-418b-bf55-902b65277b85/quickstarts/connected-car-data/glove.6B.100d.txt"
	DefaultCardataURL = "https://quickstartsws9073123377.blob.core.windows.net/azureml-blobstore-0d1c4218-a5f9-418b-bf55-902b65277b85/quickstarts/connected-car-data/connected-car_components.csv"
)

// Config is the resolved job configuration.
type Config struct {
	Experiment  string
	DatasetsDir string
	OutputsDir  string
	// Seed makes the shuffle reproducible. Nil means a random seed.
	Seed      *int64
	LogFormat string
	LogLevel  string

	Workspace WorkspaceConfig
	Sources   SourcesConfig
	Training  TrainingConfig
}

// WorkspaceConfig selects and configures the workspace backend.
type WorkspaceConfig struct {
	// Backend is one of "local", "s3", "minio" or "memory".
	Backend   string
	Root      string
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	Table     string
	AccessKey string
	SecretKey string
	Secure    bool
}

// SourcesConfig holds the dataset source URLs.
type SourcesConfig struct {
	GloveURL   string
	CardataURL string
	// RateLimitBytes caps download throughput. Zero means unlimited.
	RateLimitBytes int
}

// TrainingConfig holds the preprocessing and training hyperparameters.
type TrainingConfig struct {
	EmbeddingDim        int
	MaxWords            int
	MaxLen              int
	TrainingSamples     int
	ValidationSamples   int
	Epochs              int
	BatchSize           int
	LearningRate        float64
	Workers             int
	ArtifactCompression string
}

// Default returns the production training configuration.
func Default() Config {
	return Config{
		Experiment:  "connected-car",
		DatasetsDir: "./datasets",
		OutputsDir:  "./outputs",
		LogFormat:   "text",
		LogLevel:    "info",
		Workspace: WorkspaceConfig{
			Backend: "local",
			Root:    "./.workspace",
			Secure:  true,
		},
		Sources: SourcesConfig{
			GloveURL:   DefaultGloveURL,
			CardataURL: DefaultCardataURL,
		},
		Training: TrainingConfig{
			EmbeddingDim:        100,
			MaxWords:            10000,
			MaxLen:              100,
			TrainingSamples:     90000,
			ValidationSamples:   5000,
			Epochs:              3,
			BatchSize:           32,
			LearningRate:        0.1,
			Workers:             0,
			ArtifactCompression: "none",
		},
	}
}

// file mirrors the HCL layout. Pointers distinguish unset from zero.
type file struct {
	Experiment  *string `hcl:"experiment,optional"`
	DatasetsDir *string `hcl:"datasets_dir,optional"`
	OutputsDir  *string `hcl:"outputs_dir,optional"`
	Seed        *int64  `hcl:"seed,optional"`
	LogFormat   *string `hcl:"log_format,optional"`
	LogLevel    *string `hcl:"log_level,optional"`

	Workspace *workspaceBlock `hcl:"workspace,block"`
	Sources   *sourcesBlock   `hcl:"sources,block"`
	Training  *trainingBlock  `hcl:"training,block"`
}

type workspaceBlock struct {
	Backend   *string `hcl:"backend,optional"`
	Root      *string `hcl:"root,optional"`
	Bucket    *string `hcl:"bucket,optional"`
	Prefix    *string `hcl:"prefix,optional"`
	Endpoint  *string `hcl:"endpoint,optional"`
	Region    *string `hcl:"region,optional"`
	Table     *string `hcl:"table,optional"`
	AccessKey *string `hcl:"access_key,optional"`
	SecretKey *string `hcl:"secret_key,optional"`
	Secure    *bool   `hcl:"secure,optional"`
}

type sourcesBlock struct {
	GloveURL       *string `hcl:"glove_url,optional"`
	CardataURL     *string `hcl:"cardata_url,optional"`
	RateLimitBytes *int    `hcl:"rate_limit_bytes,optional"`
}

type trainingBlock struct {
	EmbeddingDim        *int     `hcl:"embedding_dim,optional"`
	MaxWords            *int     `hcl:"max_words,optional"`
	MaxLen              *int     `hcl:"max_len,optional"`
	TrainingSamples     *int     `hcl:"training_samples,optional"`
	ValidationSamples   *int     `hcl:"validation_samples,optional"`
	Epochs              *int     `hcl:"epochs,optional"`
	BatchSize           *int     `hcl:"batch_size,optional"`
	LearningRate        *float64 `hcl:"learning_rate,optional"`
	Workers             *int     `hcl:"workers,optional"`
	ArtifactCompression *string  `hcl:"artifact_compression,optional"`
}

// Locate returns the config file path to use, or "" when there is none.
func Locate() (string, error) {
	if p := os.Getenv(EnvVar); p != "" {
		return p, nil
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return DefaultFile, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	return "", nil
}

// Load reads the config file at path. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(src, path)
}

// Parse decodes HCL source on top of Default() and validates the result.
func Parse(src []byte, filename string) (Config, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse config file %s: %s", filename, diags.Error())
	}

	var raw file
	diags = gohcl.DecodeBody(f.Body, evalContext(), &raw)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to decode config file %s: %s", filename, diags.Error())
	}

	cfg := Default()
	raw.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return cfg, nil
}

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Functions: map[string]function.Function{
			"env": envFunc,
		},
	}
}

// envFunc implements env(name[, default]).
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	VarParam: &function.Parameter{Name: "default", Type: cty.String},
	Type:     function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if len(args) > 2 {
			return cty.NilVal, fmt.Errorf("env takes at most one default value")
		}
		if v, ok := os.LookupEnv(args[0].AsString()); ok {
			return cty.StringVal(v), nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return cty.StringVal(""), nil
	},
})

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (f *file) apply(cfg *Config) {
	set(&cfg.Experiment, f.Experiment)
	set(&cfg.DatasetsDir, f.DatasetsDir)
	set(&cfg.OutputsDir, f.OutputsDir)
	set(&cfg.LogFormat, f.LogFormat)
	set(&cfg.LogLevel, f.LogLevel)
	if f.Seed != nil {
		seed := *f.Seed
		cfg.Seed = &seed
	}

	if w := f.Workspace; w != nil {
		set(&cfg.Workspace.Backend, w.Backend)
		set(&cfg.Workspace.Root, w.Root)
		set(&cfg.Workspace.Bucket, w.Bucket)
		set(&cfg.Workspace.Prefix, w.Prefix)
		set(&cfg.Workspace.Endpoint, w.Endpoint)
		set(&cfg.Workspace.Region, w.Region)
		set(&cfg.Workspace.Table, w.Table)
		set(&cfg.Workspace.AccessKey, w.AccessKey)
		set(&cfg.Workspace.SecretKey, w.SecretKey)
		set(&cfg.Workspace.Secure, w.Secure)
	}

	if s := f.Sources; s != nil {
		set(&cfg.Sources.GloveURL, s.GloveURL)
		set(&cfg.Sources.CardataURL, s.CardataURL)
		set(&cfg.Sources.RateLimitBytes, s.RateLimitBytes)
	}

	if t := f.Training; t != nil {
		set(&cfg.Training.EmbeddingDim, t.EmbeddingDim)
		set(&cfg.Training.MaxWords, t.MaxWords)
		set(&cfg.Training.MaxLen, t.MaxLen)
		set(&cfg.Training.TrainingSamples, t.TrainingSamples)
		set(&cfg.Training.ValidationSamples, t.ValidationSamples)
		set(&cfg.Training.Epochs, t.Epochs)
		set(&cfg.Training.BatchSize, t.BatchSize)
		set(&cfg.Training.LearningRate, t.LearningRate)
		set(&cfg.Training.Workers, t.Workers)
		set(&cfg.Training.ArtifactCompression, t.ArtifactCompression)
	}
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error

	if c.Experiment == "" {
		errs = append(errs, errors.New("experiment must not be empty"))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be 'text' or 'json', got %q", c.LogFormat))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be 'debug', 'info', 'warn' or 'error', got %q", c.LogLevel))
	}

	switch c.Workspace.Backend {
	case "local", "memory":
	case "s3":
		if c.Workspace.Bucket == "" || c.Workspace.Table == "" {
			errs = append(errs, errors.New("workspace backend s3 requires bucket and table"))
		}
	case "minio":
		if c.Workspace.Bucket == "" || c.Workspace.Endpoint == "" {
			errs = append(errs, errors.New("workspace backend minio requires bucket and endpoint"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown workspace backend %q", c.Workspace.Backend))
	}

	if c.Sources.GloveURL == "" || c.Sources.CardataURL == "" {
		errs = append(errs, errors.New("sources must name both glove_url and cardata_url"))
	}
	if c.Sources.RateLimitBytes < 0 {
		errs = append(errs, errors.New("rate_limit_bytes must not be negative"))
	}

	t := c.Training
	for _, f := range []struct {
		name  string
		value int
	}{
		{"embedding_dim", t.EmbeddingDim},
		{"max_words", t.MaxWords},
		{"max_len", t.MaxLen},
		{"epochs", t.Epochs},
		{"batch_size", t.BatchSize},
	} {
		if f.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.value))
		}
	}
	if t.TrainingSamples < 0 || t.ValidationSamples < 0 || t.Workers < 0 {
		errs = append(errs, errors.New("training_samples, validation_samples and workers must not be negative"))
	}
	if t.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning_rate must be positive, got %v", t.LearningRate))
	}
	switch t.ArtifactCompression {
	case "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("artifact_compression must be 'none', 'lz4' or 'zstd', got %q", t.ArtifactCompression))
	}

	return errors.Join(errs...)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10000, cfg.Training.MaxWords)
	assert.Equal(t, 100, cfg.Training.MaxLen)
	assert.Equal(t, 100, cfg.Training.EmbeddingDim)
	assert.Equal(t, 90000, cfg.Training.TrainingSamples)
	assert.Equal(t, 5000, cfg.Training.ValidationSamples)
	assert.Equal(t, 3, cfg.Training.Epochs)
	assert.Equal(t, 32, cfg.Training.BatchSize)
	assert.Equal(t, 0.1, cfg.Training.LearningRate)
	assert.Equal(t, "local", cfg.Workspace.Backend)
	assert.Nil(t, cfg.Seed)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse(t *testing.T) {
	t.Setenv("CARML_TEST_BUCKET", "ml-artifacts")

	src := `
experiment = "nightly"
seed       = 7
log_format = "json"

workspace {
  backend = "s3"
  bucket  = env("CARML_TEST_BUCKET")
  table   = "carml-versions"
  region  = env("CARML_TEST_UNSET_REGION", "eu-central-1")
}

sources {
  rate_limit_bytes = 1048576
}

training {
  training_samples     = 1
  validation_samples   = 0
  epochs               = 2
  learning_rate        = 0.01
  artifact_compression = "zstd"
}
`
	cfg, err := Parse([]byte(src), "carml.hcl")
	require.NoError(t, err)

	assert.Equal(t, "nightly", cfg.Experiment)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int64(7), *cfg.Seed)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "ml-artifacts", cfg.Workspace.Bucket)
	assert.Equal(t, "eu-central-1", cfg.Workspace.Region)
	assert.Equal(t, 1048576, cfg.Sources.RateLimitBytes)
	assert.Equal(t, DefaultGloveURL, cfg.Sources.GloveURL)
	assert.Equal(t, 1, cfg.Training.TrainingSamples)
	assert.Equal(t, 0, cfg.Training.ValidationSamples)
	assert.Equal(t, 2, cfg.Training.Epochs)
	assert.Equal(t, 0.01, cfg.Training.LearningRate)
	assert.Equal(t, "zstd", cfg.Training.ArtifactCompression)
	// Untouched settings keep their defaults.
	assert.Equal(t, 32, cfg.Training.BatchSize)
	assert.Equal(t, "./datasets", cfg.DatasetsDir)
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{"syntax", `training {`},
		{"unknown attribute", `epochs = 3`},
		{"wrong type", `seed = "abc"`},
		{"bad backend", `workspace { backend = "gcs" }`},
		{"s3 without table", "workspace {\n  backend = \"s3\"\n  bucket = \"b\"\n}\n"},
		{"bad compression", `training { artifact_compression = "gzip" }`},
		{"negative samples", `training { validation_samples = -1 }`},
		{"zero batch", `training { batch_size = 0 }`},
		{"bad level", `log_level = "trace"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), "test.hcl")
			assert.Error(t, err)
		})
	}
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	t.Setenv(EnvVar, "")
	p, err := Locate()
	require.NoError(t, err)
	assert.Equal(t, "", p)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte(`experiment = "local"`), 0o644))
	p, err = Locate()
	require.NoError(t, err)
	assert.Equal(t, DefaultFile, p)

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Experiment)

	t.Setenv(EnvVar, "/etc/carml/prod.hcl")
	p, err = Locate()
	require.NoError(t, err)
	assert.Equal(t, "/etc/carml/prod.hcl", p)

	_, err = Load(filepath.Join(dir, "missing.hcl"))
	assert.Error(t, err)
}

package nn

import "errors"

var (
	// ErrShapeMismatch is returned when weights or inputs do not have the
	// shape a layer expects.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNotCompiled is returned by Fit and Evaluate before Compile.
	ErrNotCompiled = errors.New("model is not compiled")

	// ErrEmptyInput is returned when there are no samples to process.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidInput is returned for out of range token indices or
	// mismatched feature and label counts.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoLayers is returned when a model without layers is used.
	ErrNoLayers = errors.New("model has no layers")

	// ErrBadArtifact is returned by Load for corrupt or foreign files.
	ErrBadArtifact = errors.New("invalid model artifact")
)

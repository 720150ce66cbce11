package carml

import (
	"errors"
	"fmt"

	"github.com/hupe1980/carml/blobstore"
	"github.com/hupe1980/carml/nn"
	"github.com/hupe1980/carml/workspace"
)

var (
	// ErrDatasetNotFound is returned when a dataset has no registered version.
	ErrDatasetNotFound = workspace.ErrDatasetNotFound

	// ErrNotFound is returned when a blob does not exist.
	ErrNotFound = blobstore.ErrNotFound

	// ErrConcurrentModification is returned when a registry version could
	// not be reserved.
	ErrConcurrentModification = workspace.ErrConcurrentModification

	// ErrShapeMismatch is returned when weights do not fit a layer.
	ErrShapeMismatch = nn.ErrShapeMismatch

	// ErrEmptySplit is returned when the test split has no records.
	ErrEmptySplit = errors.New("empty split")

	// ErrMissingColumn is returned when the components table lacks a
	// required column.
	ErrMissingColumn = workspace.ErrColumnNotFound
)

// StageError reports which pipeline stage failed.
//
// The original underlying error can be accessed via errors.Unwrap.
type StageError struct {
	Stage string
	cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.cause)
}

func (e *StageError) Unwrap() error { return e.cause }

// LabelError reports a label that is neither 0/1 nor true/false.
type LabelError struct {
	Row   int
	Value string
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("invalid label %q in row %d", e.Value, e.Row)
}

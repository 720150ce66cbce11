package workspace

import (
	"errors"
	"fmt"
)

var (
	// ErrDatasetNotFound is returned when no version of a dataset is registered.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrModelNotFound is returned when no version of a model is registered.
	ErrModelNotFound = errors.New("model not found")

	// ErrConcurrentModification is returned by VersionLog.Commit when the
	// version has already been taken by another writer.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidName is returned for empty names or names containing a slash.
	ErrInvalidName = errors.New("invalid name")

	// ErrNotTabular is returned when ToTable is called on a file dataset.
	ErrNotTabular = errors.New("dataset is not tabular")

	// ErrColumnNotFound is returned by Table.Column for unknown columns.
	ErrColumnNotFound = errors.New("column not found")

	// ErrFileExists is returned by Download when a target file exists and
	// overwrite is false.
	ErrFileExists = errors.New("file already exists")
)

// CommitConflictError is returned when a version could not be reserved
// after all attempts.
type CommitConflictError struct {
	Key      string
	Attempts int
}

func (e *CommitConflictError) Error() string {
	return fmt.Sprintf("commit %s: gave up after %d attempts", e.Key, e.Attempts)
}

// Unwrap returns ErrConcurrentModification.
func (e *CommitConflictError) Unwrap() error {
	return ErrConcurrentModification
}

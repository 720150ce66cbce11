// Package cli parses the training job's command-line arguments and maps
// usage problems to process exit codes.
package cli

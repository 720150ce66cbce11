package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Args are the run identifiers passed on the command line.
type Args struct {
	ModelName   string
	BuildNumber string
}

// Parse processes command-line arguments. It returns the parsed Args, a
// boolean indicating if the program should exit cleanly (help was
// requested), or an ExitError with code 2 for usage errors.
func Parse(args []string, output io.Writer) (*Args, bool, error) {
	flagSet := flag.NewFlagSet("train", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
train - trains the connected-car component compliance classifier.

Usage:
  train --model_name NAME --build_number BUILD

Configuration is read from $CARML_CONFIG or ./carml.hcl when present.

Options:
`)
		flagSet.PrintDefaults()
	}

	modelName := flagSet.String("model_name", "", "Name under which the trained model is registered.")
	buildNumber := flagSet.String("build_number", "", "Build number used to tag the dataset and model versions.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected arguments: %s", strings.Join(flagSet.Args(), " "))}
	}

	var missing []string
	if strings.TrimSpace(*modelName) == "" {
		missing = append(missing, "--model_name")
	}
	if strings.TrimSpace(*buildNumber) == "" {
		missing = append(missing, "--build_number")
	}
	if len(missing) > 0 {
		flagSet.Usage()
		return nil, false, &ExitError{Code: 2, Message: "missing required arguments: " + strings.Join(missing, ", ")}
	}

	return &Args{ModelName: *modelName, BuildNumber: *buildNumber}, false, nil
}

// Package embedding loads pretrained word vectors and arranges them into the
// weight matrix of an embedding layer.
package embedding

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrDimension is wrapped by ParseError when a line has a different number
// of components than the first vector.
var ErrDimension = errors.New("inconsistent vector dimension")

// ParseError reports a malformed line of a vectors file.
type ParseError struct {
	Line  int
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("vectors line %d (%q): %v", e.Line, e.Token, e.Err)
	}
	return fmt.Sprintf("vectors line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Vectors maps tokens to their pretrained vectors.
type Vectors struct {
	dim  int
	vecs map[string][]float32
}

// Dim returns the vector dimension, or 0 when no vectors were loaded.
func (v *Vectors) Dim() int {
	return v.dim
}

// Len returns the number of tokens.
func (v *Vectors) Len() int {
	return len(v.vecs)
}

// Lookup returns the vector of token.
func (v *Vectors) Lookup(token string) ([]float32, bool) {
	vec, ok := v.vecs[token]
	return vec, ok
}

type loadOptions struct {
	keep func(token string) bool
}

// LoadOption configures LoadVectors.
type LoadOption func(*loadOptions)

// WithVocabulary keeps only tokens whose index in wordIndex is below
// maxWords. All lines are still validated.
func WithVocabulary(wordIndex map[string]int, maxWords int) LoadOption {
	return func(o *loadOptions) {
		o.keep = func(token string) bool {
			i, ok := wordIndex[token]
			return ok && i < maxWords
		}
	}
}

// LoadVectors parses a whitespace separated vectors file with one token per
// line followed by its components.
func LoadVectors(r io.Reader, optFns ...LoadOption) (*Vectors, error) {
	opts := loadOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	v := &Vectors{vecs: make(map[string][]float32)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		token, comps := fields[0], fields[1:]
		if len(comps) == 0 {
			return nil, &ParseError{Line: line, Token: token, Err: errors.New("missing components")}
		}
		if v.dim == 0 {
			v.dim = len(comps)
		} else if len(comps) != v.dim {
			return nil, &ParseError{Line: line, Token: token, Err: fmt.Errorf("%w: got %d, want %d", ErrDimension, len(comps), v.dim)}
		}

		keep := opts.keep == nil || opts.keep(token)

		var vec []float32
		if keep {
			vec = make([]float32, len(comps))
		}
		for i, c := range comps {
			f, err := strconv.ParseFloat(c, 32)
			if err != nil {
				return nil, &ParseError{Line: line, Token: token, Err: err}
			}
			if keep {
				vec[i] = float32(f)
			}
		}

		if keep {
			v.vecs[token] = vec
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}

	return v, nil
}

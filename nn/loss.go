package nn

import (
	"fmt"
	"math"
)

// Loss is a per-element loss function on predicted probabilities.
type Loss interface {
	Name() string
	// Loss returns the loss of one prediction.
	Loss(yTrue, yPred float64) float64
	// Gradient returns dLoss/dyPred.
	Gradient(yTrue, yPred float64) float64
}

// ClipEpsilon bounds predictions away from 0 and 1 in the cross-entropy.
const ClipEpsilon = 1e-7

// BinaryCrossentropy is -(y*log(p) + (1-y)*log(1-p)) with p clipped to
// [ClipEpsilon, 1-ClipEpsilon].
type BinaryCrossentropy struct{}

func (BinaryCrossentropy) Name() string { return "binary_crossentropy" }

func (BinaryCrossentropy) Loss(yTrue, yPred float64) float64 {
	p := clip(yPred)
	return -(yTrue*math.Log(p) + (1-yTrue)*math.Log(1-p))
}

func (BinaryCrossentropy) Gradient(yTrue, yPred float64) float64 {
	p := clip(yPred)
	return (p - yTrue) / (p * (1 - p))
}

func clip(p float64) float64 {
	return math.Min(math.Max(p, ClipEpsilon), 1-ClipEpsilon)
}

// LossByName resolves a loss by its Name.
func LossByName(name string) (Loss, error) {
	switch name {
	case "binary_crossentropy":
		return BinaryCrossentropy{}, nil
	default:
		return nil, fmt.Errorf("unknown loss %q", name)
	}
}

// binaryAccuracy counts predictions on the right side of 0.5.
func binaryAccuracy(yTrue, yPred float64) float64 {
	pred := 0.0
	if yPred > 0.5 {
		pred = 1
	}
	if pred == yTrue {
		return 1
	}
	return 0
}

func validateMetric(name string) error {
	switch name {
	case "acc", "accuracy", "binary_accuracy":
		return nil
	default:
		return fmt.Errorf("unknown metric %q", name)
	}
}

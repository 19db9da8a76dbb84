package types

import (
	"fmt"
	"math"
)

const ProbabilityTolerance = 1e-3

type Prediction struct {
	Probabilities []float32
}

// Argmax returns the index of the most probable class, the lowest index on ties.
func (p Prediction) Argmax() int {
	best := -1
	for i, v := range p.Probabilities {
		if best < 0 || v > p.Probabilities[best] {
			best = i
		}
	}
	return best
}

// Validate checks that the probabilities form a simplex.
func (p Prediction) Validate() error {
	if len(p.Probabilities) == 0 {
		return fmt.Errorf("empty probability vector")
	}
	sum := 0.0
	for i, v := range p.Probabilities {
		if v < 0 || math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("invalid probability %v for class %d", v, i)
		}
		sum += float64(v)
	}
	if math.Abs(sum-1) > ProbabilityTolerance {
		return fmt.Errorf("probabilities sum to %.6f", sum)
	}
	return nil
}

type RankedPrediction struct {
	Label       string  `json:"class"`
	Index       int     `json:"index"`
	Probability float32 `json:"confidence"`
}

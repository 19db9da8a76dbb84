package inference

import (
	"fmt"
	"math"

	"leaf-backend/internal/core/types"
)

const (
	ActivationSoftmax = "softmax"
	ActivationLogits  = "logits"
)

func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	mx := logits[0]
	for _, v := range logits {
		if v > mx {
			mx = v
		}
	}
	sum := 0.0
	for i, v := range logits {
		e := math.Exp(float64(v - mx))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// ToPrediction turns raw network outputs into a validated probability vector.
func ToPrediction(raw []float32, activation string, numClasses int) (types.Prediction, error) {
	if len(raw) != numClasses {
		return types.Prediction{}, fmt.Errorf("network returned %d scores for %d classes", len(raw), numClasses)
	}
	probs := make([]float32, len(raw))
	copy(probs, raw)
	if activation == ActivationLogits {
		probs = Softmax(probs)
	}
	p := types.Prediction{Probabilities: probs}
	if err := p.Validate(); err != nil {
		return types.Prediction{}, fmt.Errorf("network output is not a probability vector: %w", err)
	}
	return p, nil
}

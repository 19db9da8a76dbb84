package inference

import (
	"sort"

	"leaf-backend/internal/core/types"
)

const DefaultTopK = 3

// TopK ranks the classes by probability, highest first. Ties keep ascending
// class order. k <= 0 uses DefaultTopK and k larger than the number of
// classes returns all of them.
func TopK(probs []float32, labels []string, k int) []types.RankedPrediction {
	if k <= 0 {
		k = DefaultTopK
	}
	ranked := make([]types.RankedPrediction, len(probs))
	for i, p := range probs {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		ranked[i] = types.RankedPrediction{Label: label, Index: i, Probability: p}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Probability > ranked[b].Probability
	})
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}

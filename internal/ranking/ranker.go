// Package ranking turns class probabilities into an ordered diagnosis list.
package ranking

import (
	"cmp"
	"slices"

	"github.com/Skufu/triage/internal/clinical"
)

// Diagnosis is one ranked condition.
type Diagnosis struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Index      int     `json:"-"`
}

// Rank returns the top k classes by probability. k is clamped to
// [1, len(probs)]; equal probabilities keep their class order.
func Rank(probs []float64, k int) []Diagnosis {
	if len(probs) == 0 {
		return []Diagnosis{}
	}
	k = max(1, min(k, len(probs)))

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(probs[b], probs[a])
	})

	out := make([]Diagnosis, k)
	for i, idx := range order[:k] {
		out[i] = Diagnosis{Label: clinical.Label(idx), Confidence: probs[idx], Index: idx}
	}
	return out
}

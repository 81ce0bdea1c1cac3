// Package classify provides the binary acceptance classifier consulted in
// entropy scoring and classifier-driven repair.
package classify

import (
	"context"
	"math"

	"github.com/teranos/mend/types"
)

// Distribution maps class labels to probabilities summing to 1.
type Distribution map[types.Label]float64

// Yes returns the probability of acceptance.
func (d Distribution) Yes() float64 { return d[types.LabelYes] }

// No returns the probability of rejection.
func (d Distribution) No() float64 { return d[types.LabelNo] }

// Uniform is the distribution of a classifier with no evidence.
func Uniform() Distribution {
	return Distribution{types.LabelYes: 0.5, types.LabelNo: 0.5}
}

// Classifier predicts whether a proposed repair would be accepted.
type Classifier interface {
	// Train rebuilds the model from a labelled training set.
	Train(ctx context.Context, set []types.TrainingInstance) error
	// Update adds one labelled instance to the model.
	Update(ctx context.Context, instance types.TrainingInstance) error
	// Predict returns the class distribution for an unlabelled instance.
	Predict(ctx context.Context, instance types.TrainingInstance) (Distribution, error)
}

// Entropy is the Shannon entropy -Σ p·ln(p) of d. Zero probabilities are skipped.
func Entropy(d Distribution) float64 {
	h := 0.0
	for _, p := range d {
		if p <= 0 {
			continue
		}
		h -= p * math.Log(p)
	}
	if h < 0 {
		return 0
	}
	return h
}

package classify

import (
	"context"
	"math"
	"strconv"
	"sync"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/types"
)

const (
	featureNewValue   = "new_value"
	featureSimilarity = "similarity_score"
	similarityBuckets = 10
)

var labels = [...]types.Label{types.LabelYes, types.LabelNo}

// NaiveBayes is an online categorical naive Bayes classifier with Laplace
// smoothing. Features are the tuple's attribute values, the proposed value
// and the bucketed similarity score. Safe for concurrent use.
type NaiveBayes struct {
	permitted map[string]struct{}

	mu sync.RWMutex
	// classCounts[label] is the number of instances seen with label.
	classCounts map[types.Label]int
	// counts[label][feature][value] is the co-occurrence count.
	counts map[types.Label]map[string]map[string]int
	// domain[feature] is the set of values observed for feature.
	domain map[string]map[string]struct{}
}

// NewNaiveBayes creates an untrained classifier. When permitted is non-empty
// only those tuple attributes become features.
func NewNaiveBayes(permitted []string) *NaiveBayes {
	nb := &NaiveBayes{}
	if len(permitted) > 0 {
		nb.permitted = make(map[string]struct{}, len(permitted))
		for _, p := range permitted {
			nb.permitted[p] = struct{}{}
		}
	}
	nb.reset()
	return nb
}

func (nb *NaiveBayes) reset() {
	nb.classCounts = make(map[types.Label]int)
	nb.counts = make(map[types.Label]map[string]map[string]int)
	nb.domain = make(map[string]map[string]struct{})
	for _, l := range labels {
		nb.counts[l] = make(map[string]map[string]int)
	}
}

// features flattens an instance into feature -> value pairs.
func (nb *NaiveBayes) features(in types.TrainingInstance) map[string]string {
	f := make(map[string]string)
	for _, c := range in.Tuple.Schema().Columns {
		if nb.permitted != nil {
			if _, ok := nb.permitted[c.Name]; !ok {
				continue
			}
		}
		v, _ := in.Tuple.Value(c.Name)
		f["attr:"+c.Name] = v.String()
	}
	f[featureNewValue] = in.Attribute + "=" + in.Proposed.String()
	bucket := int(math.Floor(in.Similarity * similarityBuckets))
	if bucket > similarityBuckets {
		bucket = similarityBuckets
	}
	if bucket < 0 {
		bucket = 0
	}
	f[featureSimilarity] = strconv.Itoa(bucket)
	return f
}

func (nb *NaiveBayes) add(in types.TrainingInstance) error {
	if in.Label != types.LabelYes && in.Label != types.LabelNo {
		return errors.MarkClassifier(errors.NewInvalidInputError("training instance has no label"))
	}
	nb.classCounts[in.Label]++
	for feature, value := range nb.features(in) {
		byFeature := nb.counts[in.Label]
		if byFeature[feature] == nil {
			byFeature[feature] = make(map[string]int)
		}
		byFeature[feature][value]++
		if nb.domain[feature] == nil {
			nb.domain[feature] = make(map[string]struct{})
		}
		nb.domain[feature][value] = struct{}{}
	}
	return nil
}

// Train replaces the model with one built from set.
func (nb *NaiveBayes) Train(ctx context.Context, set []types.TrainingInstance) error {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	nb.reset()
	for i, in := range set {
		if err := ctx.Err(); err != nil {
			return errors.MarkClassifier(errors.Wrap(err, "train"))
		}
		if err := nb.add(in); err != nil {
			return errors.Wrapf(err, "training instance %d", i)
		}
	}
	return nil
}

// Update adds one labelled instance.
func (nb *NaiveBayes) Update(ctx context.Context, in types.TrainingInstance) error {
	if err := ctx.Err(); err != nil {
		return errors.MarkClassifier(errors.Wrap(err, "update"))
	}
	nb.mu.Lock()
	defer nb.mu.Unlock()
	return nb.add(in)
}

// Ready reports whether the model has seen at least one instance of each label.
func (nb *NaiveBayes) Ready() bool {
	nb.mu.RLock()
	defer nb.mu.RUnlock()
	for _, l := range labels {
		if nb.classCounts[l] == 0 {
			return false
		}
	}
	return true
}

// Predict returns P(label | features). An untrained model returns Uniform().
func (nb *NaiveBayes) Predict(ctx context.Context, in types.TrainingInstance) (Distribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.MarkClassifier(errors.Wrap(err, "predict"))
	}
	nb.mu.RLock()
	defer nb.mu.RUnlock()

	total := 0
	for _, l := range labels {
		total += nb.classCounts[l]
	}
	if total == 0 {
		return Uniform(), nil
	}

	features := nb.features(in)
	logs := make(map[types.Label]float64, len(labels))
	maxLog := math.Inf(-1)
	for _, l := range labels {
		n := nb.classCounts[l]
		lp := math.Log(float64(n+1) / float64(total+len(labels)))
		for feature, value := range features {
			cardinality := len(nb.domain[feature]) + 1
			count := nb.counts[l][feature][value]
			lp += math.Log(float64(count+1) / float64(n+cardinality))
		}
		logs[l] = lp
		if lp > maxLog {
			maxLog = lp
		}
	}

	d := make(Distribution, len(labels))
	sum := 0.0
	for _, l := range labels {
		p := math.Exp(logs[l] - maxLog)
		d[l] = p
		sum += p
	}
	for l := range d {
		d[l] /= sum
	}
	return d, nil
}

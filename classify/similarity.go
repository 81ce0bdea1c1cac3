package classify

import (
	"math"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/teranos/mend/types"
)

// Similarity scores how close a proposed value is to the original, in [0, 1].
// Equal values score 1. Numbers score 1/(1+|a-b|); anything else scores
// 1 - levenshtein/maxlen over the text forms.
func Similarity(original, proposed types.Value) float64 {
	if original.Equal(proposed) {
		return 1
	}
	if original.IsNull() || proposed.IsNull() {
		return 0
	}
	if original.IsNumeric() && proposed.IsNumeric() {
		a, _ := original.AsFloat()
		b, _ := proposed.AsFloat()
		return 1 / (1 + math.Abs(a-b))
	}

	s, t := original.String(), proposed.String()
	longest := utf8.RuneCountInString(s)
	if n := utf8.RuneCountInString(t); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	d := fuzzy.LevenshteinDistance(s, t)
	return 1 - float64(d)/float64(longest)
}

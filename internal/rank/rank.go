// Package rank orders class probabilities and formats confidence scores.
package rank

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrLengthMismatch = errors.New("probability vector and class names differ in length")
	ErrInvalidN       = errors.New("top-n must be at least 1")
	ErrInvalidPercent = errors.New("invalid percentage")
)

type Score struct {
	Class string  `json:"class"`
	Score float64 `json:"score"`
	Index int     `json:"index"`
}

// TopN returns the n highest scoring classes in descending order. Equal
// scores keep their model output order. When n exceeds the number of
// classes every class is returned.
func TopN(probs []float32, names []string, n int) ([]Score, error) {
	if len(probs) != len(names) {
		return nil, fmt.Errorf("%w: %d scores, %d names", ErrLengthMismatch, len(probs), len(names))
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidN, n)
	}

	scores := make([]Score, len(probs))
	for i, p := range probs {
		scores[i] = Score{Class: names[i], Score: float64(p), Index: i}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	if n > len(scores) {
		n = len(scores)
	}
	return scores[:n], nil
}

// Complement is the score of the other class in a binary model.
func Complement(top Score) float64 {
	return 1 - top.Score
}

// Percentages sums scores per class name and scales them to 0-100.
func Percentages(scores []Score) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for _, s := range scores {
		out[s.Class] += s.Score * 100
	}
	return out
}

func FormatPercent(score float64) string {
	return strconv.FormatFloat(score*100, 'f', 1, 64) + "%"
}

// ParsePercent reverses FormatPercent, returning a score in [0,1].
func ParsePercent(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasSuffix(trimmed, "%") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPercent, s)
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(trimmed, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPercent, s)
	}
	return v / 100, nil
}

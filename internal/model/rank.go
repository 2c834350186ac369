package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Rank pairs every score with its label and orders the result by confidence,
// highest first. Equal scores keep their index order and NaN sorts last. A
// score without a label is named "Class N" after its 1-based position.
func Rank(scores []float32, labels []string) []Prediction {
	results := make([]Prediction, len(scores))
	for i, score := range scores {
		label := fmt.Sprintf("Class %d", i+1)
		if i < len(labels) {
			label = labels[i]
		}
		results[i] = Prediction{Class: label, Confidence: score}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return ranksAbove(results[a].Confidence, results[b].Confidence)
	})

	return results
}

func ranksAbove(x, y float32) bool {
	xNaN, yNaN := math.IsNaN(float64(x)), math.IsNaN(float64(y))
	if xNaN || yNaN {
		return !xNaN
	}
	return x > y
}

// Softmax turns raw logits into probabilities that sum to one.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}

	v := make([]float64, len(logits))
	for i, l := range logits {
		v[i] = float64(l)
	}

	floats.AddConst(-floats.Max(v), v)
	for i := range v {
		v[i] = math.Exp(v[i])
	}
	floats.Scale(1/floats.Sum(v), v)

	out := make([]float32, len(v))
	for i, p := range v {
		out[i] = float32(p)
	}
	return out
}

package model

import (
	"strconv"
	"strings"
)

// MapResult labels vec. The first index holding the maximum wins ties.
func MapResult(vec ProbabilityVector, labels []Label) (*Result, error) {
	if len(vec) == 0 || len(labels) == 0 {
		return nil, Errorf(ErrEmptyVector, "%d values, %d labels", len(vec), len(labels))
	}
	if len(vec) != len(labels) {
		return nil, Errorf(ErrLengthMismatch, "%d values, %d labels", len(vec), len(labels))
	}

	maxIdx := 0
	percentages := make(map[Label]string, len(labels))
	for i, v := range vec {
		percentages[labels[i]] = FormatPercentage(v)
		if v > vec[maxIdx] {
			maxIdx = i
		}
	}

	top := labels[maxIdx]
	return &Result{
		PredictedClass: top,
		Percentages:    percentages,
		TopLabel:       top,
		TopPercentage:  percentages[top],
	}, nil
}

// FormatPercentage renders p*100 unrounded in shortest round-trip form,
// e.g. 0.9 -> "90.0%".
func FormatPercentage(p float64) string {
	return formatFloat(p*100) + "%"
}

func formatFloat(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

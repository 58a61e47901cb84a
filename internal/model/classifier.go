package model

import (
	"fmt"
	"math"
)

// Infer runs h on a batched tensor and returns one probability per label.
func Infer(h *Handle, t *Tensor) (ProbabilityVector, error) {
	if t == nil {
		return nil, Errorf(ErrShapeMismatch, "nil tensor")
	}
	if !shapeEqual(t.Shape, h.input) {
		return nil, Errorf(ErrShapeMismatch, "got %v, want %v", t.Shape, h.input)
	}
	if int64(len(t.Data)) != shapeSize(t.Shape) {
		return nil, Errorf(ErrShapeMismatch, "%d values for shape %v", len(t.Data), t.Shape)
	}

	out, err := h.runner.Run(t)
	if err != nil {
		return nil, &Error{Kind: ErrInference, Err: err}
	}
	if len(out) != len(h.labels) {
		return nil, Errorf(ErrInference, "model returned %d values for %d labels", len(out), len(h.labels))
	}

	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &Error{Kind: ErrInference, Err: fmt.Errorf("non-finite output %v for %s", v, h.labels[i])}
		}
	}
	return ProbabilityVector(out), nil
}

package model

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind error

var (
	ErrDecode          Kind = errors.New("image decode failed")
	ErrArtifactMissing Kind = errors.New("model artifact missing")
	ErrArtifactInvalid Kind = errors.New("model artifact invalid")
	ErrShapeMismatch   Kind = errors.New("tensor shape mismatch")
	ErrInference       Kind = errors.New("inference failed")
	ErrEmptyVector     Kind = errors.New("empty probability vector")
	ErrLengthMismatch  Kind = errors.New("probability vector length mismatch")
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageFetching     Stage = "fetching"
	StageDecoding     Stage = "decoding"
	StageLoadingModel Stage = "loading_model"
	StageInferring    Stage = "inferring"
	StageMapping      Stage = "mapping"
)

// Error carries the failure kind together with the original cause.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	var msg string
	if e.Stage != "" {
		msg = string(e.Stage) + ": "
	}
	msg += e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Errorf builds an *Error of the given kind, formatting the cause like fmt.Errorf.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithStage tags err with stage. An *Error that already has a stage is
// returned as is; any other error is reported as kind.
func WithStage(err error, stage Stage, kind Kind) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Stage != "" {
			return e
		}
		tagged := *e
		tagged.Stage = stage
		return &tagged
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// KindOf returns the kind of err, or nil if err is not a pipeline error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

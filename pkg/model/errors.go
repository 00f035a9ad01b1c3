package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure causes a run can end with
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindTransport  ErrorKind = "transport"
	ErrorKindParse      ErrorKind = "parse"
	ErrorKindModel      ErrorKind = "model"
	ErrorKindInternal   ErrorKind = "internal"
)

// RunError tags an error with the pipeline stage that produced it and its kind
type RunError struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *RunError) Error() string {
	if e.Stage == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError wraps err; nil err stays nil
func NewRunError(kind ErrorKind, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &RunError{Kind: kind, Stage: stage, Err: err}
}

func ValidationError(stage string, err error) error {
	return NewRunError(ErrorKindValidation, stage, err)
}

func TransportError(stage string, err error) error {
	return NewRunError(ErrorKindTransport, stage, err)
}

func ParseError(stage string, err error) error {
	return NewRunError(ErrorKindParse, stage, err)
}

func ModelError(stage string, err error) error {
	return NewRunError(ErrorKindModel, stage, err)
}

// KindOf returns the kind of the outermost RunError in err's chain, or
// ErrorKindInternal when there is none.
func KindOf(err error) ErrorKind {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Kind
	}
	return ErrorKindInternal
}

// StageOf returns the stage of the outermost RunError in err's chain
func StageOf(err error) string {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Stage
	}
	return ""
}

// Package ai adapts text-generation backends to one small Generator contract.
package ai

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("empty response from AI")

// Generator turns a system instruction plus user content into free text.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
	Name() string
}

// Middleware decorates a Generator.
type Middleware func(Generator) Generator

// Chain applies middlewares so the first one is outermost.
func Chain(g Generator, mws ...Middleware) Generator {
	for i := len(mws) - 1; i >= 0; i-- {
		g = mws[i](g)
	}
	return g
}

// PermanentError marks a failure that retrying cannot fix (bad key, bad request).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

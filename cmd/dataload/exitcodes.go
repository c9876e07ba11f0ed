package main

import (
	"errors"

	"github.com/David-Botos/entity-dataload/pkg/config"
	"github.com/David-Botos/entity-dataload/pkg/reader"
	"github.com/David-Botos/entity-dataload/pkg/transform"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// exitCode maps err to the process exit status. Errors not tagged with a
// code fall back to their type: bad input is a validation error, anything
// else failed while the pipeline was running.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}

	var encErr *reader.EncodingError
	switch {
	case errors.As(err, &encErr),
		errors.Is(err, reader.ErrInvalidBatchSize),
		errors.Is(err, reader.ErrInvalidStartAt),
		errors.Is(err, config.ErrMissingCredentials),
		errors.Is(err, transform.ErrUnknownKind):
		return exitValidation
	}
	return exitFailure
}

package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrOperationNotAllowed = errors.New("operation not allowed")
	ErrEmptyResult         = errors.New("empty result")
	ErrProviderFailure     = errors.New("provider failure")
	ErrProviderTimeout     = errors.New("provider timeout")
)

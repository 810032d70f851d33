// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate indicates an insert hit a uniqueness constraint. Callers
// treat this as control flow (fetch the winning row), not as a failure.
var ErrDuplicate = errors.New("duplicate")

// ErrValidation indicates request input failed validation.
var ErrValidation = errors.New("validation failed")

package domain

import "errors"

var (
	// ErrValidation marks locally-detected invalid input; it never reaches the network layer.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a lookup miss in a local store.
	ErrNotFound = errors.New("not found")
)

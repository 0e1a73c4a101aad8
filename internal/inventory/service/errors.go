package service

import "errors"

// ErrUnauthorized is returned when the acting user lacks the privilege an
// operation requires.
var ErrUnauthorized = errors.New("unauthorized")

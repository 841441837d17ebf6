package model

import "errors"

// ErrNotFound is returned when a mission, unit or station id is unknown.
var ErrNotFound = errors.New("not found")

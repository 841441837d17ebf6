package dispatch

import "errors"

// ErrInsufficientUnits is returned when the matcher could not add a single
// unit toward an outstanding requirement. Partial selections do not produce
// this error; the caller decides whether to accept the shortfall.
var ErrInsufficientUnits = errors.New("insufficient units")

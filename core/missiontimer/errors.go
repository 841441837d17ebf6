package missiontimer

import "errors"

// ErrNotRunning is returned when a timer adjustment is requested for a
// mission with no active timer.
var ErrNotRunning = errors.New("timer not running")

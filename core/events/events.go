// Package events defines the mission lifecycle events emitted on the event
// bus.
//
// Available event types:
//   - DispatchEvent: units selected for a mission
//   - AckEvent: unit acknowledgment result
//   - TimerEvent: timer started, adjusted or cleared
//   - ResolutionEvent: mission resolved
//   - ReservationEvent: facility slot reserved
package events

import (
	"time"

	"github.com/dispatchsim/engine/core/model"
)

// DispatchEvent is published when the matcher assigns units to a mission.
type DispatchEvent struct {
	MissionID string
	UnitIDs   []string
	Unmet     []string
}

// AckEvent is published for each unit acknowledgment or error.
type AckEvent struct {
	MissionID    string
	UnitID       string
	Acknowledged bool
	Err          error
	Latency      time.Duration
}

// TimerAction describes what happened to a mission timer.
type TimerAction string

const (
	TimerStarted  TimerAction = "started"
	TimerAdjusted TimerAction = "adjusted"
	TimerCleared  TimerAction = "cleared"
)

// TimerEvent is published on timer state changes.
type TimerEvent struct {
	MissionID string
	Action    TimerAction
	Deadline  time.Time
}

// ResolutionEvent is published when a mission reaches its terminal state.
type ResolutionEvent struct {
	MissionID          string
	FreedUnits         int
	Reward             int64
	TransportReward    int64
	PatientTransports  int
	PrisonerTransports int
}

// ReservationEvent is published when the allocator reserves a facility slot.
type ReservationEvent struct {
	StationID string
	Kind      model.TransportKind
	Stacked   bool
	ExpiresAt time.Time
}

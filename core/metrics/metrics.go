package metrics

import (
	"time"

	"github.com/dispatchsim/engine/core/model"
)

// DispatchRecord represents a per-unit dispatch event to be recorded.
type DispatchRecord struct {
	MissionID    string
	UnitID       string
	Class        model.Class
	Acknowledged bool
	Latency      time.Duration
	Time         time.Time
}

// Sink records dispatch results for observability purposes.
type Sink interface {
	RecordDispatch(recs []DispatchRecord) error
}

// ResolutionRecord is the outcome of a mission resolution.
type ResolutionRecord struct {
	MissionID          string
	Reward             int64
	TransportReward    int64
	Balance            int64
	FreedUnits         int
	PatientTransports  int
	PrisonerTransports int
	Time               time.Time
}

// ResolutionRecorder is implemented by sinks able to record resolutions.
type ResolutionRecorder interface {
	RecordResolution(rec ResolutionRecord) error
}

// ReservationRecord captures a facility occupancy reservation.
type ReservationRecord struct {
	StationID string
	Kind      model.TransportKind
	Stacked   bool
	ExpiresAt time.Time
	Time      time.Time
}

// ReservationRecorder is implemented by sinks able to record reservations.
type ReservationRecorder interface {
	RecordReservation(rec ReservationRecord) error
}

// ActiveTimersRecorder records the number of currently running mission
// timers.
type ActiveTimersRecorder interface {
	RecordActiveTimers(n int) error
}

// NopSink implements Sink and all recorder extensions with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatch([]DispatchRecord) error     { return nil }
func (NopSink) RecordResolution(ResolutionRecord) error   { return nil }
func (NopSink) RecordReservation(ReservationRecord) error { return nil }
func (NopSink) RecordActiveTimers(int) error              { return nil }

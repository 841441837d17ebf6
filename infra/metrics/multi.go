package metrics

import coremetrics "github.com/dispatchsim/engine/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatch forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordDispatch(recs []coremetrics.DispatchRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatch(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordResolution forwards resolution records when supported by the sink.
func (m *MultiSink) RecordResolution(rec coremetrics.ResolutionRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.ResolutionRecorder); ok {
			if err := r.RecordResolution(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordReservation forwards reservation records when supported by the sink.
func (m *MultiSink) RecordReservation(rec coremetrics.ReservationRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.ReservationRecorder); ok {
			if err := r.RecordReservation(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordActiveTimers forwards the gauge value when supported by the sink.
func (m *MultiSink) RecordActiveTimers(n int) error {
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.ActiveTimersRecorder); ok {
			if err := r.RecordActiveTimers(n); err != nil {
				return err
			}
		}
	}
	return nil
}

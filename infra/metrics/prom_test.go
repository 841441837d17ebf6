package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/dispatchsim/engine/core/metrics"
	"github.com/dispatchsim/engine/core/model"
)

func TestPromSinkRecordDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	recs := []coremetrics.DispatchRecord{
		{MissionID: "m1", UnitID: "u1", Class: model.ClassFire, Acknowledged: true, Latency: 120 * time.Millisecond},
		{MissionID: "m1", UnitID: "u2", Class: model.ClassFire, Acknowledged: false, Latency: 5 * time.Second},
	}
	if err := sink.RecordDispatch(recs); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(sink.orders.WithLabelValues("fire", "true")); got != 1 {
		t.Fatalf("acknowledged orders = %v", got)
	}
	if got := testutil.ToFloat64(sink.orders.WithLabelValues("fire", "false")); got != 1 {
		t.Fatalf("unacknowledged orders = %v", got)
	}
}

func TestPromSinkRecordResolution(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	rec := coremetrics.ResolutionRecord{MissionID: "m1", PatientTransports: 2, PrisonerTransports: 1}
	if err := sink.RecordResolution(rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(sink.resolutions); got != 1 {
		t.Fatalf("resolutions = %v", got)
	}
	if got := testutil.ToFloat64(sink.transports.WithLabelValues("patient")); got != 2 {
		t.Fatalf("patient transports = %v", got)
	}
	if got := testutil.ToFloat64(sink.transports.WithLabelValues("prisoner")); got != 1 {
		t.Fatalf("prisoner transports = %v", got)
	}
}

func TestPromSinkRecordReservationAndTimers(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	rec := coremetrics.ReservationRecord{StationID: "h1", Kind: model.KindPatient, Stacked: true}
	if err := sink.RecordReservation(rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(sink.reservations.WithLabelValues("patient", "true")); got != 1 {
		t.Fatalf("reservations = %v", got)
	}
	if err := sink.RecordActiveTimers(7); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(sink.activeTimers); got != 7 {
		t.Fatalf("active timers = %v", got)
	}
}

func TestMultiSinkForwardsOptionalRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	multi := NewMultiSink(coremetrics.NopSink{}, prom)

	if err := multi.RecordResolution(coremetrics.ResolutionRecord{MissionID: "m1"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(prom.resolutions); got != 1 {
		t.Fatalf("resolutions = %v", got)
	}
	if err := multi.RecordActiveTimers(3); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(prom.activeTimers); got != 3 {
		t.Fatalf("active timers = %v", got)
	}
}

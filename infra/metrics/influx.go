package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/dispatchsim/engine/core/metrics"
	"github.com/dispatchsim/engine/infra/logger"
)

// InfluxSink writes dispatch events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB
// endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and returns
// a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDispatch writes each dispatch order as a point.
func (s *InfluxSink) RecordDispatch(recs []coremetrics.DispatchRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range recs {
		p := write.NewPointWithMeasurement("dispatch_order").
			AddTag("mission_id", r.MissionID).
			AddTag("unit_id", r.UnitID).
			AddTag("class", string(r.Class)).
			AddTag("acknowledged", strconv.FormatBool(r.Acknowledged)).
			AddField("latency_ms", r.Latency.Seconds()*1000).
			SetTime(r.Time)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// RecordResolution writes the mission resolution outcome.
func (s *InfluxSink) RecordResolution(rec coremetrics.ResolutionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("mission_resolved").
		AddTag("mission_id", rec.MissionID).
		AddField("reward", rec.Reward).
		AddField("transport_reward", rec.TransportReward).
		AddField("balance", rec.Balance).
		AddField("freed_units", rec.FreedUnits).
		AddField("patient_transports", rec.PatientTransports).
		AddField("prisoner_transports", rec.PrisonerTransports).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordReservation writes a facility reservation event.
func (s *InfluxSink) RecordReservation(rec coremetrics.ReservationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("facility_reservation").
		AddTag("station_id", rec.StationID).
		AddTag("kind", string(rec.Kind)).
		AddTag("stacked", strconv.FormatBool(rec.Stacked)).
		AddField("expires_at", rec.ExpiresAt.Unix()).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close shuts down the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

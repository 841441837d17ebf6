// Package occupancy picks destination facilities for time-bounded transports
// and reserves occupancy slots against them.
package occupancy

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchsim/engine/core/events"
	"github.com/dispatchsim/engine/core/logger"
	"github.com/dispatchsim/engine/core/metrics"
	"github.com/dispatchsim/engine/core/model"
	"github.com/dispatchsim/engine/core/qualify"
	"github.com/dispatchsim/engine/core/store"
	"github.com/dispatchsim/engine/internal/eventbus"
)

// DefaultHold is how long a reservation occupies its slot.
const DefaultHold = 10 * time.Minute

// Ledger is the shared, append-only reservation store. Implementations must
// make TryReserve's load check and insert one atomic step per facility.
type Ledger interface {
	// TryReserve inserts the reservation when the facility's count of
	// reservations still active at now is below capacity.
	TryReserve(r model.Reservation, capacity int, now time.Time) (bool, error)
	// EarliestExpiry returns the soonest future expiry for the facility
	// and kind.
	EarliestExpiry(stationID string, kind model.TransportKind, now time.Time) (time.Time, bool, error)
	// Reserve inserts unconditionally, stacking beyond capacity.
	Reserve(r model.Reservation) error
}

// Allocator assigns transports to facilities by walking them in distance
// order and trading waiting time against further travel. It never blocks:
// callers always get an immediate facility decision.
type Allocator struct {
	stations store.StationStore
	ledger   Ledger
	catalog  *qualify.Catalog
	hold     time.Duration
	bus      eventbus.EventBus
	metrics  metrics.Sink
	log      logger.Logger
	now      func() time.Time
}

// NewAllocator creates an allocator. A zero hold duration defaults to ten
// minutes.
func NewAllocator(stations store.StationStore, ledger Ledger, catalog *qualify.Catalog, hold time.Duration, sink metrics.Sink, bus eventbus.EventBus, log logger.Logger) *Allocator {
	if hold <= 0 {
		hold = DefaultHold
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Allocator{
		stations: stations,
		ledger:   ledger,
		catalog:  catalog,
		hold:     hold,
		bus:      bus,
		metrics:  sink,
		log:      log,
		now:      time.Now,
	}
}

type rankedFacility struct {
	station   model.Station
	distanceM float64
}

// Allocate picks a destination facility for the transport and reserves a
// slot. It returns nil when no facility of that kind exists.
func (a *Allocator) Allocate(kind model.TransportKind, lat, lon float64, unitClass model.Class) (*model.Station, error) {
	ranked, err := a.rankedFacilities(kind, lat, lon)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	speedMS := a.catalog.SpeedFor(unitClass) * 1000 / 3600

	for i, f := range ranked {
		now := a.now()
		ok, err := a.ledger.TryReserve(a.reservation(f.station, kind, now.Add(a.hold)), f.station.CapacityFor(kind), now)
		if err != nil {
			return nil, fmt.Errorf("reserve at %s: %w", f.station.ID, err)
		}
		if ok {
			a.record(f.station, kind, now.Add(a.hold), false)
			return &f.station, nil
		}

		// Full. Waiting out the earliest reservation may still beat driving
		// to the next facility in the sorted list.
		free, has, err := a.ledger.EarliestExpiry(f.station.ID, kind, now)
		if err != nil {
			return nil, fmt.Errorf("expiry at %s: %w", f.station.ID, err)
		}
		if !has {
			free = now
		}
		if i+1 < len(ranked) {
			travel := time.Duration(ranked[i+1].distanceM / speedMS * float64(time.Second))
			if free.Sub(now) <= travel {
				expires := free.Add(a.hold)
				if err := a.ledger.Reserve(a.reservation(f.station, kind, expires)); err != nil {
					return nil, fmt.Errorf("reserve at %s: %w", f.station.ID, err)
				}
				a.record(f.station, kind, expires, true)
				return &f.station, nil
			}
			continue
		}

		// Every facility is exhausted: stack onto the nearest one.
		nearest := ranked[0]
		free, has, err = a.ledger.EarliestExpiry(nearest.station.ID, kind, now)
		if err != nil {
			return nil, fmt.Errorf("expiry at %s: %w", nearest.station.ID, err)
		}
		if !has {
			free = now
		}
		expires := free.Add(a.hold)
		if err := a.ledger.Reserve(a.reservation(nearest.station, kind, expires)); err != nil {
			return nil, fmt.Errorf("reserve at %s: %w", nearest.station.ID, err)
		}
		a.record(nearest.station, kind, expires, true)
		return &nearest.station, nil
	}
	return nil, nil
}

func (a *Allocator) rankedFacilities(kind model.TransportKind, lat, lon float64) ([]rankedFacility, error) {
	facilities, err := a.stations.Facilities(kind)
	if err != nil {
		return nil, fmt.Errorf("load facilities: %w", err)
	}
	ranked := make([]rankedFacility, 0, len(facilities))
	for _, f := range facilities {
		if f.CapacityFor(kind) <= 0 {
			continue
		}
		ranked = append(ranked, rankedFacility{
			station:   f,
			distanceM: model.Haversine(f.Lat, f.Lon, lat, lon),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].distanceM < ranked[j].distanceM })
	return ranked, nil
}

func (a *Allocator) reservation(s model.Station, kind model.TransportKind, expires time.Time) model.Reservation {
	return model.Reservation{
		ID:        uuid.NewString(),
		StationID: s.ID,
		Kind:      kind,
		ExpiresAt: expires,
	}
}

func (a *Allocator) record(s model.Station, kind model.TransportKind, expires time.Time, stacked bool) {
	if a.bus != nil {
		a.bus.Publish(events.ReservationEvent{StationID: s.ID, Kind: kind, Stacked: stacked, ExpiresAt: expires})
	}
	if rec, ok := a.metrics.(metrics.ReservationRecorder); ok {
		if err := rec.RecordReservation(metrics.ReservationRecord{
			StationID: s.ID,
			Kind:      kind,
			Stacked:   stacked,
			ExpiresAt: expires,
			Time:      a.now(),
		}); err != nil {
			a.log.Errorf("metrics error: %v", err)
		}
	}
}

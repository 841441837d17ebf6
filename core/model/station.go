package model

import "time"

// TransportKind distinguishes the two transport manifests a mission can carry.
type TransportKind string

const (
	KindPatient  TransportKind = "patient"
	KindPrisoner TransportKind = "prisoner"
)

// Station owns units and, for hospitals and police stations, provides
// facility capacity for transported patients or prisoners.
type Station struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Class        Class   `json:"class"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	BedCapacity  int     `json:"bed_capacity"`
	HoldingCells int     `json:"holding_cells"`
}

// CapacityFor returns the facility capacity for the given transport kind.
// A station that is not a facility of that kind has capacity zero.
func (s Station) CapacityFor(kind TransportKind) int {
	switch kind {
	case KindPatient:
		return s.BedCapacity
	case KindPrisoner:
		return s.HoldingCells
	}
	return 0
}

// Reservation is a time-bounded claim against a facility slot. Occupancy is
// the count of reservations whose expiry is still in the future.
type Reservation struct {
	ID        string        `json:"id"`
	StationID string        `json:"station_id"`
	Kind      TransportKind `json:"kind"`
	UnitID    string        `json:"unit_id"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Active reports whether the reservation still occupies its slot at t.
func (r Reservation) Active(t time.Time) bool {
	return r.ExpiresAt.After(t)
}

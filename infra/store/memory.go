// Package store provides the persistence implementations: an in-memory
// store for tests and single-process runs, and a gorm backed store for
// durable deployments.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/dispatchsim/engine/core/model"
)

// Memory holds all engine state in process. It implements the unit,
// station, mission, wallet and reservation ledger interfaces.
type Memory struct {
	mu           sync.Mutex
	units        map[string]model.Unit
	stations     map[string]model.Station
	missions     map[string]model.Mission
	assignments  map[string][]string
	reservations []model.Reservation
	balance      int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		units:       make(map[string]model.Unit),
		stations:    make(map[string]model.Station),
		missions:    make(map[string]model.Mission),
		assignments: make(map[string][]string),
	}
}

// PutUnit inserts or replaces a unit.
func (m *Memory) PutUnit(u model.Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[u.ID] = u
}

// PutStation inserts or replaces a station.
func (m *Memory) PutStation(s model.Station) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stations[s.ID] = s
}

// PutMission inserts or replaces a mission.
func (m *Memory) PutMission(ms model.Mission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missions[ms.ID] = ms
}

func (m *Memory) Unit(id string) (model.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return model.Unit{}, model.ErrNotFound
	}
	return u, nil
}

func (m *Memory) Units() ([]model.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Unit, 0, len(m.units))
	for _, u := range m.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AvailableUnits() ([]model.Unit, error) {
	units, _ := m.Units()
	out := units[:0]
	for _, u := range units {
		if u.Status == model.StatusAvailable {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Memory) SetStatus(id string, st model.UnitStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return model.ErrNotFound
	}
	u.Status = st
	m.units[id] = u
	return nil
}

func (m *Memory) Station(id string) (model.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stations[id]
	if !ok {
		return model.Station{}, model.ErrNotFound
	}
	return s, nil
}

func (m *Memory) Stations() ([]model.Station, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Station, 0, len(m.stations))
	for _, s := range m.stations {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Facilities(kind model.TransportKind) ([]model.Station, error) {
	stations, _ := m.Stations()
	out := stations[:0]
	for _, s := range stations {
		if s.CapacityFor(kind) > 0 {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) Mission(id string) (model.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.missions[id]
	if !ok {
		return model.Mission{}, model.ErrNotFound
	}
	return ms, nil
}

func (m *Memory) ActiveMissions() ([]model.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Mission, 0)
	for _, ms := range m.missions {
		if ms.Status == model.MissionActive {
			out = append(out, ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetMissionStatus updates the mission lifecycle state.
func (m *Memory) SetMissionStatus(id string, st model.MissionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.missions[id]
	if !ok {
		return model.ErrNotFound
	}
	ms.Status = st
	m.missions[id] = ms
	return nil
}

func (m *Memory) SetResolveAt(id string, t *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.missions[id]
	if !ok {
		return model.ErrNotFound
	}
	ms.ResolveAt = t
	m.missions[id] = ms
	return nil
}

func (m *Memory) AssignedUnits(missionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.assignments[missionID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

func (m *Memory) Assign(missionID string, unitIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.assignments[missionID]
	for _, id := range unitIDs {
		dup := false
		for _, e := range existing {
			if e == id {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, id)
		}
	}
	m.assignments[missionID] = existing
	return nil
}

func (m *Memory) Unassign(missionID string, unitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.assignments[missionID]
	for i, id := range ids {
		if id == unitID {
			m.assignments[missionID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) ClearAssignments(missionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments, missionID)
	return nil
}

func (m *Memory) AdjustBalance(delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance += delta
	return m.balance, nil
}

func (m *Memory) GetBalance() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

// TryReserve inserts the reservation only while the facility's count of
// reservations active at now is below capacity. The check and insert run
// under one lock acquisition.
func (m *Memory) TryReserve(r model.Reservation, capacity int, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := 0
	for _, res := range m.reservations {
		if res.StationID == r.StationID && res.Kind == r.Kind && res.Active(now) {
			active++
		}
	}
	if active >= capacity {
		return false, nil
	}
	m.reservations = append(m.reservations, r)
	return true, nil
}

// EarliestExpiry returns the soonest future expiry among the facility's
// active reservations of the given kind.
func (m *Memory) EarliestExpiry(stationID string, kind model.TransportKind, now time.Time) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var earliest time.Time
	found := false
	for _, res := range m.reservations {
		if res.StationID != stationID || res.Kind != kind || !res.Active(now) {
			continue
		}
		if !found || res.ExpiresAt.Before(earliest) {
			earliest = res.ExpiresAt
			found = true
		}
	}
	return earliest, found, nil
}

// Reserve inserts the reservation unconditionally.
func (m *Memory) Reserve(r model.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations = append(m.reservations, r)
	return nil
}

// Reservations returns a snapshot of all reservations, expired included.
func (m *Memory) Reservations() []model.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Reservation, len(m.reservations))
	copy(out, m.reservations)
	return out
}

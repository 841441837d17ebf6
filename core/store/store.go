// Package store defines the persistence interfaces the engine consumes.
// Implementations live under infra/store.
package store

import (
	"time"

	"github.com/dispatchsim/engine/core/model"
)

// UnitStore provides read access to units and the status writes the engine
// performs when dispatching and releasing them.
type UnitStore interface {
	Unit(id string) (model.Unit, error)
	Units() ([]model.Unit, error)
	AvailableUnits() ([]model.Unit, error)
	SetStatus(id string, st model.UnitStatus) error
}

// StationStore provides read access to stations and facilities.
type StationStore interface {
	Station(id string) (model.Station, error)
	Stations() ([]model.Station, error)
	// Facilities lists stations with capacity for the given transport kind.
	Facilities(kind model.TransportKind) ([]model.Station, error)
}

// MissionStore owns mission rows, their persisted deadlines and the
// mission-unit assignment links.
type MissionStore interface {
	Mission(id string) (model.Mission, error)
	// ActiveMissions lists unresolved missions, used for timer rehydration.
	ActiveMissions() ([]model.Mission, error)
	SetMissionStatus(id string, st model.MissionStatus) error
	SetResolveAt(id string, t *time.Time) error
	AssignedUnits(missionID string) ([]string, error)
	Assign(missionID string, unitIDs []string) error
	Unassign(missionID string, unitID string) error
	ClearAssignments(missionID string) error
}

// Wallet is the credit/debit primitive rewards are paid into.
type Wallet interface {
	AdjustBalance(delta int64) (int64, error)
	GetBalance() (int64, error)
}

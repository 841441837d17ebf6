package model

import (
	"encoding/json"
	"time"

	"github.com/dispatchsim/engine/core/logger"
)

// MissionStatus is the mission lifecycle state. A mission is never reopened.
type MissionStatus string

const (
	MissionActive   MissionStatus = "active"
	MissionResolved MissionStatus = "resolved"
)

// Mission is a dispatchable incident with requirements, an optional running
// countdown and a terminal resolution.
type Mission struct {
	ID            string        `json:"id"`
	Type          string        `json:"type"`
	Lat           float64       `json:"lat"`
	Lon           float64       `json:"lon"`
	Status        MissionStatus `json:"status"`
	TimingMinutes float64       `json:"timing_minutes"`
	BaseReward    int64         `json:"base_reward"`

	RequiredUnits     []UnitRequirement  `json:"required_units"`
	RequiredTraining  []CountRequirement `json:"required_training"`
	RequiredEquipment []CountRequirement `json:"equipment_required"`
	Patients          []TransportEntry   `json:"patients"`
	Prisoners         []TransportEntry   `json:"prisoners"`
	Modifiers         []Modifier         `json:"modifiers"`
	Penalties         []Penalty          `json:"penalties"`

	// ResolveAt is the persisted countdown deadline, nil while no timer runs.
	ResolveAt *time.Time `json:"resolve_at,omitempty"`
}

// Manifest returns the transport entries for the given kind.
func (m Mission) Manifest(kind TransportKind) []TransportEntry {
	if kind == KindPrisoner {
		return m.Prisoners
	}
	return m.Patients
}

// RewardPenaltyPercent sums the reward reductions of all active penalties.
func (m Mission) RewardPenaltyPercent() float64 {
	var p float64
	for _, pen := range m.Penalties {
		p += pen.RewardPercent
	}
	return p
}

// TimePenaltyPercent sums the flat time penalties of all active penalties.
func (m Mission) TimePenaltyPercent() float64 {
	var p float64
	for _, pen := range m.Penalties {
		p += pen.TimePercent
	}
	return p
}

// UnitDiscount returns the penalty-applied reduction for a requirement
// matching any of the given tokens.
func (m Mission) UnitDiscount(tokens []string) int {
	d := 0
	for _, pen := range m.Penalties {
		for key, n := range pen.UnitDiscounts {
			nk := Normalize(key)
			for _, tok := range tokens {
				if Normalize(tok) == nk {
					d += n
					break
				}
			}
		}
	}
	return d
}

// ParseUnitRequirements decodes a stored requirement list. Malformed data
// degrades to an empty list with a logged warning instead of failing the
// read.
func ParseUnitRequirements(data []byte, log logger.Logger) []UnitRequirement {
	if len(data) == 0 {
		return nil
	}
	var reqs []UnitRequirement
	if err := json.Unmarshal(data, &reqs); err != nil {
		if log != nil {
			log.Warnf("malformed unit requirement list: %v", err)
		}
		return nil
	}
	return reqs
}

// ParseCountRequirements decodes a stored training or equipment requirement
// list with the same malformed-data fallback.
func ParseCountRequirements(data []byte, log logger.Logger) []CountRequirement {
	if len(data) == 0 {
		return nil
	}
	var reqs []CountRequirement
	if err := json.Unmarshal(data, &reqs); err != nil {
		if log != nil {
			log.Warnf("malformed requirement list: %v", err)
		}
		return nil
	}
	return reqs
}

// ParseTransportEntries decodes a stored transport manifest with the same
// malformed-data fallback.
func ParseTransportEntries(data []byte, log logger.Logger) []TransportEntry {
	if len(data) == 0 {
		return nil
	}
	var entries []TransportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		if log != nil {
			log.Warnf("malformed transport manifest: %v", err)
		}
		return nil
	}
	return entries
}

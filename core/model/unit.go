package model

import "strings"

// Class identifies the department a unit or station belongs to.
type Class string

const (
	ClassFire      Class = "fire"
	ClassPolice    Class = "police"
	ClassAmbulance Class = "ambulance"
	ClassSAR       Class = "sar"
)

// UnitStatus is the closed set of operational states a unit can be in.
type UnitStatus string

const (
	StatusAvailable    UnitStatus = "available"
	StatusResponding   UnitStatus = "responding"
	StatusOnScene      UnitStatus = "on_scene"
	StatusTransporting UnitStatus = "transporting"
	StatusOutOfService UnitStatus = "out_of_service"
)

// CrewMember is one person staffing a unit.
type CrewMember struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Trainings []string `json:"trainings"`
}

// Unit is a dispatchable responder vehicle. Its capability labels are derived
// from type, equipment and crew training, never stored.
type Unit struct {
	ID        string       `json:"id"`
	StationID string       `json:"station_id"`
	Class     Class        `json:"class"`
	Type      string       `json:"type"`
	Status    UnitStatus   `json:"status"`
	Priority  int          `json:"priority"` // 1-5, lower dispatches first among same-station ties
	Equipment []string     `json:"equipment"`
	Personnel []CrewMember `json:"personnel"`
}

// HasTraining reports whether any crew member carries the given training.
func (u Unit) HasTraining(name string) bool {
	return u.TrainingCount(name) > 0
}

// TrainingCount returns the number of crew members holding the training.
func (u Unit) TrainingCount(name string) int {
	want := Normalize(name)
	n := 0
	for _, p := range u.Personnel {
		for _, t := range p.Trainings {
			if Normalize(t) == want {
				n++
				break
			}
		}
	}
	return n
}

// EquipmentCount returns the number of carried items matching the name.
func (u Unit) EquipmentCount(name string) int {
	want := Normalize(name)
	n := 0
	for _, e := range u.Equipment {
		if Normalize(e) == want {
			n++
		}
	}
	return n
}

// Normalize canonicalizes equipment, training and label names for comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

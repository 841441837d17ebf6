package qualify

import (
	"github.com/dispatchsim/engine/core/model"
)

// UpgradeMode selects how an upgrade's equipment and training clauses combine.
const (
	ModeAny = "any"
	ModeAll = "all"
)

// UpgradeRule grants an additional capability label to units of a class when
// the unit carries qualifying equipment or crew training.
type UpgradeRule struct {
	Name         string   `json:"name"`
	QualifiesAs  string   `json:"qualifies_as"`
	Types        []string `json:"types"` // allow-list of unit types, empty means all
	EquipmentAny []string `json:"equipment_any"`
	TrainingAny  []string `json:"training_any"`
	Mode         string   `json:"mode"`
}

// Catalog holds the qualification rules for all classes plus the transport
// and speed tables the allocator depends on.
type Catalog struct {
	Aliases           map[string]string             `json:"aliases"`
	Upgrades          map[model.Class][]UpgradeRule `json:"upgrades"`
	DefaultEquipment  map[string][]string           `json:"default_equipment"` // keyed "class/type" or bare type
	PatientTransport  []string                      `json:"patient_transport"`
	PrisonerTransport []string                      `json:"prisoner_transport"`
	ClassSpeedsKmh    map[model.Class]float64       `json:"class_speeds_kmh"`

	aliases map[string]string // normalized, both directions
}

// DefaultSpeedKmh is used for classes without an entry in the speed table.
const DefaultSpeedKmh = 50.0

// Init normalizes the alias table in both directions. It must be called once
// after loading the catalog from configuration.
func (c *Catalog) Init() {
	c.aliases = make(map[string]string, 2*len(c.Aliases))
	for a, b := range c.Aliases {
		na, nb := model.Normalize(a), model.Normalize(b)
		c.aliases[na] = nb
		c.aliases[nb] = na
	}
}

// Alias returns the registered symmetric alias for a type label, if any.
// Catalogs that skipped Init have no aliases.
func (c *Catalog) Alias(label string) (string, bool) {
	a, ok := c.aliases[model.Normalize(label)]
	return a, ok
}

// DefaultEquipmentFor returns the default equipment entries for a unit's
// class and type.
func (c *Catalog) DefaultEquipmentFor(class model.Class, typ string) []string {
	var out []string
	out = append(out, c.DefaultEquipment[string(class)+"/"+model.Normalize(typ)]...)
	out = append(out, c.DefaultEquipment[model.Normalize(typ)]...)
	return out
}

// SpeedFor returns the assumed travel speed for a unit class in km/h.
func (c *Catalog) SpeedFor(class model.Class) float64 {
	if s, ok := c.ClassSpeedsKmh[class]; ok && s > 0 {
		return s
	}
	return DefaultSpeedKmh
}

// TransportLabels returns the capability labels that qualify a unit to
// transport the given kind.
func (c *Catalog) TransportLabels(kind model.TransportKind) []string {
	if kind == model.KindPrisoner {
		return c.PrisonerTransport
	}
	return c.PatientTransport
}

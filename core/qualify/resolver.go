package qualify

import (
	"github.com/dispatchsim/engine/core/model"
)

// LabelSet is the set of capability labels a unit currently satisfies.
// Labels are stored normalized; duplicates collapse to presence.
type LabelSet map[string]struct{}

// Has reports whether the set contains the label.
func (s LabelSet) Has(label string) bool {
	_, ok := s[model.Normalize(label)]
	return ok
}

func (s LabelSet) add(label string) {
	if n := model.Normalize(label); n != "" {
		s[n] = struct{}{}
	}
}

// MatchesToken reports whether a unit of the given class with this label set
// satisfies a requirement token. Canonical "class:type" tokens are
// class-scoped; legacy bare tokens match any class.
func (s LabelSet) MatchesToken(tok string, class model.Class) bool {
	tokClass, typ := model.SplitToken(tok)
	if tokClass != "" && tokClass != model.Class(model.Normalize(string(class))) {
		return false
	}
	return s.Has(typ)
}

// MatchesAny reports whether any of the tokens is satisfied.
func (s LabelSet) MatchesAny(tokens []string, class model.Class) bool {
	for _, tok := range tokens {
		if s.MatchesToken(tok, class) {
			return true
		}
	}
	return false
}

// Qualify projects a unit's current state onto the set of capability labels
// it satisfies: its own type, the registered alias for that type, and every
// upgrade label whose equipment or training condition holds. The projection
// has no side effects.
func Qualify(u model.Unit, c *Catalog) LabelSet {
	labels := make(LabelSet, 4)
	labels.add(u.Type)
	if alias, ok := c.Alias(u.Type); ok {
		labels.add(alias)
	}

	equipment := resolvedEquipment(u, c)
	training := crewTraining(u)

	for _, rule := range c.Upgrades[u.Class] {
		if !typeAllowed(rule, u.Type) {
			continue
		}
		if upgradeApplies(rule, equipment, training) {
			labels.add(rule.QualifiesAs)
		}
	}
	return labels
}

// CanTransport reports whether the labels qualify a unit to transport the
// given kind.
func CanTransport(labels LabelSet, kind model.TransportKind, c *Catalog) bool {
	for _, l := range c.TransportLabels(kind) {
		if labels.Has(l) {
			return true
		}
	}
	return false
}

// resolvedEquipment merges carried items with class/type default equipment
// entries not already listed. Quantity collapses to presence.
func resolvedEquipment(u model.Unit, c *Catalog) map[string]struct{} {
	set := make(map[string]struct{}, len(u.Equipment))
	for _, e := range u.Equipment {
		if n := model.Normalize(e); n != "" {
			set[n] = struct{}{}
		}
	}
	for _, e := range c.DefaultEquipmentFor(u.Class, u.Type) {
		if n := model.Normalize(e); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// crewTraining expands the crew's training labels into a presence set.
func crewTraining(u model.Unit) map[string]struct{} {
	set := make(map[string]struct{})
	for _, p := range u.Personnel {
		for _, t := range p.Trainings {
			if n := model.Normalize(t); n != "" {
				set[n] = struct{}{}
			}
		}
	}
	return set
}

func typeAllowed(rule UpgradeRule, typ string) bool {
	if len(rule.Types) == 0 {
		return true
	}
	n := model.Normalize(typ)
	for _, t := range rule.Types {
		if model.Normalize(t) == n {
			return true
		}
	}
	return false
}

// upgradeApplies evaluates the equipment and training clauses. In "all" mode
// each non-empty clause must match; an empty clause is trivially satisfied.
func upgradeApplies(rule UpgradeRule, equipment, training map[string]struct{}) bool {
	eq := intersects(rule.EquipmentAny, equipment)
	tr := intersects(rule.TrainingAny, training)
	if rule.Mode == ModeAll {
		if len(rule.EquipmentAny) > 0 && !eq {
			return false
		}
		if len(rule.TrainingAny) > 0 && !tr {
			return false
		}
		return true
	}
	return eq || tr
}

func intersects(names []string, set map[string]struct{}) bool {
	for _, n := range names {
		if _, ok := set[model.Normalize(n)]; ok {
			return true
		}
	}
	return false
}

package dispatch

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dispatchsim/engine/core/logger"
	"github.com/dispatchsim/engine/core/model"
	"github.com/dispatchsim/engine/core/qualify"
)

// Matcher greedily selects the minimal satisfying unit subset for a
// mission's requirements, preferring multi-requirement matches and closer
// units.
type Matcher struct {
	catalog  *qualify.Catalog
	stations map[string]model.Station
	log      logger.Logger
}

// NewMatcher builds a matcher over the given station index.
func NewMatcher(catalog *qualify.Catalog, stations []model.Station, log logger.Logger) *Matcher {
	idx := make(map[string]model.Station, len(stations))
	for _, s := range stations {
		idx[s.ID] = s
	}
	return &Matcher{catalog: catalog, stations: idx, log: log}
}

// Selection is the matcher outcome. Unmet lists requirements that remain
// outstanding; a non-empty selection with unmet entries is a usable partial
// dispatch.
type Selection struct {
	Units []model.Unit
	Unmet []string
}

type candidate struct {
	unit      model.Unit
	labels    qualify.LabelSet
	distanceM float64
}

type unitNeed struct {
	tokens    []string
	remaining int
}

type deficit struct {
	name      string
	remaining int
}

// matchState tracks the outstanding needs; selections decrement every
// deficit they resolve before the next pick.
type matchState struct {
	needs     []unitNeed
	training  []deficit
	equipment []deficit
}

// Match computes the outstanding needs given the already-assigned units and
// assembles a selection from the available pool. It returns
// ErrInsufficientUnits only when requirements are outstanding and no unit at
// all could be added.
func (m *Matcher) Match(mission model.Mission, available, assigned []model.Unit) (Selection, error) {
	st := m.newState(mission, assigned)
	pool := m.buildCandidates(mission, available, assigned)

	var sel Selection
	outstanding := st.outstanding()

	// Unit requirements first.
	for i := range st.needs {
		for st.needs[i].remaining > 0 {
			c, ok := best(pool, st, func(c candidate) bool {
				return c.labels.MatchesAny(st.needs[i].tokens, c.unit.Class)
			})
			if !ok {
				break
			}
			pool = st.apply(c, pool)
			sel.Units = append(sel.Units, c.unit)
		}
	}

	// Remaining training deficits, closest/lowest-priority first.
	for i := range st.training {
		name := st.training[i].name
		for st.training[i].remaining > 0 {
			c, ok := nearest(pool, func(c candidate) bool {
				return c.unit.HasTraining(name)
			})
			if !ok {
				break
			}
			pool = st.apply(c, pool)
			sel.Units = append(sel.Units, c.unit)
		}
	}

	// Same for equipment deficits.
	for i := range st.equipment {
		name := st.equipment[i].name
		for st.equipment[i].remaining > 0 {
			c, ok := nearest(pool, func(c candidate) bool {
				return c.unit.EquipmentCount(name) > 0
			})
			if !ok {
				break
			}
			pool = st.apply(c, pool)
			sel.Units = append(sel.Units, c.unit)
		}
	}

	sel.Unmet = st.unmet()
	if outstanding && len(sel.Units) == 0 {
		return sel, ErrInsufficientUnits
	}
	return sel, nil
}

// newState computes the outstanding need per requirement, decremented by
// penalty discounts and the coverage already-assigned units provide.
func (m *Matcher) newState(mission model.Mission, assigned []model.Unit) *matchState {
	st := &matchState{}
	for _, req := range mission.RequiredUnits {
		rem := req.Quantity - mission.UnitDiscount(req.Tokens)
		for _, u := range assigned {
			if rem <= 0 {
				break
			}
			if qualify.Qualify(u, m.catalog).MatchesAny(req.Tokens, u.Class) {
				rem--
			}
		}
		if rem < 0 {
			rem = 0
		}
		st.needs = append(st.needs, unitNeed{tokens: req.Tokens, remaining: rem})
	}
	for _, req := range mission.RequiredTraining {
		rem := req.Quantity
		for _, u := range assigned {
			rem -= u.TrainingCount(req.Name)
		}
		if rem < 0 {
			rem = 0
		}
		st.training = append(st.training, deficit{name: req.Name, remaining: rem})
	}
	for _, req := range mission.RequiredEquipment {
		rem := req.Quantity
		for _, u := range assigned {
			rem -= u.EquipmentCount(req.Name)
		}
		if rem < 0 {
			rem = 0
		}
		st.equipment = append(st.equipment, deficit{name: req.Name, remaining: rem})
	}
	return st
}

// buildCandidates resolves qualifications and station distance for every
// available unit not already assigned.
func (m *Matcher) buildCandidates(mission model.Mission, available, assigned []model.Unit) []candidate {
	taken := make(map[string]struct{}, len(assigned))
	for _, u := range assigned {
		taken[u.ID] = struct{}{}
	}
	var pool []candidate
	for _, u := range available {
		if _, ok := taken[u.ID]; ok {
			continue
		}
		dist := math.MaxFloat64
		if s, ok := m.stations[u.StationID]; ok {
			dist = model.Haversine(s.Lat, s.Lon, mission.Lat, mission.Lon)
		} else if m.log != nil {
			m.log.Warnf("unit %s references unknown station %s", u.ID, u.StationID)
		}
		pool = append(pool, candidate{
			unit:      u,
			labels:    qualify.Qualify(u, m.catalog),
			distanceM: dist,
		})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].distanceM != pool[j].distanceM {
			return pool[i].distanceM < pool[j].distanceM
		}
		return pool[i].unit.Priority < pool[j].unit.Priority
	})
	return pool
}

// best returns the eligible candidate preferring one that still resolves an
// unmet training or equipment deficit, then one providing any listed
// training or equipment, then nearest/lowest-priority alone. The pool is
// pre-sorted by distance and priority, so the first hit per tier wins.
func best(pool []candidate, st *matchState, eligible func(candidate) bool) (candidate, bool) {
	bestIdx, bestTier := -1, 3
	for i, c := range pool {
		if !eligible(c) {
			continue
		}
		t := st.tier(c)
		if t < bestTier {
			bestIdx, bestTier = i, t
			if t == 0 {
				break
			}
		}
	}
	if bestIdx < 0 {
		return candidate{}, false
	}
	return pool[bestIdx], true
}

// nearest returns the first eligible candidate in pool order.
func nearest(pool []candidate, eligible func(candidate) bool) (candidate, bool) {
	for _, c := range pool {
		if eligible(c) {
			return c, true
		}
	}
	return candidate{}, false
}

// tier ranks how useful a candidate is beyond its unit requirement: 0 if it
// resolves an unmet training/equipment deficit, 1 if it provides any listed
// training/equipment, 2 otherwise.
func (st *matchState) tier(c candidate) int {
	t := 2
	for _, d := range st.training {
		if c.unit.HasTraining(d.name) {
			if d.remaining > 0 {
				return 0
			}
			t = 1
		}
	}
	for _, d := range st.equipment {
		if c.unit.EquipmentCount(d.name) > 0 {
			if d.remaining > 0 {
				return 0
			}
			t = 1
		}
	}
	return t
}

// apply removes the candidate from the pool and decrements every deficit it
// resolves so later picks see updated outstanding needs.
func (st *matchState) apply(c candidate, pool []candidate) []candidate {
	for i := range st.needs {
		if st.needs[i].remaining > 0 && c.labels.MatchesAny(st.needs[i].tokens, c.unit.Class) {
			st.needs[i].remaining--
		}
	}
	for i := range st.training {
		st.training[i].remaining -= c.unit.TrainingCount(st.training[i].name)
		if st.training[i].remaining < 0 {
			st.training[i].remaining = 0
		}
	}
	for i := range st.equipment {
		st.equipment[i].remaining -= c.unit.EquipmentCount(st.equipment[i].name)
		if st.equipment[i].remaining < 0 {
			st.equipment[i].remaining = 0
		}
	}
	out := pool[:0]
	for _, p := range pool {
		if p.unit.ID != c.unit.ID {
			out = append(out, p)
		}
	}
	return out
}

func (st *matchState) outstanding() bool {
	for _, n := range st.needs {
		if n.remaining > 0 {
			return true
		}
	}
	for _, d := range st.training {
		if d.remaining > 0 {
			return true
		}
	}
	for _, d := range st.equipment {
		if d.remaining > 0 {
			return true
		}
	}
	return false
}

func (st *matchState) unmet() []string {
	var out []string
	for _, n := range st.needs {
		if n.remaining > 0 {
			out = append(out, fmt.Sprintf("%d× %s", n.remaining, strings.Join(n.tokens, "|")))
		}
	}
	for _, d := range st.training {
		if d.remaining > 0 {
			out = append(out, fmt.Sprintf("%d× training %s", d.remaining, d.name))
		}
	}
	for _, d := range st.equipment {
		if d.remaining > 0 {
			out = append(out, fmt.Sprintf("%d× equipment %s", d.remaining, d.name))
		}
	}
	return out
}

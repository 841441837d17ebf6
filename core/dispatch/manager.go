package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/dispatchsim/engine/core/events"
	"github.com/dispatchsim/engine/core/logger"
	"github.com/dispatchsim/engine/core/metrics"
	"github.com/dispatchsim/engine/core/model"
	"github.com/dispatchsim/engine/core/mqtt"
	"github.com/dispatchsim/engine/core/store"
	"github.com/dispatchsim/engine/internal/eventbus"
	"github.com/dispatchsim/engine/internal/keymutex"
)

// Manager runs the auto-dispatch process: match units against the mission,
// persist the assignments, alert the crews over MQTT and re-match once for
// units that failed to acknowledge.
type Manager struct {
	matcher    *Matcher
	missions   store.MissionStore
	units      store.UnitStore
	publisher  mqtt.Client
	ackTimeout time.Duration
	locks      *keymutex.KeyMutex
	bus        eventbus.EventBus
	metrics    metrics.Sink
	log        logger.Logger
}

// Result reports a dispatch run. SelectedUnitIDs contains every unit that
// remained assigned after the acknowledgment round.
type Result struct {
	MissionID       string
	SelectedUnitIDs []string
	Unmet           []string
	Acknowledged    map[string]bool
	Errors          map[string]error
}

// NewManager creates a new manager. If ackTimeout is zero, a default of five
// seconds is used.
func NewManager(matcher *Matcher, missions store.MissionStore, units store.UnitStore, publisher mqtt.Client, ackTimeout time.Duration, sink metrics.Sink, bus eventbus.EventBus, locks *keymutex.KeyMutex, log logger.Logger) (*Manager, error) {
	if matcher == nil || missions == nil || units == nil || publisher == nil || locks == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewManager")
	}
	if ackTimeout <= 0 {
		ackTimeout = 5 * time.Second
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Manager{
		matcher:    matcher,
		missions:   missions,
		units:      units,
		publisher:  publisher,
		ackTimeout: ackTimeout,
		locks:      locks,
		bus:        bus,
		metrics:    sink,
		log:        log,
	}, nil
}

// AutoDispatch selects and alerts units for the mission. It returns
// ErrInsufficientUnits when no unit could be added toward an outstanding
// requirement and model.ErrNotFound for unknown or resolved missions.
func (m *Manager) AutoDispatch(missionID string) (Result, error) {
	sel, err := m.selectAndAssign(missionID, nil)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		MissionID:    missionID,
		Unmet:        sel.Unmet,
		Acknowledged: make(map[string]bool),
		Errors:       make(map[string]error),
	}
	for _, u := range sel.Units {
		result.SelectedUnitIDs = append(result.SelectedUnitIDs, u.ID)
	}
	if m.bus != nil {
		m.bus.Publish(events.DispatchEvent{MissionID: missionID, UnitIDs: result.SelectedUnitIDs, Unmet: sel.Unmet})
	}

	recs := m.alertUnits(&result, sel.Units)

	failed := unacknowledged(&result)
	if len(failed) > 0 {
		m.log.Warnf("%d units failed to acknowledge, re-matching", len(failed))
		m.release(missionID, failed, &result)
		if retry, err := m.selectAndAssign(missionID, failed); err == nil && len(retry.Units) > 0 {
			for _, u := range retry.Units {
				result.SelectedUnitIDs = append(result.SelectedUnitIDs, u.ID)
			}
			result.Unmet = retry.Unmet
			recs = append(recs, m.alertUnits(&result, retry.Units)...)
		}
	}

	if err := m.metrics.RecordDispatch(recs); err != nil {
		m.log.Errorf("metrics error: %v", err)
	}
	return result, nil
}

// selectAndAssign runs the matcher and persists the assignments while
// holding the per-mission lock, so a concurrent Resolve cannot observe a
// half-applied selection.
func (m *Manager) selectAndAssign(missionID string, exclude []string) (Selection, error) {
	m.locks.Lock(missionID)
	defer m.locks.Unlock(missionID)

	mission, err := m.missions.Mission(missionID)
	if err != nil {
		return Selection{}, err
	}
	if mission.Status == model.MissionResolved {
		return Selection{}, model.ErrNotFound
	}

	assignedIDs, err := m.missions.AssignedUnits(missionID)
	if err != nil {
		return Selection{}, fmt.Errorf("load assignments: %w", err)
	}
	assigned := make([]model.Unit, 0, len(assignedIDs))
	for _, id := range assignedIDs {
		u, err := m.units.Unit(id)
		if err != nil {
			continue
		}
		assigned = append(assigned, u)
	}

	available, err := m.units.AvailableUnits()
	if err != nil {
		return Selection{}, fmt.Errorf("load units: %w", err)
	}
	available = without(available, exclude)

	sel, err := m.matcher.Match(mission, available, assigned)
	if err != nil {
		return Selection{}, err
	}

	ids := make([]string, 0, len(sel.Units))
	for _, u := range sel.Units {
		ids = append(ids, u.ID)
	}
	if len(ids) > 0 {
		if err := m.missions.Assign(missionID, ids); err != nil {
			return Selection{}, fmt.Errorf("assign units: %w", err)
		}
		for _, id := range ids {
			if err := m.units.SetStatus(id, model.StatusResponding); err != nil {
				return Selection{}, fmt.Errorf("mark unit %s responding: %w", id, err)
			}
		}
	}
	return sel, nil
}

// alertUnits publishes the orders concurrently and records acknowledgments.
func (m *Manager) alertUnits(res *Result, units []model.Unit) []metrics.DispatchRecord {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		recs []metrics.DispatchRecord
	)
	update := func(u model.Unit, ack bool, err error, dur time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Errors[u.ID] = err
		}
		res.Acknowledged[u.ID] = err == nil && ack
		if m.bus != nil {
			m.bus.Publish(events.AckEvent{
				MissionID:    res.MissionID,
				UnitID:       u.ID,
				Acknowledged: ack && err == nil,
				Err:          err,
				Latency:      dur,
			})
		}
		recs = append(recs, metrics.DispatchRecord{
			MissionID:    res.MissionID,
			UnitID:       u.ID,
			Class:        u.Class,
			Acknowledged: err == nil && ack,
			Latency:      dur,
			Time:         time.Now(),
		})
	}
	for _, u := range units {
		wg.Add(1)
		go func(u model.Unit) {
			defer wg.Done()
			ack, dur, err := m.sendAndWait(u.ID, res.MissionID)
			update(u, ack, err, dur)
		}(u)
	}
	wg.Wait()
	return recs
}

// sendAndWait sends the order and waits for an acknowledgment while
// measuring the latency.
func (m *Manager) sendAndWait(unitID, missionID string) (bool, time.Duration, error) {
	start := time.Now()
	orderID, err := m.publisher.SendOrder(unitID, missionID)
	if err != nil {
		return false, time.Since(start), err
	}
	ack, err := m.publisher.WaitForAck(orderID, m.ackTimeout)
	return ack, time.Since(start), err
}

// release returns the failed units to the pool and drops their assignments.
func (m *Manager) release(missionID string, unitIDs []string, res *Result) {
	m.locks.Lock(missionID)
	defer m.locks.Unlock(missionID)
	failed := make(map[string]struct{}, len(unitIDs))
	for _, id := range unitIDs {
		failed[id] = struct{}{}
		if err := m.units.SetStatus(id, model.StatusAvailable); err != nil {
			m.log.Errorf("release unit %s: %v", id, err)
		}
		if err := m.missions.Unassign(missionID, id); err != nil {
			m.log.Errorf("unassign unit %s: %v", id, err)
		}
	}
	kept := res.SelectedUnitIDs[:0]
	for _, id := range res.SelectedUnitIDs {
		if _, ok := failed[id]; !ok {
			kept = append(kept, id)
		}
	}
	res.SelectedUnitIDs = kept
}

func unacknowledged(res *Result) []string {
	var failed []string
	for _, id := range res.SelectedUnitIDs {
		if !res.Acknowledged[id] {
			failed = append(failed, id)
		}
	}
	return failed
}

func without(units []model.Unit, exclude []string) []model.Unit {
	if len(exclude) == 0 {
		return units
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	out := units[:0]
	for _, u := range units {
		if _, ok := skip[u.ID]; !ok {
			out = append(out, u)
		}
	}
	return out
}

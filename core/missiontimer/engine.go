package missiontimer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dispatchsim/engine/core/events"
	"github.com/dispatchsim/engine/core/logger"
	"github.com/dispatchsim/engine/core/metrics"
	"github.com/dispatchsim/engine/core/model"
	"github.com/dispatchsim/engine/core/occupancy"
	"github.com/dispatchsim/engine/core/qualify"
	"github.com/dispatchsim/engine/core/store"
	"github.com/dispatchsim/engine/internal/eventbus"
	"github.com/dispatchsim/engine/internal/keymutex"
)

// Config defines timer and resolution settings.
type Config struct {
	TransportBonus int64 `json:"transport_bonus"`
	TickSeconds    int   `json:"tick_seconds"`
}

// Engine drives mission timers and performs resolution.
type Engine struct {
	missions store.MissionStore
	units    store.UnitStore
	wallet   store.Wallet
	alloc    *occupancy.Allocator
	catalog  *qualify.Catalog
	sched    *Scheduler
	locks    *keymutex.KeyMutex
	bus      eventbus.EventBus
	metrics  metrics.Sink
	log      logger.Logger
	bonus    int64
	tick     time.Duration
	clock    func() time.Time
	roll     func() int // transport likelihood roll in [0,100)
}

// Resolution reports the outcome of resolving a mission.
type Resolution struct {
	FreedUnits         int   `json:"freed_units"`
	Reward             int64 `json:"reward"`
	Balance            int64 `json:"balance"`
	PatientTransports  int   `json:"patient_transports"`
	PrisonerTransports int   `json:"prisoner_transports"`
	TransportReward    int64 `json:"transport_reward"`
}

// NewEngine creates an engine. A zero tick interval defaults to one second.
func NewEngine(missions store.MissionStore, units store.UnitStore, wallet store.Wallet, alloc *occupancy.Allocator, catalog *qualify.Catalog, sched *Scheduler, locks *keymutex.KeyMutex, cfg Config, sink metrics.Sink, bus eventbus.EventBus, log logger.Logger) (*Engine, error) {
	if missions == nil || units == nil || wallet == nil || alloc == nil || sched == nil || locks == nil {
		return nil, fmt.Errorf("missiontimer: nil parameter provided to NewEngine")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	tick := time.Duration(cfg.TickSeconds) * time.Second
	if tick <= 0 {
		tick = time.Second
	}
	return &Engine{
		missions: missions,
		units:    units,
		wallet:   wallet,
		alloc:    alloc,
		catalog:  catalog,
		sched:    sched,
		locks:    locks,
		bus:      bus,
		metrics:  sink,
		log:      log,
		bonus:    cfg.TransportBonus,
		tick:     tick,
		clock:    time.Now,
		roll:     func() int { return rand.IntN(100) },
	}, nil
}

// Start computes the mission deadline and registers the timer. A persisted
// deadline still in the future is resumed rather than restarted, so recovery
// after a process restart is idempotent.
func (e *Engine) Start(missionID string) (time.Time, error) {
	e.locks.Lock(missionID)
	defer e.locks.Unlock(missionID)

	mission, err := e.missions.Mission(missionID)
	if err != nil {
		return time.Time{}, err
	}
	if mission.Status == model.MissionResolved {
		return time.Time{}, model.ErrNotFound
	}

	now := e.clock()
	if mission.ResolveAt != nil && mission.ResolveAt.After(now) {
		e.sched.Set(missionID, *mission.ResolveAt)
		return *mission.ResolveAt, nil
	}

	deadline := now.Add(time.Duration(mission.TimingMinutes * float64(time.Minute)))
	if err := e.missions.SetResolveAt(missionID, &deadline); err != nil {
		return time.Time{}, fmt.Errorf("persist deadline: %w", err)
	}
	e.sched.Set(missionID, deadline)
	e.publishTimer(missionID, events.TimerStarted, deadline)
	return deadline, nil
}

// Adjust applies a reduction percentage to the remaining time. The reduction
// is clamped to [-100, 100] and the new remaining time never goes below
// zero.
func (e *Engine) Adjust(missionID string, reductionPercent float64) (time.Time, error) {
	reductionPercent = clampPercent(reductionPercent)

	e.locks.Lock(missionID)
	defer e.locks.Unlock(missionID)

	deadline, ok := e.sched.Deadline(missionID)
	if !ok {
		return time.Time{}, ErrNotRunning
	}

	now := e.clock()
	remaining := deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	newRemaining := time.Duration(float64(remaining) * (1 - reductionPercent/100))
	if newRemaining < 0 {
		newRemaining = 0
	}
	newDeadline := now.Add(newRemaining)
	if err := e.missions.SetResolveAt(missionID, &newDeadline); err != nil {
		return time.Time{}, fmt.Errorf("persist deadline: %w", err)
	}
	e.sched.Set(missionID, newDeadline)
	e.publishTimer(missionID, events.TimerAdjusted, newDeadline)
	return newDeadline, nil
}

// Clear drops the timer entry and the persisted deadline without resolving
// the mission, for reassignment or cancellation.
func (e *Engine) Clear(missionID string) error {
	e.locks.Lock(missionID)
	defer e.locks.Unlock(missionID)

	e.sched.Clear(missionID)
	if err := e.missions.SetResolveAt(missionID, nil); err != nil {
		return fmt.Errorf("clear deadline: %w", err)
	}
	e.publishTimer(missionID, events.TimerCleared, time.Time{})
	return nil
}

// Resolve marks the mission terminal, releases its units, pays the reward
// and allocates facilities for the transport manifest. A second call on a
// resolved mission returns model.ErrNotFound; persistence failures leave the
// mission unresolved so the whole resolution can be retried. The mission
// flips terminal before the wallet credit, so a retried resolution can never
// pay twice.
func (e *Engine) Resolve(missionID string) (Resolution, error) {
	e.locks.Lock(missionID)
	defer e.locks.Unlock(missionID)

	mission, err := e.missions.Mission(missionID)
	if err != nil {
		return Resolution{}, err
	}
	if mission.Status == model.MissionResolved {
		return Resolution{}, model.ErrNotFound
	}

	freed, err := e.releaseUnits(missionID)
	if err != nil {
		return Resolution{}, err
	}

	reward := mission.BaseReward
	if p := mission.RewardPenaltyPercent(); p != 0 {
		reward = int64(float64(mission.BaseReward) * (1 - p/100))
	}
	if reward < 0 {
		reward = 0
	}

	res := Resolution{FreedUnits: len(freed), Reward: reward}
	res.PatientTransports = e.transport(mission, model.KindPatient, freed)
	res.PrisonerTransports = e.transport(mission, model.KindPrisoner, freed)
	res.TransportReward = int64(res.PatientTransports+res.PrisonerTransports) * e.bonus

	if err := e.missions.SetMissionStatus(missionID, model.MissionResolved); err != nil {
		return Resolution{}, fmt.Errorf("mark resolved: %w", err)
	}
	if err := e.missions.SetResolveAt(missionID, nil); err != nil {
		return Resolution{}, fmt.Errorf("clear deadline: %w", err)
	}
	e.sched.Clear(missionID)

	balance, err := e.wallet.AdjustBalance(reward + res.TransportReward)
	if err != nil {
		return Resolution{}, fmt.Errorf("credit reward: %w", err)
	}
	res.Balance = balance

	if e.bus != nil {
		e.bus.Publish(events.ResolutionEvent{
			MissionID:          missionID,
			FreedUnits:         res.FreedUnits,
			Reward:             res.Reward,
			TransportReward:    res.TransportReward,
			PatientTransports:  res.PatientTransports,
			PrisonerTransports: res.PrisonerTransports,
		})
	}
	if rec, ok := e.metrics.(metrics.ResolutionRecorder); ok {
		if err := rec.RecordResolution(metrics.ResolutionRecord{
			MissionID:          missionID,
			Reward:             res.Reward,
			TransportReward:    res.TransportReward,
			Balance:            res.Balance,
			FreedUnits:         res.FreedUnits,
			PatientTransports:  res.PatientTransports,
			PrisonerTransports: res.PrisonerTransports,
			Time:               e.clock(),
		}); err != nil {
			e.log.Errorf("metrics error: %v", err)
		}
	}
	return res, nil
}

// releaseUnits sets every assigned unit back to available and drops the
// mission-unit links. Releasing is idempotent, so a retried resolution does
// not double-release.
func (e *Engine) releaseUnits(missionID string) ([]model.Unit, error) {
	unitIDs, err := e.missions.AssignedUnits(missionID)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	freed := make([]model.Unit, 0, len(unitIDs))
	for _, id := range unitIDs {
		u, err := e.units.Unit(id)
		if err != nil {
			e.log.Warnf("assigned unit %s not found", id)
			continue
		}
		if err := e.units.SetStatus(id, model.StatusAvailable); err != nil {
			return nil, fmt.Errorf("release unit %s: %w", id, err)
		}
		u.Status = model.StatusAvailable
		freed = append(freed, u)
	}
	if err := e.missions.ClearAssignments(missionID); err != nil {
		return nil, fmt.Errorf("clear assignments: %w", err)
	}
	return freed, nil
}

// transport allocates a facility per transportable manifest entry, bounded
// by how many freed units are qualified to transport that kind.
func (e *Engine) transport(mission model.Mission, kind model.TransportKind, freed []model.Unit) int {
	manifest := mission.Manifest(kind)
	if len(manifest) == 0 {
		return 0
	}
	qualified := 0
	for _, u := range freed {
		if qualify.CanTransport(qualify.Qualify(u, e.catalog), kind, e.catalog) {
			qualified++
		}
	}
	transportable := 0
	for _, entry := range manifest {
		if entry.Chance >= 100 || (entry.Chance > 0 && e.roll() < entry.Chance) {
			transportable++
		}
	}
	if transportable > qualified {
		transportable = qualified
	}

	done := 0
	for i := 0; i < transportable; i++ {
		f, err := e.alloc.Allocate(kind, mission.Lat, mission.Lon, transportClass(kind))
		if err != nil {
			e.log.Errorf("allocate %s facility: %v", kind, err)
			break
		}
		if f == nil {
			break
		}
		done++
	}
	return done
}

func transportClass(kind model.TransportKind) model.Class {
	if kind == model.KindPrisoner {
		return model.ClassPolice
	}
	return model.ClassAmbulance
}

// Rehydrate loads persisted deadlines into the scheduler after a restart.
// Deadlines already in the past become due on the next poll.
func (e *Engine) Rehydrate() error {
	missions, err := e.missions.ActiveMissions()
	if err != nil {
		return fmt.Errorf("load active missions: %w", err)
	}
	n := 0
	for _, m := range missions {
		if m.ResolveAt != nil {
			e.sched.Set(m.ID, *m.ResolveAt)
			n++
		}
	}
	if n > 0 {
		e.log.Infof("rehydrated %d mission timers", n)
	}
	return nil
}

// Run polls for due deadlines until the context is canceled.
func (e *Engine) Run(ctx context.Context) {
	t := time.NewTicker(e.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, id := range e.sched.Due(e.clock()) {
				if _, err := e.Resolve(id); err != nil {
					if errors.Is(err, model.ErrNotFound) {
						e.sched.Clear(id)
						continue
					}
					e.log.Errorf("resolve mission %s: %v", id, err)
				}
			}
			if rec, ok := e.metrics.(metrics.ActiveTimersRecorder); ok {
				if err := rec.RecordActiveTimers(e.sched.Len()); err != nil {
					e.log.Errorf("metrics error: %v", err)
				}
			}
		}
	}
}

// ComputeReduction derives the total reduction percentage for a mission from
// its modifiers and penalties. Modifiers only count while their trigger
// condition holds for the on-scene units, so the value is recomputed on
// every check rather than accumulated.
func ComputeReduction(mission model.Mission, onScene []model.Unit, catalog *qualify.Catalog) float64 {
	var total float64
	for _, mod := range mission.Modifiers {
		have := 0
		for _, u := range onScene {
			if matchesTarget(u, mod.Target, catalog) {
				have++
			}
		}
		if mod.MaxCount > 0 && have > mod.MaxCount {
			have = mod.MaxCount
		}
		total += float64(have) * mod.ReductionPercent
	}
	total -= mission.TimePenaltyPercent()
	return clampPercent(total)
}

// matchesTarget checks a modifier target against a unit's qualification
// labels, carried equipment and crew training.
func matchesTarget(u model.Unit, target string, catalog *qualify.Catalog) bool {
	if qualify.Qualify(u, catalog).MatchesToken(target, u.Class) {
		return true
	}
	return u.EquipmentCount(target) > 0 || u.HasTraining(target)
}

func (e *Engine) publishTimer(missionID string, action events.TimerAction, deadline time.Time) {
	if e.bus != nil {
		e.bus.Publish(events.TimerEvent{MissionID: missionID, Action: action, Deadline: deadline})
	}
}

func clampPercent(p float64) float64 {
	if p > 100 {
		return 100
	}
	if p < -100 {
		return -100
	}
	return p
}

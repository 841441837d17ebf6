package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dispatchsim/engine/core/model"
)

func TestMemoryUnitLifecycle(t *testing.T) {
	m := NewMemory()
	m.PutUnit(model.Unit{ID: "u1", Status: model.StatusAvailable})
	m.PutUnit(model.Unit{ID: "u2", Status: model.StatusResponding})

	available, err := m.AvailableUnits()
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(available) != 1 || available[0].ID != "u1" {
		t.Fatalf("available = %v", available)
	}

	if err := m.SetStatus("u1", model.StatusOnScene); err != nil {
		t.Fatalf("set status: %v", err)
	}
	u, _ := m.Unit("u1")
	if u.Status != model.StatusOnScene {
		t.Fatalf("status = %s", u.Status)
	}
	if err := m.SetStatus("ghost", model.StatusAvailable); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryAssignments(t *testing.T) {
	m := NewMemory()
	if err := m.Assign("m1", []string{"u1", "u2", "u1"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	ids, _ := m.AssignedUnits("m1")
	if len(ids) != 2 {
		t.Fatalf("assignments = %v", ids)
	}
	if err := m.Unassign("m1", "u1"); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	ids, _ = m.AssignedUnits("m1")
	if len(ids) != 1 || ids[0] != "u2" {
		t.Fatalf("assignments = %v", ids)
	}
	if err := m.ClearAssignments("m1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	ids, _ = m.AssignedUnits("m1")
	if len(ids) != 0 {
		t.Fatalf("assignments = %v", ids)
	}
}

func TestMemoryFacilities(t *testing.T) {
	m := NewMemory()
	m.PutStation(model.Station{ID: "h1", BedCapacity: 2})
	m.PutStation(model.Station{ID: "p1", HoldingCells: 3})
	m.PutStation(model.Station{ID: "f1"})

	hospitals, _ := m.Facilities(model.KindPatient)
	if len(hospitals) != 1 || hospitals[0].ID != "h1" {
		t.Fatalf("hospitals = %v", hospitals)
	}
	jails, _ := m.Facilities(model.KindPrisoner)
	if len(jails) != 1 || jails[0].ID != "p1" {
		t.Fatalf("jails = %v", jails)
	}
}

func TestMemoryTryReserveRace(t *testing.T) {
	m := NewMemory()
	expires := time.Now().Add(10 * time.Minute)
	var wg sync.WaitGroup
	wins := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := m.TryReserve(model.Reservation{
				ID: string(rune('a' + i)), StationID: "h1", Kind: model.KindPatient, ExpiresAt: expires,
			}, 1, time.Now())
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			wins <- ok
		}(i)
	}
	wg.Wait()
	close(wins)
	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("capacity 1 slot reserved %d times", won)
	}
}

func TestMemoryExpiredReservationsFreeSlots(t *testing.T) {
	m := NewMemory()
	_ = m.Reserve(model.Reservation{ID: "r1", StationID: "h1", Kind: model.KindPatient, ExpiresAt: time.Now().Add(-time.Minute)})

	ok, err := m.TryReserve(model.Reservation{ID: "r2", StationID: "h1", Kind: model.KindPatient, ExpiresAt: time.Now().Add(time.Minute)}, 1, time.Now())
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !ok {
		t.Fatal("expired reservation still occupies the slot")
	}
}

func TestMemoryTryReserveUsesCallerClock(t *testing.T) {
	m := NewMemory()
	// Fixed clock well in the past: by wall clock r1 has long expired, but
	// relative to the caller's now it still occupies the only slot.
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	_ = m.Reserve(model.Reservation{ID: "r1", StationID: "h1", Kind: model.KindPatient, ExpiresAt: now.Add(5 * time.Minute)})

	ok, err := m.TryReserve(model.Reservation{ID: "r2", StationID: "h1", Kind: model.KindPatient, ExpiresAt: now.Add(10 * time.Minute)}, 1, now)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if ok {
		t.Fatal("reservation active at the caller's clock was ignored")
	}
}

func TestMemoryEarliestExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	_ = m.Reserve(model.Reservation{ID: "r1", StationID: "h1", Kind: model.KindPatient, ExpiresAt: now.Add(20 * time.Minute)})
	_ = m.Reserve(model.Reservation{ID: "r2", StationID: "h1", Kind: model.KindPatient, ExpiresAt: now.Add(5 * time.Minute)})
	_ = m.Reserve(model.Reservation{ID: "r3", StationID: "h1", Kind: model.KindPatient, ExpiresAt: now.Add(-time.Minute)})
	// A holding cell reservation must not shorten the patient wait.
	_ = m.Reserve(model.Reservation{ID: "r4", StationID: "h1", Kind: model.KindPrisoner, ExpiresAt: now.Add(time.Minute)})

	earliest, found, err := m.EarliestExpiry("h1", model.KindPatient, now)
	if err != nil {
		t.Fatalf("expiry: %v", err)
	}
	if !found || !earliest.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("earliest = %v found = %v", earliest, found)
	}
	if _, found, _ := m.EarliestExpiry("h2", model.KindPatient, now); found {
		t.Fatal("unexpected expiry for empty facility")
	}
}

func TestMemoryWallet(t *testing.T) {
	m := NewMemory()
	if b, _ := m.GetBalance(); b != 0 {
		t.Fatalf("balance = %d", b)
	}
	if b, _ := m.AdjustBalance(500); b != 500 {
		t.Fatalf("balance = %d", b)
	}
	if b, _ := m.AdjustBalance(-200); b != 300 {
		t.Fatalf("balance = %d", b)
	}
}

package occupancy

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchsim/engine/core/model"
	"github.com/dispatchsim/engine/core/qualify"
	"github.com/dispatchsim/engine/infra/logger"
	"github.com/dispatchsim/engine/infra/store"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// Hospitals ~1 km and ~10 km north of the incident at (45, 5). At the
// default 50 km/h the second hospital is ~12 minutes away.
func newTestAllocator(mem *store.Memory) *Allocator {
	c := &qualify.Catalog{}
	c.Init()
	a := NewAllocator(mem, mem, c, 10*time.Minute, nil, nil, logger.NopLogger{})
	a.now = func() time.Time { return t0 }
	return a
}

func putHospitals(mem *store.Memory, nearCap, farCap int) {
	mem.PutStation(model.Station{ID: "h1", Class: model.ClassAmbulance, Lat: 45.009, Lon: 5, BedCapacity: nearCap})
	mem.PutStation(model.Station{ID: "h2", Class: model.ClassAmbulance, Lat: 45.09, Lon: 5, BedCapacity: farCap})
}

func occupy(mem *store.Memory, stationID string, expires time.Time) {
	_ = mem.Reserve(model.Reservation{
		ID: uuid.NewString(), StationID: stationID, Kind: model.KindPatient, ExpiresAt: expires,
	})
}

func TestAllocatePicksNearestWithCapacity(t *testing.T) {
	mem := store.NewMemory()
	putHospitals(mem, 2, 2)
	a := newTestAllocator(mem)

	f, err := a.Allocate(model.KindPatient, 45, 5, model.ClassAmbulance)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if f == nil || f.ID != "h1" {
		t.Fatalf("facility = %v", f)
	}
	res := mem.Reservations()
	if len(res) != 1 || !res[0].ExpiresAt.Equal(t0.Add(10*time.Minute)) {
		t.Fatalf("reservations = %v", res)
	}
}

func TestAllocateWaitsWhenShorterThanTravel(t *testing.T) {
	mem := store.NewMemory()
	putHospitals(mem, 1, 2)
	// h1 frees in 5 minutes, driving to h2 takes ~12.
	free := t0.Add(5 * time.Minute)
	occupy(mem, "h1", free)
	a := newTestAllocator(mem)

	f, err := a.Allocate(model.KindPatient, 45, 5, model.ClassAmbulance)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if f == nil || f.ID != "h1" {
		t.Fatalf("facility = %v", f)
	}
	res := mem.Reservations()
	if len(res) != 2 {
		t.Fatalf("reservations = %v", res)
	}
	if !res[1].ExpiresAt.Equal(free.Add(10 * time.Minute)) {
		t.Fatalf("stacked expiry = %v", res[1].ExpiresAt)
	}
}

func TestAllocateDrivesOnWhenWaitIsLonger(t *testing.T) {
	mem := store.NewMemory()
	putHospitals(mem, 1, 2)
	// h1 frees in 30 minutes, well past the ~12 minute drive to h2.
	occupy(mem, "h1", t0.Add(30*time.Minute))
	a := newTestAllocator(mem)

	f, err := a.Allocate(model.KindPatient, 45, 5, model.ClassAmbulance)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if f == nil || f.ID != "h2" {
		t.Fatalf("facility = %v", f)
	}
}

func TestAllocateStacksOnNearestWhenAllFull(t *testing.T) {
	mem := store.NewMemory()
	mem.PutStation(model.Station{ID: "h1", Class: model.ClassAmbulance, Lat: 45.009, Lon: 5, BedCapacity: 1})
	free := t0.Add(45 * time.Minute)
	occupy(mem, "h1", free)
	a := newTestAllocator(mem)

	f, err := a.Allocate(model.KindPatient, 45, 5, model.ClassAmbulance)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if f == nil || f.ID != "h1" {
		t.Fatalf("facility = %v", f)
	}
	res := mem.Reservations()
	if len(res) != 2 || !res[1].ExpiresAt.Equal(free.Add(10*time.Minute)) {
		t.Fatalf("reservations = %v", res)
	}
}

func TestAllocateNoFacilities(t *testing.T) {
	mem := store.NewMemory()
	// A police station offers no beds.
	mem.PutStation(model.Station{ID: "p1", Class: model.ClassPolice, Lat: 45.01, Lon: 5, HoldingCells: 3})
	a := newTestAllocator(mem)

	f, err := a.Allocate(model.KindPatient, 45, 5, model.ClassAmbulance)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if f != nil {
		t.Fatalf("expected no facility, got %v", f)
	}
}

func TestAllocateRespectsKind(t *testing.T) {
	mem := store.NewMemory()
	mem.PutStation(model.Station{ID: "p1", Class: model.ClassPolice, Lat: 45.01, Lon: 5, HoldingCells: 1})
	a := newTestAllocator(mem)

	f, err := a.Allocate(model.KindPrisoner, 45, 5, model.ClassPolice)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if f == nil || f.ID != "p1" {
		t.Fatalf("facility = %v", f)
	}
}

func TestAllocateLastSlotOnce(t *testing.T) {
	mem := store.NewMemory()
	mem.PutStation(model.Station{ID: "h1", Class: model.ClassAmbulance, Lat: 45.009, Lon: 5, BedCapacity: 1})
	a := newTestAllocator(mem)

	if _, err := a.Allocate(model.KindPatient, 45, 5, model.ClassAmbulance); err != nil {
		t.Fatalf("first allocate: %v", err)
	}
	if _, err := a.Allocate(model.KindPatient, 45, 5, model.ClassAmbulance); err != nil {
		t.Fatalf("second allocate: %v", err)
	}
	res := mem.Reservations()
	if len(res) != 2 {
		t.Fatalf("reservations = %v", res)
	}
	// The second transport queues behind the first instead of sharing the
	// slot.
	if !res[1].ExpiresAt.After(res[0].ExpiresAt) {
		t.Fatalf("second reservation does not stack: %v vs %v", res[1].ExpiresAt, res[0].ExpiresAt)
	}
}

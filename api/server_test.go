package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dispatchsim/engine/core/dispatch"
	"github.com/dispatchsim/engine/core/missiontimer"
	"github.com/dispatchsim/engine/core/model"
	"github.com/dispatchsim/engine/core/occupancy"
	"github.com/dispatchsim/engine/core/qualify"
	"github.com/dispatchsim/engine/infra/logger"
	"github.com/dispatchsim/engine/infra/mqtt"
	"github.com/dispatchsim/engine/infra/store"
	"github.com/dispatchsim/engine/internal/keymutex"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.PutStation(model.Station{ID: "s1", Class: model.ClassFire, Lat: 45.009, Lon: 5})
	mem.PutStation(model.Station{ID: "h1", Class: model.ClassAmbulance, Lat: 45.01, Lon: 5, BedCapacity: 2})

	catalog := &qualify.Catalog{PatientTransport: []string{"ambulance"}}
	catalog.Init()
	locks := keymutex.New()
	log := logger.NopLogger{}

	stations, _ := mem.Stations()
	matcher := dispatch.NewMatcher(catalog, stations, log)
	manager, err := dispatch.NewManager(matcher, mem, mem, mqtt.NewMockPublisher(), time.Second, nil, nil, locks, log)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	alloc := occupancy.NewAllocator(mem, mem, catalog, 10*time.Minute, nil, nil, log)
	engine, err := missiontimer.NewEngine(mem, mem, mem, alloc, catalog, missiontimer.NewScheduler(), locks,
		missiontimer.Config{TransportBonus: 50}, nil, nil, log)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	srv := NewServer(manager, engine, alloc, mem, mem, mem, mem, nil, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, mem
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestTimerLifecycleOverHTTP(t *testing.T) {
	ts, mem := newTestServer(t)
	mem.PutMission(model.Mission{ID: "m1", Status: model.MissionActive, TimingMinutes: 10})

	resp := postJSON(t, ts.URL+"/missions/m1/timer/start", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	var started struct {
		ResolveAt time.Time `json:"resolve_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if started.ResolveAt.IsZero() {
		t.Fatal("missing deadline")
	}

	resp = postJSON(t, ts.URL+"/missions/m1/timer/adjust", `{"reduction_percent":50}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("adjust status = %d", resp.StatusCode)
	}
	var adjusted struct {
		ResolveAt time.Time `json:"resolve_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&adjusted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if !adjusted.ResolveAt.Before(started.ResolveAt) {
		t.Fatalf("adjust did not shorten the deadline: %v vs %v", adjusted.ResolveAt, started.ResolveAt)
	}

	resp = postJSON(t, ts.URL+"/missions/m1/timer/clear", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdjustWithoutTimerConflicts(t *testing.T) {
	ts, mem := newTestServer(t)
	mem.PutMission(model.Mission{ID: "m1", Status: model.MissionActive, TimingMinutes: 10})

	resp := postJSON(t, ts.URL+"/missions/m1/timer/adjust", `{"reduction_percent":50}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestResolveOverHTTP(t *testing.T) {
	ts, mem := newTestServer(t)
	mem.PutMission(model.Mission{ID: "m1", Status: model.MissionActive, BaseReward: 500})

	resp := postJSON(t, ts.URL+"/missions/m1/resolve", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d", resp.StatusCode)
	}
	var res missiontimer.Resolution
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if res.Reward != 500 || res.Balance != 500 {
		t.Fatalf("resolution = %+v", res)
	}

	// A second resolution is a 404: the mission is terminal.
	resp = postJSON(t, ts.URL+"/missions/m1/resolve", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second resolve status = %d", resp.StatusCode)
	}
}

func TestDispatchOverHTTP(t *testing.T) {
	ts, mem := newTestServer(t)
	mem.PutUnit(model.Unit{ID: "u1", StationID: "s1", Class: model.ClassFire, Type: "engine", Status: model.StatusAvailable})
	mem.PutMission(model.Mission{
		ID: "m1", Status: model.MissionActive, Lat: 45, Lon: 5,
		RequiredUnits: []model.UnitRequirement{{Tokens: []string{"fire:engine"}, Quantity: 1}},
	})

	resp := postJSON(t, ts.URL+"/missions/m1/dispatch", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch status = %d", resp.StatusCode)
	}
	var out struct {
		Units        []string        `json:"units"`
		Acknowledged map[string]bool `json:"acknowledged"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(out.Units) != 1 || out.Units[0] != "u1" || !out.Acknowledged["u1"] {
		t.Fatalf("dispatch result = %+v", out)
	}
}

func TestDispatchUnknownMission(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/missions/ghost/dispatch", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAllocateOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/allocations", `{"kind":"patient","lat":45,"lon":5,"class":"ambulance"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("allocate status = %d", resp.StatusCode)
	}
	var facility model.Station
	if err := json.NewDecoder(resp.Body).Decode(&facility); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if facility.ID != "h1" {
		t.Fatalf("facility = %+v", facility)
	}

	resp = postJSON(t, ts.URL+"/allocations", `{"kind":"cargo"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad kind status = %d", resp.StatusCode)
	}
}

func TestAllocateNoFacility(t *testing.T) {
	ts, _ := newTestServer(t)
	// No station offers holding cells.
	resp := postJSON(t, ts.URL+"/allocations", `{"kind":"prisoner","lat":45,"lon":5,"class":"police"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWalletOverHTTP(t *testing.T) {
	ts, mem := newTestServer(t)
	_, _ = mem.AdjustBalance(1234)

	resp, err := http.Get(ts.URL + "/wallet")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["balance"] != 1234 {
		t.Fatalf("balance = %d", out["balance"])
	}
}

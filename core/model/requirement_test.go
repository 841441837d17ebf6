package model

import (
	"encoding/json"
	"testing"
)

func TestUnitRequirementQuantityAliases(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"quantity", `{"tokens":["fire:engine"],"quantity":3}`, 3},
		{"count", `{"tokens":["fire:engine"],"count":2}`, 2},
		{"qty", `{"tokens":["fire:engine"],"qty":4}`, 4},
		{"default", `{"tokens":["fire:engine"]}`, 1},
		{"quantity wins", `{"tokens":["fire:engine"],"quantity":5,"count":2,"qty":9}`, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req UnitRequirement
			if err := json.Unmarshal([]byte(tc.in), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if req.Quantity != tc.want {
				t.Fatalf("quantity = %d, want %d", req.Quantity, tc.want)
			}
		})
	}
}

func TestUnitRequirementTokenAliases(t *testing.T) {
	var req UnitRequirement
	if err := json.Unmarshal([]byte(`{"unit":"fire:engine","count":2}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(req.Tokens) != 1 || req.Tokens[0] != "fire:engine" {
		t.Fatalf("tokens = %v", req.Tokens)
	}

	if err := json.Unmarshal([]byte(`{"quantity":1}`), &req); err == nil {
		t.Fatal("expected error for requirement without tokens")
	}
}

func TestCountRequirementNameAliases(t *testing.T) {
	var req CountRequirement
	if err := json.Unmarshal([]byte(`{"training":"paramedic","qty":2}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Name != "paramedic" || req.Quantity != 2 {
		t.Fatalf("got %+v", req)
	}
	if err := json.Unmarshal([]byte(`{"item":"hose"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Name != "hose" || req.Quantity != 1 {
		t.Fatalf("got %+v", req)
	}
}

func TestTransportEntryChanceDefault(t *testing.T) {
	var e TransportEntry
	if err := json.Unmarshal([]byte(`{}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Chance != 100 {
		t.Fatalf("chance = %d, want 100", e.Chance)
	}
	if err := json.Unmarshal([]byte(`{"chance":0}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Chance != 0 {
		t.Fatalf("chance = %d, want 0", e.Chance)
	}
}

func TestSplitToken(t *testing.T) {
	class, typ := SplitToken("Fire:Engine")
	if class != ClassFire || typ != "engine" {
		t.Fatalf("got %q %q", class, typ)
	}
	class, typ = SplitToken("engine")
	if class != "" || typ != "engine" {
		t.Fatalf("got %q %q", class, typ)
	}
}

func TestParseHelpersDegradeOnMalformedData(t *testing.T) {
	if got := ParseUnitRequirements([]byte(`{"not":"a list"}`), nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := ParseCountRequirements([]byte(`garbage`), nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := ParseTransportEntries(nil, nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	got := ParseTransportEntries([]byte(`[{},{"chance":40}]`), nil)
	if len(got) != 2 || got[0].Chance != 100 || got[1].Chance != 40 {
		t.Fatalf("got %v", got)
	}
}

func TestMissionPenaltyHelpers(t *testing.T) {
	m := Mission{
		BaseReward: 1000,
		Penalties: []Penalty{
			{Name: "limited access", RewardPercent: 25, TimePercent: 10, UnitDiscounts: map[string]int{"fire:engine": 1}},
			{Name: "night shift", RewardPercent: 5},
		},
	}
	if got := m.RewardPenaltyPercent(); got != 30 {
		t.Fatalf("reward penalty = %v", got)
	}
	if got := m.TimePenaltyPercent(); got != 10 {
		t.Fatalf("time penalty = %v", got)
	}
	if got := m.UnitDiscount([]string{"fire:engine", "ladder"}); got != 1 {
		t.Fatalf("discount = %d", got)
	}
	if got := m.UnitDiscount([]string{"police:patrol"}); got != 0 {
		t.Fatalf("discount = %d", got)
	}
}

func TestUnitCounts(t *testing.T) {
	u := Unit{
		Equipment: []string{"Hose", "hose", "jaws of life"},
		Personnel: []CrewMember{
			{ID: "p1", Trainings: []string{"Paramedic", "hazmat"}},
			{ID: "p2", Trainings: []string{"paramedic"}},
		},
	}
	if got := u.EquipmentCount("hose"); got != 2 {
		t.Fatalf("equipment count = %d", got)
	}
	if got := u.TrainingCount("paramedic"); got != 2 {
		t.Fatalf("training count = %d", got)
	}
	if !u.HasTraining("HAZMAT") {
		t.Fatal("expected hazmat training")
	}
	if u.HasTraining("diver") {
		t.Fatal("unexpected diver training")
	}
}

func TestHaversine(t *testing.T) {
	// Paris to London, roughly 344 km.
	d := Haversine(48.8566, 2.3522, 51.5074, -0.1278)
	if d < 330_000 || d > 360_000 {
		t.Fatalf("distance = %v", d)
	}
	if got := Haversine(45, 5, 45, 5); got != 0 {
		t.Fatalf("zero distance = %v", got)
	}
}

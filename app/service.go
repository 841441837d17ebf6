// Package app assembles the engine from configuration.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dispatchsim/engine/api"
	"github.com/dispatchsim/engine/config"
	"github.com/dispatchsim/engine/core/dispatch"
	coremetrics "github.com/dispatchsim/engine/core/metrics"
	"github.com/dispatchsim/engine/core/missiontimer"
	"github.com/dispatchsim/engine/core/model"
	"github.com/dispatchsim/engine/core/mqtt"
	"github.com/dispatchsim/engine/core/occupancy"
	"github.com/dispatchsim/engine/internal/eventbus"
	"github.com/dispatchsim/engine/internal/keymutex"

	"github.com/dispatchsim/engine/infra/logger"
	"github.com/dispatchsim/engine/infra/metrics"
	inframqtt "github.com/dispatchsim/engine/infra/mqtt"
	"github.com/dispatchsim/engine/infra/store"
)

// Backend groups the persistence interfaces a store implementation
// provides.
type Backend interface {
	Unit(id string) (model.Unit, error)
	Units() ([]model.Unit, error)
	AvailableUnits() ([]model.Unit, error)
	SetStatus(id string, st model.UnitStatus) error
	Station(id string) (model.Station, error)
	Stations() ([]model.Station, error)
	Facilities(kind model.TransportKind) ([]model.Station, error)
	Mission(id string) (model.Mission, error)
	ActiveMissions() ([]model.Mission, error)
	SetMissionStatus(id string, st model.MissionStatus) error
	SetResolveAt(id string, t *time.Time) error
	AssignedUnits(missionID string) ([]string, error)
	Assign(missionID string, unitIDs []string) error
	Unassign(missionID string, unitID string) error
	ClearAssignments(missionID string) error
	AdjustBalance(delta int64) (int64, error)
	GetBalance() (int64, error)
	TryReserve(r model.Reservation, capacity int, now time.Time) (bool, error)
	EarliestExpiry(stationID string, kind model.TransportKind, now time.Time) (time.Time, bool, error)
	Reserve(r model.Reservation) error
}

// Service orchestrates the dispatch manager, timer engine and API server.
type Service struct {
	Dispatcher *dispatch.Manager
	Engine     *missiontimer.Engine
	Allocator  *occupancy.Allocator
	API        *api.Server

	apiAddr     string
	publisher   mqtt.Client
	bus         eventbus.EventBus
	log         logger.Logger
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Seed != "" {
		if err := seed(backend, cfg.Store.Seed); err != nil {
			return nil, fmt.Errorf("seed store: %w", err)
		}
	}

	client, err := inframqtt.NewPahoClient(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	sink := buildSink(cfg.Metrics)
	bus := eventbus.New()
	locks := keymutex.New()

	stations, err := backend.Stations()
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}
	matcher := dispatch.NewMatcher(&cfg.Catalog, stations, logg)

	ackTimeout := time.Duration(cfg.Engine.AckTimeoutSeconds) * time.Second
	manager, err := dispatch.NewManager(matcher, backend, backend, client, ackTimeout, sink, bus, locks, logg)
	if err != nil {
		return nil, fmt.Errorf("dispatch manager: %w", err)
	}

	hold := time.Duration(cfg.Engine.HoldMinutes) * time.Minute
	alloc := occupancy.NewAllocator(backend, backend, &cfg.Catalog, hold, sink, bus, logg)

	sched := missiontimer.NewScheduler()
	engine, err := missiontimer.NewEngine(backend, backend, backend, alloc, &cfg.Catalog, sched, locks, cfg.Engine.Config, sink, bus, logg)
	if err != nil {
		return nil, fmt.Errorf("timer engine: %w", err)
	}
	if err := engine.Rehydrate(); err != nil {
		return nil, fmt.Errorf("rehydrate timers: %w", err)
	}

	srv := api.NewServer(manager, engine, alloc, backend, backend, backend, backend, bus, logg)

	return &Service{
		Dispatcher:  manager,
		Engine:      engine,
		Allocator:   alloc,
		API:         srv,
		apiAddr:     cfg.Engine.APIAddr,
		publisher:   client,
		bus:         bus,
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}, nil
}

func openBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := store.OpenSQLite(cfg.Store.DSN, logger.New("store"), cfg.Store.Debug)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	default:
		return store.NewMemory(), nil
	}
}

func buildSink(cfg coremetrics.Config) coremetrics.Sink {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		if sink, err := metrics.NewPromSink(); err == nil {
			sinks = append(sinks, sink)
		} else {
			logger.New("service").Errorf("prom sink: %v", err)
		}
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}
	case 1:
		return sinks[0]
	default:
		return metrics.NewMultiSink(sinks...)
	}
}

type seedDocument struct {
	Units    []model.Unit    `json:"units"`
	Stations []model.Station `json:"stations"`
	Missions []model.Mission `json:"missions"`
}

type seeder interface {
	PutUnit(model.Unit)
	PutStation(model.Station)
	PutMission(model.Mission)
}

type gormSeeder interface {
	PutUnit(model.Unit) error
	PutStation(model.Station) error
	PutMission(model.Mission) error
}

func seed(backend Backend, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc seedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	switch s := backend.(type) {
	case seeder:
		for _, u := range doc.Units {
			s.PutUnit(u)
		}
		for _, st := range doc.Stations {
			s.PutStation(st)
		}
		for _, m := range doc.Missions {
			s.PutMission(m)
		}
	case gormSeeder:
		for _, u := range doc.Units {
			if err := s.PutUnit(u); err != nil {
				return err
			}
		}
		for _, st := range doc.Stations {
			if err := s.PutStation(st); err != nil {
				return err
			}
		}
		for _, m := range doc.Missions {
			if err := s.PutMission(m); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run starts the pollers and servers and blocks until the context is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.Engine.Run(ctx)
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	return s.API.Run(ctx, s.apiAddr)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if d, ok := s.publisher.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}
	s.bus.Close()
	return nil
}

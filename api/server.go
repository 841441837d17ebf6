// Package api exposes the engine operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dispatchsim/engine/core/dispatch"
	"github.com/dispatchsim/engine/core/logger"
	"github.com/dispatchsim/engine/core/missiontimer"
	"github.com/dispatchsim/engine/core/model"
	"github.com/dispatchsim/engine/core/occupancy"
	"github.com/dispatchsim/engine/core/store"
	"github.com/dispatchsim/engine/internal/eventbus"
)

// Server wires the engine components behind an HTTP mux.
type Server struct {
	dispatcher *dispatch.Manager
	engine     *missiontimer.Engine
	alloc      *occupancy.Allocator
	missions   store.MissionStore
	units      store.UnitStore
	stations   store.StationStore
	wallet     store.Wallet
	bus        eventbus.EventBus
	log        logger.Logger
}

// NewServer creates the HTTP server facade.
func NewServer(dispatcher *dispatch.Manager, engine *missiontimer.Engine, alloc *occupancy.Allocator, missions store.MissionStore, units store.UnitStore, stations store.StationStore, wallet store.Wallet, bus eventbus.EventBus, log logger.Logger) *Server {
	return &Server{
		dispatcher: dispatcher,
		engine:     engine,
		alloc:      alloc,
		missions:   missions,
		units:      units,
		stations:   stations,
		wallet:     wallet,
		bus:        bus,
		log:        log,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /missions/{id}/dispatch", s.handleDispatch)
	mux.HandleFunc("POST /missions/{id}/timer/start", s.handleTimerStart)
	mux.HandleFunc("POST /missions/{id}/timer/adjust", s.handleTimerAdjust)
	mux.HandleFunc("POST /missions/{id}/timer/clear", s.handleTimerClear)
	mux.HandleFunc("POST /missions/{id}/resolve", s.handleResolve)
	mux.HandleFunc("POST /allocations", s.handleAllocate)
	mux.HandleFunc("GET /missions/{id}", s.handleMission)
	mux.HandleFunc("GET /missions", s.handleMissions)
	mux.HandleFunc("GET /units", s.handleUnits)
	mux.HandleFunc("GET /stations", s.handleStations)
	mux.HandleFunc("GET /wallet", s.handleWallet)
	mux.HandleFunc("GET /events", s.handleEvents)
	return mux
}

// Run serves the API until the context is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	s.log.Infof("api listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.AutoDispatch(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	type ackError struct {
		UnitID string `json:"unit_id"`
		Error  string `json:"error"`
	}
	out := struct {
		MissionID    string          `json:"mission_id"`
		Units        []string        `json:"units"`
		Unmet        []string        `json:"unmet,omitempty"`
		Acknowledged map[string]bool `json:"acknowledged"`
		Errors       []ackError      `json:"errors,omitempty"`
	}{
		MissionID:    res.MissionID,
		Units:        res.SelectedUnitIDs,
		Unmet:        res.Unmet,
		Acknowledged: res.Acknowledged,
	}
	for id, err := range res.Errors {
		out.Errors = append(out.Errors, ackError{UnitID: id, Error: err.Error()})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTimerStart(w http.ResponseWriter, r *http.Request) {
	deadline, err := s.engine.Start(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"resolve_at": deadline})
}

func (s *Server) handleTimerAdjust(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ReductionPercent float64 `json:"reduction_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	deadline, err := s.engine.Adjust(r.PathValue("id"), body.ReductionPercent)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"resolve_at": deadline})
}

func (s *Server) handleTimerClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Resolve(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind  model.TransportKind `json:"kind"`
		Lat   float64             `json:"lat"`
		Lon   float64             `json:"lon"`
		Class model.Class         `json:"class"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.Kind != model.KindPatient && body.Kind != model.KindPrisoner {
		http.Error(w, "kind must be patient or prisoner", http.StatusBadRequest)
		return
	}
	facility, err := s.alloc.Allocate(body.Kind, body.Lat, body.Lon, body.Class)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if facility == nil {
		http.Error(w, "no facility of that kind", http.StatusConflict)
		return
	}
	s.writeJSON(w, http.StatusOK, facility)
}

func (s *Server) handleMission(w http.ResponseWriter, r *http.Request) {
	mission, err := s.missions.Mission(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mission)
}

func (s *Server) handleMissions(w http.ResponseWriter, _ *http.Request) {
	missions, err := s.missions.ActiveMissions()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, missions)
}

func (s *Server) handleUnits(w http.ResponseWriter, _ *http.Request) {
	units, err := s.units.Units()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, units)
}

func (s *Server) handleStations(w http.ResponseWriter, _ *http.Request) {
	stations, err := s.stations.Stations()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stations)
}

func (s *Server) handleWallet(w http.ResponseWriter, _ *http.Request) {
	balance, err := s.wallet.GetBalance()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// handleEvents streams bus events to the client as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if s.bus == nil {
		http.Error(w, "event bus disabled", http.StatusNotFound)
		return
	}
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub:
			if !open {
				return
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, dispatch.ErrInsufficientUnits):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, missiontimer.ErrNotRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.log.Errorf("internal error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

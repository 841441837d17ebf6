// Package missiontimer tracks mission countdowns and performs terminal
// resolution: releasing units, paying rewards and triggering facility
// allocation for transports.
package missiontimer

import (
	"sync"
	"time"
)

// Scheduler is the injectable deadline store. Timers are scheduled deadlines
// checked by a poller, not blocking sleeps; many missions run concurrently
// without interference.
type Scheduler struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{deadlines: make(map[string]time.Time)}
}

// Set registers or replaces the deadline for a mission.
func (s *Scheduler) Set(missionID string, deadline time.Time) {
	s.mu.Lock()
	s.deadlines[missionID] = deadline
	s.mu.Unlock()
}

// Deadline returns the registered deadline for a mission.
func (s *Scheduler) Deadline(missionID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deadlines[missionID]
	return d, ok
}

// Clear removes the timer entry without resolving the mission.
func (s *Scheduler) Clear(missionID string) {
	s.mu.Lock()
	delete(s.deadlines, missionID)
	s.mu.Unlock()
}

// Due returns the missions whose deadline has passed at t.
func (s *Scheduler) Due(t time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []string
	for id, d := range s.deadlines {
		if !d.After(t) {
			due = append(due, id)
		}
	}
	return due
}

// Len returns the number of running timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deadlines)
}

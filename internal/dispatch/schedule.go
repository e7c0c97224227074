package dispatch

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/nexflow/flowd/internal/flow"
)

// Scheduler is a trigger event source that fires synthetic events on cron
// expressions, feeding them into the dispatcher like any other collaborator.
type Scheduler struct {
	dispatcher *Dispatcher
	cron       *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewScheduler(d *Dispatcher) *Scheduler {
	return &Scheduler{
		dispatcher: d,
		cron:       cron.New(),
		entries:    make(map[string]cron.EntryID),
	}
}

// Add registers a cron schedule that dispatches the given event template on
// every tick. Returns a schedule id for removal.
func (s *Scheduler) Add(cronExpr string, template flow.Event) (string, error) {
	id := flow.GenerateID("sched")
	entryID, err := s.cron.AddFunc(cronExpr, func() {
		event := template
		event.ID = "" // fresh id per firing
		if _, err := s.dispatcher.Dispatch(s.dispatcher.baseCtx, event); err != nil {
			slog.Error("scheduled dispatch failed", "schedule", id, "event_type", template.Type, "err", err)
		}
	})
	if err != nil {
		return "", fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	s.mu.Lock()
	s.entries[id] = entryID
	s.mu.Unlock()
	return id, nil
}

// Remove deletes a schedule.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if ok {
		s.cron.Remove(entryID)
	}
}

// Start begins firing schedules in a background goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron runner; already-dispatched events keep running.
func (s *Scheduler) Stop() { s.cron.Stop() }

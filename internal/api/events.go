package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nexflow/flowd/internal/flow"
)

type eventRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ingestEvent accepts a domain event and fans it out to matching workflows.
// The organization is always the caller's; one tenant cannot inject events
// into another.
func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}

	instanceIDs, err := s.dispatcher.Dispatch(r.Context(), flow.Event{
		Type:           req.Type,
		OrganizationID: actingOrg(r),
		Payload:        req.Payload,
		OccurredAt:     time.Now(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if instanceIDs == nil {
		instanceIDs = []string{}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"instances": instanceIDs})
}

type scheduleRequest struct {
	Cron    string         `json:"cron"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "scheduler not configured", http.StatusServiceUnavailable)
		return
	}
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Cron == "" || req.Type == "" {
		http.Error(w, "cron and type are required", http.StatusBadRequest)
		return
	}

	id, err := s.scheduler.Add(req.Cron, flow.Event{
		Type:           req.Type,
		OrganizationID: actingOrg(r),
		Payload:        req.Payload,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		http.Error(w, "scheduler not configured", http.StatusServiceUnavailable)
		return
	}
	s.scheduler.Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) dispatcherStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Stats())
}

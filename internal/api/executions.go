package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexflow/flowd/internal/flow"
)

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	list, err := s.executions.ListByWorkflow(r.Context(), wf.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*flow.ExecutionInstance{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) loadExecution(w http.ResponseWriter, r *http.Request) *flow.ExecutionInstance {
	in, err := s.executions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil
	}
	if in.OrganizationID != actingOrg(r) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return nil
	}
	return in
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	in := s.loadExecution(w, r)
	if in == nil {
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) listExecutionLogs(w http.ResponseWriter, r *http.Request) {
	in := s.loadExecution(w, r)
	if in == nil {
		return
	}
	entries, err := s.logs.ListByInstance(r.Context(), in.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*flow.ExecutionLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) cancelExecution(w http.ResponseWriter, r *http.Request) {
	in := s.loadExecution(w, r)
	if in == nil {
		return
	}
	if in.Status.Terminal() {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "execution already finished"})
		return
	}
	cancelled := s.dispatcher.Cancel(in.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{"cancelling": cancelled})
}

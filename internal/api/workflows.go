package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nexflow/flowd/internal/flow"
)

type createWorkflowRequest struct {
	Name          string         `json:"name"`
	TriggerType   string         `json:"trigger_type"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
}

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	wf, err := s.manager.CreateWorkflow(r.Context(), actingOrg(r), req.Name, req.TriggerType, req.TriggerConfig, actingUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	wfs, err := s.workflows.ListByOrganization(r.Context(), actingOrg(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if wfs == nil {
		wfs = []*flow.Workflow{}
	}
	writeJSON(w, http.StatusOK, wfs)
}

// loadWorkflow fetches the workflow and enforces tenant isolation: a
// workflow from another organization is indistinguishable from a missing
// one.
func (s *Server) loadWorkflow(w http.ResponseWriter, r *http.Request) *flow.Workflow {
	wf, err := s.workflows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil
	}
	if wf.OrganizationID != actingOrg(r) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return nil
	}
	return wf
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

type updateWorkflowRequest struct {
	Name          *string        `json:"name,omitempty"`
	TriggerType   *string        `json:"trigger_type,omitempty"`
	TriggerConfig map[string]any `json:"trigger_config,omitempty"`
	Active        *bool          `json:"active,omitempty"`
}

func (s *Server) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	if err := s.access.Check(r.Context(), wf.ID, actingUser(r), flow.RoleEditor); err != nil {
		writeError(w, err)
		return
	}

	var req updateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name != nil {
		wf.Name = *req.Name
	}
	if req.TriggerType != nil {
		wf.TriggerType = *req.TriggerType
	}
	if req.TriggerConfig != nil {
		wf.TriggerConfig = req.TriggerConfig
	}
	if req.Active != nil {
		wf.Active = *req.Active
	}
	wf.UpdatedAt = time.Now()

	if err := s.workflows.Update(r.Context(), wf); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	if err := s.access.Check(r.Context(), wf.ID, actingUser(r), flow.RoleAdmin); err != nil {
		writeError(w, err)
		return
	}
	if err := s.workflows.Delete(r.Context(), wf.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

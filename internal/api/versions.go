package api

import (
	"encoding/json"
	"net/http"

	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/version"
)

type saveDraftRequest struct {
	BaseVersionID string      `json:"base_version_id"`
	Nodes         []flow.Node `json:"nodes"`
	Edges         []flow.Edge `json:"edges"`
}

func (s *Server) saveDraft(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	var req saveDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	v, err := s.manager.SaveDraft(r.Context(), wf.ID, req.BaseVersionID, req.Nodes, req.Edges, actingUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

type versionRequest struct {
	VersionID string `json:"version_id"`
}

func (s *Server) publishVersion(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	var req versionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.manager.Publish(r.Context(), wf.ID, req.VersionID, actingUser(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"published_version": req.VersionID})
}

func (s *Server) rollbackVersion(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	var req versionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.manager.Rollback(r.Context(), wf.ID, req.VersionID, actingUser(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"published_version": req.VersionID})
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	history, err := s.manager.History(r.Context(), wf.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if history == nil {
		history = []*flow.WorkflowVersion{}
	}
	writeJSON(w, http.StatusOK, history)
}

type checkEdgeRequest struct {
	Nodes []flow.Node `json:"nodes"`
	Edges []flow.Edge `json:"edges"`
	Edge  flow.Edge   `json:"edge"`
}

// checkEdge tells the editor whether a pending edge would close a cycle,
// before the draft is saved.
func (s *Server) checkEdge(w http.ResponseWriter, r *http.Request) {
	if s.loadWorkflow(w, r) == nil {
		return
	}
	var req checkEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"creates_cycle": version.CheckEdge(req.Nodes, req.Edges, req.Edge),
	})
}

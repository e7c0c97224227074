package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexflow/flowd/internal/flow"
)

type grantRequest struct {
	UserID string    `json:"user_id"`
	Role   flow.Role `json:"role"`
}

func (s *Server) grantPermission(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if err := s.access.Grant(r.Context(), wf.ID, req.UserID, req.Role, actingUser(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": req.UserID, "role": req.Role})
}

func (s *Server) revokePermission(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := s.access.Revoke(r.Context(), wf.ID, userID, actingUser(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	if err := s.access.Check(r.Context(), wf.ID, actingUser(r), flow.RoleViewer); err != nil {
		writeError(w, err)
		return
	}

	grants, err := s.perms.ListByWorkflow(r.Context(), wf.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if grants == nil {
		grants = []*flow.WorkflowPermission{}
	}
	role, err := s.access.EffectiveRole(r.Context(), wf.ID, actingUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"effective_role": role,
		"grants":         grants,
	})
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/nexflow/flowd/internal/flow"
)

type suggestRequest struct {
	Nodes      []flow.Node `json:"nodes"`
	Edges      []flow.Edge `json:"edges"`
	FromNodeID string      `json:"from_node_id"`
}

func (s *Server) suggestNodes(w http.ResponseWriter, r *http.Request) {
	wf := s.loadWorkflow(w, r)
	if wf == nil {
		return
	}
	if err := s.access.Check(r.Context(), wf.ID, actingUser(r), flow.RoleEditor); err != nil {
		writeError(w, err)
		return
	}

	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.FromNodeID == "" {
		http.Error(w, "from_node_id is required", http.StatusBadRequest)
		return
	}

	suggestions, err := s.suggester.Suggest(r.Context(), req.Nodes, req.Edges, req.FromNodeID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

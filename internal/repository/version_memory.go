package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/nexflow/flowd/internal/flow"
)

// MemoryVersionRepository stores workflow versions in memory. Versions are
// immutable once created; there is deliberately no Update or Delete.
type MemoryVersionRepository struct {
	mu       sync.RWMutex
	versions map[string]*flow.WorkflowVersion
}

func NewMemoryVersionRepository() *MemoryVersionRepository {
	return &MemoryVersionRepository{versions: make(map[string]*flow.WorkflowVersion)}
}

func (r *MemoryVersionRepository) Create(_ context.Context, v *flow.WorkflowVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[v.ID] = snapshotVersion(v)
	return nil
}

func (r *MemoryVersionRepository) Get(_ context.Context, id string) (*flow.WorkflowVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.versions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshotVersion(v), nil
}

func (r *MemoryVersionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*flow.WorkflowVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*flow.WorkflowVersion
	for _, v := range r.versions {
		if v.WorkflowID == workflowID {
			result = append(result, snapshotVersion(v))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

// snapshotVersion deep-copies nodes and edges so callers can never mutate a
// stored version through a returned pointer.
func snapshotVersion(v *flow.WorkflowVersion) *flow.WorkflowVersion {
	cp := *v
	cp.Nodes = make([]flow.Node, len(v.Nodes))
	for i, n := range v.Nodes {
		cp.Nodes[i] = n
		if n.Data != nil {
			data := make(map[string]any, len(n.Data))
			for k, val := range n.Data {
				data[k] = val
			}
			cp.Nodes[i].Data = data
		}
	}
	cp.Edges = append([]flow.Edge(nil), v.Edges...)
	return &cp
}

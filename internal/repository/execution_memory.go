package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/nexflow/flowd/internal/flow"
)

// MemoryExecutionRepository stores execution instances in memory.
type MemoryExecutionRepository struct {
	mu        sync.RWMutex
	instances map[string]*flow.ExecutionInstance
}

func NewMemoryExecutionRepository() *MemoryExecutionRepository {
	return &MemoryExecutionRepository{instances: make(map[string]*flow.ExecutionInstance)}
}

func (r *MemoryExecutionRepository) Create(_ context.Context, in *flow.ExecutionInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[in.ID] = snapshotInstance(in)
	return nil
}

func (r *MemoryExecutionRepository) Get(_ context.Context, id string) (*flow.ExecutionInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshotInstance(in), nil
}

func (r *MemoryExecutionRepository) Update(_ context.Context, in *flow.ExecutionInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[in.ID]; !ok {
		return ErrNotFound
	}
	r.instances[in.ID] = snapshotInstance(in)
	return nil
}

func (r *MemoryExecutionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*flow.ExecutionInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*flow.ExecutionInstance
	for _, in := range r.instances {
		if in.WorkflowID == workflowID {
			result = append(result, snapshotInstance(in))
		}
	}
	sortInstances(result)
	return result, nil
}

func (r *MemoryExecutionRepository) ListByStatus(_ context.Context, orgID string, status flow.ExecutionStatus) ([]*flow.ExecutionInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*flow.ExecutionInstance
	for _, in := range r.instances {
		if in.OrganizationID == orgID && in.Status == status {
			result = append(result, snapshotInstance(in))
		}
	}
	sortInstances(result)
	return result, nil
}

func sortInstances(list []*flow.ExecutionInstance) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartedAt.After(list[j].StartedAt)
	})
}

func snapshotInstance(in *flow.ExecutionInstance) *flow.ExecutionInstance {
	cp := *in
	if in.Context != nil {
		cp.Context = make(map[string]any, len(in.Context))
		for k, v := range in.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}

// MemoryExecutionLogRepository is an append-only in-memory step log.
type MemoryExecutionLogRepository struct {
	mu      sync.RWMutex
	entries map[string][]*flow.ExecutionLogEntry
}

func NewMemoryExecutionLogRepository() *MemoryExecutionLogRepository {
	return &MemoryExecutionLogRepository{entries: make(map[string][]*flow.ExecutionLogEntry)}
}

func (r *MemoryExecutionLogRepository) Append(_ context.Context, entry *flow.ExecutionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entry
	r.entries[entry.InstanceID] = append(r.entries[entry.InstanceID], &cp)
	return nil
}

func (r *MemoryExecutionLogRepository) ListByInstance(_ context.Context, instanceID string) ([]*flow.ExecutionLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.entries[instanceID]
	result := make([]*flow.ExecutionLogEntry, len(src))
	for i, e := range src {
		cp := *e
		result[i] = &cp
	}
	return result, nil
}

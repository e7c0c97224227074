package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nexflow/flowd/internal/flow"
)

// MemoryWorkflowRepository stores workflows in memory.
type MemoryWorkflowRepository struct {
	mu        sync.RWMutex
	workflows map[string]*flow.Workflow
}

func NewMemoryWorkflowRepository() *MemoryWorkflowRepository {
	return &MemoryWorkflowRepository{workflows: make(map[string]*flow.Workflow)}
}

func (r *MemoryWorkflowRepository) Create(_ context.Context, wf *flow.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *wf
	r.workflows[wf.ID] = &cp
	return nil
}

func (r *MemoryWorkflowRepository) Get(_ context.Context, id string) (*flow.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (r *MemoryWorkflowRepository) Update(_ context.Context, wf *flow.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[wf.ID]; !ok {
		return ErrNotFound
	}
	cp := *wf
	r.workflows[wf.ID] = &cp
	return nil
}

func (r *MemoryWorkflowRepository) AdvanceHead(_ context.Context, workflowID, fromVersionID, toVersionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[workflowID]
	if !ok {
		return ErrNotFound
	}
	if wf.CurrentVersion != fromVersionID {
		return ErrStaleHead
	}
	wf.CurrentVersion = toVersionID
	wf.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryWorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(r.workflows, id)
	return nil
}

func (r *MemoryWorkflowRepository) ListByOrganization(_ context.Context, orgID string) ([]*flow.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*flow.Workflow
	for _, wf := range r.workflows {
		if wf.OrganizationID == orgID {
			cp := *wf
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *MemoryWorkflowRepository) ListActiveByTrigger(_ context.Context, orgID, triggerType string) ([]*flow.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*flow.Workflow
	for _, wf := range r.workflows {
		if wf.OrganizationID == orgID && wf.Active && wf.TriggerType == triggerType && wf.PublishedVersion != "" {
			cp := *wf
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

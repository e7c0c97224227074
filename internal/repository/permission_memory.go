package repository

import (
	"context"
	"sync"

	"github.com/nexflow/flowd/internal/flow"
)

// MemoryPermissionRepository stores grants and org defaults in memory.
type MemoryPermissionRepository struct {
	mu       sync.RWMutex
	grants   map[string]*flow.WorkflowPermission // workflowID + "/" + userID
	defaults map[string]flow.Role                // orgID
}

func NewMemoryPermissionRepository() *MemoryPermissionRepository {
	return &MemoryPermissionRepository{
		grants:   make(map[string]*flow.WorkflowPermission),
		defaults: make(map[string]flow.Role),
	}
}

func grantKey(workflowID, userID string) string { return workflowID + "/" + userID }

func (r *MemoryPermissionRepository) Upsert(_ context.Context, p *flow.WorkflowPermission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.grants[grantKey(p.WorkflowID, p.UserID)] = &cp
	return nil
}

func (r *MemoryPermissionRepository) Get(_ context.Context, workflowID, userID string) (*flow.WorkflowPermission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.grants[grantKey(workflowID, userID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryPermissionRepository) Delete(_ context.Context, workflowID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := grantKey(workflowID, userID)
	if _, ok := r.grants[key]; !ok {
		return ErrNotFound
	}
	delete(r.grants, key)
	return nil
}

func (r *MemoryPermissionRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*flow.WorkflowPermission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*flow.WorkflowPermission
	for _, p := range r.grants {
		if p.WorkflowID == workflowID {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *MemoryPermissionRepository) SetOrgDefault(_ context.Context, orgID string, role flow.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[orgID] = role
	return nil
}

func (r *MemoryPermissionRepository) GetOrgDefault(_ context.Context, orgID string) (flow.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.defaults[orgID]
	if !ok {
		return "", ErrNotFound
	}
	return role, nil
}

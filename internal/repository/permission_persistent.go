package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nexflow/flowd/internal/db"
	"github.com/nexflow/flowd/internal/flow"
)

// PermissionDB defines the DB-layer methods needed by the persistent
// permission repo. *db.DB satisfies this interface.
type PermissionDB interface {
	UpsertPermission(ctx context.Context, p *flow.WorkflowPermission) error
	GetPermission(ctx context.Context, workflowID, userID string) (*flow.WorkflowPermission, error)
	DeletePermission(ctx context.Context, workflowID, userID string) error
	ListPermissionsByWorkflow(ctx context.Context, workflowID string) ([]*flow.WorkflowPermission, error)
	SetOrgDefaultRole(ctx context.Context, orgID string, role flow.Role) error
	GetOrgDefaultRole(ctx context.Context, orgID string) (flow.Role, error)
}

// PersistentPermissionRepository wraps MemoryPermissionRepository with a
// PostgreSQL backend.
type PersistentPermissionRepository struct {
	mem *MemoryPermissionRepository
	db  PermissionDB
}

func NewPersistentPermissionRepository(mem *MemoryPermissionRepository, db PermissionDB) *PersistentPermissionRepository {
	return &PersistentPermissionRepository{mem: mem, db: db}
}

func (r *PersistentPermissionRepository) Upsert(ctx context.Context, p *flow.WorkflowPermission) error {
	_ = r.mem.Upsert(ctx, p)
	if err := r.db.UpsertPermission(ctx, p); err != nil {
		return fmt.Errorf("db upsert permission: %w", err)
	}
	return nil
}

func (r *PersistentPermissionRepository) Get(ctx context.Context, workflowID, userID string) (*flow.WorkflowPermission, error) {
	if p, err := r.mem.Get(ctx, workflowID, userID); err == nil {
		return p, nil
	}
	p, err := r.db.GetPermission(ctx, workflowID, userID)
	if errors.Is(err, db.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_ = r.mem.Upsert(ctx, p)
	return p, nil
}

func (r *PersistentPermissionRepository) Delete(ctx context.Context, workflowID, userID string) error {
	_ = r.mem.Delete(ctx, workflowID, userID)
	if err := r.db.DeletePermission(ctx, workflowID, userID); err != nil {
		return fmt.Errorf("db delete permission: %w", err)
	}
	return nil
}

func (r *PersistentPermissionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*flow.WorkflowPermission, error) {
	perms, err := r.db.ListPermissionsByWorkflow(ctx, workflowID)
	if err == nil {
		return perms, nil
	}
	slog.Warn("db list permissions failed, falling back to in-memory", "err", err)
	return r.mem.ListByWorkflow(ctx, workflowID)
}

func (r *PersistentPermissionRepository) SetOrgDefault(ctx context.Context, orgID string, role flow.Role) error {
	_ = r.mem.SetOrgDefault(ctx, orgID, role)
	if err := r.db.SetOrgDefaultRole(ctx, orgID, role); err != nil {
		return fmt.Errorf("db set org default role: %w", err)
	}
	return nil
}

func (r *PersistentPermissionRepository) GetOrgDefault(ctx context.Context, orgID string) (flow.Role, error) {
	if role, err := r.mem.GetOrgDefault(ctx, orgID); err == nil && role != "" {
		return role, nil
	}
	role, err := r.db.GetOrgDefaultRole(ctx, orgID)
	if errors.Is(err, db.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	_ = r.mem.SetOrgDefault(ctx, orgID, role)
	return role, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nexflow/flowd/internal/db"
	"github.com/nexflow/flowd/internal/flow"
)

// VersionDB defines the DB-layer methods needed by the persistent version
// repo. *db.DB satisfies this interface.
type VersionDB interface {
	InsertVersion(ctx context.Context, v *flow.WorkflowVersion) error
	GetVersion(ctx context.Context, id string) (*flow.WorkflowVersion, error)
	ListVersionsByWorkflow(ctx context.Context, workflowID string) ([]*flow.WorkflowVersion, error)
}

// PersistentVersionRepository wraps MemoryVersionRepository with a
// PostgreSQL backend.
type PersistentVersionRepository struct {
	mem *MemoryVersionRepository
	db  VersionDB
}

func NewPersistentVersionRepository(mem *MemoryVersionRepository, db VersionDB) *PersistentVersionRepository {
	return &PersistentVersionRepository{mem: mem, db: db}
}

func (r *PersistentVersionRepository) Create(ctx context.Context, v *flow.WorkflowVersion) error {
	_ = r.mem.Create(ctx, v)
	if err := r.db.InsertVersion(ctx, v); err != nil {
		return fmt.Errorf("db create version: %w", err)
	}
	return nil
}

func (r *PersistentVersionRepository) Get(ctx context.Context, id string) (*flow.WorkflowVersion, error) {
	if v, err := r.mem.Get(ctx, id); err == nil {
		return v, nil
	}
	v, err := r.db.GetVersion(ctx, id)
	if errors.Is(err, db.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_ = r.mem.Create(ctx, v)
	return v, nil
}

func (r *PersistentVersionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*flow.WorkflowVersion, error) {
	versions, err := r.db.ListVersionsByWorkflow(ctx, workflowID)
	if err == nil {
		return versions, nil
	}
	slog.Warn("db list versions failed, falling back to in-memory", "err", err)
	return r.mem.ListByWorkflow(ctx, workflowID)
}

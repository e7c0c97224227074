package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nexflow/flowd/internal/db"
	"github.com/nexflow/flowd/internal/flow"
)

// WorkflowDB defines the DB-layer methods needed by the persistent workflow
// repo. *db.DB satisfies this interface.
type WorkflowDB interface {
	InsertWorkflow(ctx context.Context, wf *flow.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*flow.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *flow.Workflow) error
	AdvanceWorkflowHead(ctx context.Context, workflowID, fromVersionID, toVersionID string) error
	DeleteWorkflow(ctx context.Context, id string) error
	ListWorkflowsByOrganization(ctx context.Context, orgID string) ([]*flow.Workflow, error)
	ListActiveWorkflowsByTrigger(ctx context.Context, orgID, triggerType string) ([]*flow.Workflow, error)
}

// PersistentWorkflowRepository wraps MemoryWorkflowRepository with a
// PostgreSQL backend. Writes go to both. Reads try memory first; on miss,
// fall back to DB and cache.
type PersistentWorkflowRepository struct {
	mem *MemoryWorkflowRepository
	db  WorkflowDB
}

func NewPersistentWorkflowRepository(mem *MemoryWorkflowRepository, db WorkflowDB) *PersistentWorkflowRepository {
	return &PersistentWorkflowRepository{mem: mem, db: db}
}

func (r *PersistentWorkflowRepository) Create(ctx context.Context, wf *flow.Workflow) error {
	_ = r.mem.Create(ctx, wf)
	if err := r.db.InsertWorkflow(ctx, wf); err != nil {
		return fmt.Errorf("db create workflow: %w", err)
	}
	return nil
}

func (r *PersistentWorkflowRepository) Get(ctx context.Context, id string) (*flow.Workflow, error) {
	if wf, err := r.mem.Get(ctx, id); err == nil {
		return wf, nil
	}
	wf, err := r.db.GetWorkflow(ctx, id)
	if errors.Is(err, db.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_ = r.mem.Create(ctx, wf)
	return wf, nil
}

func (r *PersistentWorkflowRepository) Update(ctx context.Context, wf *flow.Workflow) error {
	_ = r.mem.Update(ctx, wf)
	if err := r.db.UpdateWorkflow(ctx, wf); err != nil {
		return fmt.Errorf("db update workflow: %w", err)
	}
	return nil
}

// AdvanceHead lets the database arbitrate the compare-and-swap; the memory
// layer is updated only after the database accepts the swap.
func (r *PersistentWorkflowRepository) AdvanceHead(ctx context.Context, workflowID, fromVersionID, toVersionID string) error {
	if err := r.db.AdvanceWorkflowHead(ctx, workflowID, fromVersionID, toVersionID); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return ErrStaleHead
		}
		return fmt.Errorf("db advance head: %w", err)
	}
	_ = r.mem.AdvanceHead(ctx, workflowID, fromVersionID, toVersionID)
	return nil
}

func (r *PersistentWorkflowRepository) Delete(ctx context.Context, id string) error {
	_ = r.mem.Delete(ctx, id)
	if err := r.db.DeleteWorkflow(ctx, id); err != nil {
		return fmt.Errorf("db delete workflow: %w", err)
	}
	return nil
}

func (r *PersistentWorkflowRepository) ListByOrganization(ctx context.Context, orgID string) ([]*flow.Workflow, error) {
	wfs, err := r.db.ListWorkflowsByOrganization(ctx, orgID)
	if err == nil {
		return wfs, nil
	}
	slog.Warn("db list workflows failed, falling back to in-memory", "err", err)
	return r.mem.ListByOrganization(ctx, orgID)
}

func (r *PersistentWorkflowRepository) ListActiveByTrigger(ctx context.Context, orgID, triggerType string) ([]*flow.Workflow, error) {
	wfs, err := r.db.ListActiveWorkflowsByTrigger(ctx, orgID, triggerType)
	if err == nil {
		return wfs, nil
	}
	slog.Warn("db list workflows by trigger failed, falling back to in-memory", "err", err)
	return r.mem.ListActiveByTrigger(ctx, orgID, triggerType)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nexflow/flowd/internal/db"
	"github.com/nexflow/flowd/internal/flow"
)

// ExecutionDB defines the DB-layer methods needed by the persistent
// execution repos. *db.DB satisfies this interface.
type ExecutionDB interface {
	InsertExecution(ctx context.Context, e *flow.ExecutionInstance) error
	GetExecution(ctx context.Context, id string) (*flow.ExecutionInstance, error)
	UpdateExecution(ctx context.Context, e *flow.ExecutionInstance) error
	ListExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*flow.ExecutionInstance, error)
	ListExecutionsByStatus(ctx context.Context, orgID string, status flow.ExecutionStatus) ([]*flow.ExecutionInstance, error)
}

// ExecutionLogDB defines the DB-layer methods needed by the persistent log
// repo.
type ExecutionLogDB interface {
	AppendExecutionLog(ctx context.Context, entry *flow.ExecutionLogEntry) error
	ListExecutionLogs(ctx context.Context, instanceID string) ([]*flow.ExecutionLogEntry, error)
}

// PersistentExecutionRepository wraps MemoryExecutionRepository with a
// PostgreSQL backend.
type PersistentExecutionRepository struct {
	mem *MemoryExecutionRepository
	db  ExecutionDB
}

func NewPersistentExecutionRepository(mem *MemoryExecutionRepository, db ExecutionDB) *PersistentExecutionRepository {
	return &PersistentExecutionRepository{mem: mem, db: db}
}

func (r *PersistentExecutionRepository) Create(ctx context.Context, in *flow.ExecutionInstance) error {
	_ = r.mem.Create(ctx, in)
	if err := r.db.InsertExecution(ctx, in); err != nil {
		return fmt.Errorf("db create execution: %w", err)
	}
	return nil
}

func (r *PersistentExecutionRepository) Get(ctx context.Context, id string) (*flow.ExecutionInstance, error) {
	if in, err := r.mem.Get(ctx, id); err == nil {
		return in, nil
	}
	in, err := r.db.GetExecution(ctx, id)
	if errors.Is(err, db.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	_ = r.mem.Create(ctx, in)
	return in, nil
}

func (r *PersistentExecutionRepository) Update(ctx context.Context, in *flow.ExecutionInstance) error {
	_ = r.mem.Update(ctx, in)
	if err := r.db.UpdateExecution(ctx, in); err != nil {
		return fmt.Errorf("db update execution: %w", err)
	}
	return nil
}

func (r *PersistentExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*flow.ExecutionInstance, error) {
	instances, err := r.db.ListExecutionsByWorkflow(ctx, workflowID)
	if err == nil {
		return instances, nil
	}
	slog.Warn("db list executions failed, falling back to in-memory", "err", err)
	return r.mem.ListByWorkflow(ctx, workflowID)
}

func (r *PersistentExecutionRepository) ListByStatus(ctx context.Context, orgID string, status flow.ExecutionStatus) ([]*flow.ExecutionInstance, error) {
	instances, err := r.db.ListExecutionsByStatus(ctx, orgID, status)
	if err == nil {
		return instances, nil
	}
	slog.Warn("db list executions by status failed, falling back to in-memory", "err", err)
	return r.mem.ListByStatus(ctx, orgID, status)
}

// PersistentExecutionLogRepository wraps MemoryExecutionLogRepository with a
// PostgreSQL backend. The log is append-only in both layers.
type PersistentExecutionLogRepository struct {
	mem *MemoryExecutionLogRepository
	db  ExecutionLogDB
}

func NewPersistentExecutionLogRepository(mem *MemoryExecutionLogRepository, db ExecutionLogDB) *PersistentExecutionLogRepository {
	return &PersistentExecutionLogRepository{mem: mem, db: db}
}

func (r *PersistentExecutionLogRepository) Append(ctx context.Context, entry *flow.ExecutionLogEntry) error {
	_ = r.mem.Append(ctx, entry)
	if err := r.db.AppendExecutionLog(ctx, entry); err != nil {
		return fmt.Errorf("db append execution log: %w", err)
	}
	return nil
}

func (r *PersistentExecutionLogRepository) ListByInstance(ctx context.Context, instanceID string) ([]*flow.ExecutionLogEntry, error) {
	entries, err := r.db.ListExecutionLogs(ctx, instanceID)
	if err == nil {
		return entries, nil
	}
	slog.Warn("db list execution logs failed, falling back to in-memory", "err", err)
	return r.mem.ListByInstance(ctx, instanceID)
}

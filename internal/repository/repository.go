// Package repository abstracts persistence for the workflow engine.
// Every store has an in-memory implementation and a persistent wrapper that
// writes through to PostgreSQL, so the engine runs with or without a
// database.
package repository

import (
	"context"
	"errors"

	"github.com/nexflow/flowd/internal/flow"
)

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleHead is returned by AdvanceHead when the workflow's current version
// no longer matches the caller's base version.
var ErrStaleHead = errors.New("stale head")

// WorkflowRepository stores workflow heads (graphs live in versions).
type WorkflowRepository interface {
	Create(ctx context.Context, wf *flow.Workflow) error
	Get(ctx context.Context, id string) (*flow.Workflow, error)
	Update(ctx context.Context, wf *flow.Workflow) error
	Delete(ctx context.Context, id string) error
	ListByOrganization(ctx context.Context, orgID string) ([]*flow.Workflow, error)
	// ListActiveByTrigger returns active workflows in an organization whose
	// trigger type matches; used by the dispatcher on every event.
	ListActiveByTrigger(ctx context.Context, orgID, triggerType string) ([]*flow.Workflow, error)
	// AdvanceHead moves CurrentVersion from fromVersionID to toVersionID as a
	// single compare-and-swap. Returns ErrStaleHead when the head has moved,
	// so concurrent saves from one base resolve to exactly one winner.
	AdvanceHead(ctx context.Context, workflowID, fromVersionID, toVersionID string) error
}

// VersionRepository stores immutable workflow versions, append-only.
type VersionRepository interface {
	Create(ctx context.Context, v *flow.WorkflowVersion) error
	Get(ctx context.Context, id string) (*flow.WorkflowVersion, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*flow.WorkflowVersion, error)
}

// ExecutionRepository stores execution instances.
type ExecutionRepository interface {
	Create(ctx context.Context, in *flow.ExecutionInstance) error
	Get(ctx context.Context, id string) (*flow.ExecutionInstance, error)
	Update(ctx context.Context, in *flow.ExecutionInstance) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]*flow.ExecutionInstance, error)
	ListByStatus(ctx context.Context, orgID string, status flow.ExecutionStatus) ([]*flow.ExecutionInstance, error)
}

// ExecutionLogRepository is the append-only step-level audit trail.
type ExecutionLogRepository interface {
	Append(ctx context.Context, entry *flow.ExecutionLogEntry) error
	ListByInstance(ctx context.Context, instanceID string) ([]*flow.ExecutionLogEntry, error)
}

// PermissionRepository stores per-workflow grants and org-wide defaults.
type PermissionRepository interface {
	Upsert(ctx context.Context, p *flow.WorkflowPermission) error
	Get(ctx context.Context, workflowID, userID string) (*flow.WorkflowPermission, error)
	Delete(ctx context.Context, workflowID, userID string) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]*flow.WorkflowPermission, error)
	SetOrgDefault(ctx context.Context, orgID string, role flow.Role) error
	GetOrgDefault(ctx context.Context, orgID string) (flow.Role, error)
}

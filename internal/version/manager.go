// Package version owns workflow graph mutation: immutable snapshots,
// publish, rollback. All writes funnel through here; the graph payload of a
// saved version is never rewritten.
package version

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexflow/flowd/internal/access"
	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/graph"
	"github.com/nexflow/flowd/internal/repository"
	"github.com/nexflow/flowd/internal/validate"
)

// Manager creates and repoints workflow versions. Concurrent edits are
// guarded by an optimistic-concurrency check, not locks: edits are
// infrequent and conflicts are best resolved by rejection-and-retry.
type Manager struct {
	workflows repository.WorkflowRepository
	versions  repository.VersionRepository
	access    *access.Service
}

func NewManager(workflows repository.WorkflowRepository, versions repository.VersionRepository, accessSvc *access.Service) *Manager {
	return &Manager{workflows: workflows, versions: versions, access: accessSvc}
}

// CreateWorkflow registers a new workflow head owned by an organization and
// bootstraps the creator as its admin. The graph arrives later via SaveDraft.
func (m *Manager) CreateWorkflow(ctx context.Context, orgID, name, triggerType string, triggerConfig map[string]any, actorID string) (*flow.Workflow, error) {
	now := time.Now()
	wf := &flow.Workflow{
		ID:             flow.GenerateID("wf"),
		OrganizationID: orgID,
		Name:           name,
		TriggerType:    triggerType,
		TriggerConfig:  triggerConfig,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.workflows.Create(ctx, wf); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	if err := m.access.Bootstrap(ctx, wf.ID, actorID); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	return wf, nil
}

// SaveDraft validates the graph and, when clean, appends an immutable
// version and advances the workflow's current head. baseVersionID must be
// the head the editor loaded; if the head has moved since, the save is
// rejected with a StaleVersionError instead of silently overwriting another
// editor's change. Requires editor or higher.
func (m *Manager) SaveDraft(ctx context.Context, workflowID, baseVersionID string, nodes []flow.Node, edges []flow.Edge, actorID string) (*flow.WorkflowVersion, error) {
	if err := m.access.Check(ctx, workflowID, actorID, flow.RoleEditor); err != nil {
		return nil, err
	}

	if errs := validate.Validate(nodes, edges); len(errs) > 0 {
		return nil, errs
	}

	wf, err := m.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	if wf.CurrentVersion != baseVersionID {
		return nil, m.staleError(ctx, workflowID, baseVersionID, wf.CurrentVersion)
	}

	number := 1
	if wf.CurrentVersion != "" {
		head, err := m.versions.Get(ctx, wf.CurrentVersion)
		if err != nil {
			return nil, fmt.Errorf("load head version: %w", err)
		}
		number = head.Number + 1
	}

	v := &flow.WorkflowVersion{
		ID:         flow.GenerateID("ver"),
		WorkflowID: workflowID,
		Number:     number,
		Nodes:      nodes,
		Edges:      edges,
		CreatedBy:  actorID,
		CreatedAt:  time.Now(),
	}

	// The compare-and-swap on the head is the arbiter between concurrent
	// saves from one base: exactly one advances, the rest are rejected
	// before any version row exists.
	if err := m.workflows.AdvanceHead(ctx, workflowID, baseVersionID, v.ID); err != nil {
		if errors.Is(err, repository.ErrStaleHead) {
			return nil, m.staleError(ctx, workflowID, baseVersionID, "")
		}
		return nil, fmt.Errorf("advance head: %w", err)
	}
	if err := m.versions.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("save version: %w", err)
	}

	slog.Info("draft saved", "workflow", workflowID, "version", v.ID, "number", v.Number, "by", actorID)
	return v, nil
}

// staleError builds a StaleVersionError, re-reading the workflow for the
// winning head when the caller lost a race and does not know it yet.
func (m *Manager) staleError(ctx context.Context, workflowID, baseVersionID, headVersionID string) error {
	if headVersionID == "" {
		if wf, err := m.workflows.Get(ctx, workflowID); err == nil {
			headVersionID = wf.CurrentVersion
		}
	}
	return &flow.StaleVersionError{
		WorkflowID:  workflowID,
		BaseVersion: baseVersionID,
		HeadVersion: headVersionID,
	}
}

// Publish makes a saved version the one the dispatcher executes.
// Requires approver or higher.
func (m *Manager) Publish(ctx context.Context, workflowID, versionID, actorID string) error {
	if err := m.access.Check(ctx, workflowID, actorID, flow.RoleApprover); err != nil {
		return err
	}
	return m.repoint(ctx, workflowID, versionID, actorID, "published")
}

// Rollback repoints the published version to a prior snapshot. The version
// history itself is append-only and is never rewritten. Requires approver.
func (m *Manager) Rollback(ctx context.Context, workflowID, targetVersionID, actorID string) error {
	if err := m.access.Check(ctx, workflowID, actorID, flow.RoleApprover); err != nil {
		return err
	}
	return m.repoint(ctx, workflowID, targetVersionID, actorID, "rolled back")
}

func (m *Manager) repoint(ctx context.Context, workflowID, versionID, actorID, verb string) error {
	v, err := m.versions.Get(ctx, versionID)
	if err != nil {
		return fmt.Errorf("load version: %w", err)
	}
	if v.WorkflowID != workflowID {
		return fmt.Errorf("version %q does not belong to workflow %q", versionID, workflowID)
	}
	wf, err := m.workflows.Get(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load workflow: %w", err)
	}
	wf.PublishedVersion = v.ID
	wf.UpdatedAt = time.Now()
	if err := m.workflows.Update(ctx, wf); err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	slog.Info("version "+verb, "workflow", workflowID, "version", versionID, "number", v.Number, "by", actorID)
	return nil
}

// History lists a workflow's versions in ascending version number.
func (m *Manager) History(ctx context.Context, workflowID string) ([]*flow.WorkflowVersion, error) {
	return m.versions.ListByWorkflow(ctx, workflowID)
}

// CheckEdge reports whether adding candidate to the given graph would create
// a cycle; used by editors before an edge is committed.
func CheckEdge(nodes []flow.Node, edges []flow.Edge, candidate flow.Edge) bool {
	return graph.WouldCreateCycle(nodes, edges, candidate)
}

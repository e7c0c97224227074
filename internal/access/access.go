// Package access gates workflow mutation and administrative operations.
// Roles form a total order viewer < editor < approver < admin. Runtime
// execution is event-driven and never consults this service.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/repository"
)

// Service resolves a user's effective role on a workflow: the explicit
// per-workflow grant when present, otherwise the organization-wide default.
type Service struct {
	perms     repository.PermissionRepository
	workflows repository.WorkflowRepository
}

func NewService(perms repository.PermissionRepository, workflows repository.WorkflowRepository) *Service {
	return &Service{perms: perms, workflows: workflows}
}

// EffectiveRole returns the user's role on the workflow. A user with neither
// a grant nor an org default has no role (empty, rank 0).
func (s *Service) EffectiveRole(ctx context.Context, workflowID, userID string) (flow.Role, error) {
	grant, err := s.perms.Get(ctx, workflowID, userID)
	if err == nil {
		return grant.Role, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("resolve grant: %w", err)
	}

	wf, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return "", fmt.Errorf("resolve workflow: %w", err)
	}
	role, err := s.perms.GetOrgDefault(ctx, wf.OrganizationID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve org default: %w", err)
	}
	return role, nil
}

// Check returns an AuthorizationError unless the user's effective role ranks
// at or above required. It is called before any mutation is attempted, so a
// rejection leaves no partial state.
func (s *Service) Check(ctx context.Context, workflowID, userID string, required flow.Role) error {
	actual, err := s.EffectiveRole(ctx, workflowID, userID)
	if err != nil {
		return err
	}
	if !actual.AtLeast(required) {
		return &flow.AuthorizationError{
			WorkflowID: workflowID, UserID: userID,
			Required: required, Actual: actual,
		}
	}
	return nil
}

// Grant assigns a role. Granting requires admin on the workflow.
func (s *Service) Grant(ctx context.Context, workflowID, userID string, role flow.Role, actorID string) error {
	if role.Rank() == 0 {
		return fmt.Errorf("unknown role %q", role)
	}
	if err := s.Check(ctx, workflowID, actorID, flow.RoleAdmin); err != nil {
		return err
	}
	return s.perms.Upsert(ctx, &flow.WorkflowPermission{
		WorkflowID: workflowID, UserID: userID, Role: role, GrantedBy: actorID,
	})
}

// Revoke removes a user's explicit grant. Requires admin.
func (s *Service) Revoke(ctx context.Context, workflowID, userID, actorID string) error {
	if err := s.Check(ctx, workflowID, actorID, flow.RoleAdmin); err != nil {
		return err
	}
	return s.perms.Delete(ctx, workflowID, userID)
}

// Bootstrap installs an admin grant without an actor check. Used when a
// workflow is created, so its creator can administer it.
func (s *Service) Bootstrap(ctx context.Context, workflowID, userID string) error {
	return s.perms.Upsert(ctx, &flow.WorkflowPermission{
		WorkflowID: workflowID, UserID: userID, Role: flow.RoleAdmin, GrantedBy: userID,
	})
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nexflow/flowd/internal/flow"
)

// UpsertPermission writes a per-workflow role grant.
func (d *DB) UpsertPermission(ctx context.Context, p *flow.WorkflowPermission) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO permissions (workflow_id, user_id, role, granted_by, granted_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (workflow_id, user_id)
		 DO UPDATE SET role = EXCLUDED.role, granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at`,
		p.WorkflowID, p.UserID, p.Role, p.GrantedBy, p.GrantedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert permission: %w", err)
	}
	return nil
}

// GetPermission retrieves the grant for one user on one workflow.
func (d *DB) GetPermission(ctx context.Context, workflowID, userID string) (*flow.WorkflowPermission, error) {
	var p flow.WorkflowPermission
	err := d.Pool.QueryRowContext(ctx,
		`SELECT workflow_id, user_id, role, granted_by, granted_at
		 FROM permissions WHERE workflow_id = $1 AND user_id = $2`,
		workflowID, userID,
	).Scan(&p.WorkflowID, &p.UserID, &p.Role, &p.GrantedBy, &p.GrantedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return &p, nil
}

// DeletePermission revokes a grant.
func (d *DB) DeletePermission(ctx context.Context, workflowID, userID string) error {
	res, err := d.Pool.ExecContext(ctx,
		`DELETE FROM permissions WHERE workflow_id = $1 AND user_id = $2`, workflowID, userID)
	if err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoRows
	}
	return nil
}

// ListPermissionsByWorkflow returns every grant on a workflow.
func (d *DB) ListPermissionsByWorkflow(ctx context.Context, workflowID string) ([]*flow.WorkflowPermission, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT workflow_id, user_id, role, granted_by, granted_at
		 FROM permissions WHERE workflow_id = $1 ORDER BY user_id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var result []*flow.WorkflowPermission
	for rows.Next() {
		var p flow.WorkflowPermission
		if err := rows.Scan(&p.WorkflowID, &p.UserID, &p.Role, &p.GrantedBy, &p.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// SetOrgDefaultRole sets the tenant-wide fallback role.
func (d *DB) SetOrgDefaultRole(ctx context.Context, orgID string, role flow.Role) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO org_default_roles (organization_id, role) VALUES ($1, $2)
		 ON CONFLICT (organization_id) DO UPDATE SET role = EXCLUDED.role`,
		orgID, role,
	)
	if err != nil {
		return fmt.Errorf("set org default role: %w", err)
	}
	return nil
}

// GetOrgDefaultRole retrieves the tenant-wide fallback role.
func (d *DB) GetOrgDefaultRole(ctx context.Context, orgID string) (flow.Role, error) {
	var role flow.Role
	err := d.Pool.QueryRowContext(ctx,
		`SELECT role FROM org_default_roles WHERE organization_id = $1`, orgID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRows
	}
	if err != nil {
		return "", fmt.Errorf("get org default role: %w", err)
	}
	return role, nil
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nexflow/flowd/internal/flow"
)

// ErrNoRows is returned when a lookup matches nothing. Callers map it onto
// their own not-found sentinel.
var ErrNoRows = errors.New("db: no rows")

const workflowColumns = `id, organization_id, name, trigger_type, trigger_config,
	current_version, published_version, active, created_at, updated_at`

// InsertWorkflow stores a new workflow.
func (d *DB) InsertWorkflow(ctx context.Context, wf *flow.Workflow) error {
	cfgJSON, err := marshalMap(wf.TriggerConfig)
	if err != nil {
		return fmt.Errorf("marshal trigger config: %w", err)
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO workflows (id, organization_id, name, trigger_type, trigger_config,
		   current_version, published_version, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		wf.ID, wf.OrganizationID, wf.Name, wf.TriggerType, cfgJSON,
		wf.CurrentVersion, wf.PublishedVersion, wf.Active, wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by id.
func (d *DB) GetWorkflow(ctx context.Context, id string) (*flow.Workflow, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	return scanWorkflow(row)
}

// UpdateWorkflow rewrites a workflow row.
func (d *DB) UpdateWorkflow(ctx context.Context, wf *flow.Workflow) error {
	cfgJSON, err := marshalMap(wf.TriggerConfig)
	if err != nil {
		return fmt.Errorf("marshal trigger config: %w", err)
	}

	res, err := d.Pool.ExecContext(ctx,
		`UPDATE workflows SET name = $1, trigger_type = $2, trigger_config = $3,
		   current_version = $4, published_version = $5, active = $6, updated_at = $7
		 WHERE id = $8`,
		wf.Name, wf.TriggerType, cfgJSON, wf.CurrentVersion, wf.PublishedVersion,
		wf.Active, wf.UpdatedAt, wf.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoRows
	}
	return nil
}

// AdvanceWorkflowHead moves current_version from fromVersionID to
// toVersionID in one conditional UPDATE; a zero-row result means the head has
// moved (or the workflow is gone) and is reported as ErrNoRows.
func (d *DB) AdvanceWorkflowHead(ctx context.Context, workflowID, fromVersionID, toVersionID string) error {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE workflows SET current_version = $1, updated_at = NOW()
		 WHERE id = $2 AND current_version = $3`,
		toVersionID, workflowID, fromVersionID,
	)
	if err != nil {
		return fmt.Errorf("advance workflow head: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoRows
	}
	return nil
}

// DeleteWorkflow removes a workflow and, via cascade, its versions and logs.
func (d *DB) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := d.Pool.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoRows
	}
	return nil
}

// ListWorkflowsByOrganization returns all workflows owned by one tenant.
func (d *DB) ListWorkflowsByOrganization(ctx context.Context, orgID string) ([]*flow.Workflow, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows
		 WHERE organization_id = $1 ORDER BY updated_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

// ListActiveWorkflowsByTrigger returns the published, active workflows of a
// tenant whose trigger type matches.
func (d *DB) ListActiveWorkflowsByTrigger(ctx context.Context, orgID, triggerType string) ([]*flow.Workflow, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows
		 WHERE organization_id = $1 AND trigger_type = $2 AND active AND published_version <> ''`,
		orgID, triggerType)
	if err != nil {
		return nil, fmt.Errorf("list workflows by trigger: %w", err)
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*flow.Workflow, error) {
	var wf flow.Workflow
	var cfgJSON []byte
	err := row.Scan(&wf.ID, &wf.OrganizationID, &wf.Name, &wf.TriggerType, &cfgJSON,
		&wf.CurrentVersion, &wf.PublishedVersion, &wf.Active, &wf.CreatedAt, &wf.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	if err := json.Unmarshal(cfgJSON, &wf.TriggerConfig); err != nil {
		return nil, fmt.Errorf("unmarshal trigger config: %w", err)
	}
	return &wf, nil
}

func collectWorkflows(rows *sql.Rows) ([]*flow.Workflow, error) {
	var result []*flow.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, wf)
	}
	return result, rows.Err()
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nexflow/flowd/internal/flow"
)

const executionColumns = `id, workflow_id, version_id, organization_id, status,
	context, error, started_at, completed_at`

// InsertExecution stores a new execution instance.
func (d *DB) InsertExecution(ctx context.Context, e *flow.ExecutionInstance) error {
	ctxJSON, err := marshalMap(e.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, version_id, organization_id, status,
		   context, error, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.WorkflowID, e.VersionID, e.OrganizationID, e.Status,
		ctxJSON, e.Error, e.StartedAt, e.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// UpdateExecution rewrites status, context and completion fields.
func (d *DB) UpdateExecution(ctx context.Context, e *flow.ExecutionInstance) error {
	ctxJSON, err := marshalMap(e.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	res, err := d.Pool.ExecContext(ctx,
		`UPDATE executions SET status = $1, context = $2, error = $3, completed_at = $4
		 WHERE id = $5`,
		e.Status, ctxJSON, e.Error, e.CompletedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoRows
	}
	return nil
}

// GetExecution retrieves an execution instance by id.
func (d *DB) GetExecution(ctx context.Context, id string) (*flow.ExecutionInstance, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	return scanExecution(row)
}

// ListExecutionsByWorkflow returns a workflow's instances, newest first.
func (d *DB) ListExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*flow.ExecutionInstance, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions
		 WHERE workflow_id = $1 ORDER BY started_at DESC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

// ListExecutionsByStatus returns a tenant's instances in one status, newest
// first.
func (d *DB) ListExecutionsByStatus(ctx context.Context, orgID string, status flow.ExecutionStatus) ([]*flow.ExecutionInstance, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions
		 WHERE organization_id = $1 AND status = $2 ORDER BY started_at DESC`, orgID, status)
	if err != nil {
		return nil, fmt.Errorf("list executions by status: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

// AppendExecutionLog writes one node-visit record.
func (d *DB) AppendExecutionLog(ctx context.Context, entry *flow.ExecutionLogEntry) error {
	inputJSON, err := marshalMap(entry.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	outputJSON, err := marshalMap(entry.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO execution_logs (instance_id, node_id, node_type, status, input, output,
		   attempt, error, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.InstanceID, entry.NodeID, entry.NodeType, entry.Status, inputJSON, outputJSON,
		entry.Attempt, entry.Error, entry.StartedAt, entry.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("append execution log: %w", err)
	}
	return nil
}

// ListExecutionLogs returns an instance's log entries in append order.
func (d *DB) ListExecutionLogs(ctx context.Context, instanceID string) ([]*flow.ExecutionLogEntry, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT instance_id, node_id, node_type, status, input, output, attempt, error,
		   started_at, completed_at
		 FROM execution_logs WHERE instance_id = $1 ORDER BY id ASC`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("list execution logs: %w", err)
	}
	defer rows.Close()

	var result []*flow.ExecutionLogEntry
	for rows.Next() {
		var e flow.ExecutionLogEntry
		var inputJSON, outputJSON []byte
		if err := rows.Scan(&e.InstanceID, &e.NodeID, &e.NodeType, &e.Status, &inputJSON,
			&outputJSON, &e.Attempt, &e.Error, &e.StartedAt, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		if err := json.Unmarshal(inputJSON, &e.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
		if err := json.Unmarshal(outputJSON, &e.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func scanExecution(row rowScanner) (*flow.ExecutionInstance, error) {
	var e flow.ExecutionInstance
	var ctxJSON []byte
	err := row.Scan(&e.ID, &e.WorkflowID, &e.VersionID, &e.OrganizationID, &e.Status,
		&ctxJSON, &e.Error, &e.StartedAt, &e.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	if err := json.Unmarshal(ctxJSON, &e.Context); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	return &e, nil
}

func collectExecutions(rows *sql.Rows) ([]*flow.ExecutionInstance, error) {
	var result []*flow.ExecutionInstance
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nexflow/flowd/internal/flow"
)

// InsertVersion stores an immutable workflow version snapshot.
func (d *DB) InsertVersion(ctx context.Context, v *flow.WorkflowVersion) error {
	nodesJSON, err := json.Marshal(v.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(v.Edges)
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}

	_, err = d.Pool.ExecContext(ctx,
		`INSERT INTO workflow_versions (id, workflow_id, number, nodes, edges, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.WorkflowID, v.Number, nodesJSON, edgesJSON, v.CreatedBy, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// GetVersion retrieves a version snapshot by id.
func (d *DB) GetVersion(ctx context.Context, id string) (*flow.WorkflowVersion, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT id, workflow_id, number, nodes, edges, created_by, created_at
		 FROM workflow_versions WHERE id = $1`, id)
	return scanVersion(row)
}

// ListVersionsByWorkflow returns a workflow's version history, oldest first.
func (d *DB) ListVersionsByWorkflow(ctx context.Context, workflowID string) ([]*flow.WorkflowVersion, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, workflow_id, number, nodes, edges, created_by, created_at
		 FROM workflow_versions WHERE workflow_id = $1 ORDER BY number ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var result []*flow.WorkflowVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func scanVersion(row rowScanner) (*flow.WorkflowVersion, error) {
	var v flow.WorkflowVersion
	var nodesJSON, edgesJSON []byte
	err := row.Scan(&v.ID, &v.WorkflowID, &v.Number, &nodesJSON, &edgesJSON, &v.CreatedBy, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("scan version: %w", err)
	}
	if err := json.Unmarshal(nodesJSON, &v.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &v.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	return &v, nil
}

package flow

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationCode classifies a structural problem found at save time.
type ValidationCode string

const (
	CodeTriggerCount  ValidationCode = "trigger_count"
	CodeDuplicateNode ValidationCode = "duplicate_node"
	CodeDanglingEdge  ValidationCode = "dangling_edge"
	CodeCycle         ValidationCode = "cycle"
	CodeWeight        ValidationCode = "weight"
	CodeSchema        ValidationCode = "schema"
	CodeUnknownType   ValidationCode = "unknown_type"
)

// ValidationError describes one structural or schema problem in a graph.
// It blocks persistence and is never auto-corrected.
type ValidationError struct {
	Code    ValidationCode `json:"code"`
	NodeID  string         `json:"node_id,omitempty"`
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message"`
	// Nodes names every node involved for cycle errors.
	Nodes []string `json:"nodes,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %q: %s", e.Code, e.NodeID, e.Message)
	}
	if len(e.Nodes) > 0 {
		return fmt.Sprintf("%s: nodes [%s]: %s", e.Code, strings.Join(e.Nodes, " "), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationErrors aggregates every problem found in one validation pass.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ExecutionError is a single node handler failure, isolated to its instance.
type ExecutionError struct {
	InstanceID string
	NodeID     string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s: node %q: %v", e.InstanceID, e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ConfigurationError marks an unknown node type or missing required field
// that escaped validation. It should never surface mid-execution.
type ConfigurationError struct {
	NodeID  string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: node %q: %s", e.NodeID, e.Message)
}

// AuthorizationError is returned before any mutation when the acting user's
// role rank is insufficient.
type AuthorizationError struct {
	WorkflowID string
	UserID     string
	Required   Role
	Actual     Role
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization: user %q needs %s on workflow %q (has %s)",
		e.UserID, e.Required, e.WorkflowID, e.Actual)
}

// StaleVersionError is an optimistic-concurrency conflict: the save was based
// on a version that is no longer the workflow's current head. The caller must
// re-fetch and retry.
type StaleVersionError struct {
	WorkflowID  string
	BaseVersion string
	HeadVersion string
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("stale version: workflow %q head is %q, save was based on %q",
		e.WorkflowID, e.HeadVersion, e.BaseVersion)
}

// IsStaleVersion reports whether err is (or wraps) a StaleVersionError.
func IsStaleVersion(err error) bool {
	var sv *StaleVersionError
	return errors.As(err, &sv)
}

// IsAuthorization reports whether err is (or wraps) an AuthorizationError.
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

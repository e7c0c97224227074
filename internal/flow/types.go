package flow

import "time"

// NodeType identifies the kind of work a node performs.
type NodeType string

const (
	NodeTypeTrigger      NodeType = "trigger"
	NodeTypeCondition    NodeType = "condition"
	NodeTypeAction       NodeType = "action"
	NodeTypeABTest       NodeType = "ab_test"
	NodeTypeAIAgent      NodeType = "ai_agent"
	NodeTypeBilling      NodeType = "billing"
	NodeTypeNotification NodeType = "notification"
	NodeTypeTag          NodeType = "tag"
	NodeTypeVariable     NodeType = "variable"
)

// KnownNodeTypes lists every node type the validator accepts.
var KnownNodeTypes = map[NodeType]bool{
	NodeTypeTrigger:      true,
	NodeTypeCondition:    true,
	NodeTypeAction:       true,
	NodeTypeABTest:       true,
	NodeTypeAIAgent:      true,
	NodeTypeBilling:      true,
	NodeTypeNotification: true,
	NodeTypeTag:          true,
	NodeTypeVariable:     true,
}

// Node is a typed unit of work within a workflow graph.
type Node struct {
	ID   string         `json:"id" yaml:"id"`
	Type NodeType       `json:"type" yaml:"type"`
	Data map[string]any `json:"data" yaml:"data"`
}

// Branch labels used on edges.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
	BranchError = "error"
)

// Edge is a directed, optionally branch-tagged connection between two nodes.
// Branch disambiguates multiple outgoing edges from one node: "true"/"false"
// for conditions, a path id for ab_test splits, "error" for failure routing.
type Edge struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`
}

// Workflow is a versioned, tenant-owned automation definition. The graph
// itself lives in WorkflowVersion rows; the workflow carries two pointers:
// CurrentVersion is the head of the draft chain (advanced by every save),
// PublishedVersion is what the dispatcher executes.
type Workflow struct {
	ID               string         `json:"id"`
	OrganizationID   string         `json:"organization_id"`
	Name             string         `json:"name"`
	TriggerType      string         `json:"trigger_type"`
	TriggerConfig    map[string]any `json:"trigger_config,omitempty"`
	CurrentVersion   string         `json:"current_version,omitempty"`
	PublishedVersion string         `json:"published_version,omitempty"`
	Active           bool           `json:"active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// WorkflowVersion is an immutable snapshot of a validated graph.
// Number increases monotonically per workflow; rows are never rewritten.
type WorkflowVersion struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Number     int       `json:"number"`
	Nodes      []Node    `json:"nodes"`
	Edges      []Edge    `json:"edges"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExecutionStatus is the lifecycle state of an ExecutionInstance.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// ExecutionInstance is one runtime pass through a workflow, bound at creation
// to one immutable version for deterministic replay.
type ExecutionInstance struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	VersionID      string          `json:"version_id"`
	OrganizationID string          `json:"organization_id"`
	Status         ExecutionStatus `json:"status"`
	Context        map[string]any  `json:"context"`
	Error          string          `json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// ExecutionLogEntry records one node visit. The log is append-only per
// instance; every step is written before the engine advances.
type ExecutionLogEntry struct {
	InstanceID  string          `json:"instance_id"`
	NodeID      string          `json:"node_id"`
	NodeType    NodeType        `json:"node_type"`
	Status      ExecutionStatus `json:"status"`
	Input       map[string]any  `json:"input,omitempty"`
	Output      map[string]any  `json:"output,omitempty"`
	Attempt     int             `json:"attempt"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Role is a rank-ordered access level on a workflow.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleEditor   Role = "editor"
	RoleApprover Role = "approver"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:   1,
	RoleEditor:   2,
	RoleApprover: 3,
	RoleAdmin:    4,
}

// Rank returns the role's position in the total order viewer < editor <
// approver < admin. Unknown roles rank below viewer.
func (r Role) Rank() int { return roleRank[r] }

// AtLeast reports whether r grants everything required does.
func (r Role) AtLeast(required Role) bool { return r.Rank() >= required.Rank() }

// WorkflowPermission grants a user a role on one workflow.
type WorkflowPermission struct {
	WorkflowID string    `json:"workflow_id"`
	UserID     string    `json:"user_id"`
	Role       Role      `json:"role"`
	GrantedBy  string    `json:"granted_by,omitempty"`
	GrantedAt  time.Time `json:"granted_at"`
}

// Event is a domain event emitted by a collaborating module and matched
// against workflow triggers by the dispatcher.
type Event struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	OrganizationID string         `json:"organization_id"`
	Payload        map[string]any `json:"payload,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

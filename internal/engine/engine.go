// Package engine interprets a workflow version for one triggering event into
// an ordered sequence of handler calls, maintaining a mutable execution
// context and an append-only step log.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/graph"
	"github.com/nexflow/flowd/internal/repository"
)

// DefaultNodeTimeout bounds a single handler call unless configured otherwise.
const DefaultNodeTimeout = 30 * time.Second

// Engine runs execution instances. It holds no per-instance state: every
// instance is an independent unit of work and all shared state lives in the
// repositories.
type Engine struct {
	registry    *Registry
	execRepo    repository.ExecutionRepository
	logRepo     repository.ExecutionLogRepository
	nodeTimeout time.Duration
}

func New(registry *Registry, execRepo repository.ExecutionRepository, logRepo repository.ExecutionLogRepository, nodeTimeout time.Duration) *Engine {
	if nodeTimeout <= 0 {
		nodeTimeout = DefaultNodeTimeout
	}
	return &Engine{
		registry:    registry,
		execRepo:    execRepo,
		logRepo:     logRepo,
		nodeTimeout: nodeTimeout,
	}
}

// Run walks the version's graph from its trigger node, in causal order,
// driving the instance through pending -> running -> {completed, failed,
// cancelled}. Each step is logged before the walk advances, so a partially
// executed instance always has a faithful trail. Handler failures terminate
// the instance unless the node has an error-tagged outgoing edge.
func (e *Engine) Run(ctx context.Context, instance *flow.ExecutionInstance, version *flow.WorkflowVersion) error {
	g, err := graph.Build(version.Nodes, version.Edges)
	if err != nil {
		return e.fail(ctx, instance, err)
	}
	order, err := graph.TopologicalOrder(version.Nodes, version.Edges)
	if err != nil {
		// Validated versions are acyclic; reaching this means a corrupted
		// snapshot, not a user error.
		return e.fail(ctx, instance, err)
	}

	triggerID := ""
	for _, n := range version.Nodes {
		if n.Type == flow.NodeTypeTrigger {
			triggerID = n.ID
			break
		}
	}
	if triggerID == "" {
		return e.fail(ctx, instance, &flow.ConfigurationError{Message: "version has no trigger node"})
	}

	if instance.Context == nil {
		instance.Context = make(map[string]any)
	}
	instance.Status = flow.ExecutionRunning
	if err := e.execRepo.Update(ctx, instance); err != nil {
		return err
	}

	active := map[string]bool{triggerID: true}
	for _, nodeID := range order {
		if !active[nodeID] {
			continue
		}
		if ctx.Err() != nil {
			return e.cancel(instance)
		}

		node := g.Node(nodeID)
		next, stepErr := e.step(ctx, instance, g, node)
		if stepErr != nil {
			if errors.Is(stepErr, context.Canceled) {
				return e.cancel(instance)
			}
			// Error-edge routing: a node may model its own failure path.
			errTargets := targetsForBranch(g, nodeID, flow.BranchError)
			if len(errTargets) == 0 {
				return e.fail(ctx, instance, &flow.ExecutionError{
					InstanceID: instance.ID, NodeID: nodeID, Err: stepErr,
				})
			}
			slog.Warn("node failed, following error edge",
				"instance", instance.ID, "node", nodeID, "err", stepErr)
			next = errTargets
		}
		for _, t := range next {
			active[t] = true
		}
	}

	now := time.Now()
	instance.Status = flow.ExecutionCompleted
	instance.CompletedAt = &now
	return e.execRepo.Update(ctx, instance)
}

// step executes one node, appends its log entry, and returns the ids of the
// nodes activated by the followed edges.
func (e *Engine) step(ctx context.Context, instance *flow.ExecutionInstance, g *graph.Graph, node *flow.Node) ([]string, error) {
	entry := &flow.ExecutionLogEntry{
		InstanceID: instance.ID,
		NodeID:     node.ID,
		NodeType:   node.Type,
		Input:      snapshotContext(instance.Context),
		Attempt:    1,
		StartedAt:  time.Now(),
	}

	next, output, err := e.executeNode(ctx, instance, g, node)

	entry.CompletedAt = time.Now()
	if err != nil {
		entry.Status = flow.ExecutionFailed
		entry.Error = err.Error()
	} else {
		entry.Status = flow.ExecutionCompleted
		entry.Output = output
	}
	// The log write happens before the walk advances, even on failure.
	if logErr := e.logRepo.Append(ctx, entry); logErr != nil {
		slog.Error("append execution log failed", "instance", instance.ID, "node", node.ID, "err", logErr)
	}
	if err != nil {
		return nil, err
	}
	if upErr := e.execRepo.Update(ctx, instance); upErr != nil {
		slog.Warn("persist execution context failed", "instance", instance.ID, "err", upErr)
	}
	return next, nil
}

// executeNode dispatches on node type. Condition, ab_test, and variable are
// engine built-ins; everything else goes through the handler registry.
func (e *Engine) executeNode(ctx context.Context, instance *flow.ExecutionInstance, g *graph.Graph, node *flow.Node) (next []string, output map[string]any, err error) {
	ectx := instance.Context

	switch node.Type {
	case flow.NodeTypeTrigger:
		return targetsForBranch(g, node.ID, ""), nil, nil

	case flow.NodeTypeCondition:
		expression, _ := node.Data["expression"].(string)
		result, condErr := evaluateCondition(expression, ectx)
		if condErr != nil {
			return nil, nil, condErr
		}
		branch := flow.BranchFalse
		if result {
			branch = flow.BranchTrue
		}
		return targetsForBranch(g, node.ID, branch), map[string]any{"result": result, "branch": branch}, nil

	case flow.NodeTypeABTest:
		branch, abErr := selectABBranch(node, entityID(instance))
		if abErr != nil {
			return nil, nil, abErr
		}
		return targetsForBranch(g, node.ID, branch), map[string]any{"branch": branch}, nil

	case flow.NodeTypeVariable:
		if varErr := applyVariable(node, ectx); varErr != nil {
			return nil, nil, varErr
		}
		key, _ := node.Data["key"].(string)
		return targetsForBranch(g, node.ID, ""), map[string]any{"key": key, "value": ectx[key]}, nil

	default:
		handler, regErr := e.registry.Get(node.Type)
		if regErr != nil {
			// Validation rejects unknown types before an instance exists;
			// a missing handler here is a deployment configuration error.
			return nil, nil, &flow.ConfigurationError{NodeID: node.ID, Message: regErr.Error()}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.nodeTimeout)
		defer cancel()
		result, handlerErr := handler.Execute(callCtx, node, snapshotContext(ectx))
		if handlerErr != nil {
			return nil, nil, handlerErr
		}

		branch := ""
		if result != nil {
			branch = result.Branch
			for k, v := range result.Output {
				ectx[k] = v
			}
			output = result.Output
		}
		return targetsForBranch(g, node.ID, branch), output, nil
	}
}

// targetsForBranch returns the targets of the node's outgoing edges carrying
// the given branch tag. An empty tag selects the untagged edges.
func targetsForBranch(g *graph.Graph, nodeID, branch string) []string {
	var targets []string
	for _, e := range g.OutEdges(nodeID) {
		if e.Branch == branch {
			targets = append(targets, e.Target)
		}
	}
	return targets
}

// entityID identifies the triggering entity for deterministic A/B bucketing.
func entityID(instance *flow.ExecutionInstance) string {
	if id, ok := instance.Context["entity_id"].(string); ok && id != "" {
		return id
	}
	return instance.ID
}

func (e *Engine) fail(ctx context.Context, instance *flow.ExecutionInstance, cause error) error {
	now := time.Now()
	instance.Status = flow.ExecutionFailed
	instance.Error = cause.Error()
	instance.CompletedAt = &now
	if err := e.execRepo.Update(ctx, instance); err != nil {
		slog.Error("persist failed instance", "instance", instance.ID, "err", err)
	}
	return cause
}

// cancel marks the instance cancelled. The surrounding context is already
// done, so the repository write uses a fresh background context.
func (e *Engine) cancel(instance *flow.ExecutionInstance) error {
	now := time.Now()
	instance.Status = flow.ExecutionCancelled
	instance.CompletedAt = &now
	if err := e.execRepo.Update(context.Background(), instance); err != nil {
		slog.Error("persist cancelled instance", "instance", instance.ID, "err", err)
	}
	return context.Canceled
}

// snapshotContext deep-copies the execution context so log entries and
// handler inputs are insulated from later mutation of nested maps.
func snapshotContext(ectx map[string]any) map[string]any {
	cp := make(map[string]any, len(ectx))
	for k, v := range ectx {
		cp[k] = snapshotValue(v)
	}
	return cp
}

func snapshotValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, vv := range t {
			cp[k] = snapshotValue(vv)
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, vv := range t {
			cp[i] = snapshotValue(vv)
		}
		return cp
	default:
		return t
	}
}

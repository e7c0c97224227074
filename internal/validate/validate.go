// Package validate checks workflow graphs for structural and schema problems
// before they may be persisted as a version. Validation is pure: it never
// mutates or stores anything.
package validate

import (
	"fmt"
	"sort"

	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/graph"
)

// Validate runs every check, in order: trigger count, duplicate nodes,
// dangling edges, acyclicity, ab_test weights, per-type data schema.
// It returns every problem found; an empty slice means the graph may be
// saved as a version.
func Validate(nodes []flow.Node, edges []flow.Edge) flow.ValidationErrors {
	var errs flow.ValidationErrors

	ids := make(map[string]bool, len(nodes))
	triggers := 0
	for _, n := range nodes {
		if ids[n.ID] {
			errs = append(errs, &flow.ValidationError{
				Code: flow.CodeDuplicateNode, NodeID: n.ID,
				Message: "duplicate node id",
			})
			continue
		}
		ids[n.ID] = true
		if n.Type == flow.NodeTypeTrigger {
			triggers++
		}
	}
	if triggers != 1 {
		errs = append(errs, &flow.ValidationError{
			Code:    flow.CodeTriggerCount,
			Message: fmt.Sprintf("exactly one trigger node required, found %d", triggers),
		})
	}

	dangling := false
	for _, e := range edges {
		for _, id := range []string{e.Source, e.Target} {
			if !ids[id] {
				dangling = true
				errs = append(errs, &flow.ValidationError{
					Code: flow.CodeDanglingEdge, NodeID: id,
					Message: fmt.Sprintf("edge %s->%s references unknown node %q", e.Source, e.Target, id),
				})
			}
		}
	}

	// Cycle detection only makes sense on a well-formed edge set.
	if !dangling && graph.HasAnyCycle(nodes, edges) {
		involved := graph.FindNodesInCycles(nodes, edges)
		names := make([]string, 0, len(involved))
		for id := range involved {
			names = append(names, id)
		}
		sort.Strings(names)
		errs = append(errs, &flow.ValidationError{
			Code: flow.CodeCycle, Nodes: names,
			Message: "workflow graph contains a directed cycle",
		})
	}

	for _, n := range nodes {
		if n.Type == flow.NodeTypeABTest {
			errs = append(errs, checkWeights(n, edges)...)
		}
	}

	for _, n := range nodes {
		errs = append(errs, checkSchema(n)...)
	}

	return errs
}

// checkWeights verifies an ab_test node's outgoing branch weights sum to 100.
func checkWeights(n flow.Node, edges []flow.Edge) flow.ValidationErrors {
	weights, ok := n.Data["weights"].(map[string]any)
	if !ok || len(weights) == 0 {
		return flow.ValidationErrors{{
			Code: flow.CodeSchema, NodeID: n.ID, Field: "weights",
			Message: "ab_test node requires a weights map of branch -> percentage",
		}}
	}

	sum := 0
	for branch, v := range weights {
		w, ok := asInt(v)
		if !ok || w <= 0 {
			return flow.ValidationErrors{{
				Code: flow.CodeWeight, NodeID: n.ID, Field: "weights",
				Message: fmt.Sprintf("branch %q weight must be a positive integer", branch),
			}}
		}
		sum += w
		if !hasBranchEdge(edges, n.ID, branch) {
			return flow.ValidationErrors{{
				Code: flow.CodeWeight, NodeID: n.ID, Field: "weights",
				Message: fmt.Sprintf("no outgoing edge for branch %q", branch),
			}}
		}
	}
	if sum != 100 {
		return flow.ValidationErrors{{
			Code: flow.CodeWeight, NodeID: n.ID, Field: "weights",
			Message: fmt.Sprintf("branch weights must sum to 100, got %d", sum),
		}}
	}
	return nil
}

func hasBranchEdge(edges []flow.Edge, source, branch string) bool {
	for _, e := range edges {
		if e.Source == source && e.Branch == branch {
			return true
		}
	}
	return false
}

// requiredFields maps a node type to the string fields its data must carry.
var requiredFields = map[flow.NodeType][]string{
	flow.NodeTypeTrigger:      {"event_type"},
	flow.NodeTypeCondition:    {"expression"},
	flow.NodeTypeAction:       {"action"},
	flow.NodeTypeNotification: {"channel"},
	flow.NodeTypeBilling:      {"operation"},
	flow.NodeTypeTag:          {"tag"},
	flow.NodeTypeAIAgent:      {"prompt"},
	flow.NodeTypeVariable:     {"op", "key"},
}

var variableOps = map[string]bool{
	"set": true, "add": true, "subtract": true, "append": true, "delete": true,
}

// checkSchema verifies a node's data payload matches its type's schema.
func checkSchema(n flow.Node) flow.ValidationErrors {
	if !flow.KnownNodeTypes[n.Type] {
		return flow.ValidationErrors{{
			Code: flow.CodeUnknownType, NodeID: n.ID,
			Message: fmt.Sprintf("unknown node type %q", n.Type),
		}}
	}

	var errs flow.ValidationErrors
	for _, field := range requiredFields[n.Type] {
		s, ok := n.Data[field].(string)
		if !ok || s == "" {
			errs = append(errs, &flow.ValidationError{
				Code: flow.CodeSchema, NodeID: n.ID, Field: field,
				Message: fmt.Sprintf("%s node requires data field %q", n.Type, field),
			})
		}
	}

	if n.Type == flow.NodeTypeVariable {
		if op, ok := n.Data["op"].(string); ok && op != "" && !variableOps[op] {
			errs = append(errs, &flow.ValidationError{
				Code: flow.CodeSchema, NodeID: n.ID, Field: "op",
				Message: fmt.Sprintf("unsupported variable op %q", op),
			})
		}
	}
	return errs
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}

package engine

import (
	"fmt"

	"github.com/nexflow/flowd/internal/flow"
)

// applyVariable mutates the execution context according to a variable node's
// op: set, add, subtract, append (to a list), delete. The value field
// supports {{key}} interpolation when it is a string.
func applyVariable(node *flow.Node, ectx map[string]any) error {
	op, _ := node.Data["op"].(string)
	key, _ := node.Data["key"].(string)
	if op == "" || key == "" {
		return &flow.ConfigurationError{NodeID: node.ID, Message: "variable node requires op and key"}
	}

	value := node.Data["value"]
	if s, ok := value.(string); ok {
		value = flow.ResolveTemplate(s, ectx)
	}

	switch op {
	case "set":
		ectx[key] = value
	case "add", "subtract":
		cur, err := asFloat(ectx[key])
		if err != nil {
			return fmt.Errorf("variable %q: current value: %w", key, err)
		}
		delta, err := asFloat(value)
		if err != nil {
			return fmt.Errorf("variable %q: operand: %w", key, err)
		}
		if op == "subtract" {
			delta = -delta
		}
		ectx[key] = cur + delta
	case "append":
		list, _ := ectx[key].([]any)
		ectx[key] = append(list, value)
	case "delete":
		delete(ectx, key)
	default:
		return &flow.ConfigurationError{NodeID: node.ID, Message: fmt.Sprintf("unsupported variable op %q", op)}
	}
	return nil
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}

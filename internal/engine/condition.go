package engine

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/nexflow/flowd/internal/flow"
)

// evaluateCondition evaluates a boolean expression against the execution
// context. {{key}} template references are resolved to their values before
// compilation, so both `source == 'facebook'` and `'{{source}}' == 'facebook'`
// work. Returns true if the expression evaluates to a truthy value.
func evaluateCondition(expression string, ectx map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	resolved := flow.ResolveTemplate(expression, ectx)

	env := make(map[string]any, len(ectx))
	for k, v := range ectx {
		if !strings.HasPrefix(k, "__") {
			env[k] = v
		}
	}

	program, err := expr.Compile(resolved, expr.Env(env))
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", expression, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", expression, err)
	}

	return isTruthy(result), nil
}

// isTruthy converts a value to a boolean.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}

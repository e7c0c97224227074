package dispatch

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/nexflow/flowd/internal/flow"
)

// MatchTrigger reports whether an event satisfies a workflow's trigger
// configuration. It is pure and free of any transport or rendering concern:
// the dispatcher calls it per candidate workflow.
//
// Matching rules, all of which must hold:
//   - event type equals the workflow's trigger type;
//   - same organization;
//   - when trigger_config carries "channel", the payload's channel equals it;
//   - when trigger_config carries "filter", the expression evaluates truthy
//     against the event payload.
func MatchTrigger(wf *flow.Workflow, event flow.Event) (bool, error) {
	if wf.TriggerType != event.Type {
		return false, nil
	}
	if wf.OrganizationID != event.OrganizationID {
		return false, nil
	}

	if channel, ok := wf.TriggerConfig["channel"].(string); ok && channel != "" {
		got, _ := event.Payload["channel"].(string)
		if !strings.EqualFold(got, channel) {
			return false, nil
		}
	}

	if filter, ok := wf.TriggerConfig["filter"].(string); ok && filter != "" {
		env := make(map[string]any, len(event.Payload))
		for k, v := range event.Payload {
			env[k] = v
		}
		program, err := expr.Compile(filter, expr.Env(env))
		if err != nil {
			return false, fmt.Errorf("compile trigger filter %q: %w", filter, err)
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return false, fmt.Errorf("evaluate trigger filter %q: %w", filter, err)
		}
		if b, ok := out.(bool); !ok || !b {
			return false, nil
		}
	}

	return true, nil
}

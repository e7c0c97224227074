package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nexflow/flowd/internal/flow"
)

// Suggestion is one candidate next node for the workflow editor.
type Suggestion struct {
	Type   flow.NodeType  `json:"type"`
	Label  string         `json:"label"`
	Data   map[string]any `json:"data,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// Provider proposes next nodes to attach after fromNodeID in a draft graph.
type Provider interface {
	Suggest(ctx context.Context, nodes []flow.Node, edges []flow.Edge, fromNodeID string) ([]Suggestion, error)
}

// HeuristicProvider suggests next nodes from fixed rules about what usually
// follows each node type. It needs no external service and is the fallback
// when no LLM is configured.
type HeuristicProvider struct{}

func (HeuristicProvider) Suggest(_ context.Context, nodes []flow.Node, _ []flow.Edge, fromNodeID string) ([]Suggestion, error) {
	var from *flow.Node
	for i := range nodes {
		if nodes[i].ID == fromNodeID {
			from = &nodes[i]
			break
		}
	}
	if from == nil {
		return nil, fmt.Errorf("node %q not found", fromNodeID)
	}

	switch from.Type {
	case flow.NodeTypeTrigger:
		return []Suggestion{
			{Type: flow.NodeTypeCondition, Label: "Filter the event", Reason: "most workflows branch on event data first"},
			{Type: flow.NodeTypeAction, Label: "Call an external service"},
		}, nil
	case flow.NodeTypeCondition, flow.NodeTypeABTest:
		return []Suggestion{
			{Type: flow.NodeTypeAction, Label: "Call an external service"},
			{Type: flow.NodeTypeNotification, Label: "Notify the team"},
			{Type: flow.NodeTypeTag, Label: "Tag the record"},
		}, nil
	default:
		return []Suggestion{
			{Type: flow.NodeTypeNotification, Label: "Notify the team"},
			{Type: flow.NodeTypeVariable, Label: "Update a context variable"},
		}, nil
	}
}

// LLMProvider asks a chat model for suggestions and falls back to the
// heuristics when the model output cannot be parsed.
type LLMProvider struct {
	Client   ChatClient
	Fallback HeuristicProvider
}

const suggestSystemPrompt = `You are a workflow design assistant. Given a workflow graph and a node,
suggest up to three useful next nodes. Respond with a JSON array of objects
with fields "type" (one of: condition, action, ab_test, ai_agent, billing,
notification, tag, variable), "label" and "reason". Respond with JSON only.`

func (p *LLMProvider) Suggest(ctx context.Context, nodes []flow.Node, edges []flow.Edge, fromNodeID string) ([]Suggestion, error) {
	graphJSON, err := json.Marshal(map[string]any{"nodes": nodes, "edges": edges})
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}

	content, err := p.Client.Complete(ctx, []ChatMessage{
		{Role: "system", Content: suggestSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Graph: %s\nSuggest next nodes after %q.", graphJSON, fromNodeID)},
	})
	if err != nil {
		slog.Warn("llm suggestion failed, using heuristics", "error", err)
		return p.Fallback.Suggest(ctx, nodes, edges, fromNodeID)
	}

	suggestions, err := parseSuggestions(content)
	if err != nil {
		slog.Warn("unparseable llm suggestion, using heuristics", "error", err)
		return p.Fallback.Suggest(ctx, nodes, edges, fromNodeID)
	}
	return suggestions, nil
}

func parseSuggestions(content string) ([]Suggestion, error) {
	// Models sometimes wrap JSON in a markdown fence.
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out []Suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w", err)
	}
	for _, s := range out {
		if !flow.KnownNodeTypes[s.Type] {
			return nil, fmt.Errorf("unknown suggested type %q", s.Type)
		}
	}
	return out, nil
}

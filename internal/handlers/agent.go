package handlers

import (
	"context"
	"fmt"

	"github.com/nexflow/flowd/internal/engine"
	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/suggest"
)

// Agent executes ai_agent nodes by sending the node's prompt, rendered
// against the execution context, to a chat model. The reply lands in the
// context under "agent_response".
type Agent struct {
	Client suggest.ChatClient
}

func (a *Agent) Execute(ctx context.Context, node *flow.Node, ectx map[string]any) (*engine.HandlerResult, error) {
	if a.Client == nil {
		return nil, fmt.Errorf("ai_agent node %q: no chat provider configured", node.ID)
	}

	rawPrompt, _ := node.Data["prompt"].(string)
	if rawPrompt == "" {
		return nil, fmt.Errorf("ai_agent node %q: prompt is required", node.ID)
	}
	prompt := flow.ResolveTemplate(rawPrompt, ectx)

	messages := []suggest.ChatMessage{}
	if system, ok := node.Data["system_prompt"].(string); ok && system != "" {
		messages = append(messages, suggest.ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, suggest.ChatMessage{Role: "user", Content: prompt})

	reply, err := a.Client.Complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	output := map[string]any{"agent_response": reply}
	if key, ok := node.Data["output_key"].(string); ok && key != "" {
		output[key] = reply
	}
	return &engine.HandlerResult{Output: output}, nil
}

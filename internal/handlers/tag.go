package handlers

import (
	"context"
	"fmt"

	"github.com/nexflow/flowd/internal/engine"
	"github.com/nexflow/flowd/internal/flow"
)

// Tag executes tag nodes: it appends the node's tag to the "tags" list in
// the execution context, skipping duplicates.
type Tag struct{}

func (t *Tag) Execute(_ context.Context, node *flow.Node, ectx map[string]any) (*engine.HandlerResult, error) {
	raw, _ := node.Data["tag"].(string)
	if raw == "" {
		return nil, fmt.Errorf("tag node %q: tag is required", node.ID)
	}
	tag := flow.ResolveTemplate(raw, ectx)

	var tags []any
	if existing, ok := ectx["tags"].([]any); ok {
		tags = append(tags, existing...)
	}
	for _, t := range tags {
		if t == tag {
			return &engine.HandlerResult{Output: map[string]any{"tags": tags}}, nil
		}
	}
	tags = append(tags, tag)

	return &engine.HandlerResult{Output: map[string]any{"tags": tags}}, nil
}

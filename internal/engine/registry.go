package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexflow/flowd/internal/flow"
)

// HandlerResult is what an action handler returns on success. Output is
// merged into the running execution context; Branch, when set, selects which
// tagged outgoing edge to follow.
type HandlerResult struct {
	Output map[string]any
	Branch string
}

// Handler executes one node kind. Implementations are provided by
// collaborating modules (billing, notification, messaging, tag, AI agent)
// and must respect ctx cancellation; the engine never retries a call.
type Handler interface {
	Execute(ctx context.Context, node *flow.Node, ectx map[string]any) (*HandlerResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, node *flow.Node, ectx map[string]any) (*HandlerResult, error)

func (f HandlerFunc) Execute(ctx context.Context, node *flow.Node, ectx map[string]any) (*HandlerResult, error) {
	return f(ctx, node, ectx)
}

// Registry maps node types to their handlers. It is populated during startup
// and passed into the engine explicitly; it is never global state.
type Registry struct {
	mu       sync.RWMutex
	handlers map[flow.NodeType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[flow.NodeType]Handler)}
}

// Register adds or replaces the handler for a node type.
func (r *Registry) Register(nodeType flow.NodeType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[nodeType] = h
}

// Get returns the handler for the given node type.
func (r *Registry) Get(nodeType flow.NodeType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[nodeType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for node type %q", nodeType)
	}
	return h, nil
}

// Types returns the registered node types.
func (r *Registry) Types() []flow.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]flow.NodeType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

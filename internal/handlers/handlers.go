package handlers

import (
	"github.com/nexflow/flowd/internal/engine"
	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/suggest"
)

// RegisterDefaults wires the built-in handlers into a registry. The chat
// client may be nil; ai_agent nodes then fail with a configuration error at
// execution time.
func RegisterDefaults(reg *engine.Registry, chat suggest.ChatClient) {
	reg.Register(flow.NodeTypeAction, &HTTPAction{})
	reg.Register(flow.NodeTypeNotification, NewNotification())
	reg.Register(flow.NodeTypeTag, &Tag{})
	reg.Register(flow.NodeTypeBilling, &Billing{})
	reg.Register(flow.NodeTypeAIAgent, &Agent{Client: chat})
}

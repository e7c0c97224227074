package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/nexflow/flowd/internal/engine"
	"github.com/nexflow/flowd/internal/flow"
)

// billingOps are the operations a billing node may request.
var billingOps = map[string]bool{
	"charge": true, "credit": true, "refund": true,
}

// Billing executes billing nodes. It records the requested operation as a
// ledger entry in the execution context; the downstream billing system picks
// these up from the completed instance.
type Billing struct {
	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

func (b *Billing) Execute(_ context.Context, node *flow.Node, ectx map[string]any) (*engine.HandlerResult, error) {
	op, _ := node.Data["operation"].(string)
	if !billingOps[op] {
		return nil, fmt.Errorf("billing node %q: unknown operation %q", node.ID, op)
	}

	amount, ok := billingAmount(node.Data["amount"])
	if !ok || amount <= 0 {
		return nil, fmt.Errorf("billing node %q: amount must be a positive number", node.ID)
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	entry := map[string]any{
		"operation": op,
		"amount":    amount,
		"currency":  currencyOf(node.Data),
		"at":        now().UTC().Format(time.RFC3339),
	}
	if desc, ok := node.Data["description"].(string); ok && desc != "" {
		entry["description"] = flow.ResolveTemplate(desc, ectx)
	}

	var ledger []any
	if existing, ok := ectx["billing_ledger"].([]any); ok {
		ledger = append(ledger, existing...)
	}
	ledger = append(ledger, entry)

	return &engine.HandlerResult{Output: map[string]any{"billing_ledger": ledger}}, nil
}

func currencyOf(data map[string]any) string {
	if c, ok := data["currency"].(string); ok && c != "" {
		return c
	}
	return "USD"
}

func billingAmount(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Package handlers ships the built-in action handlers registered into the
// engine at startup. Collaborating modules may replace any of them by
// re-registering their node type.
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nexflow/flowd/internal/engine"
	"github.com/nexflow/flowd/internal/flow"
)

// maxResponseBody caps how much of an HTTP response body is merged into the
// execution context.
const maxResponseBody = 100 * 1024 // 100 KB

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

// HTTPAction executes action nodes whose kind is "http": it calls an
// external URL with the node's method/headers/body, all {{var}}-interpolated
// against the execution context, and merges the response into the context
// under "last_response".
type HTTPAction struct {
	Client *http.Client
}

func (h *HTTPAction) Execute(ctx context.Context, node *flow.Node, ectx map[string]any) (*engine.HandlerResult, error) {
	method, _ := node.Data["method"].(string)
	if method == "" {
		method = http.MethodPost
	}
	method = strings.ToUpper(method)
	if !allowedMethods[method] {
		return nil, fmt.Errorf("unsupported HTTP method: %q", method)
	}

	rawURL, _ := node.Data["url"].(string)
	if rawURL == "" {
		return nil, fmt.Errorf("action node %q: url is required", node.ID)
	}
	url := flow.ResolveTemplate(rawURL, ectx)

	var bodyReader io.Reader
	if body, ok := node.Data["body"].(string); ok && body != "" {
		bodyReader = strings.NewReader(flow.ResolveTemplate(body, ectx))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if hdrs, ok := node.Data["headers"].(map[string]any); ok {
		for k, v := range hdrs {
			req.Header.Set(k, flow.ResolveTemplate(fmt.Sprintf("%v", v), ectx))
		}
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBody+1)
	bodyBytes, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	bodyStr := string(bodyBytes)
	if len(bodyBytes) > maxResponseBody {
		bodyStr = bodyStr[:maxResponseBody]
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("action %q: %s returned %d", node.ID, url, resp.StatusCode)
	}

	return &engine.HandlerResult{
		Output: map[string]any{
			"last_response": map[string]any{
				"status_code": resp.StatusCode,
				"body":        bodyStr,
			},
		},
	}, nil
}

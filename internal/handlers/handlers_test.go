package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/suggest"
)

func TestHTTPActionPostsResolvedBody(t *testing.T) {
	var gotMethod, gotBody, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Api-Key")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	h := &HTTPAction{}
	node := &flow.Node{ID: "call", Type: flow.NodeTypeAction, Data: map[string]any{
		"action":  "http",
		"url":     srv.URL,
		"method":  "POST",
		"body":    `{"email":"{{email}}"}`,
		"headers": map[string]any{"X-Api-Key": "{{api_key}}"},
	}}
	res, err := h.Execute(context.Background(), node, map[string]any{
		"email":   "lead@example.com",
		"api_key": "k-123",
	})
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, `{"email":"lead@example.com"}`, gotBody)
	require.Equal(t, "k-123", gotHeader)

	last := res.Output["last_response"].(map[string]any)
	require.Equal(t, http.StatusOK, last["status_code"])
	require.Equal(t, `{"ok":true}`, last["body"])
}

func TestHTTPActionRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h := &HTTPAction{}
	node := &flow.Node{ID: "call", Type: flow.NodeTypeAction, Data: map[string]any{"url": srv.URL}}
	_, err := h.Execute(context.Background(), node, map[string]any{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestHTTPActionValidation(t *testing.T) {
	h := &HTTPAction{}
	_, err := h.Execute(context.Background(), &flow.Node{ID: "a", Data: map[string]any{
		"url": "http://example.com", "method": "TRACE",
	}}, map[string]any{})
	require.Error(t, err)

	_, err = h.Execute(context.Background(), &flow.Node{ID: "a", Data: map[string]any{}}, map[string]any{})
	require.Error(t, err)
}

func TestSlackSenderPostsWebhook(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	n := NewNotification()
	node := &flow.Node{ID: "notify", Type: flow.NodeTypeNotification, Data: map[string]any{
		"channel":       "slack",
		"webhook_url":   srv.URL,
		"slack_channel": "#sales",
		"message":       "New lead: {{name}}",
	}}
	res, err := n.Execute(context.Background(), node, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	require.Equal(t, "New lead: Ada", payload["text"])
	require.Equal(t, "#sales", payload["channel"])

	last := res.Output["last_notification"].(map[string]any)
	require.Equal(t, "slack", last["channel"])
}

func TestNotificationUnknownChannel(t *testing.T) {
	n := NewNotification()
	node := &flow.Node{ID: "notify", Data: map[string]any{"channel": "pager"}}
	_, err := n.Execute(context.Background(), node, map[string]any{})
	require.Error(t, err)
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	sender := &SMTPSender{SendMail: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}}

	err := sender.Send(context.Background(), map[string]any{
		"smtp_host": "mail.example.com",
		"from":      "flowd@example.com",
		"to":        "ops@example.com",
		"subject":   "Alert",
	}, "payment failed")
	require.NoError(t, err)
	require.Equal(t, "mail.example.com:587", gotAddr)
	require.Equal(t, "flowd@example.com", gotFrom)
	require.Equal(t, []string{"ops@example.com"}, gotTo)
	require.True(t, strings.Contains(string(gotMsg), "Subject: Alert\r\n"))
	require.True(t, strings.HasSuffix(string(gotMsg), "payment failed"))
}

func TestTagAppendsWithoutDuplicates(t *testing.T) {
	h := &Tag{}
	node := &flow.Node{ID: "tag", Data: map[string]any{"tag": "vip"}}

	res, err := h.Execute(context.Background(), node, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, []any{"vip"}, res.Output["tags"])

	res, err = h.Execute(context.Background(), node, map[string]any{"tags": []any{"vip", "new"}})
	require.NoError(t, err)
	require.Equal(t, []any{"vip", "new"}, res.Output["tags"])
}

func TestBillingRecordsLedgerEntry(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &Billing{Now: func() time.Time { return fixed }}
	node := &flow.Node{ID: "charge", Data: map[string]any{
		"operation":   "charge",
		"amount":      49.99,
		"description": "Plan upgrade for {{entity_id}}",
	}}

	res, err := h.Execute(context.Background(), node, map[string]any{"entity_id": "acct_7"})
	require.NoError(t, err)

	ledger := res.Output["billing_ledger"].([]any)
	require.Len(t, ledger, 1)
	entry := ledger[0].(map[string]any)
	require.Equal(t, "charge", entry["operation"])
	require.Equal(t, 49.99, entry["amount"])
	require.Equal(t, "USD", entry["currency"])
	require.Equal(t, "2025-03-01T12:00:00Z", entry["at"])
	require.Equal(t, "Plan upgrade for acct_7", entry["description"])
}

func TestBillingRejectsBadInput(t *testing.T) {
	h := &Billing{}
	_, err := h.Execute(context.Background(), &flow.Node{ID: "b", Data: map[string]any{
		"operation": "steal", "amount": 10.0,
	}}, map[string]any{})
	require.Error(t, err)

	_, err = h.Execute(context.Background(), &flow.Node{ID: "b", Data: map[string]any{
		"operation": "charge", "amount": -5.0,
	}}, map[string]any{})
	require.Error(t, err)
}

type fakeChat struct {
	reply    string
	messages []suggest.ChatMessage
}

func (f *fakeChat) Complete(_ context.Context, messages []suggest.ChatMessage) (string, error) {
	f.messages = messages
	return f.reply, nil
}

func TestAgentSendsResolvedPrompt(t *testing.T) {
	chat := &fakeChat{reply: "Looks qualified."}
	h := &Agent{Client: chat}
	node := &flow.Node{ID: "score", Type: flow.NodeTypeAIAgent, Data: map[string]any{
		"prompt":        "Score this lead: {{email}}",
		"system_prompt": "You score sales leads.",
		"output_key":    "lead_score",
	}}

	res, err := h.Execute(context.Background(), node, map[string]any{"email": "a@b.com"})
	require.NoError(t, err)
	require.Len(t, chat.messages, 2)
	require.Equal(t, "system", chat.messages[0].Role)
	require.Equal(t, "Score this lead: a@b.com", chat.messages[1].Content)
	require.Equal(t, "Looks qualified.", res.Output["agent_response"])
	require.Equal(t, "Looks qualified.", res.Output["lead_score"])
}

func TestAgentWithoutClient(t *testing.T) {
	h := &Agent{}
	_, err := h.Execute(context.Background(), &flow.Node{ID: "a", Data: map[string]any{"prompt": "hi"}}, nil)
	require.Error(t, err)
}

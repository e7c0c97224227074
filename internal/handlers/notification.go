package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/nexflow/flowd/internal/engine"
	"github.com/nexflow/flowd/internal/flow"
)

// Sender delivers a rendered notification message over one channel.
type Sender interface {
	Send(ctx context.Context, cfg map[string]any, message string) error
}

// Notification executes notification nodes. The node's "channel" field picks
// a registered Sender; the "message" field is template-resolved against the
// execution context before delivery.
type Notification struct {
	senders map[string]Sender
}

func NewNotification() *Notification {
	return &Notification{senders: map[string]Sender{
		"slack": &SlackSender{},
		"email": &SMTPSender{},
	}}
}

// RegisterSender adds or replaces the sender for a channel.
func (n *Notification) RegisterSender(channel string, s Sender) {
	n.senders[strings.ToLower(channel)] = s
}

func (n *Notification) Execute(ctx context.Context, node *flow.Node, ectx map[string]any) (*engine.HandlerResult, error) {
	channel, _ := node.Data["channel"].(string)
	sender, ok := n.senders[strings.ToLower(channel)]
	if !ok {
		return nil, fmt.Errorf("notification node %q: unknown channel %q", node.ID, channel)
	}

	rawMsg, _ := node.Data["message"].(string)
	message := flow.ResolveTemplate(rawMsg, ectx)

	if err := sender.Send(ctx, node.Data, message); err != nil {
		return nil, fmt.Errorf("send %s notification: %w", channel, err)
	}

	return &engine.HandlerResult{
		Output: map[string]any{
			"last_notification": map[string]any{
				"channel": channel,
				"message": message,
			},
		},
	}, nil
}

// SlackSender posts messages to a Slack incoming webhook.
type SlackSender struct {
	Client *http.Client
}

func (s *SlackSender) Send(ctx context.Context, cfg map[string]any, message string) error {
	webhookURL, _ := cfg["webhook_url"].(string)
	if webhookURL == "" {
		return fmt.Errorf("webhook_url is required")
	}

	payload := map[string]any{"text": message}
	if ch, ok := cfg["slack_channel"].(string); ok && ch != "" {
		payload["channel"] = ch
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

// SMTPSender delivers messages over SMTP with PLAIN auth.
type SMTPSender struct {
	// SendMail allows tests to intercept delivery. Defaults to smtp.SendMail.
	SendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (s *SMTPSender) Send(ctx context.Context, cfg map[string]any, message string) error {
	host, _ := cfg["smtp_host"].(string)
	if host == "" {
		return fmt.Errorf("smtp_host is required")
	}
	port := "587"
	if p, ok := cfg["smtp_port"].(string); ok && p != "" {
		port = p
	}
	from, _ := cfg["from"].(string)
	to, _ := cfg["to"].(string)
	if from == "" || to == "" {
		return fmt.Errorf("from and to are required")
	}
	subject, _ := cfg["subject"].(string)
	if subject == "" {
		subject = "Workflow notification"
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(message)

	var auth smtp.Auth
	if user, ok := cfg["smtp_user"].(string); ok && user != "" {
		pass, _ := cfg["smtp_password"].(string)
		auth = smtp.PlainAuth("", user, pass, host)
	}

	send := s.SendMail
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(host+":"+port, auth, from, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

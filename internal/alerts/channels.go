package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// sender delivers an alert to a single channel. Implementations must
// never propagate an error across the channel boundary further than the
// Manager, which logs it per-channel and continues (spec.md section
// 4.D's failure semantics): one channel's failure must never block
// another's attempt.
type sender interface {
	send(ctx context.Context, a Alert) error
}

// emailSender sends via SMTP, grounded on original_source's
// _send_smtp_email (STARTTLS, optional auth, one message per recipient).
type emailSender struct {
	cfg Config
}

func (e *emailSender) send(ctx context.Context, a Alert) error {
	if !e.cfg.EmailEnabled || len(e.cfg.EmailRecipients) == 0 {
		return nil
	}
	if e.cfg.EmailSMTPHost == "" {
		return fmt.Errorf("alerts: email smtp host not configured")
	}

	subject := fmt.Sprintf("[NIGHTWATCH %s] %s: %s", strings.ToUpper(a.Level.String()), a.Source, truncate(a.Message, 50))
	body := formatEmailPlain(a)

	var failed []string
	for _, recipient := range e.cfg.EmailRecipients {
		if err := e.sendOne(recipient, subject, body); err != nil {
			failed = append(failed, recipient)
		}
	}
	if len(failed) > 0 && len(failed) < len(e.cfg.EmailRecipients) {
		return &partialEmailFailure{recipients: failed}
	}
	if len(failed) == len(e.cfg.EmailRecipients) {
		return fmt.Errorf("alerts: email failed for all recipients")
	}
	return nil
}

// partialEmailFailure distinguishes "some but not all recipients failed"
// from a total failure, so the Manager can raise a summarizing alert per
// the Open Question decision recorded in DESIGN.md rather than just
// logging it like any other channel error.
type partialEmailFailure struct {
	recipients []string
}

func (e *partialEmailFailure) Error() string {
	return fmt.Sprintf("alerts: email failed for recipients %s", strings.Join(e.recipients, ", "))
}

func (e *emailSender) sendOne(recipient, subject, body string) error {
	addr := e.cfg.EmailSMTPHost + ":" + strconv.Itoa(e.cfg.EmailSMTPPort)
	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		e.cfg.EmailFromName, e.cfg.EmailFromAddress, recipient, subject, body))

	var auth smtp.Auth
	if e.cfg.EmailSMTPUser != "" {
		auth = smtp.PlainAuth("", e.cfg.EmailSMTPUser, e.cfg.EmailSMTPPassword, e.cfg.EmailSMTPHost)
	}

	timeout := e.cfg.EmailTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("alerts: dial smtp: %w", err)
	}
	conn.SetDeadline(time.Now().Add(timeout))

	client, err := smtp.NewClient(conn, e.cfg.EmailSMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("alerts: smtp handshake: %w", err)
	}
	defer client.Close()

	if !e.cfg.EmailUseTLS {
		return e.deliver(client, auth, recipient, msg)
	}

	if err := client.StartTLS(&tls.Config{ServerName: e.cfg.EmailSMTPHost}); err != nil {
		return fmt.Errorf("alerts: starttls: %w", err)
	}
	return e.deliver(client, auth, recipient, msg)
}

func (e *emailSender) deliver(client *smtp.Client, auth smtp.Auth, recipient string, msg []byte) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("alerts: smtp auth: %w", err)
		}
	}
	if err := client.Mail(e.cfg.EmailFromAddress); err != nil {
		return fmt.Errorf("alerts: smtp mail: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("alerts: smtp rcpt: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("alerts: smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("alerts: smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("alerts: smtp close: %w", err)
	}
	return client.Quit()
}

func formatEmailPlain(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "NIGHTWATCH ALERT\n================\n\n")
	fmt.Fprintf(&b, "Level: %s\nSource: %s\nTime: %s\n\n", strings.ToUpper(a.Level.String()), a.Source, a.At.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Message:\n%s\n\n", a.Message)
	if len(a.Data) > 0 {
		b.WriteString("Additional Data:\n")
		for k, v := range a.Data {
			fmt.Fprintf(&b, "  %s: %v\n", k, v)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Alert ID: %s\n\n---\nThis is an automated message from NIGHTWATCH Observatory System.\n", a.ID)
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// pushSender delivers via ntfy.sh's simple HTTP pub/sub API, grounded on
// original_source's _send_push.
type pushSender struct {
	cfg    Config
	client *http.Client
}

func newPushSender(cfg Config) *pushSender {
	return &pushSender{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

var ntfyPriority = map[Level]string{
	LevelDebug:     "1",
	LevelInfo:      "2",
	LevelWarning:   "3",
	LevelCritical:  "4",
	LevelEmergency: "5",
}

var ntfyTag = map[Level]string{
	LevelDebug:     "information_source",
	LevelInfo:      "information_source",
	LevelWarning:   "warning",
	LevelCritical:  "rotating_light",
	LevelEmergency: "sos",
}

func (p *pushSender) send(ctx context.Context, a Alert) error {
	if !p.cfg.PushEnabled {
		return nil
	}
	url := strings.TrimRight(p.cfg.NtfyServer, "/") + "/" + p.cfg.NtfyTopic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(a.Message))
	if err != nil {
		return fmt.Errorf("alerts: build ntfy request: %w", err)
	}
	req.Header.Set("Title", "NIGHTWATCH "+strings.ToUpper(a.Level.String()))
	req.Header.Set("Priority", ntfyPriority[a.Level])
	req.Header.Set("Tags", ntfyTag[a.Level]+","+a.Source)
	if p.cfg.NtfyAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.NtfyAuthToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerts: ntfy push: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("alerts: ntfy push status %d", resp.StatusCode)
	}
	return nil
}

// smsSender and callSender are unimplemented-provider placeholders
// (original_source defers to Twilio but never wires credentials through);
// they log-and-return rather than silently no-op, so the gap is visible.
type smsSender struct{ cfg Config }

func (s *smsSender) send(ctx context.Context, a Alert) error {
	if !s.cfg.SMSEnabled || len(s.cfg.SMSToNumbers) == 0 {
		return nil
	}
	return fmt.Errorf("alerts: sms channel has no configured provider")
}

type callSender struct{ cfg Config }

func (c *callSender) send(ctx context.Context, a Alert) error {
	if !c.cfg.CallEnabled || len(c.cfg.CallToNumbers) == 0 {
		return nil
	}
	return fmt.Errorf("alerts: voice-call channel has no configured provider")
}

// webhookSender posts a generic JSON payload, switching to a
// provider-specific shape when the URL matches a known service, grounded
// on vigil's internal/notify/slack/slack.go block-kit builder folded
// together with original_source's Slack/Discord payload selection.
type webhookSender struct {
	cfg    Config
	client *http.Client
}

func newWebhookSender(cfg Config) *webhookSender {
	return &webhookSender{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

var levelColor = map[Level]string{
	LevelDebug:     "#6c757d",
	LevelInfo:      "#17a2b8",
	LevelWarning:   "#ffc107",
	LevelCritical:  "#dc3545",
	LevelEmergency: "#721c24",
}

// levelColorHex is the Discord embed color: an integer, not a CSS string.
var levelColorHex = map[Level]int{
	LevelDebug:     0x6c757d,
	LevelInfo:      0x17a2b8,
	LevelWarning:   0xffc107,
	LevelCritical:  0xdc3545,
	LevelEmergency: 0x721c24,
}

func (w *webhookSender) send(ctx context.Context, a Alert) error {
	if !w.cfg.WebhookEnabled || len(w.cfg.WebhookURLs) == 0 {
		return nil
	}
	var failed []string
	for _, url := range w.cfg.WebhookURLs {
		payload := w.payloadFor(url, a)
		if err := w.post(ctx, url, payload); err != nil {
			failed = append(failed, url)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("alerts: webhook failed for %d of %d URLs", len(failed), len(w.cfg.WebhookURLs))
	}
	return nil
}

func (w *webhookSender) payloadFor(url string, a Alert) any {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "hooks.slack.com") || strings.Contains(lower, "slack"):
		return slackPayload(a)
	case strings.Contains(lower, "discord"):
		return discordPayload(a)
	default:
		return genericPayload(a)
	}
}

func genericPayload(a Alert) map[string]any {
	return map[string]any{
		"id":        a.ID,
		"level":     a.Level.String(),
		"source":    a.Source,
		"message":   a.Message,
		"timestamp": a.At.Format(time.RFC3339),
		"data":      a.Data,
	}
}

func slackPayload(a Alert) map[string]any {
	return map[string]any{
		"attachments": []map[string]any{{
			"color": levelColor[a.Level],
			"title": "NIGHTWATCH " + strings.ToUpper(a.Level.String()),
			"text":  a.Message,
			"fields": []map[string]any{
				{"title": "Source", "value": a.Source, "short": true},
				{"title": "Time", "value": a.At.Format("15:04:05"), "short": true},
			},
			"footer": "Alert ID: " + a.ID,
		}},
	}
}

func discordPayload(a Alert) map[string]any {
	return map[string]any{
		"embeds": []map[string]any{{
			"title":       "NIGHTWATCH " + strings.ToUpper(a.Level.String()),
			"description": a.Message,
			"color":       levelColorHex[a.Level],
			"fields": []map[string]any{
				{"name": "Source", "value": a.Source, "inline": true},
				{"name": "Time", "value": a.At.Format("15:04:05"), "inline": true},
			},
			"footer": map[string]any{"text": "Alert ID: " + a.ID},
		}},
	}
}

func (w *webhookSender) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alerts: marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerts: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerts: post webhook: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("alerts: webhook %s returned %d: %s", url, resp.StatusCode, string(respBody))
	}
	return nil
}

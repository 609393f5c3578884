package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// WebhookSender delivers in-app notifications by POSTing them to the app backend.
type WebhookSender struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookSender creates an in-app webhook sender.
// If secret is non-empty, requests are signed with HMAC-SHA256.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookSender) Channel() model.Channel { return model.ChannelInApp }

func (w *WebhookSender) Send(ctx context.Context, target string, msg Message) error {
	if target == "" {
		return errors.New("webhook target is empty")
	}
	body, err := json.Marshal(webhookPayload{
		Event:     "vital_notification",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Target:    target,
		Message:   msg,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "vitalwatch/1.0")
	req.Header.Set("X-Vitalwatch-Severity", msg.Severity.String())
	if msg.AlertID != "" {
		req.Header.Set("X-Vitalwatch-Alert", msg.AlertID)
	}
	if w.secret != "" {
		req.Header.Set("X-Signature-256", "sha256="+signBody(body, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver in-app webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

type webhookPayload struct {
	Event     string  `json:"event"`
	Timestamp string  `json:"timestamp"`
	Target    string  `json:"target"`
	Message   Message `json:"message"`
}

// signBody returns the hex HMAC-SHA256 of body under secret.
func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier POSTs JSON envelopes to a single endpoint. It does not retry.
type WebhookNotifier struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

type envelope struct {
	Kind   string    `json:"kind"`
	SentAt time.Time `json:"sentAt"`
	Batch  *Batch    `json:"batch,omitempty"`
	Alert  *Alert    `json:"alert,omitempty"`
}

// NewWebhookNotifier constructs a webhook client.
func NewWebhookNotifier(endpoint, token string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SendBatch implements Notifier.
func (w *WebhookNotifier) SendBatch(ctx context.Context, batch Batch) error {
	return w.post(ctx, envelope{Kind: "batch", SentAt: time.Now().UTC(), Batch: &batch})
}

// SendAlert implements Notifier.
func (w *WebhookNotifier) SendAlert(ctx context.Context, alert Alert) error {
	return w.post(ctx, envelope{Kind: "alert", SentAt: time.Now().UTC(), Alert: &alert})
}

func (w *WebhookNotifier) post(ctx context.Context, payload envelope) error {
	if w == nil {
		return fmt.Errorf("webhook notifier not initialised")
	}
	if w.endpoint == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook %s failed: %d %s", payload.Kind, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

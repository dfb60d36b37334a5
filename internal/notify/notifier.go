// Package notify tells the inviting party that an interview finished. The
// dispatch is fire-and-forget; delivery failure never alters the session.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/metrics"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
)

// Notifier delivers completion notifications.
type Notifier interface {
	Completed(ctx context.Context, sess *store.Session) error
}

// Webhook posts a completion event to the recruiter backend's webhook.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier with a pooled transport.
func NewWebhook(url string, poolSize int, timeout time.Duration) *Webhook {
	return &Webhook{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:          poolSize,
				MaxIdleConnsPerHost:   poolSize,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ForceAttemptHTTP2:     true,
			},
		},
	}
}

type completedPayload struct {
	Event        string     `json:"event"`
	SessionID    string     `json:"session_id"`
	JobRole      string     `json:"job_role"`
	EndReason    string     `json:"end_reason"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	RecordingRef string     `json:"recording_ref,omitempty"`
}

// Completed posts the completion event.
func (w *Webhook) Completed(ctx context.Context, sess *store.Session) error {
	body, err := json.Marshal(completedPayload{
		Event:        "interview.completed",
		SessionID:    sess.ID,
		JobRole:      sess.JobRole,
		EndReason:    string(sess.EndReason),
		CompletedAt:  sess.CompletedAt,
		RecordingRef: sess.RecordingRef,
	})
	if err != nil {
		return fmt.Errorf("notify marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("notify", "http").Inc()
		return fmt.Errorf("notify post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.Errors.WithLabelValues("notify", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify status %d: %s", resp.StatusCode, errBody)
	}
	return nil
}

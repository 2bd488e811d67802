// SPDX-License-Identifier: MIT

package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/mediafetch/internal/pipeline"
)

// DefaultWebhookTimeout bounds one webhook POST.
const DefaultWebhookTimeout = 5 * time.Second

// WebhookPayload is the JSON body posted for each status update.
type WebhookPayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Webhook posts status updates of one job to a callback URL.
type Webhook struct {
	URL    string
	JobID  string
	Client *http.Client
}

var _ pipeline.StatusReporter = (*Webhook)(nil)

// NewWebhook creates a webhook reporter with the default timeout.
func NewWebhook(url, jobID string) *Webhook {
	return &Webhook{URL: url, JobID: jobID, Client: &http.Client{Timeout: DefaultWebhookTimeout}}
}

// Report implements pipeline.StatusReporter.
func (w *Webhook) Report(ctx context.Context, text string) error {
	body, err := json.Marshal(WebhookPayload{ID: w.JobID, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultWebhookTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook post: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Writer prints every status update as one line.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ pipeline.StatusReporter = (*Writer)(nil)

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// Report implements pipeline.StatusReporter.
func (w *Writer) Report(_ context.Context, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.w, text)
	return err
}

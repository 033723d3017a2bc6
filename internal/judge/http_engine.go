package judge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPEngine judges tasks synchronously by posting them to a judge server.
type HTTPEngine struct {
	client *http.Client
	url    string
	token  string
}

// NewHTTPEngine builds an engine posting to url. A nil client gets one with timeout.
func NewHTTPEngine(client *http.Client, url, token string, timeout time.Duration) *HTTPEngine {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPEngine{client: client, url: url, token: token}
}

// Name implements Engine.
func (e *HTTPEngine) Name() string { return "http" }

// Judge posts the task; any 2xx response means accepted.
func (e *HTTPEngine) Judge(ctx context.Context, task Task) error {
	payload, err := encodeTask(task)
	if err != nil {
		return fmt.Errorf("encode judge task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build judge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", task.SubmissionID)
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post judge task %s: %w", task.SubmissionID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post judge task %s: status %d: %w", task.SubmissionID, resp.StatusCode, ErrRejected)
	}

	return nil
}

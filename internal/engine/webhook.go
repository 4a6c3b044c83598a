package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"funnel-backend/internal/store"
)

var webhookHTTPClient = &http.Client{Timeout: 30 * time.Second}

// WebhookDispatcher posts JSON payloads to external endpoints and records
// every delivery attempt in _webhook_logs. Failed deliveries are marked
// retrying and picked up by the WebhookScheduler.
type WebhookDispatcher struct {
	store       *store.Store
	maxAttempts int
}

func NewWebhookDispatcher(s *store.Store, maxAttempts int) *WebhookDispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &WebhookDispatcher{store: s, maxAttempts: maxAttempts}
}

// Deliver posts the payload and logs the outcome. A failed first attempt
// returns an error and leaves a retrying log row behind.
func (w *WebhookDispatcher) Deliver(ctx context.Context, url, event string, payload map[string]any) error {
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	bodyJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	status, respBody, deliverErr := postJSON(ctx, url, bodyJSON)

	logStatus := "delivered"
	var errMsg string
	if deliverErr != nil || status >= 400 {
		logStatus = "failed"
		if w.maxAttempts > 1 {
			logStatus = "retrying"
		}
		if deliverErr != nil {
			errMsg = deliverErr.Error()
		} else {
			errMsg = fmt.Sprintf("HTTP %d", status)
		}
	}

	if logErr := w.logDelivery(ctx, url, string(bodyJSON), status, respBody, logStatus, 1, errMsg); logErr != nil {
		log.Printf("ERROR: webhook delivery log failed: %v", logErr)
	}

	if deliverErr != nil {
		return deliverErr
	}
	if status >= 400 {
		return fmt.Errorf("webhook %s returned HTTP %d", url, status)
	}
	return nil
}

func postJSON(ctx context.Context, url string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := webhookHTTPClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, string(respBody), nil
}

func (w *WebhookDispatcher) logDelivery(ctx context.Context, url, requestBody string, respStatus int, respBody, status string, attempt int, errMsg string) error {
	pb := w.store.Dialect.NewParamBuilder()

	var nextRetry any
	if status == "retrying" {
		nextRetry = time.Now().UTC().Add(retryBackoff(attempt))
	}

	query := fmt.Sprintf(`INSERT INTO _webhook_logs
		(id, url, method, request_body, response_status, response_body, status, attempt, max_attempts, next_retry_at, error)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(store.GenerateUUID()), pb.Add(url), pb.Add("POST"), pb.Add(requestBody),
		pb.Add(respStatus), pb.Add(respBody), pb.Add(status), pb.Add(attempt),
		pb.Add(w.maxAttempts), pb.Add(nextRetry), pb.Add(nullableString(errMsg)))
	_, err := store.Exec(ctx, w.store.DB, query, pb.Params()...)
	return err
}

// retryBackoff grows exponentially with the attempt number, capped at 10m.
func retryBackoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 15 * time.Second
	if d > 10*time.Minute {
		d = 10 * time.Minute
	}
	return d
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

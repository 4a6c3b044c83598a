package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"funnel-backend/internal/store"
)

// WebhookScheduler retries failed webhook deliveries on a background interval.
type WebhookScheduler struct {
	store  *store.Store
	ticker *time.Ticker
	done   chan struct{}
}

func NewWebhookScheduler(s *store.Store) *WebhookScheduler {
	return &WebhookScheduler{store: s}
}

// Start begins the background ticker for retrying webhook deliveries.
func (ws *WebhookScheduler) Start() {
	ws.ticker = time.NewTicker(30 * time.Second)
	ws.done = make(chan struct{})
	go ws.run()
	log.Println("Webhook scheduler started (30s interval)")
}

// Stop halts the background ticker.
func (ws *WebhookScheduler) Stop() {
	if ws.ticker != nil {
		ws.ticker.Stop()
	}
	if ws.done != nil {
		close(ws.done)
	}
}

func (ws *WebhookScheduler) run() {
	for {
		select {
		case <-ws.done:
			return
		case <-ws.ticker.C:
			ws.processRetries()
		}
	}
}

func (ws *WebhookScheduler) processRetries() {
	ctx := context.Background()

	query := fmt.Sprintf(`SELECT id, url, request_body, attempt, max_attempts
		 FROM _webhook_logs
		 WHERE status = 'retrying' AND next_retry_at < %s
		 ORDER BY next_retry_at ASC
		 LIMIT 50`, ws.store.Dialect.NowExpr())
	rows, err := store.QueryRows(ctx, ws.store.DB, query)
	if err != nil {
		log.Printf("ERROR: webhook scheduler query failed: %v", err)
		return
	}

	for _, row := range rows {
		ws.retryDelivery(ctx, row)
	}
}

func (ws *WebhookScheduler) retryDelivery(ctx context.Context, row map[string]any) {
	logID := fmt.Sprintf("%v", row["id"])
	attempt := rowInt(row["attempt"]) + 1
	maxAttempts := rowInt(row["max_attempts"])
	url := fmt.Sprintf("%v", row["url"])

	var body []byte
	switch v := row["request_body"].(type) {
	case string:
		body = []byte(v)
	case []byte:
		body = v
	}

	status, respBody, err := postJSON(ctx, url, body)

	var newStatus, errMsg string
	switch {
	case err == nil && status < 400:
		newStatus = "delivered"
	case attempt >= maxAttempts:
		newStatus = "failed"
	default:
		newStatus = "retrying"
	}
	if err != nil {
		errMsg = err.Error()
	} else if status >= 400 {
		errMsg = fmt.Sprintf("HTTP %d", status)
	}

	pb := ws.store.Dialect.NewParamBuilder()
	var nextRetry any
	if newStatus == "retrying" {
		nextRetry = time.Now().UTC().Add(retryBackoff(attempt))
	}
	update := fmt.Sprintf(`UPDATE _webhook_logs
		SET status = %s, attempt = %s, response_status = %s, response_body = %s,
		    next_retry_at = %s, error = %s, updated_at = %s
		WHERE id = %s`,
		pb.Add(newStatus), pb.Add(attempt), pb.Add(status), pb.Add(respBody),
		pb.Add(nextRetry), pb.Add(nullableString(errMsg)), ws.store.Dialect.NowExpr(), pb.Add(logID))
	if _, uerr := store.Exec(ctx, ws.store.DB, update, pb.Params()...); uerr != nil {
		log.Printf("ERROR: webhook retry update failed for %s: %v", logID, uerr)
		return
	}

	if newStatus == "delivered" {
		log.Printf("Webhook retry delivered: %s (attempt %d)", url, attempt)
	} else if newStatus == "failed" {
		log.Printf("WARN: webhook giving up after %d attempts: %s", attempt, url)
	}
}

func rowInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"funnel-backend/internal/metadata"
	"funnel-backend/internal/store"
)

// ContextProvider builds the immutable snapshot condition evaluation
// runs against. Elapsed-time attributes are computed here, once, so the
// evaluator itself never reads the clock.
type ContextProvider interface {
	Snapshot(ctx context.Context, userID string) (metadata.Snapshot, error)
}

// SQLContextProvider assembles snapshots from the users and _user_tags
// tables.
type SQLContextProvider struct {
	Store *store.Store
	Now   func() time.Time
}

func NewSQLContextProvider(s *store.Store) *SQLContextProvider {
	return &SQLContextProvider{Store: s, Now: time.Now}
}

func (p *SQLContextProvider) Snapshot(ctx context.Context, userID string) (metadata.Snapshot, error) {
	pb := p.Store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(`SELECT id, credits, generations_total, payments_total, last_payment_failed,
		       created_at, last_activity_at, last_generation_at, last_payment_at
		FROM users WHERE id = %s`, pb.Add(userID))
	row, err := store.QueryRow(ctx, p.Store.DB, query, pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return metadata.Snapshot{}, ErrUnknownUser
		}
		return metadata.Snapshot{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	store.NormalizeBooleans([]map[string]any{row}, []string{"last_payment_failed"}, p.Store.Dialect)

	now := p.Now().UTC()
	attrs := map[string]any{
		"credits":             row["credits"],
		"generations_total":   row["generations_total"],
		"payments_total":      row["payments_total"],
		"last_payment_failed": row["last_payment_failed"],
	}
	if t, ok := row["created_at"].(time.Time); ok {
		hours := now.Sub(t).Hours()
		attrs["hours_since_created"] = hours
		attrs["days_since_created"] = hours / 24
	}
	if t, ok := row["last_activity_at"].(time.Time); ok {
		attrs["hours_since_last_activity"] = now.Sub(t).Hours()
	}
	if t, ok := row["last_generation_at"].(time.Time); ok {
		attrs["hours_since_last_generation"] = now.Sub(t).Hours()
	}
	if t, ok := row["last_payment_at"].(time.Time); ok {
		attrs["hours_since_last_payment"] = now.Sub(t).Hours()
	}

	tags, err := p.loadTags(ctx, userID)
	if err != nil {
		return metadata.Snapshot{}, err
	}
	if len(tags) > 0 {
		attrs["tags"] = tags
	}

	return metadata.Snapshot{UserID: userID, Attrs: attrs}, nil
}

func (p *SQLContextProvider) loadTags(ctx context.Context, userID string) ([]string, error) {
	pb := p.Store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("SELECT tag FROM _user_tags WHERE user_id = %s ORDER BY tag", pb.Add(userID))
	rows, err := store.QueryRows(ctx, p.Store.DB, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("load tags for %s: %w", userID, err)
	}
	tags := make([]string, 0, len(rows))
	for _, row := range rows {
		if tag, ok := row["tag"].(string); ok {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"funnel-backend/internal/metadata"
	"funnel-backend/internal/store"
)

// UserStateStore persists per-(user, version) funnel positions.
type UserStateStore interface {
	// Get returns the user's position in the given version, or
	// store.ErrNotFound if the user has never entered it.
	Get(ctx context.Context, userID, versionID string) (*metadata.UserFunnelState, error)

	// Enter inserts the user's initial position. No-op if a row already
	// exists.
	Enter(ctx context.Context, userID, versionID, stateID string, enteredAt time.Time) error

	// Commit moves the user to a new state. state_id and entered_at are
	// written in one statement so a crash can never leave a state change
	// without its timestamp reset.
	Commit(ctx context.Context, userID, versionID, toStateID string, enteredAt time.Time) error
}

// SQLUserStateStore backs UserStateStore with the _user_funnel_states table.
type SQLUserStateStore struct {
	Store *store.Store
}

func NewSQLUserStateStore(s *store.Store) *SQLUserStateStore {
	return &SQLUserStateStore{Store: s}
}

func (s *SQLUserStateStore) Get(ctx context.Context, userID, versionID string) (*metadata.UserFunnelState, error) {
	pb := s.Store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(`SELECT user_id, version_id, state_id, entered_at
		FROM _user_funnel_states WHERE user_id = %s AND version_id = %s`,
		pb.Add(userID), pb.Add(versionID))
	row, err := store.QueryRow(ctx, s.Store.DB, query, pb.Params()...)
	if err != nil {
		return nil, err
	}

	ufs := &metadata.UserFunnelState{
		UserID:    fmt.Sprintf("%v", row["user_id"]),
		VersionID: fmt.Sprintf("%v", row["version_id"]),
		StateID:   fmt.Sprintf("%v", row["state_id"]),
	}
	if t, ok := row["entered_at"].(time.Time); ok {
		ufs.EnteredAt = t
	}
	return ufs, nil
}

func (s *SQLUserStateStore) Enter(ctx context.Context, userID, versionID, stateID string, enteredAt time.Time) error {
	pb := s.Store.Dialect.NewParamBuilder()
	var query string
	if s.Store.Dialect.Name() == "sqlite" {
		query = fmt.Sprintf(`INSERT OR IGNORE INTO _user_funnel_states (user_id, version_id, state_id, entered_at)
			VALUES (%s, %s, %s, %s)`,
			pb.Add(userID), pb.Add(versionID), pb.Add(stateID), pb.Add(enteredAt))
	} else {
		query = fmt.Sprintf(`INSERT INTO _user_funnel_states (user_id, version_id, state_id, entered_at)
			VALUES (%s, %s, %s, %s) ON CONFLICT (user_id, version_id) DO NOTHING`,
			pb.Add(userID), pb.Add(versionID), pb.Add(stateID), pb.Add(enteredAt))
	}
	_, err := store.Exec(ctx, s.Store.DB, query, pb.Params()...)
	return err
}

func (s *SQLUserStateStore) Commit(ctx context.Context, userID, versionID, toStateID string, enteredAt time.Time) error {
	pb := s.Store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(`UPDATE _user_funnel_states
		SET state_id = %s, entered_at = %s
		WHERE user_id = %s AND version_id = %s`,
		pb.Add(toStateID), pb.Add(enteredAt), pb.Add(userID), pb.Add(versionID))
	n, err := store.Exec(ctx, s.Store.DB, query, pb.Params()...)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("commit transition: no funnel state row")
	}
	return nil
}

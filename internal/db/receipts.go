package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/susu3304/recibot/internal/receipt"
)

// ErrStateConflict means the stored version does not match the snapshot's
// predecessor: some other writer got there first. The caller's in-memory
// state is stale and must not be retried blindly.
var ErrStateConflict = errors.New("session state conflict")

var ErrSessionNotFound = errors.New("session not found")

// SaveSession persists a snapshot with compare-and-swap semantics on the
// version column. Version 1 inserts; later versions only apply when the row
// still holds version-1.
func (db *DB) SaveSession(ctx context.Context, snap *receipt.Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	if snap.Version == 1 {
		ct, err := db.pool.Exec(ctx,
			`INSERT INTO receipt_sessions (id, state, version)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO NOTHING`,
			snap.SessionID, state, snap.Version,
		)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrStateConflict
		}
		return nil
	}

	ct, err := db.pool.Exec(ctx,
		`UPDATE receipt_sessions
		 SET state = $2, version = $3, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1 AND version = $3 - 1`,
		snap.SessionID, state, snap.Version,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

func (db *DB) LoadSession(ctx context.Context, sessionID string) (*receipt.Snapshot, error) {
	var state []byte
	err := db.pool.QueryRow(ctx,
		`SELECT state FROM receipt_sessions WHERE id = $1`,
		sessionID,
	).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var snap receipt.Snapshot
	if err := json.Unmarshal(state, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}
	return &snap, nil
}

// ListSessionIDs returns every persisted session id, newest first. Used at
// startup to restore in-memory state.
func (db *DB) ListSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT id FROM receipt_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BindChannel remembers which session a Discord channel is working on, so the
// dialog flow can find it without threading ids through every message.
func (db *DB) BindChannel(ctx context.Context, channelID, sessionID string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO receipt_channels (channel_id, session_id)
		 VALUES ($1, $2)
		 ON CONFLICT (channel_id) DO UPDATE SET session_id = EXCLUDED.session_id`,
		channelID, sessionID,
	)
	return err
}

func (db *DB) ChannelSession(ctx context.Context, channelID string) (string, error) {
	var sessionID string
	err := db.pool.QueryRow(ctx,
		`SELECT session_id FROM receipt_channels WHERE channel_id = $1`,
		channelID,
	).Scan(&sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	return sessionID, nil
}

func (db *DB) UnbindChannel(ctx context.Context, channelID string) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM receipt_channels WHERE channel_id = $1`, channelID)
	return err
}

// ChannelBinding is one channel's active session plus when that session last
// changed, for the reminder sweep.
type ChannelBinding struct {
	ChannelID string
	SessionID string
	UpdatedAt time.Time
}

func (db *DB) ListBindings(ctx context.Context) ([]ChannelBinding, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT c.channel_id, c.session_id, s.updated_at
		 FROM receipt_channels c
		 JOIN receipt_sessions s ON s.id = c.session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bindings []ChannelBinding
	for rows.Next() {
		var b ChannelBinding
		if err := rows.Scan(&b.ChannelID, &b.SessionID, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	errx "github.com/Chative-rag-assistant/server/internal/core/error"
	logx "github.com/Chative-rag-assistant/server/pkg/logger"
	"github.com/cloudwego/eino/schema"
	_ "github.com/glebarez/go-sqlite"
)

// SqliteSessionStore keeps session counters in one table and the messages,
// one JSON row each, in another.
type SqliteSessionStore struct {
	db *sql.DB
}

type SqliteOptions struct {
	Path string
}

func NewSqliteSessionStore(ctx context.Context, opts SqliteOptions) (*SqliteSessionStore, error) {
	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	s := &SqliteSessionStore{db: db}
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteSessionStore) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			turns INTEGER NOT NULL DEFAULT 0,
			total_cost_usd REAL NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_messages_session ON session_messages (session_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (s *SqliteSessionStore) Close() error {
	return s.db.Close()
}

func (s *SqliteSessionStore) Load(ctx context.Context, sessionID string) (*model.Session, error) {
	var (
		updatedAt string
		session   = model.NewSession(sessionID)
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT turns, total_cost_usd, updated_at FROM sessions WHERE id = ?`, sessionID,
	).Scan(&session.Turns, &session.TotalCostUSD, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session, nil
	}
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session from sqlite")
		return nil, errx.WrapStore(err)
	}
	session.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM session_messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session messages from sqlite")
		return nil, errx.WrapStore(err)
	}
	defer rows.Close()

	for i := 0; rows.Next(); i++ {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errx.WrapStore(err)
		}
		var m schema.Message
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		session.Messages = append(session.Messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapStore(err)
	}
	return session, nil
}

// Append inserts the turn's messages and bumps the counters in one
// transaction.
func (s *SqliteSessionStore) Append(ctx context.Context, sessionID string, turn model.Turn) error {
	bodies := make([]string, 0, len(turn.Messages))
	for _, m := range turn.Messages {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		bodies = append(bodies, string(b))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to begin sqlite transaction")
		return errx.WrapStore(err)
	}
	defer tx.Rollback()

	for _, body := range bodies {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_messages (session_id, body) VALUES (?, ?)`, sessionID, body,
		); err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to append message to sqlite")
			return errx.WrapStore(err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, turns, total_cost_usd, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			turns = sessions.turns + 1,
			total_cost_usd = sessions.total_cost_usd + excluded.total_cost_usd,
			updated_at = excluded.updated_at`,
		sessionID, turn.CostUSD, turn.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to update session in sqlite")
		return errx.WrapStore(err)
	}
	if err := tx.Commit(); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to commit sqlite transaction")
		return errx.WrapStore(err)
	}
	return nil
}

func (s *SqliteSessionStore) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errx.WrapStore(err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM session_messages WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, sessionID); err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete session from sqlite")
			return errx.WrapStore(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errx.WrapStore(err)
	}
	return nil
}

var _ model.SessionStore = (*SqliteSessionStore)(nil)

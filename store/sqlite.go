// Package store provides the SQLite-backed session store and AI exchange log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"github.com/tbxark/onboardagent/agent"
	"github.com/tbxark/onboardagent/gateway"
)

// SQLiteStore implements agent.SessionStore and agent.ExchangeLog.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ agent.SessionStore = (*SQLiteStore)(nil)
	_ agent.ExchangeLog  = (*SQLiteStore)(nil)
)

// NewSQLite opens (and creates if needed) the database at dbPath with WAL
// mode for better concurrency.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		user_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		pending_json TEXT,
		collected_json TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS ai_exchanges (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		prompt_type TEXT NOT NULL,
		input_parts_json TEXT NOT NULL,
		raw_response TEXT,
		parsed_json TEXT,
		status TEXT NOT NULL,
		error TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_user ON ai_exchanges(user_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, userID string) (*agent.Session, bool, error) {
	query := `
		SELECT user_id, state, pending_json, collected_json, retry_count, created_at, updated_at
		FROM sessions WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var session agent.Session
	var state string
	var pendingJSON sql.NullString
	var collectedJSON string
	var createdAt, updatedAt int64

	err := row.Scan(&session.UserID, &state, &pendingJSON, &collectedJSON,
		&session.RetryCount, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scan session row: %w", err)
	}

	session.State = agent.State(state)
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	if err := sonic.UnmarshalString(collectedJSON, &session.Collected); err != nil {
		return nil, false, fmt.Errorf("decode collected fields: %w", err)
	}
	if pendingJSON.Valid && pendingJSON.String != "" {
		var pending agent.PendingPayload
		if err := sonic.UnmarshalString(pendingJSON.String, &pending); err != nil {
			return nil, false, fmt.Errorf("decode pending payload: %w", err)
		}
		session.Pending = &pending
	}
	return &session, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, session *agent.Session) error {
	collectedJSON, err := sonic.MarshalString(session.Collected)
	if err != nil {
		return fmt.Errorf("encode collected fields: %w", err)
	}

	var pendingJSON sql.NullString
	if session.Pending != nil {
		encoded, err := sonic.MarshalString(session.Pending)
		if err != nil {
			return fmt.Errorf("encode pending payload: %w", err)
		}
		pendingJSON = sql.NullString{String: encoded, Valid: true}
	}

	query := `
		INSERT INTO sessions (user_id, state, pending_json, collected_json, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			pending_json = excluded.pending_json,
			collected_json = excluded.collected_json,
			retry_count = excluded.retry_count,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		session.UserID, string(session.State), pendingJSON, collectedJSON,
		session.RetryCount, session.CreatedAt.Unix(), session.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IdleSince(ctx context.Context, cutoff time.Time) ([]*agent.Session, error) {
	query := `
		SELECT user_id, state, pending_json, collected_json, retry_count, created_at, updated_at
		FROM sessions
		WHERE updated_at < ? AND state NOT IN (?, ?)`

	rows, err := s.db.QueryContext(ctx, query, cutoff.Unix(),
		string(agent.StateProfileReady), string(agent.StateAbandoned))
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer rows.Close()

	var out []*agent.Session
	for rows.Next() {
		var session agent.Session
		var state string
		var pendingJSON sql.NullString
		var collectedJSON string
		var createdAt, updatedAt int64

		if err := rows.Scan(&session.UserID, &state, &pendingJSON, &collectedJSON,
			&session.RetryCount, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan idle session: %w", err)
		}
		session.State = agent.State(state)
		session.CreatedAt = time.Unix(createdAt, 0)
		session.UpdatedAt = time.Unix(updatedAt, 0)
		if err := sonic.UnmarshalString(collectedJSON, &session.Collected); err != nil {
			return nil, fmt.Errorf("decode collected fields: %w", err)
		}
		if pendingJSON.Valid && pendingJSON.String != "" {
			var pending agent.PendingPayload
			if err := sonic.UnmarshalString(pendingJSON.String, &pending); err != nil {
				return nil, fmt.Errorf("decode pending payload: %w", err)
			}
			session.Pending = &pending
		}
		out = append(out, &session)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, exchange *agent.Exchange) error {
	partsJSON, err := sonic.MarshalString(exchange.InputParts)
	if err != nil {
		return fmt.Errorf("encode input parts: %w", err)
	}

	var parsedJSON sql.NullString
	if exchange.Parsed != nil {
		encoded, err := sonic.MarshalString(exchange.Parsed)
		if err != nil {
			return fmt.Errorf("encode parsed result: %w", err)
		}
		parsedJSON = sql.NullString{String: encoded, Valid: true}
	}

	query := `
		INSERT INTO ai_exchanges (id, user_id, prompt_type, input_parts_json, raw_response, parsed_json, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		exchange.ID, exchange.UserID, exchange.PromptType, partsJSON,
		exchange.Raw, parsedJSON, string(exchange.Status), exchange.Error,
		exchange.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, userID string) ([]*agent.Exchange, error) {
	query := `
		SELECT id, user_id, prompt_type, input_parts_json, raw_response, parsed_json, status, error, created_at
		FROM ai_exchanges WHERE user_id = ? ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var out []*agent.Exchange
	for rows.Next() {
		var exchange agent.Exchange
		var partsJSON, status string
		var parsedJSON, errText, raw sql.NullString
		var createdAt int64

		if err := rows.Scan(&exchange.ID, &exchange.UserID, &exchange.PromptType,
			&partsJSON, &raw, &parsedJSON, &status, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan exchange row: %w", err)
		}
		exchange.Raw = raw.String
		exchange.Status = gateway.Status(status)
		exchange.Error = errText.String
		exchange.CreatedAt = time.Unix(createdAt, 0)
		if err := sonic.UnmarshalString(partsJSON, &exchange.InputParts); err != nil {
			return nil, fmt.Errorf("decode input parts: %w", err)
		}
		if parsedJSON.Valid && parsedJSON.String != "" {
			if err := sonic.UnmarshalString(parsedJSON.String, &exchange.Parsed); err != nil {
				return nil, fmt.Errorf("decode parsed result: %w", err)
			}
		}
		out = append(out, &exchange)
	}
	return out, rows.Err()
}

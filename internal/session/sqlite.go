package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/samsaffron/toolchat/internal/llm"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    name TEXT,
    summary TEXT,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    mode TEXT,
    cwd TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    rounds INTEGER DEFAULT 0,
    tool_calls INTEGER DEFAULT 0,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    status TEXT DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system', 'tool')),
    payload TEXT NOT NULL,
    text_content TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sequence INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_turns_session_sequence ON turns(session_id, sequence);

CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT
);
`

// schemaVersion is stored in PRAGMA user_version. Increment it together
// with a migration when the schema changes.
const schemaVersion = 1

// NewSQLiteStore opens (creating if needed) the sessions database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sessions database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}
	if version > 0 {
		return fmt.Errorf("unsupported schema version %d", version)
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// Create inserts a new session, filling in id, timestamps and status.
func (s *SQLiteStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	if sess.Status == "" {
		sess.Status = StatusActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, summary, provider, model, mode, cwd, created_at, updated_at,
		                      rounds, tool_calls, input_tokens, output_tokens, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, nullString(sess.Name), nullString(sess.Summary), sess.Provider, sess.Model,
		nullString(string(sess.Mode)), nullString(sess.CWD), sess.CreatedAt, sess.UpdatedAt,
		sess.Rounds, sess.ToolCalls, sess.InputTokens, sess.OutputTokens, string(sess.Status))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get returns the session with id, or nil if there is none.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	var sess Session
	var name, summary, mode, cwd sql.NullString
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, summary, provider, model, mode, cwd, created_at, updated_at,
		       rounds, tool_calls, input_tokens, output_tokens, status
		FROM sessions WHERE id = ?`, id).Scan(
		&sess.ID, &name, &summary, &sess.Provider, &sess.Model, &mode, &cwd,
		&sess.CreatedAt, &sess.UpdatedAt,
		&sess.Rounds, &sess.ToolCalls, &sess.InputTokens, &sess.OutputTokens, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.Name = name.String
	sess.Summary = summary.String
	sess.Mode = Mode(mode.String)
	sess.CWD = cwd.String
	sess.Status = Status(status)
	return &sess, nil
}

func (s *SQLiteStore) Rename(ctx context.Context, id, name string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET name = ?, updated_at = ? WHERE id = ?",
		nullString(name), time.Now(), id)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return requireRow(result, id)
}

// Delete removes a session and its turns.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	// Foreign key cascade handles turns
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireRow(result, id)
}

// List returns sessions matching opts, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	query := `
		SELECT s.id, s.name, s.summary, s.provider, s.model, s.mode, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM turns WHERE session_id = s.id) AS turn_count,
		       s.rounds, s.tool_calls, s.input_tokens, s.output_tokens, s.status
		FROM sessions s
		WHERE 1=1`
	args := []any{}

	if opts.Provider != "" {
		query += " AND s.provider = ?"
		args = append(args, opts.Provider)
	}
	if opts.Model != "" {
		query += " AND s.model = ?"
		args = append(args, opts.Model)
	}
	if opts.Mode != "" {
		query += " AND s.mode = ?"
		args = append(args, string(opts.Mode))
	}
	if opts.Status != "" {
		query += " AND s.status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY s.updated_at DESC, s.created_at DESC"

	limit := opts.Limit
	if limit == 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		var name, summary, mode sql.NullString
		var status string
		if err := rows.Scan(&sum.ID, &name, &summary, &sum.Provider, &sum.Model, &mode,
			&sum.CreatedAt, &sum.UpdatedAt, &sum.TurnCount,
			&sum.Rounds, &sum.ToolCalls, &sum.InputTokens, &sum.OutputTokens, &status); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sum.Name = name.String
		sum.Summary = summary.String
		sum.Mode = Mode(mode.String)
		sum.Status = Status(status)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// AppendTurn stores turn after the session's existing turns. The first user
// turn also becomes the session summary.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, turn llm.Turn) error {
	payload, err := encodeTurn(turn)
	if err != nil {
		return fmt.Errorf("serialize turn: %w", err)
	}

	// Transaction keeps sequence allocation atomic
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		"SELECT MAX(sequence) FROM turns WHERE session_id = ?", sessionID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("get max sequence: %w", err)
	}
	seq := 0
	if maxSeq.Valid {
		seq = int(maxSeq.Int64) + 1
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (session_id, role, payload, text_content, created_at, sequence)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, string(turn.Role), payload, turn.Text, now, seq); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	if turn.Role == llm.RoleUser {
		_, err = tx.ExecContext(ctx, `
			UPDATE sessions SET updated_at = ?, summary = COALESCE(NULLIF(summary, ''), ?)
			WHERE id = ?`, now, TruncateSummary(turn.Text), sessionID)
	} else {
		_, err = tx.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", now, sessionID)
	}
	if err != nil {
		return fmt.Errorf("update session timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Turns loads the full stored history of a session.
func (s *SQLiteStore) Turns(ctx context.Context, sessionID string) (llm.History, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM turns
		WHERE session_id = ?
		ORDER BY sequence ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var history llm.History
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn, err := decodeTurn(payload)
		if err != nil {
			return nil, fmt.Errorf("deserialize turn: %w", err)
		}
		history = append(history, turn)
	}
	return history, rows.Err()
}

// TruncateTurns drops every turn after the first keep turns.
func (s *SQLiteStore) TruncateTurns(ctx context.Context, sessionID string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM turns WHERE session_id = ? AND sequence IN (
			SELECT sequence FROM turns WHERE session_id = ?
			ORDER BY sequence ASC LIMIT -1 OFFSET ?
		)`, sessionID, sessionID, keep)
	if err != nil {
		return fmt.Errorf("truncate turns: %w", err)
	}
	return nil
}

// AddMetrics adds m to the session's counters.
func (s *SQLiteStore) AddMetrics(ctx context.Context, id string, m Metrics) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
		       rounds = rounds + ?,
		       tool_calls = tool_calls + ?,
		       input_tokens = input_tokens + ?,
		       output_tokens = output_tokens + ?,
		       updated_at = ?
		WHERE id = ?`,
		m.Rounds, m.ToolCalls, m.InputTokens, m.OutputTokens, time.Now(), id)
	return err
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now(), id)
	return err
}

// SetCurrent marks a session as the one "--resume last" returns.
func (s *SQLiteStore) SetCurrent(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('current_session', ?)", sessionID)
	return err
}

// GetCurrent returns the current session, or nil when none is marked or it
// has since been deleted.
func (s *SQLiteStore) GetCurrent(ctx context.Context) (*Session, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM metadata WHERE key = 'current_session'").Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, sessionID)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireRow(result sql.Result, id string) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// nullString converts an empty string to NULL for database storage.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Package persistence provides SQLite-based archival of completed
// simulation sessions: scenario, rubric, transcript, and feedback.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"influencesim/pkg/logx"
	"influencesim/pkg/session"
)

// ErrSessionNotFound is returned when a requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id  TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL,
	archived_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	final_state TEXT NOT NULL,
	scenario    TEXT NOT NULL,
	rubric      TEXT NOT NULL,
	feedback    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS turns (
	session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
	turn_index INTEGER NOT NULL,
	speaker    TEXT NOT NULL,
	content    TEXT NOT NULL,
	PRIMARY KEY (session_id, turn_index)
);
`

// ArchivedSession is a session row as stored.
type ArchivedSession struct {
	SessionID  string
	CreatedAt  time.Time
	ArchivedAt time.Time
	FinalState string
	Scenario   string
	Rubric     string
	Feedback   string
}

// Store archives sessions to a SQLite database. It implements
// controller.Archive.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if necessary) the archive database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping archive database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("persistence")
	logger.Info("archive database opened: %s", dbPath)

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close archive database: %w", err)
	}
	return nil
}

// RecordSession writes a completed session and its transcript in one
// transaction. Re-archiving the same session ID is an error; sessions are
// archived exactly once, on first successful evaluation.
func (s *Store) RecordSession(ctx context.Context, sess *session.Session, finalState string) error {
	scenario, _ := sess.Scenario()
	rubric, _ := sess.Rubric()
	feedback, _ := sess.Feedback()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, created_at, final_state, scenario, rubric, feedback)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sess.ID(), sess.CreatedAt().Format(time.RFC3339Nano), finalState, scenario, rubric, feedback)
	if err != nil {
		return fmt.Errorf("failed to insert session row: %w", err)
	}

	for i, turn := range sess.Transcript() {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO turns (session_id, turn_index, speaker, content)
			VALUES (?, ?, ?, ?)
		`, sess.ID(), i, string(turn.Speaker), turn.Content)
		if err != nil {
			return fmt.Errorf("failed to insert turn %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	s.logger.Debug("archived session %s (%d turns)", sess.ID(), len(sess.Transcript()))
	return nil
}

// GetSession returns an archived session by ID.
// Returns ErrSessionNotFound if the session was never archived.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*ArchivedSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, created_at, archived_at, final_state, scenario, rubric, feedback
		FROM sessions
		WHERE session_id = ?
	`, sessionID)

	var rec ArchivedSession
	var createdAt, archivedAt string
	err := row.Scan(&rec.SessionID, &createdAt, &archivedAt, &rec.FinalState,
		&rec.Scenario, &rec.Rubric, &rec.Feedback)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if t, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
		rec.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339Nano, archivedAt); parseErr == nil {
		rec.ArchivedAt = t
	}
	return &rec, nil
}

// GetTranscript returns the archived transcript for a session in turn order.
func (s *Store) GetTranscript(ctx context.Context, sessionID string) ([]session.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT speaker, content
		FROM turns
		WHERE session_id = ?
		ORDER BY turn_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []session.Turn
	for rows.Next() {
		var speaker, content string
		if err := rows.Scan(&speaker, &content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, session.Turn{Speaker: session.Speaker(speaker), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}

// ListSessions returns archived sessions, most recently archived first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]ArchivedSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, created_at, archived_at, final_state, scenario, rubric, feedback
		FROM sessions
		ORDER BY archived_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []ArchivedSession
	for rows.Next() {
		var rec ArchivedSession
		var createdAt, archivedAt string
		if err := rows.Scan(&rec.SessionID, &createdAt, &archivedAt, &rec.FinalState,
			&rec.Scenario, &rec.Rubric, &rec.Feedback); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if t, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
			rec.CreatedAt = t
		}
		if t, parseErr := time.Parse(time.RFC3339Nano, archivedAt); parseErr == nil {
			rec.ArchivedAt = t
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

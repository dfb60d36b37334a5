package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	// ErrNotFound is returned when no session exists for the given id.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned when a guarded status transition is
	// requested from a state it is not valid in.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store persists interview sessions, transcript messages and access links
// to PostgreSQL. Session status is only ever mutated through the guarded
// transition methods; there is no direct field-write path.
type Store struct {
	db *sql.DB
}

// Open connects to the PostgreSQL database at connStr and applies pending
// migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for _, entry := range entries {
		version, verErr := migrationVersion(entry.Name())
		if verErr != nil {
			return verErr
		}
		if version <= current {
			continue
		}
		data, readErr := migrationFS.ReadFile("migrations/" + entry.Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", version, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", version, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, version); execErr != nil {
			return fmt.Errorf("migration %d record: %w", version, execErr)
		}
	}
	return nil
}

// migrationVersion derives a migration's version from its "NNN_name.sql"
// filename, so applied versions stay stable even if the directory listing
// around a file changes.
func migrationVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migration %q: missing version prefix", name)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("migration %q: bad version prefix: %w", name, err)
	}
	return version, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const sessionColumns = `id, status, job_role, time_limit_seconds, started_at, completed_at,
	COALESCE(end_reason, ''), COALESCE(recording_ref, ''), score, COALESCE(summary, ''), created_at`

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var limitSeconds int64
	var startedAt, completedAt sql.NullTime
	var score sql.NullInt64
	err := row.Scan(&sess.ID, &sess.Status, &sess.JobRole, &limitSeconds,
		&startedAt, &completedAt, &sess.EndReason, &sess.RecordingRef, &score,
		&sess.Summary, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.TimeLimit = time.Duration(limitSeconds) * time.Second
	if startedAt.Valid {
		sess.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		sess.CompletedAt = &completedAt.Time
	}
	if score.Valid {
		v := int(score.Int64)
		sess.Score = &v
	}
	return &sess, nil
}

// CreateSession inserts a new pending session. Creation belongs to the
// recruiter backend; this exists for the seed tool and tests.
func (s *Store) CreateSession(ctx context.Context, id, jobRole string, timeLimit time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interview_sessions (id, status, job_role, time_limit_seconds, created_at)
		 VALUES ($1, 'pending', $2, $3, $4)`,
		id, jobRole, int64(timeLimit/time.Second), time.Now().UTC(),
	)
	return err
}

// GetSession returns one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM interview_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// Begin moves a pending session to in_progress and stamps started_at.
// Returns ErrInvalidTransition if the session has already started.
func (s *Store) Begin(ctx context.Context, id string, now time.Time) (*Session, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions SET status = 'in_progress', started_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, getErr := s.GetSession(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return s.GetSession(ctx, id)
}

// Finalize moves an in_progress session to completed, stamping completed_at
// and the end reason. If the session is already terminal the existing record
// is returned with committed=false, so racing callers converge on a single
// committed completed_at.
func (s *Store) Finalize(ctx context.Context, id string, now time.Time, reason EndReason) (sess *Session, committed bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions SET status = 'completed', completed_at = $2, end_reason = $3
		 WHERE id = $1 AND status = 'in_progress'`,
		id, now.UTC(), string(reason),
	)
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	sess, err = s.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		if sess.Status.Terminal() {
			return sess, false, nil
		}
		return nil, false, ErrInvalidTransition
	}
	return sess, true, nil
}

// ForceComplete is the fallback commit path used when the guarded Finalize
// keeps failing transiently. It stamps completed_at only if unset, so it
// stays idempotent under duplicate triggers.
func (s *Store) ForceComplete(ctx context.Context, id string, now time.Time, reason EndReason) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions
		 SET status = 'completed',
		     completed_at = COALESCE(completed_at, $2),
		     end_reason = COALESCE(end_reason, $3),
		     started_at = COALESCE(started_at, $2)
		 WHERE id = $1 AND status <> 'expired'`,
		id, now.UTC(), string(reason),
	)
	return err
}

// ExpireStale moves sessions that have been in_progress past their time
// limit plus grace to expired. It covers sessions whose finalization never
// ran (for example, the candidate's browser was killed). Returns how many
// sessions were expired.
func (s *Store) ExpireStale(ctx context.Context, now time.Time, grace time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions SET status = 'expired', end_reason = 'expired'
		 WHERE status = 'in_progress'
		   AND started_at + make_interval(secs => time_limit_seconds) + $2::interval < $1`,
		now.UTC(), fmt.Sprintf("%d seconds", int64(grace/time.Second)),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetRecordingRef commits the storage reference of a successfully uploaded
// recording. A newer successful upload for the same session may overwrite.
func (s *Store) SetRecordingRef(ctx context.Context, id, ref string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions SET recording_ref = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEvaluation commits score and summary. Valid only once a session is
// completed; the scoring step runs strictly after the terminal commit.
func (s *Store) SetEvaluation(ctx context.Context, id string, score int, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions SET score = $2, summary = $3
		 WHERE id = $1 AND status = 'completed'`,
		id, score, summary,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// AppendMessage inserts one transcript entry. Entries are append-only and
// never edited or removed.
func (s *Store) AppendMessage(ctx context.Context, m Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript_messages (id, session_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.SessionID, string(m.Role), m.Content, m.CreatedAt.UTC(),
	)
	return err
}

// ListMessages returns a session's transcript ordered by created_at
// ascending, id as tiebreak.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM transcript_messages
		 WHERE session_id = $1 ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err = rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CreateAccessLink binds identity to sessionID if the session is unclaimed.
// A conflict means a link already exists and is not an error; the caller
// re-reads the link to learn which identity holds the claim.
func (s *Store) CreateAccessLink(ctx context.Context, identity, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_links (session_id, identity, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO NOTHING`,
		sessionID, identity, time.Now().UTC(),
	)
	return err
}

// GetAccessLink returns the identity holding the claim on sessionID, or
// ErrNotFound if the session is unclaimed.
func (s *Store) GetAccessLink(ctx context.Context, sessionID string) (string, error) {
	var identity string
	err := s.db.QueryRowContext(ctx,
		`SELECT identity FROM access_links WHERE session_id = $1`, sessionID,
	).Scan(&identity)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return identity, nil
}

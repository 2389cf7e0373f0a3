package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zhouzirui/rehearsal/backend/internal/model/session"
)

// Schema creates the sessions table. Exchanges are kept in insertion order as a JSONB array.
const Schema = `
CREATE TABLE IF NOT EXISTS practice_sessions (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL DEFAULT '',
    scenario_type TEXT NOT NULL DEFAULT '',
    user_role     TEXT NOT NULL DEFAULT '',
    ai_role       TEXT NOT NULL DEFAULT '',
    context       TEXT NOT NULL DEFAULT '',
    formality     TEXT NOT NULL DEFAULT '',
    difficulty    TEXT NOT NULL DEFAULT '',
    exchanges     JSONB NOT NULL DEFAULT '[]',
    feedback      TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const selectColumns = `id, title, scenario_type, user_role, ai_role, context,
	formality, difficulty, exchanges, feedback, created_at`

// DB is satisfied by *pgxpool.Pool and *pgx.Conn.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps a connection or pool. Call Migrate before first use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("session store: migrate: %w", err)
	}
	return nil
}

// Create inserts a new session.
func (s *PostgresStore) Create(ctx context.Context, scenario session.Scenario) (session.Session, error) {
	created, err := newSession(scenario)
	if err != nil {
		return session.Session{}, err
	}

	const query = `
		INSERT INTO practice_sessions (
			id, title, scenario_type, user_role, ai_role, context,
			formality, difficulty, exchanges, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'[]'::jsonb,$9)`

	sc := created.Scenario
	_, err = s.db.Exec(ctx, query,
		created.ID, sc.Title, sc.Type, sc.UserRole, sc.AIRole, sc.Context,
		string(sc.Formality), string(sc.Difficulty), created.CreatedAt,
	)
	if err != nil {
		return session.Session{}, fmt.Errorf("session store: create: %w", err)
	}
	return created, nil
}

// Get loads a session by identifier.
func (s *PostgresStore) Get(ctx context.Context, id string) (session.Session, error) {
	query := `SELECT ` + selectColumns + ` FROM practice_sessions WHERE id = $1`

	loaded, err := scanSession(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, ErrSessionNotFound
		}
		return session.Session{}, fmt.Errorf("session store: get %q: %w", id, err)
	}
	return loaded, nil
}

// AppendExchanges concatenates onto the JSONB array in a single statement,
// so concurrent appends to one session never interleave within a pair.
func (s *PostgresStore) AppendExchanges(ctx context.Context, id string, exchanges ...session.Exchange) (session.Session, error) {
	payload, err := json.Marshal(stampExchanges(exchanges))
	if err != nil {
		return session.Session{}, fmt.Errorf("session store: marshal exchanges: %w", err)
	}

	query := `
		UPDATE practice_sessions
		SET exchanges = exchanges || $2::jsonb
		WHERE id = $1
		RETURNING ` + selectColumns

	updated, err := scanSession(s.db.QueryRow(ctx, query, id, payload))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, ErrSessionNotFound
		}
		return session.Session{}, fmt.Errorf("session store: append %q: %w", id, err)
	}
	return updated, nil
}

// SaveFeedback stores coach feedback for the session.
func (s *PostgresStore) SaveFeedback(ctx context.Context, id, feedback string) error {
	const query = `UPDATE practice_sessions SET feedback = $2 WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, feedback)
	if err != nil {
		return fmt.Errorf("session store: save feedback %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (session.Session, error) {
	var (
		out        session.Session
		formality  string
		difficulty string
		exchanges  []byte
	)
	err := row.Scan(
		&out.ID, &out.Title, &out.Type, &out.UserRole, &out.AIRole, &out.Context,
		&formality, &difficulty, &exchanges, &out.Feedback, &out.CreatedAt,
	)
	if err != nil {
		return session.Session{}, err
	}

	out.Formality = session.Formality(formality)
	out.Difficulty = session.Difficulty(difficulty)
	out.Exchanges = []session.Exchange{}
	if len(exchanges) > 0 {
		if err := json.Unmarshal(exchanges, &out.Exchanges); err != nil {
			return session.Session{}, fmt.Errorf("unmarshal exchanges: %w", err)
		}
	}
	return out, nil
}

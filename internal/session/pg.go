package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGValues is a Postgres-backed ValueTier. Rows are namespaced by the
// browser session ID so each browser gets an isolated key space.
type PGValues struct {
	db  *sql.DB
	sid string
}

var _ ValueTier = (*PGValues)(nil)

// OpenDB opens a pooled Postgres connection for the value tier.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// EnsureSchema creates the session value table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("session: database connection unavailable")
	}
	_, err := db.ExecContext(ctx, `
		create table if not exists portal_session_values (
			sid        text        not null,
			key        text        not null,
			value      bytea       not null,
			updated_at timestamptz not null default now(),
			primary key (sid, key)
		)
	`)
	return err
}

// NewPGValues binds the tier to one browser session ID.
func NewPGValues(db *sql.DB, sid string) (*PGValues, error) {
	if db == nil {
		return nil, errors.New("session: database connection unavailable")
	}
	if sid == "" {
		return nil, errors.New("session: sid is required")
	}
	return &PGValues{db: db, sid: sid}, nil
}

func (p *PGValues) Value(ctx context.Context, key string) ([]byte, bool, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `
		select value
		from portal_session_values
		where sid = $1 and key = $2
	`, p.sid, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (p *PGValues) SetValue(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		insert into portal_session_values (sid, key, value, updated_at)
		values ($1, $2, $3, now())
		on conflict (sid, key) do update
		set value = excluded.value, updated_at = now()
	`, p.sid, key, value)
	return err
}

func (p *PGValues) DeleteValue(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `
		delete from portal_session_values
		where sid = $1 and key = $2
	`, p.sid, key)
	return err
}

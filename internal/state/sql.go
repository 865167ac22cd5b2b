package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS processed_messages (
	message_id TEXT PRIMARY KEY,
	seq        INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS state_meta (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const lastCheckKey = "last_check"

// SQLStore keeps state in a SQLite database.
type SQLStore struct {
	db  *sql.DB
	max int
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, max int) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s, err := NewSQLStore(db, max)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wires an open database and ensures the tables exist.
func NewSQLStore(db *sql.DB, max int) (*SQLStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLStore{db: db, max: max}, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Load(ctx context.Context) (*Processed, error) {
	p := NewProcessed(s.max)
	rows, err := sq.Select("message_id").From("processed_messages").OrderBy("seq").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query processed: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan id: %w", err)
		}
		p.Add(id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}

	var raw string
	err = sq.Select("value").From("state_meta").Where(sq.Eq{"name": lastCheckKey}).
		RunWith(s.db).QueryRowContext(ctx).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("query last check: %w", err)
	default:
		if t, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			p.LastCheck = t
		}
	}
	return p, nil
}

// Save replaces the stored ids with p's in one transaction.
func (s *SQLStore) Save(ctx context.Context, p *Processed) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := sq.Delete("processed_messages").RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("clear processed: %w", err)
	}
	if ids := p.IDs(); len(ids) > 0 {
		ins := sq.Insert("processed_messages").Columns("message_id", "seq")
		for i, id := range ids {
			ins = ins.Values(id, i)
		}
		if _, err := ins.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert processed: %w", err)
		}
	}
	if !p.LastCheck.IsZero() {
		_, err := sq.Insert("state_meta").Columns("name", "value").
			Values(lastCheckKey, p.LastCheck.UTC().Format(time.RFC3339Nano)).
			Suffix("ON CONFLICT(name) DO UPDATE SET value = excluded.value").
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("save last check: %w", err)
		}
	}
	return tx.Commit()
}

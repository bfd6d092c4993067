// Package sqlstore implements a command store in an SQLite database.
package sqlstore

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/profprotonn/protonbot/store"
)

// Store is a command store backed by an SQLite database.
type Store struct {
	db *sqlitex.Pool
}

var _ store.Store = (*Store)(nil)

//go:embed schema.sql
var schemaSQL string

// Init initializes the command table in an SQL database.
// For convenience, it accepts either a single connection or a pool.
func Init[DB *sqlite.Conn | *sqlitex.Pool](ctx context.Context, db DB) error {
	var conn *sqlite.Conn
	switch db := any(db).(type) {
	case *sqlite.Conn:
		conn = db
	case *sqlitex.Pool:
		var err error
		conn, err = db.Take(ctx)
		if err != nil {
			return fmt.Errorf("couldn't get connection from pool: %w", err)
		}
		defer db.Put(conn)
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		return fmt.Errorf("couldn't create command table: %w", err)
	}
	return nil
}

// Open initializes the schema if needed and returns a store using db.
// The store owns db and closes it when closed.
func Open(ctx context.Context, db *sqlitex.Pool) (*Store, error) {
	if err := Init(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// RecommendedPrep is an [sqlitex.ConnPrepareFunc] that sets options
// recommended for a file-backed command store.
func RecommendedPrep(conn *sqlite.Conn) error {
	// These need to be run per connection.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, p, nil); err != nil {
			return fmt.Errorf("couldn't run %s: %w", p, err)
		}
	}
	return nil
}

const columns = `id, channel, name, response, requires_mod`

// scan reads a command from a statement selecting columns.
func scan(st *sqlite.Stmt) store.Command {
	return store.Command{
		ID:          st.ColumnText(0),
		Channel:     st.ColumnText(1),
		Trigger:     st.ColumnText(2),
		Response:    st.ColumnText(3),
		RequiresMod: st.ColumnInt64(4) != 0,
	}
}

// one runs a query expected to produce at most one command.
func one(conn *sqlite.Conn, query string, args ...any) (*store.Command, error) {
	var r *store.Command
	opts := sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(st *sqlite.Stmt) error {
			c := scan(st)
			r = &c
			return nil
		},
	}
	if err := sqlitex.Execute(conn, query, &opts); err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	if r == nil {
		return nil, store.ErrNotFound
	}
	return r, nil
}

// FindOne finds the command for a trigger in a channel.
func (s *Store) FindOne(ctx context.Context, channel, trigger string) (*store.Command, error) {
	conn, err := s.db.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to find command: %w", err)
	}
	defer s.db.Put(conn)
	return one(conn, `SELECT `+columns+` FROM command WHERE channel=? AND name=?`, store.Channel(channel), store.Normalize(trigger))
}

// Upsert creates or overwrites a command.
func (s *Store) Upsert(ctx context.Context, channel, trigger, response string, requiresMod bool) (*store.Command, error) {
	channel, trigger, response, err := store.Validate(channel, trigger, response)
	if err != nil {
		return nil, err
	}
	conn, err := s.db.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to upsert command: %w", err)
	}
	defer s.db.Put(conn)
	const q = `INSERT INTO command (` + columns + `) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (channel, name) DO UPDATE SET response=excluded.response, requires_mod=excluded.requires_mod
		RETURNING ` + columns
	r, err := one(conn, q, uuid.NewString(), channel, trigger, response, requiresMod)
	if err != nil {
		return nil, fmt.Errorf("couldn't upsert command: %w", err)
	}
	return r, nil
}

// ListByChannel lists all commands in a channel ordered by trigger.
func (s *Store) ListByChannel(ctx context.Context, channel string) ([]store.Command, error) {
	conn, err := s.db.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to list commands: %w", err)
	}
	defer s.db.Put(conn)
	var r []store.Command
	opts := sqlitex.ExecOptions{
		Args: []any{store.Channel(channel)},
		ResultFunc: func(st *sqlite.Stmt) error {
			r = append(r, scan(st))
			return nil
		},
	}
	if err := sqlitex.Execute(conn, `SELECT `+columns+` FROM command WHERE channel=? ORDER BY name`, &opts); err != nil {
		return nil, fmt.Errorf("couldn't list commands: %w", err)
	}
	return r, nil
}

// DeleteByID deletes a command and returns it.
func (s *Store) DeleteByID(ctx context.Context, id string) (*store.Command, error) {
	conn, err := s.db.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to delete command: %w", err)
	}
	defer s.db.Put(conn)
	return one(conn, `DELETE FROM command WHERE id=? RETURNING `+columns, id)
}

// UpdateByID applies a patch to a command.
func (s *Store) UpdateByID(ctx context.Context, id string, p store.Patch) (r *store.Command, err error) {
	conn, err := s.db.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't get connection to update command: %w", err)
	}
	defer s.db.Put(conn)
	defer sqlitex.Save(conn)(&err)
	old, err := one(conn, `SELECT `+columns+` FROM command WHERE id=?`, id)
	if err != nil {
		return nil, err
	}
	c, err := p.Apply(*old)
	if err != nil {
		return nil, err
	}
	const q = `UPDATE command SET channel=?, name=?, response=?, requires_mod=? WHERE id=? RETURNING ` + columns
	return one(conn, q, c.Channel, c.Trigger, c.Response, c.RequiresMod, id)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Package pgstore implements a command store in a PostgreSQL database.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/profprotonn/protonbot/store"
)

// Store is a command store backed by a PostgreSQL database.
type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

const schema = `CREATE TABLE IF NOT EXISTS command (
	id TEXT PRIMARY KEY,
	channel TEXT NOT NULL,
	name TEXT NOT NULL,
	response TEXT NOT NULL,
	requires_mod BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (channel, name)
)`

// Open connects to the database at dsn, creates the schema if needed, and
// returns a store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("couldn't connect to postgres: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("couldn't reach postgres: %w", err)
	}
	if _, err := db.Exec(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("couldn't create command table: %w", err)
	}
	return &Store{db: db}, nil
}

const columns = `id, channel, name, response, requires_mod`

// one scans a row expected to hold at most one command.
func one(row pgx.Row) (*store.Command, error) {
	var c store.Command
	err := row.Scan(&c.ID, &c.Channel, &c.Trigger, &c.Response, &c.RequiresMod)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		var pe *pgconn.PgError
		if errors.As(err, &pe) && pe.Code == "23505" {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &c, nil
}

// FindOne finds the command for a trigger in a channel.
func (s *Store) FindOne(ctx context.Context, channel, trigger string) (*store.Command, error) {
	return one(s.db.QueryRow(ctx, `SELECT `+columns+` FROM command WHERE channel=$1 AND name=$2`, store.Channel(channel), store.Normalize(trigger)))
}

// Upsert creates or overwrites a command.
func (s *Store) Upsert(ctx context.Context, channel, trigger, response string, requiresMod bool) (*store.Command, error) {
	channel, trigger, response, err := store.Validate(channel, trigger, response)
	if err != nil {
		return nil, err
	}
	const q = `INSERT INTO command (` + columns + `) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel, name) DO UPDATE SET response=excluded.response, requires_mod=excluded.requires_mod
		RETURNING ` + columns
	r, err := one(s.db.QueryRow(ctx, q, uuid.NewString(), channel, trigger, response, requiresMod))
	if err != nil {
		return nil, fmt.Errorf("couldn't upsert command: %w", err)
	}
	return r, nil
}

// ListByChannel lists all commands in a channel ordered by trigger.
func (s *Store) ListByChannel(ctx context.Context, channel string) ([]store.Command, error) {
	rows, err := s.db.Query(ctx, `SELECT `+columns+` FROM command WHERE channel=$1 ORDER BY name COLLATE "C"`, store.Channel(channel))
	if err != nil {
		return nil, fmt.Errorf("couldn't list commands: %w", err)
	}
	r, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Command, error) {
		c, err := one(row)
		if err != nil {
			return store.Command{}, err
		}
		return *c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't list commands: %w", err)
	}
	return r, nil
}

// DeleteByID deletes a command and returns it.
func (s *Store) DeleteByID(ctx context.Context, id string) (*store.Command, error) {
	return one(s.db.QueryRow(ctx, `DELETE FROM command WHERE id=$1 RETURNING `+columns, id))
}

// UpdateByID applies a patch to a command.
func (s *Store) UpdateByID(ctx context.Context, id string, p store.Patch) (*store.Command, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't begin update: %w", err)
	}
	defer tx.Rollback(ctx)
	old, err := one(tx.QueryRow(ctx, `SELECT `+columns+` FROM command WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	c, err := p.Apply(*old)
	if err != nil {
		return nil, err
	}
	const q = `UPDATE command SET channel=$1, name=$2, response=$3, requires_mod=$4 WHERE id=$5 RETURNING ` + columns
	r, err := one(tx.QueryRow(ctx, q, c.Channel, c.Trigger, c.Response, c.RequiresMod, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("couldn't commit update: %w", err)
	}
	return r, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

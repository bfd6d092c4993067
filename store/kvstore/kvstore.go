// Package kvstore implements a command store in a Badger database.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"

	"github.com/profprotonn/protonbot/store"
)

/*
Key structure:
- Records are stored under 'c' \x00 channel \x00 trigger with the JSON
	encoded command as the value. Iterating a channel's prefix yields its
	commands ordered by trigger.
- The ID index is 'i' \x00 id with the record key as the value.
*/

// Store is a command store backed by a Badger database.
type Store struct {
	db *badger.DB
}

var _ store.Store = (*Store)(nil)

// New returns a store using db. The store owns db and closes it when closed.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// retries is the number of times a write is attempted on transaction conflict.
const retries = 5

func recordKey(channel, trigger string) []byte {
	k := make([]byte, 0, 3+len(channel)+len(trigger))
	k = append(k, 'c', 0)
	k = append(k, channel...)
	k = append(k, 0)
	return append(k, trigger...)
}

func channelPrefix(channel string) []byte {
	k := make([]byte, 0, 3+len(channel))
	k = append(k, 'c', 0)
	k = append(k, channel...)
	return append(k, 0)
}

func idKey(id string) []byte {
	return append([]byte{'i', 0}, id...)
}

// get loads the command at a record key.
func get(txn *badger.Txn, key []byte) (*store.Command, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	var c store.Command
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &c)
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't decode command: %w", err)
	}
	return &c, nil
}

// byID loads the record key and command for an ID.
func byID(txn *badger.Txn, id string) ([]byte, *store.Command, error) {
	item, err := txn.Get(idKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, err
	}
	c, err := get(txn, key)
	return key, c, err
}

func put(txn *badger.Txn, c *store.Command) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("couldn't encode command: %w", err)
	}
	key := recordKey(c.Channel, c.Trigger)
	if err := txn.Set(key, b); err != nil {
		return err
	}
	return txn.Set(idKey(c.ID), key)
}

// update runs f in a read-write transaction, retrying on conflicts.
func (s *Store) update(ctx context.Context, f func(txn *badger.Txn) error) error {
	var err error
	for range retries {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(f)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// FindOne finds the command for a trigger in a channel.
func (s *Store) FindOne(ctx context.Context, channel, trigger string) (*store.Command, error) {
	var r *store.Command
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = get(txn, recordKey(store.Channel(channel), store.Normalize(trigger)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Upsert creates or overwrites a command.
func (s *Store) Upsert(ctx context.Context, channel, trigger, response string, requiresMod bool) (*store.Command, error) {
	channel, trigger, response, err := store.Validate(channel, trigger, response)
	if err != nil {
		return nil, err
	}
	var r *store.Command
	err = s.update(ctx, func(txn *badger.Txn) error {
		c, err := get(txn, recordKey(channel, trigger))
		switch {
		case errors.Is(err, store.ErrNotFound):
			c = &store.Command{ID: uuid.NewString(), Channel: channel, Trigger: trigger}
		case err != nil:
			return err
		}
		c.Response = response
		c.RequiresMod = requiresMod
		r = c
		return put(txn, c)
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't upsert command: %w", err)
	}
	return r, nil
}

// ListByChannel lists all commands in a channel ordered by trigger.
func (s *Store) ListByChannel(ctx context.Context, channel string) ([]store.Command, error) {
	var r []store.Command
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := channelPrefix(store.Channel(channel))
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 32})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var c store.Command
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			})
			if err != nil {
				return fmt.Errorf("couldn't decode command: %w", err)
			}
			r = append(r, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't list commands: %w", err)
	}
	return r, nil
}

// DeleteByID deletes a command and returns it.
func (s *Store) DeleteByID(ctx context.Context, id string) (*store.Command, error) {
	var r *store.Command
	err := s.update(ctx, func(txn *badger.Txn) error {
		key, c, err := byID(txn, id)
		if err != nil {
			return err
		}
		r = c
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(idKey(id))
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateByID applies a patch to a command.
func (s *Store) UpdateByID(ctx context.Context, id string, p store.Patch) (*store.Command, error) {
	var r *store.Command
	err := s.update(ctx, func(txn *badger.Txn) error {
		key, old, err := byID(txn, id)
		if err != nil {
			return err
		}
		c, err := p.Apply(*old)
		if err != nil {
			return err
		}
		if c.Channel != old.Channel || c.Trigger != old.Trigger {
			_, err := get(txn, recordKey(c.Channel, c.Trigger))
			switch {
			case err == nil:
				return store.ErrDuplicate
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		r = &c
		return put(txn, &c)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

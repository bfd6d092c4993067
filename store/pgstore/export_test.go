package pgstore

import "context"

// Reset deletes all commands. Only tests use it.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DELETE FROM command`)
	return err
}

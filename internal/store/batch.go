package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is a write transaction handed out by Batch. It exposes the same write
// operations as Store.
type Tx struct {
	writes
	tx *sql.Tx
}

// Batch runs fn inside one transaction and commits it. If fn returns an
// error the transaction is rolled back and the error returned.
//
// Statement errors that fn handles itself do not abort the batch: SQLite
// rolls back only the failing statement.
//
// The Store has a single connection, so fn must use tx and not s.
func (s *Store) Batch(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	tx := &Tx{writes: writes{q: sqlTx}, tx: sqlTx}

	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is one unit of work over blob and file rows.
//
// Side effects outside the database (payload files) are attached with
// AfterCommit and AfterRollback so they follow the outcome of the rows they
// belong to.
type Tx struct {
	tx            *sql.Tx
	afterCommit   []func()
	afterRollback []func()
	done          bool
}

// Begin starts a write unit of work.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// InTx runs fn in a unit of work, committing when fn succeeds and rolling
// back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// AfterCommit registers fn to run once the unit of work has committed.
func (t *Tx) AfterCommit(fn func()) {
	t.afterCommit = append(t.afterCommit, fn)
}

// AfterRollback registers fn to run if the unit of work does not commit.
func (t *Tx) AfterRollback(fn func()) {
	t.afterRollback = append(t.afterRollback, fn)
}

// Commit commits the unit of work. A failed commit runs the rollback
// callbacks.
func (t *Tx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		runAll(t.afterRollback)
		return err
	}
	runAll(t.afterCommit)
	return nil
}

// Rollback aborts the unit of work. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.tx.Rollback()
	runAll(t.afterRollback)
	return err
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Scope is a data-access scope bound to one transaction. Deferred
// associations such as a user's roles can only be resolved while it is open.
type Scope struct {
	tx *sqlx.Tx

	mu     sync.Mutex
	closed bool
}

// Begin opens a new scope. The caller must Commit or Rollback it.
func (r *UserRepo) Begin(ctx context.Context) (*Scope, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin scope: %w", err)
	}
	return &Scope{tx: tx}, nil
}

// InScope runs fn inside a fresh scope, committing when fn returns nil and
// rolling back otherwise (including on panic).
func (r *UserRepo) InScope(ctx context.Context, fn func(s *Scope) error) (err error) {
	s, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = s.Rollback()
			panic(p)
		}
		if err != nil {
			_ = s.Rollback()
			return
		}
		err = s.Commit()
	}()
	return fn(s)
}

// Active reports whether the scope can still be used.
func (s *Scope) Active() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.tx != nil
}

func (s *Scope) Commit() error {
	if err := s.close(); err != nil {
		return err
	}
	return s.tx.Commit()
}

func (s *Scope) Rollback() error {
	if err := s.close(); err != nil {
		return err
	}
	return s.tx.Rollback()
}

func (s *Scope) close() error {
	if s == nil {
		return sql.ErrTxDone
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.tx == nil {
		return sql.ErrTxDone
	}
	s.closed = true
	return nil
}

// queryer returns the scope's transaction, or a LazyLoadError naming assoc.
func (s *Scope) queryer(assoc string) (sqlx.QueryerContext, error) {
	if !s.Active() {
		return nil, &LazyLoadError{Association: assoc}
	}
	return s.tx, nil
}

// lazyErr turns a "transaction already finished" driver error into a LazyLoadError.
func lazyErr(assoc string, err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return &LazyLoadError{Association: assoc}
	}
	return err
}

package uow

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// =====================================
// Transactional Resource
// =====================================

// Tx is a native transaction handle.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Conn is a native connection on which a single transaction is begun.
type Conn[T Tx] interface {
	BeginTx(ctx context.Context, level IsolationLevel) (T, error)
	Close(ctx context.Context) error
}

// ConnectFunc obtains the connection of a Resource. It is called at most once,
// even when it fails.
type ConnectFunc[T Tx] func(ctx context.Context) (Conn[T], error)

// Resource owns the connection and the single transaction of one provider.
// Nothing is opened until Tx is first called; the transaction begun then is
// returned by every later call. Close rolls back a transaction that was never
// committed and releases both handles.
//
// A Resource is not safe for concurrent use.
type Resource[T Tx] struct {
	level   IsolationLevel
	connect ConnectFunc[T]
	log     zerolog.Logger

	conn       Conn[T]
	tx         T
	hasTx      bool
	committed  bool
	rolledBack bool
	closed     bool
	failed     error
	opens      int
}

// NewResource creates a Resource that will begin its transaction at level.
func NewResource[T Tx](level IsolationLevel, connect ConnectFunc[T], opts ...Option) *Resource[T] {
	o := ApplyOptions(opts...)
	return &Resource[T]{
		level:   level.OrDefault(),
		connect: connect,
		log:     o.Logger,
	}
}

// IsolationLevel returns the level fixed at creation.
func (r *Resource[T]) IsolationLevel() IsolationLevel {
	return r.level
}

// Tx returns the shared transaction, opening the connection and beginning the
// transaction on first use. Failures are returned as resource errors and are
// not retried: the first failure is returned by every later call.
func (r *Resource[T]) Tx(ctx context.Context) (T, error) {
	var zero T
	switch {
	case r.closed:
		return zero, errProviderClosed
	case r.failed != nil:
		return zero, r.failed
	case r.rolledBack:
		return zero, errTxFinished
	case r.committed:
		return zero, NewError(ErrorKindResource, "transaction already committed")
	case r.hasTx:
		return r.tx, nil
	}

	if r.conn == nil {
		conn, err := r.connect(ctx)
		if err != nil {
			r.failed = NewErrorWithCause(ErrorKindResource, "failed to open connection", err)
			return zero, r.failed
		}
		r.conn = conn
	}

	tx, err := r.conn.BeginTx(ctx, r.level)
	if err != nil {
		r.failed = NewErrorWithCause(ErrorKindResource, "failed to begin transaction", err)
		return zero, r.failed
	}
	r.tx, r.hasTx = tx, true
	r.opens++

	r.log.Debug().Str("isolation", r.level.String()).Msg("transaction opened")
	return tx, nil
}

// Commit commits the transaction if one was begun. Committing twice is a no-op.
// A Resource whose connection or transaction failed to open cannot commit.
func (r *Resource[T]) Commit(ctx context.Context) error {
	switch {
	case r.closed:
		return errProviderClosed
	case r.failed != nil:
		return r.failed
	case !r.hasTx, r.committed:
		return nil
	case r.rolledBack:
		return errTxFinished
	}

	if err := r.tx.Commit(ctx); err != nil {
		return NewErrorWithCause(ErrorKindResource, "failed to commit transaction", err)
	}
	r.committed = true

	r.log.Debug().Msg("transaction committed")
	return nil
}

// Rollback rolls the transaction back if one is open. It is safe to call
// repeatedly and after Commit, where it does nothing.
func (r *Resource[T]) Rollback(ctx context.Context) error {
	if !r.hasTx || r.committed || r.rolledBack {
		return nil
	}

	// the native transaction is finished even when the rollback itself fails
	r.rolledBack = true
	if err := r.tx.Rollback(ctx); err != nil {
		return NewErrorWithCause(ErrorKindResource, "failed to roll back transaction", err)
	}

	r.log.Debug().Msg("transaction rolled back")
	return nil
}

// Close rolls back an uncommitted transaction, then releases the connection.
// Subsequent calls return nil.
func (r *Resource[T]) Close(ctx context.Context) error {
	if r.closed {
		return nil
	}

	var errs []error
	if r.hasTx && !r.committed && !r.rolledBack {
		r.log.Debug().Msg("rolling back uncommitted transaction on close")
		if err := r.Rollback(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closed = true

	if r.conn != nil {
		if err := r.conn.Close(ctx); err != nil {
			errs = append(errs, NewErrorWithCause(ErrorKindResource, "failed to close connection", err))
		}
		r.conn = nil
	}

	err := errors.Join(errs...)
	if err != nil {
		r.log.Warn().Err(err).Msg("resource closed with errors")
	}
	return err
}

// Opens returns how many transactions were begun; at most one.
func (r *Resource[T]) Opens() int {
	return r.opens
}

// Active reports whether a transaction is open and neither committed nor rolled back.
func (r *Resource[T]) Active() bool {
	return r.hasTx && !r.committed && !r.rolledBack && !r.closed
}

// Committed reports whether the transaction was committed.
func (r *Resource[T]) Committed() bool {
	return r.committed
}

// Closed reports whether Close has been called.
func (r *Resource[T]) Closed() bool {
	return r.closed
}

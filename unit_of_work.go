package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// =====================================
// Unit of Work
// =====================================

// UnitOfWork groups the providers taking part in one business transaction.
// It tracks every provider it creates, in creation order, commits them
// together and releases them on Close.
//
// Commit is not atomic across providers: they are committed one after the
// other and the first failure stops the sequence, leaving earlier providers
// committed. Close then rolls back the rest.
//
// A UnitOfWork is not safe for concurrent use.
type UnitOfWork struct {
	container *Container
	level     IsolationLevel
	log       zerolog.Logger

	providers []Provider
	completed bool
	closed    bool
}

func newUnitOfWork(c *Container, level IsolationLevel, log zerolog.Logger) *UnitOfWork {
	return &UnitOfWork{
		container: c,
		level:     level.OrDefault(),
		log:       log,
	}
}

// IsolationLevel returns the default level for providers created by u.
func (u *UnitOfWork) IsolationLevel() IsolationLevel {
	return u.level
}

// IsCompleted reports whether Commit has succeeded.
func (u *UnitOfWork) IsCompleted() bool {
	return u.completed
}

// IsClosed reports whether Close has been called.
func (u *UnitOfWork) IsClosed() bool {
	return u.closed
}

// Container returns the registrations u resolves from.
func (u *UnitOfWork) Container() *Container {
	return u.container
}

// Providers returns the tracked providers in creation order.
func (u *UnitOfWork) Providers() []Provider {
	out := make([]Provider, len(u.providers))
	copy(out, u.providers)
	return out
}

// Logger returns the logger of u, for use by repositories and providers.
func (u *UnitOfWork) Logger() zerolog.Logger {
	return u.log
}

// Commit commits every tracked provider in creation order. It stops at the
// first failure and returns it; the unit of work is then not completed.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.closed {
		return errUnitOfWorkClosed
	}

	for i, p := range u.providers {
		if err := p.Commit(ctx); err != nil {
			u.log.Error().Err(err).
				Int("committed", i).
				Int("providers", len(u.providers)).
				Msg("unit of work commit failed")
			return fmt.Errorf("commit provider %d of %d (%T): %w", i+1, len(u.providers), p, err)
		}
	}
	u.completed = true

	u.log.Debug().Int("providers", len(u.providers)).Msg("unit of work committed")
	return nil
}

// Close closes every tracked provider, rolling back whatever was not
// committed, and empties the tracked list. Errors from individual providers
// are joined; every provider is closed regardless. Calling Close again does
// nothing.
func (u *UnitOfWork) Close(ctx context.Context) error {
	if u.closed {
		return nil
	}
	u.closed = true

	var errs []error
	for _, p := range u.providers {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", p, err))
		}
	}
	n := len(u.providers)
	u.providers = nil

	err := errors.Join(errs...)
	u.log.Debug().
		Int("providers", n).
		Bool("completed", u.completed).
		AnErr("error", err).
		Msg("unit of work closed")
	return err
}

// Do runs fn and commits when it returns nil.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, u *UnitOfWork) error) error {
	if u.closed {
		return errUnitOfWorkClosed
	}
	if err := fn(ctx, u); err != nil {
		return err
	}
	return u.Commit(ctx)
}

func (u *UnitOfWork) track(p Provider) {
	u.providers = append(u.providers, p)
}

// Package-level functions

// CreateProvider creates a new provider of type P through its registered
// factory and tracks it. Each call yields a distinct provider with its own
// transaction. The level defaults to the unit of work's own.
// Usage: p, err := uow.CreateProvider[*uowgorm.Provider](u)
func CreateProvider[P Provider](u *UnitOfWork, level ...IsolationLevel) (P, error) {
	var zero P
	if u.closed {
		return zero, errUnitOfWorkClosed
	}

	factory, err := Resolve[ProviderFactory[P]](u.container)
	if err != nil {
		return zero, err
	}

	l := u.level
	if len(level) > 0 && level[0] != LevelDefault {
		l = level[0]
	}

	p, err := factory.CreateProvider(l)
	if err != nil {
		return zero, fmt.Errorf("create provider %s: %w", typeOf[P](), err)
	}
	u.track(p)

	u.log.Debug().
		Str("provider", typeOf[P]().String()).
		Str("isolation", l.String()).
		Msg("provider created")
	return p, nil
}

// ProviderFor returns the first tracked provider of type P, creating one when
// u tracks none. Repositories of one unit of work share their provider this way.
func ProviderFor[P Provider](u *UnitOfWork) (P, error) {
	var zero P
	if u.closed {
		return zero, errUnitOfWorkClosed
	}
	for _, p := range u.providers {
		if typed, ok := p.(P); ok {
			return typed, nil
		}
	}
	return CreateProvider[P](u)
}

// GetRepository builds a repository of type R with its registered constructor.
func GetRepository[R any](u *UnitOfWork) (R, error) {
	var zero R
	if u.closed {
		return zero, errUnitOfWorkClosed
	}

	ctor, err := Resolve[RepositoryConstructor[R]](u.container)
	if err != nil {
		return zero, err
	}

	repo, err := ctor(u)
	if err != nil {
		return zero, fmt.Errorf("create repository %s: %w", typeOf[R](), err)
	}
	return repo, nil
}

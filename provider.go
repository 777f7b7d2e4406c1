package uow

import (
	"context"
	"io"

	"github.com/rs/zerolog"
)

// =====================================
// Provider Contracts
// =====================================

// Provider is a transactional handle onto one data store. Its transaction is
// opened lazily, at the isolation level fixed when the provider was created.
// Providers belong to a single unit of work and are not safe for concurrent use.
type Provider interface {
	// IsolationLevel returns the level fixed at creation.
	IsolationLevel() IsolationLevel
	// Commit commits the open transaction. It does nothing if none was opened.
	Commit(ctx context.Context) error
	// Rollback rolls back the open transaction. It is safe to call more than once.
	Rollback(ctx context.Context) error
	// Close rolls back an uncommitted transaction and releases the connection.
	// Every operation after Close fails with a disposed error.
	Close(ctx context.Context) error
}

// EntityProvider is the persistence capability repositories are built on.
// dest arguments are pointers: *[]T for Query and *T for Find.
type EntityProvider interface {
	Provider

	// Query runs a native statement and scans every result row into dest.
	Query(ctx context.Context, dest interface{}, statement string, args ...interface{}) error
	// Find loads the entity with the given key into dest. It reports false
	// when no such entity exists.
	Find(ctx context.Context, dest interface{}, key interface{}) (bool, error)
	// Insert persists a new entity, populating its generated fields.
	Insert(ctx context.Context, entity interface{}) (bool, error)
	// Update writes every field of an existing entity.
	Update(ctx context.Context, entity interface{}) (bool, error)
	// Delete removes an existing entity.
	Delete(ctx context.Context, entity interface{}) (bool, error)
	// Execute runs a native command and returns the engine's affected count.
	Execute(ctx context.Context, statement string, args ...interface{}) (int64, error)
}

// ProviderFactory creates providers of one concrete type. The returned
// provider must not have opened its transaction yet.
type ProviderFactory[P Provider] interface {
	CreateProvider(level IsolationLevel) (P, error)
}

// ProviderFactoryFunc adapts a function to ProviderFactory.
type ProviderFactoryFunc[P Provider] func(level IsolationLevel) (P, error)

// CreateProvider calls f(level).
func (f ProviderFactoryFunc[P]) CreateProvider(level IsolationLevel) (P, error) {
	return f(level)
}

// =====================================
// Options
// =====================================

// Options carries the ambient settings shared by units of work and providers.
type Options struct {
	Logger         zerolog.Logger
	IsolationLevel IsolationLevel
}

// Option configures Options.
type Option func(*Options)

// WithLogger sets the logger. Nothing is logged by default.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithIsolationLevel sets the default isolation level of a Factory.
func WithIsolationLevel(level IsolationLevel) Option {
	return func(o *Options) {
		o.IsolationLevel = level
	}
}

// ApplyOptions resolves opts over the defaults.
func ApplyOptions(opts ...Option) Options {
	o := Options{
		Logger:         zerolog.New(io.Discard),
		IsolationLevel: DefaultIsolationLevel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

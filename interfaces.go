// Package uow implements the Unit of Work pattern over pluggable data store
// providers. A UnitOfWork tracks the providers created during one business
// transaction, commits them together and rolls back whatever was not
// committed when it is closed. Repositories read and write entities through
// those providers; adapters for GORM, Bun, Redis and MongoDB live in the
// uowgorm, uowbun, uowredis and uowmongo packages.
package uow

import "context"

// =====================================
// Repository Interfaces
// =====================================

// Reader is the read side of a repository for entities of type T keyed by K.
type Reader[T any, K any] interface {
	// Get returns the entity with the given key, or nil when there is none.
	Get(ctx context.Context, key K) (*T, error)
	// Query runs a native statement and returns every resulting entity.
	Query(ctx context.Context, statement string, args ...interface{}) ([]*T, error)
	// QueryFirst returns the first entity of the result. An empty result is
	// ErrorKindNotFound.
	QueryFirst(ctx context.Context, statement string, args ...interface{}) (*T, error)
	QueryFirstOrDefault(ctx context.Context, statement string, args ...interface{}) (*T, error)
	// QuerySingle returns the only entity of the result. An empty result is
	// ErrorKindNotFound and more than one entity ErrorKindMultipleResults.
	QuerySingle(ctx context.Context, statement string, args ...interface{}) (*T, error)
	QuerySingleOrDefault(ctx context.Context, statement string, args ...interface{}) (*T, error)
}

// Store adds writes to Reader.
type Store[T any, K any] interface {
	Reader[T, K]

	// Add inserts a new entity and populates its generated fields.
	Add(ctx context.Context, entity *T) (bool, error)
	// Update writes every field of an existing entity.
	Update(ctx context.Context, entity *T) (bool, error)
	// Delete removes an existing entity.
	Delete(ctx context.Context, entity *T) (bool, error)
	// AddOrUpdate adds the entity when it is transient and updates it otherwise.
	AddOrUpdate(ctx context.Context, entity *T) (bool, error)
	// Execute runs a native command and returns the engine's affected count.
	Execute(ctx context.Context, statement string, args ...interface{}) (int64, error)
}

// =====================================
// Optional Provider Capabilities
// =====================================

// Migrator is implemented by providers that can create the storage for
// entity types, such as tables or collections. Migrate runs outside the
// provider's transaction.
type Migrator interface {
	Migrate(ctx context.Context, entities ...interface{}) error
}

// Pinger is implemented by providers that can check their store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Migrate creates storage for entities when p supports it.
func Migrate(ctx context.Context, p Provider, entities ...interface{}) error {
	m, ok := p.(Migrator)
	if !ok {
		return NewError(ErrorKindUnsupported, "provider does not support migrations")
	}
	return m.Migrate(ctx, entities...)
}

// Ping checks every tracked provider of u that supports it.
func Ping(ctx context.Context, u *UnitOfWork) map[Provider]error {
	results := make(map[Provider]error)
	for _, p := range u.Providers() {
		if pinger, ok := p.(Pinger); ok {
			results[p] = pinger.Ping(ctx)
		}
	}
	return results
}

var (
	_ Reader[struct{}, int] = (*ReadOnlyRepository[struct{}, int])(nil)
	_ Store[struct{}, int]  = (*Repository[struct{}, int])(nil)
)

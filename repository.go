package uow

import "context"

// =====================================
// Repositories
// =====================================

// ReadOnlyRepository reads entities of type T, keyed by K, through one provider.
type ReadOnlyRepository[T any, K any] struct {
	provider EntityProvider
}

// NewReadOnlyRepository binds a read-only repository to p.
func NewReadOnlyRepository[T any, K any](p EntityProvider) *ReadOnlyRepository[T, K] {
	return &ReadOnlyRepository[T, K]{provider: p}
}

// Provider returns the provider the repository works through.
func (r *ReadOnlyRepository[T, K]) Provider() EntityProvider {
	return r.provider
}

// Get returns the entity with the given key, or nil.
func (r *ReadOnlyRepository[T, K]) Get(ctx context.Context, key K) (*T, error) {
	entity, err := Get[T](ctx, r.provider, key)
	if err != nil || entity == nil {
		return nil, err
	}
	if err := afterFind(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// Query runs a native statement and returns every resulting entity.
func (r *ReadOnlyRepository[T, K]) Query(ctx context.Context, statement string, args ...interface{}) ([]*T, error) {
	entities, err := Query[T](ctx, r.provider, statement, args...)
	if err != nil {
		return nil, err
	}
	for _, e := range entities {
		if err := afterFind(ctx, e); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// QueryFirst returns the first entity of the result; none is a not found error.
func (r *ReadOnlyRepository[T, K]) QueryFirst(ctx context.Context, statement string, args ...interface{}) (*T, error) {
	return r.found(ctx)(QueryFirst[T](ctx, r.provider, statement, args...))
}

// QueryFirstOrDefault returns the first entity of the result, or nil.
func (r *ReadOnlyRepository[T, K]) QueryFirstOrDefault(ctx context.Context, statement string, args ...interface{}) (*T, error) {
	return r.found(ctx)(QueryFirstOrDefault[T](ctx, r.provider, statement, args...))
}

// QuerySingle returns the only entity of the result; none or more than one is an error.
func (r *ReadOnlyRepository[T, K]) QuerySingle(ctx context.Context, statement string, args ...interface{}) (*T, error) {
	return r.found(ctx)(QuerySingle[T](ctx, r.provider, statement, args...))
}

// QuerySingleOrDefault returns the only entity of the result, or nil; more
// than one is an error.
func (r *ReadOnlyRepository[T, K]) QuerySingleOrDefault(ctx context.Context, statement string, args ...interface{}) (*T, error) {
	return r.found(ctx)(QuerySingleOrDefault[T](ctx, r.provider, statement, args...))
}

func (r *ReadOnlyRepository[T, K]) found(ctx context.Context) func(*T, error) (*T, error) {
	return func(entity *T, err error) (*T, error) {
		if err != nil || entity == nil {
			return nil, err
		}
		if err := afterFind(ctx, entity); err != nil {
			return nil, err
		}
		return entity, nil
	}
}

// Repository reads and writes entities of type T, keyed by K, through one provider.
type Repository[T any, K any] struct {
	*ReadOnlyRepository[T, K]
}

// NewRepository binds a repository to p.
func NewRepository[T any, K any](p EntityProvider) *Repository[T, K] {
	return &Repository[T, K]{ReadOnlyRepository: NewReadOnlyRepository[T, K](p)}
}

// Add inserts a new entity, populating its generated fields.
func (r *Repository[T, K]) Add(ctx context.Context, entity *T) (bool, error) {
	if entity == nil {
		return false, NewError(ErrorKindInvalidArgument, "entity cannot be nil")
	}
	if err := beforeCreate(ctx, entity); err != nil {
		return false, err
	}
	ok, err := r.provider.Insert(ctx, entity)
	if err != nil || !ok {
		return ok, err
	}
	return true, afterCreate(ctx, entity)
}

// Update writes every field of an existing entity.
func (r *Repository[T, K]) Update(ctx context.Context, entity *T) (bool, error) {
	if entity == nil {
		return false, NewError(ErrorKindInvalidArgument, "entity cannot be nil")
	}
	if err := beforeUpdate(ctx, entity); err != nil {
		return false, err
	}
	ok, err := r.provider.Update(ctx, entity)
	if err != nil || !ok {
		return ok, err
	}
	return true, afterUpdate(ctx, entity)
}

// Delete removes an existing entity.
func (r *Repository[T, K]) Delete(ctx context.Context, entity *T) (bool, error) {
	if entity == nil {
		return false, NewError(ErrorKindInvalidArgument, "entity cannot be nil")
	}
	if err := beforeDelete(ctx, entity); err != nil {
		return false, err
	}
	ok, err := r.provider.Delete(ctx, entity)
	if err != nil || !ok {
		return ok, err
	}
	return true, afterDelete(ctx, entity)
}

// AddOrUpdate adds a transient entity and updates any other.
func (r *Repository[T, K]) AddOrUpdate(ctx context.Context, entity *T) (bool, error) {
	if entity == nil {
		return false, NewError(ErrorKindInvalidArgument, "entity cannot be nil")
	}
	if IsTransient(entity) {
		return r.Add(ctx, entity)
	}
	return r.Update(ctx, entity)
}

// Execute runs a native command and returns the engine's affected count.
func (r *Repository[T, K]) Execute(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	return r.provider.Execute(ctx, statement, args...)
}

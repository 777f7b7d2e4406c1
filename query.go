package uow

import (
	"context"
	"fmt"
)

// =====================================
// Typed Query Helpers
// =====================================

// Query runs a native statement against p and returns every row as T.
// Example: users, err := uow.Query[User](ctx, p, "SELECT * FROM users WHERE age > ?", 18)
func Query[T any](ctx context.Context, p EntityProvider, statement string, args ...interface{}) ([]*T, error) {
	var rows []T
	if err := p.Query(ctx, &rows, statement, args...); err != nil {
		return nil, err
	}

	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// QueryFirst returns the first row of the result. An empty result is a not
// found error.
func QueryFirst[T any](ctx context.Context, p EntityProvider, statement string, args ...interface{}) (*T, error) {
	rows, err := Query[T](ctx, p, statement, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound[T]()
	}
	return rows[0], nil
}

// QueryFirstOrDefault is QueryFirst returning nil for an empty result.
func QueryFirstOrDefault[T any](ctx context.Context, p EntityProvider, statement string, args ...interface{}) (*T, error) {
	rows, err := Query[T](ctx, p, statement, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// QuerySingle returns the only row of the result. Zero rows is a not found
// error and more than one a multiple results error.
func QuerySingle[T any](ctx context.Context, p EntityProvider, statement string, args ...interface{}) (*T, error) {
	rows, err := Query[T](ctx, p, statement, args...)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, notFound[T]()
	case 1:
		return rows[0], nil
	default:
		return nil, multipleResults[T](len(rows))
	}
}

// QuerySingleOrDefault is QuerySingle returning nil for an empty result.
// More than one row is still an error.
func QuerySingleOrDefault[T any](ctx context.Context, p EntityProvider, statement string, args ...interface{}) (*T, error) {
	rows, err := Query[T](ctx, p, statement, args...)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	default:
		return nil, multipleResults[T](len(rows))
	}
}

// Get loads the entity identified by key, or returns nil when there is none.
func Get[T any](ctx context.Context, p EntityProvider, key interface{}) (*T, error) {
	var entity T
	found, err := p.Find(ctx, &entity, key)
	if err != nil || !found {
		return nil, err
	}
	return &entity, nil
}

func notFound[T any]() error {
	return NewError(ErrorKindNotFound, fmt.Sprintf("query returned no %s", typeOf[T]()))
}

func multipleResults[T any](n int) error {
	return NewError(ErrorKindMultipleResults, fmt.Sprintf("query returned %d %s rows, expected one", n, typeOf[T]()))
}

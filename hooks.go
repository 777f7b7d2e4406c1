package uow

import "context"

// =====================================
// Entity Hook Interfaces
// =====================================

// Repositories call these on the entity around each write. An error from a
// Before hook or Validate aborts the write; an error from an After hook is
// returned after the write has been made.

// ValidationHook is called to validate an entity before it is added or updated
type ValidationHook interface {
	Validate(ctx context.Context) error
}

// BeforeCreateHook is called before adding an entity
type BeforeCreateHook interface {
	BeforeCreate(ctx context.Context) error
}

// AfterCreateHook is called after successfully adding an entity
type AfterCreateHook interface {
	AfterCreate(ctx context.Context) error
}

// BeforeUpdateHook is called before updating an entity
type BeforeUpdateHook interface {
	BeforeUpdate(ctx context.Context) error
}

// AfterUpdateHook is called after successfully updating an entity
type AfterUpdateHook interface {
	AfterUpdate(ctx context.Context) error
}

// BeforeDeleteHook is called before deleting an entity
type BeforeDeleteHook interface {
	BeforeDelete(ctx context.Context) error
}

// AfterDeleteHook is called after successfully deleting an entity
type AfterDeleteHook interface {
	AfterDelete(ctx context.Context) error
}

// AfterFindHook is called on each entity a repository loads
type AfterFindHook interface {
	AfterFind(ctx context.Context) error
}

func beforeCreate(ctx context.Context, entity interface{}) error {
	if v, ok := entity.(ValidationHook); ok {
		if err := v.Validate(ctx); err != nil {
			return NewErrorWithCause(ErrorKindInvalidArgument, "validation failed", err)
		}
	}
	if h, ok := entity.(BeforeCreateHook); ok {
		return h.BeforeCreate(ctx)
	}
	return nil
}

func afterCreate(ctx context.Context, entity interface{}) error {
	if h, ok := entity.(AfterCreateHook); ok {
		return h.AfterCreate(ctx)
	}
	return nil
}

func beforeUpdate(ctx context.Context, entity interface{}) error {
	if v, ok := entity.(ValidationHook); ok {
		if err := v.Validate(ctx); err != nil {
			return NewErrorWithCause(ErrorKindInvalidArgument, "validation failed", err)
		}
	}
	if h, ok := entity.(BeforeUpdateHook); ok {
		return h.BeforeUpdate(ctx)
	}
	return nil
}

func afterUpdate(ctx context.Context, entity interface{}) error {
	if h, ok := entity.(AfterUpdateHook); ok {
		return h.AfterUpdate(ctx)
	}
	return nil
}

func beforeDelete(ctx context.Context, entity interface{}) error {
	if h, ok := entity.(BeforeDeleteHook); ok {
		return h.BeforeDelete(ctx)
	}
	return nil
}

func afterDelete(ctx context.Context, entity interface{}) error {
	if h, ok := entity.(AfterDeleteHook); ok {
		return h.AfterDelete(ctx)
	}
	return nil
}

func afterFind(ctx context.Context, entity interface{}) error {
	if entity == nil {
		return nil
	}
	if h, ok := entity.(AfterFindHook); ok {
		return h.AfterFind(ctx)
	}
	return nil
}

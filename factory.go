package uow

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Factory creates units of work over one Container.
type Factory struct {
	container *Container
	level     IsolationLevel
	log       zerolog.Logger
}

// NewFactory returns a Factory resolving registrations from c.
func NewFactory(c *Container, opts ...Option) *Factory {
	o := ApplyOptions(opts...)
	return &Factory{
		container: c,
		level:     o.IsolationLevel.OrDefault(),
		log:       o.Logger,
	}
}

// IsolationLevel returns the level used when CreateUnitOfWork is given none.
func (f *Factory) IsolationLevel() IsolationLevel {
	return f.level
}

// CreateUnitOfWork returns a new, empty unit of work. Nothing is opened until
// a provider is requested from it.
func (f *Factory) CreateUnitOfWork(level ...IsolationLevel) *UnitOfWork {
	l := f.level
	if len(level) > 0 && level[0] != LevelDefault {
		l = level[0]
	}
	return newUnitOfWork(f.container, l, f.log)
}

// Do runs fn inside a new unit of work, commits it when fn succeeds and
// always closes it.
func (f *Factory) Do(ctx context.Context, fn func(ctx context.Context, u *UnitOfWork) error, level ...IsolationLevel) (err error) {
	u := f.CreateUnitOfWork(level...)
	defer func() {
		if cerr := u.Close(ctx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return u.Do(ctx, fn)
}

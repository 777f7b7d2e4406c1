package uow

import (
	"context"
	"fmt"
)

// recorder collects lifecycle events across fake providers in call order.
type recorder struct {
	events []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

type fakeTx struct {
	name        string
	rec         *recorder
	commitErr   error
	rollbackErr error
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.rec.add("%s:commit", t.name)
	return t.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rec.add("%s:rollback", t.name)
	return t.rollbackErr
}

type fakeConn struct {
	name      string
	rec       *recorder
	beginErr  error
	commitErr error
}

func (c *fakeConn) BeginTx(ctx context.Context, level IsolationLevel) (*fakeTx, error) {
	c.rec.add("%s:begin:%s", c.name, level)
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	return &fakeTx{name: c.name, rec: c.rec, commitErr: c.commitErr}, nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.rec.add("%s:close", c.name)
	return nil
}

// fakeProvider stores customers in memory behind a recorded Resource.
type fakeProvider struct {
	*Resource[*fakeTx]
	name    string
	rows    []customer
	nextID  int64
	inserts int
	updates int
	deletes int
}

func newFakeProvider(name string, rec *recorder, level IsolationLevel, conn *fakeConn) *fakeProvider {
	if conn == nil {
		conn = &fakeConn{name: name, rec: rec}
	}
	p := &fakeProvider{name: name, nextID: 1}
	p.Resource = NewResource[*fakeTx](level, func(ctx context.Context) (Conn[*fakeTx], error) {
		rec.add("%s:connect", name)
		return conn, nil
	})
	return p
}

func (p *fakeProvider) Query(ctx context.Context, dest interface{}, statement string, args ...interface{}) error {
	if _, err := p.Tx(ctx); err != nil {
		return err
	}
	out, ok := dest.(*[]customer)
	if !ok {
		return NewError(ErrorKindInvalidArgument, fmt.Sprintf("unexpected destination %T", dest))
	}
	*out = append((*out)[:0], p.rows...)
	return nil
}

func (p *fakeProvider) Find(ctx context.Context, dest interface{}, key interface{}) (bool, error) {
	if _, err := p.Tx(ctx); err != nil {
		return false, err
	}
	for _, row := range p.rows {
		if row.ID == key.(int64) {
			*dest.(*customer) = row
			return true, nil
		}
	}
	return false, nil
}

func (p *fakeProvider) Insert(ctx context.Context, entity interface{}) (bool, error) {
	if _, err := p.Tx(ctx); err != nil {
		return false, err
	}
	c := entity.(*customer)
	c.ID = p.nextID
	p.nextID++
	p.rows = append(p.rows, *c)
	p.inserts++
	return true, nil
}

func (p *fakeProvider) Update(ctx context.Context, entity interface{}) (bool, error) {
	if _, err := p.Tx(ctx); err != nil {
		return false, err
	}
	p.updates++
	return true, nil
}

func (p *fakeProvider) Delete(ctx context.Context, entity interface{}) (bool, error) {
	if _, err := p.Tx(ctx); err != nil {
		return false, err
	}
	p.deletes++
	return true, nil
}

func (p *fakeProvider) Execute(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	if _, err := p.Tx(ctx); err != nil {
		return 0, err
	}
	return int64(len(p.rows)), nil
}

// secondProvider is a distinct provider type for multi-provider units of work.
type secondProvider struct {
	*fakeProvider
}

var _ EntityProvider = (*fakeProvider)(nil)

// newTestContainer registers *fakeProvider and *secondProvider factories. Each
// created provider is named after its type and creation index.
func newTestContainer(rec *recorder) *Container {
	c := NewContainer()
	n := 0
	RegisterProviderFunc(c, func(level IsolationLevel) (*fakeProvider, error) {
		n++
		return newFakeProvider(fmt.Sprintf("p%d", n), rec, level, nil), nil
	})
	RegisterProviderFunc(c, func(level IsolationLevel) (*secondProvider, error) {
		n++
		return &secondProvider{newFakeProvider(fmt.Sprintf("s%d", n), rec, level, nil)}, nil
	})
	return c
}

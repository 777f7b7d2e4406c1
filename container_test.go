package uow

import (
	"testing"
)

type clock interface {
	Now() int64
}

type fixedClock struct{ at int64 }

func (c fixedClock) Now() int64 { return c.at }

func TestContainerResolve(t *testing.T) {
	c := NewContainer()
	RegisterInstance[clock](c, fixedClock{at: 42})

	got, err := Resolve[clock](c)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Now() != 42 {
		t.Errorf("Expected 42, got %d", got.Now())
	}

	if !Has[clock](c) {
		t.Error("Expected clock to be registered")
	}
	if Has[fixedClock](c) {
		t.Error("Expected registrations to be keyed by the requested type only")
	}
}

func TestContainerMissingRegistration(t *testing.T) {
	c := NewContainer()

	if _, err := Resolve[clock](c); !IsConfiguration(err) {
		t.Errorf("Expected configuration error, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Expected MustResolve to panic")
		}
	}()
	MustResolve[clock](c)
}

func TestContainerRemoveAndTypes(t *testing.T) {
	c := newTestContainer(&recorder{})
	if len(c.Types()) != 2 {
		t.Fatalf("Expected 2 registrations, got %v", c.Types())
	}

	Remove[ProviderFactory[*fakeProvider]](c)
	if Has[ProviderFactory[*fakeProvider]](c) {
		t.Error("Expected factory to be removed")
	}
	if !Has[ProviderFactory[*secondProvider]](c) {
		t.Error("Expected other factory to remain")
	}
}

func TestProviderFactoryFunc(t *testing.T) {
	rec := &recorder{}
	var f ProviderFactory[*fakeProvider] = ProviderFactoryFunc[*fakeProvider](func(level IsolationLevel) (*fakeProvider, error) {
		return newFakeProvider("p", rec, level, nil), nil
	})

	p, err := f.CreateProvider(LevelSerializable)
	if err != nil {
		t.Fatalf("CreateProvider() error = %v", err)
	}
	if p.IsolationLevel() != LevelSerializable {
		t.Errorf("Expected serializable, got %s", p.IsolationLevel())
	}
	if len(rec.events) != 0 {
		t.Errorf("Expected no resource to be opened, got %v", rec.events)
	}
}

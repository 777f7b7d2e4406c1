package uow

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// =====================================
// Registration Container
// =====================================

// Container maps provider types to their factories and repository types to
// their constructors. It is filled once at startup and may then be shared by
// any number of unit of work factories.
type Container struct {
	mutex   sync.RWMutex
	entries map[reflect.Type]interface{}
}

// RepositoryConstructor builds a repository bound to u. Constructors usually
// obtain their provider through ProviderFor or CreateProvider.
type RepositoryConstructor[R any] func(u *UnitOfWork) (R, error)

// NewContainer returns an empty Container.
func NewContainer() *Container {
	return &Container{
		entries: make(map[reflect.Type]interface{}),
	}
}

func (c *Container) set(t reflect.Type, v interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[t] = v
}

func (c *Container) get(t reflect.Type) (interface{}, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	v, ok := c.entries[t]
	return v, ok
}

// Has reports whether anything is registered under the type T.
func Has[T any](c *Container) bool {
	_, ok := c.get(typeOf[T]())
	return ok
}

// Types returns the names of every registered key, sorted.
func (c *Container) Types() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	names := make([]string, 0, len(c.entries))
	for t := range c.entries {
		names = append(names, t.String())
	}
	sort.Strings(names)
	return names
}

// Remove drops the registration under the type T.
func Remove[T any](c *Container) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, typeOf[T]())
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Package-level functions

// RegisterProvider registers the factory used to create providers of type P.
// Usage: uow.RegisterProvider[*uowgorm.Provider](c, factory)
func RegisterProvider[P Provider](c *Container, factory ProviderFactory[P]) {
	c.set(typeOf[ProviderFactory[P]](), factory)
}

// RegisterProviderFunc is RegisterProvider for a plain function.
func RegisterProviderFunc[P Provider](c *Container, fn func(level IsolationLevel) (P, error)) {
	RegisterProvider[P](c, ProviderFactoryFunc[P](fn))
}

// RegisterRepository registers the constructor of repositories of type R.
func RegisterRepository[R any](c *Container, ctor RepositoryConstructor[R]) {
	c.set(typeOf[RepositoryConstructor[R]](), ctor)
}

// RegisterInstance registers a ready-made value of type T.
func RegisterInstance[T any](c *Container, value T) {
	c.set(typeOf[T](), value)
}

// Resolve returns the value registered under the type T. A missing
// registration is a configuration error.
func Resolve[T any](c *Container) (T, error) {
	var zero T
	t := typeOf[T]()

	v, ok := c.get(t)
	if !ok {
		return zero, NewError(ErrorKindConfiguration, fmt.Sprintf("nothing registered for %s", t))
	}

	typed, ok := v.(T)
	if !ok {
		return zero, NewError(ErrorKindConfiguration, fmt.Sprintf("registration for %s holds %T", t, v))
	}
	return typed, nil
}

// MustResolve is Resolve that panics on error.
func MustResolve[T any](c *Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

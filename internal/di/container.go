// Package di provides a small lazy dependency injection container with typed tokens.
package di

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ServiceRegistry is the read side of the container handed to factories and modules.
type ServiceRegistry interface {
	Get(name string) any
}

// Container registers values and lazy factories by name.
type Container interface {
	ServiceRegistry
	Register(name string, value any)
	RegisterFactory(name string, factory func(ServiceRegistry) any)
	Close() error
}

type entry struct {
	factory  func(ServiceRegistry) any
	value    any
	resolved bool
}

type container struct {
	mu       sync.Mutex
	entries  map[string]*entry
	resolved []string
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{entries: make(map[string]*entry)}
}

// Register stores an already built value.
func (c *container) Register(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = &entry{value: value, resolved: true}
}

// RegisterFactory stores a factory invoked once on first Get.
func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = &entry{factory: factory}
}

// Get returns the named service, building it on first access.
// It panics on unknown names, matching the fail-fast startup of modules.
func (c *container) Get(name string) any {
	c.mu.Lock()
	e, ok := c.entries[name]
	if !ok {
		c.mu.Unlock()
		panic(fmt.Sprintf("di: service %q is not registered", name))
	}
	if e.resolved {
		v := e.value
		c.mu.Unlock()
		return v
	}
	factory := e.factory
	c.mu.Unlock()

	// Factories may resolve their own dependencies, so build outside the lock.
	v := factory(c)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e.resolved {
		return e.value
	}
	e.value = v
	e.resolved = true
	c.resolved = append(c.resolved, name)
	return v
}

// Close closes factory-built services implementing io.Closer, newest first.
func (c *container) Close() error {
	c.mu.Lock()
	names := c.resolved
	c.resolved = nil
	c.mu.Unlock()

	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		c.mu.Lock()
		v := c.entries[names[i]].value
		c.mu.Unlock()

		if closer, ok := v.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", names[i], err))
			}
		}
	}
	return errors.Join(errs...)
}

// Token names a service and carries its type.
type Token[T any] struct {
	name string
}

// NewToken creates a typed token.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the registration name.
func (t Token[T]) Name() string {
	return t.name
}

// RegisterToken registers a typed lazy factory.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.RegisterFactory(token.name, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves a typed service.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	v := sr.Get(token.name)
	typed, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has type %T", token.name, v))
	}
	return typed
}

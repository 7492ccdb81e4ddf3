// Package container implements the kernel's service container: a named
// key/value registry whose reserved keys are declared up front together
// with the type contract their values must satisfy.
//
// Reserved keys can be assigned exactly once, and only through Provide, the
// bootstrap path used by the kernel while it wires its core services.
// Afterwards they can neither be replaced nor removed. Every other key is
// free for extensions to attach their own services.
package container

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrInvalidKey        = errors.New("invalid key")
	ErrContractViolation = errors.New("contract violation")
	ErrImmutableKey      = errors.New("immutable key")
	ErrUndefinedKey      = errors.New("undefined key")
)

// Error reports a failed container operation on a specific key.
type Error struct {
	Container string
	Key       string
	Err       error
	Detail    string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("container %q: %v: %q", e.Container, e.Err, e.Key)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Contract decides whether a value may be stored under a key.
type Contract struct {
	name  string
	check func(v any) bool
}

// TypeOf returns a contract satisfied by values assignable to T. T may be an
// interface type, in which case any implementation satisfies it.
func TypeOf[T any]() Contract {
	var zero *T
	return Contract{
		name: fmt.Sprintf("%T", zero)[1:],
		check: func(v any) bool {
			_, ok := v.(T)
			return ok
		},
	}
}

// Func builds a contract from an arbitrary predicate.
func Func(name string, check func(v any) bool) Contract {
	return Contract{name: name, check: check}
}

func (c Contract) String() string { return c.name }

// Satisfied reports whether v fulfils the contract. A nil value never does.
func (c Contract) Satisfied(v any) bool {
	return v != nil && c.check(v)
}

// Container is safe for concurrent use.
type Container struct {
	name      string
	contracts map[string]Contract

	mu      sync.RWMutex
	entries map[string]any
}

// New creates a container. Every key in contracts becomes reserved; the set
// cannot be changed after construction.
func New(name string, contracts map[string]Contract) *Container {
	c := &Container{
		name:      name,
		contracts: make(map[string]Contract, len(contracts)),
		entries:   make(map[string]any),
	}
	for k, contract := range contracts {
		c.contracts[k] = contract
	}
	return c
}

// Name returns the diagnostic label of the container.
func (c *Container) Name() string { return c.name }

// IsReserved reports whether key was declared at construction.
func (c *Container) IsReserved(key string) bool {
	_, ok := c.contracts[key]
	return ok
}

// Set assigns a non-reserved key. Reserved keys are owned by the bootstrap
// code and always fail with ErrImmutableKey here.
func (c *Container) Set(key string, value any) error {
	return c.set(key, value, false)
}

// Provide is the bootstrap path: it may assign a reserved key the first time.
// A reserved key that already holds a value still fails with ErrImmutableKey.
func (c *Container) Provide(key string, value any) error {
	return c.set(key, value, true)
}

func (c *Container) set(key string, value any, bootstrap bool) error {
	if key == "" {
		return c.fail(key, ErrInvalidKey, "key must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	contract, reserved := c.contracts[key]
	if reserved {
		if _, exists := c.entries[key]; exists {
			return c.fail(key, ErrImmutableKey, "reserved key is already set")
		}
		if !bootstrap {
			return c.fail(key, ErrImmutableKey, "reserved key can only be set during bootstrap")
		}
		if !contract.Satisfied(value) {
			return c.fail(key, ErrContractViolation, fmt.Sprintf("want %s, got %T", contract, value))
		}
	}

	c.entries[key] = value
	return nil
}

// Get returns the value stored under key.
func (c *Container) Get(key string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.entries[key]
	if !ok {
		return nil, c.fail(key, ErrUndefinedKey, "")
	}
	return v, nil
}

// Has reports whether key holds a value.
func (c *Container) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Remove deletes a non-reserved key. Removing an absent key is a no-op.
func (c *Container) Remove(key string) error {
	if c.IsReserved(key) {
		return c.fail(key, ErrImmutableKey, "reserved key cannot be removed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Keys lists all keys holding a value, sorted.
func (c *Container) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Container) fail(key string, err error, detail string) error {
	return &Error{Container: c.name, Key: key, Err: err, Detail: detail}
}

// Lookup fetches key and asserts it to T.
func Lookup[T any](c *Container, key string) (T, error) {
	var zero T
	v, err := c.Get(key)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, c.fail(key, ErrContractViolation, fmt.Sprintf("stored value is %T", v))
	}
	return typed, nil
}

// MustLookup is Lookup for the kernel's reserved services, which are
// guaranteed to exist once bootstrap has finished.
func MustLookup[T any](c *Container, key string) T {
	v, err := Lookup[T](c, key)
	if err != nil {
		panic(err)
	}
	return v
}

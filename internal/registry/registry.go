// Package registry holds the concurrent lookup structures behind a bus: a
// generic name directory and the pattern subscription registry.
package registry

import (
	"sync"

	"github.com/alphadose/haxmap"
)

// Registry is a concurrent name to value directory.
type Registry[T any] interface {
	Get(name string) (T, bool)
	// Add stores value under name unless the name is taken. It reports whether
	// the value was stored.
	Add(name string, value T) bool
	Del(name string)
	Len() int
	ForEach(fn func(name string, value T) bool)
}

// registry reads without locking; writers are serialized so Add is a true
// check-then-set.
type registry[T any] struct {
	mu     sync.Mutex
	values *haxmap.Map[string, T]
}

// New creates an empty registry.
func New[T any]() Registry[T] {
	return &registry[T]{
		values: haxmap.New[string, T](),
	}
}

func (r *registry[T]) Get(name string) (T, bool) {
	return r.values.Get(name)
}

func (r *registry[T]) Add(name string, value T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values.Get(name); ok {
		return false
	}
	r.values.Set(name, value)
	return true
}

func (r *registry[T]) Del(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values.Del(name)
}

func (r *registry[T]) Len() int {
	return int(r.values.Len())
}

func (r *registry[T]) ForEach(fn func(name string, value T) bool) {
	r.values.ForEach(fn)
}

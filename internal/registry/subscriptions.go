package registry

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/namespace"
	"github.com/casualjim/strix/pkg/uuidx"
)

// Subscription binds a pattern to a handler.
type Subscription struct {
	ID      string
	Pattern namespace.Pattern
	Handler events.HandlerFunc
	// Owner is the id of the agent that registered the handler, empty for bus observers.
	Owner string
	// Binding identifies the declared handler this subscription was created from. The
	// local and global subscriptions created for one agent handler share it.
	Binding      string
	RegisteredAt time.Time

	seq uint64
}

// Spec describes a subscription to register.
type Spec struct {
	Pattern string
	Handler events.HandlerFunc
	Owner   string
	Binding string
}

// ErrNilHandler is returned when a subscription has no handler.
var ErrNilHandler = errors.New("handler is required")

// Subscriptions is a concurrent pattern registry. Patterns are bucketed by arity
// because a pattern can only ever match names with the same segment count. Each
// bucket publishes an immutable slice that readers load without locking; writers
// copy, modify and swap it under the bucket mutex.
type Subscriptions struct {
	// mu serializes bucket creation; lookups read buckets without it.
	mu      sync.Mutex
	buckets *haxmap.Map[int, *bucket]
	byID    *haxmap.Map[string, int]
	seq     atomic.Uint64
	count   atomic.Int64
}

type bucket struct {
	mu   sync.Mutex
	subs atomic.Pointer[[]*Subscription]
}

// NewSubscriptions creates an empty registry.
func NewSubscriptions() *Subscriptions {
	return &Subscriptions{
		buckets: haxmap.New[int, *bucket](),
		byID:    haxmap.New[string, int](),
	}
}

// Register validates the pattern and adds a subscription. A malformed pattern
// returns a *namespace.PatternError and nothing is registered.
func (s *Subscriptions) Register(spec Spec) (*Subscription, error) {
	pattern, err := namespace.ParsePattern(spec.Pattern)
	if err != nil {
		return nil, err
	}
	if spec.Handler == nil {
		return nil, ErrNilHandler
	}

	sub := &Subscription{
		ID:           uuidx.Prefixed("sub"),
		Pattern:      pattern,
		Handler:      spec.Handler,
		Owner:        spec.Owner,
		Binding:      spec.Binding,
		RegisteredAt: time.Now(),
		seq:          s.seq.Add(1),
	}

	b := s.bucket(pattern.Arity())
	b.mu.Lock()
	cur := b.load()
	next := make([]*Subscription, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, sub)
	b.subs.Store(&next)
	s.byID.Set(sub.ID, pattern.Arity())
	b.mu.Unlock()

	s.count.Add(1)
	return sub, nil
}

// RegisterAll validates every pattern before registering any of them. When a
// pattern is malformed nothing is registered.
func (s *Subscriptions) RegisterAll(specs []Spec) ([]*Subscription, error) {
	var errs []error
	for _, spec := range specs {
		if _, err := namespace.ParsePattern(spec.Pattern); err != nil {
			errs = append(errs, err)
		}
		if spec.Handler == nil {
			errs = append(errs, ErrNilHandler)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	out := make([]*Subscription, 0, len(specs))
	for _, spec := range specs {
		sub, err := s.Register(spec)
		if err != nil {
			for _, done := range out {
				s.Unregister(done.ID)
			}
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

// Unregister removes the subscription with the given id. It reports whether a
// subscription was removed.
func (s *Subscriptions) Unregister(id string) bool {
	arity, ok := s.byID.Get(id)
	if !ok {
		return false
	}
	b, ok := s.buckets.Get(arity)
	if !ok {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.load()
	idx := slices.IndexFunc(cur, func(sub *Subscription) bool { return sub.ID == id })
	if idx < 0 {
		return false
	}
	next := make([]*Subscription, 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	b.subs.Store(&next)
	s.byID.Del(id)
	s.count.Add(-1)
	return true
}

// UnregisterOwner removes every subscription registered by owner and returns how
// many were removed.
func (s *Subscriptions) UnregisterOwner(owner string) int {
	var ids []string
	s.buckets.ForEach(func(_ int, b *bucket) bool {
		for _, sub := range b.load() {
			if sub.Owner == owner {
				ids = append(ids, sub.ID)
			}
		}
		return true
	})
	removed := 0
	for _, id := range ids {
		if s.Unregister(id) {
			removed++
		}
	}
	return removed
}

// Lookup returns the subscriptions whose pattern matches name, in registration
// order. The returned slice is owned by the caller.
func (s *Subscriptions) Lookup(name namespace.Path) []*Subscription {
	b, ok := s.buckets.Get(name.Len())
	if !ok {
		return nil
	}
	var out []*Subscription
	for _, sub := range b.load() {
		if sub.Pattern.Matches(name) {
			out = append(out, sub)
		}
	}
	return out
}

// Get returns the subscription with the given id.
func (s *Subscriptions) Get(id string) (*Subscription, bool) {
	arity, ok := s.byID.Get(id)
	if !ok {
		return nil, false
	}
	b, ok := s.buckets.Get(arity)
	if !ok {
		return nil, false
	}
	for _, sub := range b.load() {
		if sub.ID == id {
			return sub, true
		}
	}
	return nil, false
}

// Len returns the number of registered subscriptions.
func (s *Subscriptions) Len() int {
	return int(s.count.Load())
}

// All returns every subscription ordered by registration.
func (s *Subscriptions) All() []*Subscription {
	var out []*Subscription
	s.buckets.ForEach(func(_ int, b *bucket) bool {
		out = append(out, b.load()...)
		return true
	})
	slices.SortFunc(out, func(a, b *Subscription) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

func (s *Subscriptions) bucket(arity int) *bucket {
	if b, ok := s.buckets.Get(arity); ok {
		return b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets.Get(arity); ok {
		return b
	}
	b := &bucket{}
	empty := []*Subscription{}
	b.subs.Store(&empty)
	s.buckets.Set(arity, b)
	return b
}

func (b *bucket) load() []*Subscription {
	p := b.subs.Load()
	if p == nil {
		return nil
	}
	return *p
}

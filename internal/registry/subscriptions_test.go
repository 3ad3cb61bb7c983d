package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/namespace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, events.Event) error { return nil }

func patterns(subs []*Subscription) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.Pattern.String())
	}
	return out
}

func TestSubscriptions_RegisterAndLookup(t *testing.T) {
	s := NewSubscriptions()

	for _, p := range []string{"user.any.input", "user.login.input", "any.any.any", "user.any", "order.created"} {
		_, err := s.Register(Spec{Pattern: p, Handler: noop})
		require.NoError(t, err)
	}
	assert.Equal(t, 5, s.Len())

	got := s.Lookup(namespace.MustPath("user.login.input"))
	assert.Equal(t, []string{"user.any.input", "user.login.input", "any.any.any"}, patterns(got))

	got = s.Lookup(namespace.MustPath("user.login"))
	assert.Equal(t, []string{"user.any"}, patterns(got))

	assert.Empty(t, s.Lookup(namespace.MustPath("user.login.extra.input")))
	assert.Empty(t, s.Lookup(namespace.MustPath("nothing")))
}

func TestSubscriptions_RegisterRejectsBadInput(t *testing.T) {
	s := NewSubscriptions()

	_, err := s.Register(Spec{Pattern: "a..b", Handler: noop})
	var perr *namespace.PatternError
	require.ErrorAs(t, err, &perr)

	_, err = s.Register(Spec{Pattern: "a.b"})
	require.ErrorIs(t, err, ErrNilHandler)

	assert.Zero(t, s.Len())
}

func TestSubscriptions_RegisterAllIsAtomic(t *testing.T) {
	s := NewSubscriptions()

	_, err := s.RegisterAll([]Spec{
		{Pattern: "a.b", Handler: noop},
		{Pattern: "", Handler: noop},
		{Pattern: "c.d", Handler: noop},
	})
	require.ErrorIs(t, err, namespace.ErrInvalidPattern)
	assert.Zero(t, s.Len(), "no partial registration")

	subs, err := s.RegisterAll([]Spec{
		{Pattern: "a.b", Handler: noop, Owner: "agent", Binding: "b1"},
		{Pattern: "c.d", Handler: noop, Owner: "agent", Binding: "b2"},
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "b1", subs[0].Binding)
	assert.Equal(t, "agent", subs[1].Owner)
}

func TestSubscriptions_Unregister(t *testing.T) {
	s := NewSubscriptions()
	a, _ := s.Register(Spec{Pattern: "a.any", Handler: noop})
	b, _ := s.Register(Spec{Pattern: "a.b", Handler: noop})
	c, _ := s.Register(Spec{Pattern: "any.b", Handler: noop})

	assert.True(t, s.Unregister(b.ID))
	assert.False(t, s.Unregister(b.ID), "second unregister is a no-op")
	assert.False(t, s.Unregister("missing"))

	got := s.Lookup(namespace.MustPath("a.b"))
	assert.Equal(t, []*Subscription{a, c}, got, "order is preserved across removal")

	_, ok := s.Get(b.ID)
	assert.False(t, ok)
	found, ok := s.Get(c.ID)
	require.True(t, ok)
	assert.Same(t, c, found)
	assert.Equal(t, 2, s.Len())
}

func TestSubscriptions_UnregisterOwner(t *testing.T) {
	s := NewSubscriptions()
	_, _ = s.Register(Spec{Pattern: "a.b", Handler: noop, Owner: "x"})
	_, _ = s.Register(Spec{Pattern: "c", Handler: noop, Owner: "x"})
	keep, _ := s.Register(Spec{Pattern: "a.b", Handler: noop, Owner: "y"})

	assert.Equal(t, 2, s.UnregisterOwner("x"))
	assert.Equal(t, 0, s.UnregisterOwner("x"))
	assert.Equal(t, []*Subscription{keep}, s.All())
}

func TestSubscriptions_AllIsOrdered(t *testing.T) {
	s := NewSubscriptions()
	var want []string
	for i := 0; i < 10; i++ {
		p := fmt.Sprintf("p%d", i)
		if i%2 == 0 {
			p += ".x"
		}
		want = append(want, p)
		_, err := s.Register(Spec{Pattern: p, Handler: noop})
		require.NoError(t, err)
	}
	assert.Equal(t, want, patterns(s.All()))
}

func TestSubscriptions_ConcurrentAccess(t *testing.T) {
	s := NewSubscriptions()
	name := namespace.MustPath("load.test.event")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			sub, err := s.Register(Spec{Pattern: "load.any.event", Handler: noop})
			if err == nil && sub != nil {
				s.Unregister(sub.ID)
			}
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Register(Spec{Pattern: "load.test.any", Handler: noop})
		}()
		go func() {
			defer wg.Done()
			for _, sub := range s.Lookup(name) {
				assert.NotNil(t, sub.Handler)
				assert.True(t, sub.Pattern.Matches(name))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
	assert.Len(t, s.Lookup(name), 50)
}

func TestSubscriptions_ConcurrentFirstRegistrationForArity(t *testing.T) {
	name := namespace.MustPath("a.b.c")
	for round := 0; round < 500; round++ {
		s := NewSubscriptions()

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
		)
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := s.Register(Spec{Pattern: "a.b.c", Handler: noop, Owner: fmt.Sprintf("o%d", i)})
				assert.NoError(t, err)
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, 32, s.Len(), "round %d", round)
		require.Len(t, s.All(), 32, "round %d", round)
		require.Len(t, s.Lookup(name), 32, "round %d", round)
	}
}

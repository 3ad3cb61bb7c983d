package strix

import (
	"context"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/internal/registry"
	"github.com/casualjim/strix/namespace"
	"github.com/casualjim/strix/pkg/slogx"
)

// route resolves an event against the local hub of the emitting agent (nil when
// the bus emits directly) and then the global bus, and dispatches every match
// as one batch with local matches first.
func (b *Bus) route(ctx context.Context, local *registry.Subscriptions, ev events.Event) {
	ev = events.Stamp(ctx, ev)

	name, err := namespace.ParsePath(ev.Name)
	if err != nil {
		b.invalid.Add(1)
		b.logger.WarnContext(ctx, "event dropped", slogx.Event(ev.Name), slogx.AgentID(ev.Source), slogx.Error(err))
		return
	}
	if b.maxDepth > 0 && ev.Depth > b.maxDepth {
		b.tooDeep.Add(1)
		b.logger.WarnContext(ctx, "event dropped", slogx.Event(ev.Name), slogx.EventID(ev.ID), slogx.AgentID(ev.Source), slogx.Error(ErrChainTooDeep))
		return
	}

	subs := b.resolve(local, name)
	b.emitted.Add(1)
	if len(subs) == 0 {
		b.unroutable.Add(1)
		b.logger.DebugContext(ctx, "unroutable event", slogx.Event(ev.Name), slogx.EventID(ev.ID), slogx.AgentID(ev.Source))
		return
	}
	if !b.dispatcher.Dispatch(ev, subs) {
		b.logger.DebugContext(ctx, "bus closed, event dropped", slogx.Event(ev.Name), slogx.EventID(ev.ID))
	}
}

// resolve returns the local matches followed by the global matches. An agent
// handler is registered once locally and once globally under the same binding;
// a global match whose binding already matched locally is skipped so the
// handler runs once per event.
func (b *Bus) resolve(local *registry.Subscriptions, name namespace.Path) []*registry.Subscription {
	var matched []*registry.Subscription
	var delivered map[string]struct{}
	if local != nil {
		matched = local.Lookup(name)
		for _, sub := range matched {
			if sub.Binding == "" {
				continue
			}
			if delivered == nil {
				delivered = make(map[string]struct{}, len(matched))
			}
			delivered[sub.Binding] = struct{}{}
		}
	}
	for _, sub := range b.global.Lookup(name) {
		if sub.Binding != "" {
			if _, dup := delivered[sub.Binding]; dup {
				continue
			}
		}
		matched = append(matched, sub)
	}
	return matched
}

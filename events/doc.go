// Package events defines the event value that flows through a strix bus, the
// handler signature that consumes it, and the handler-target expansion used to
// fan one payload out to several event names.
//
// Design decisions:
//   - Copy on emit: an Event's Payload is deep-copied for every handler invocation,
//     so handlers can mutate what they receive without affecting one another.
//   - Causality: events emitted from inside a handler record the id of the event
//     that triggered them (CausedBy) and their chain depth.
//   - Wire format: events marshal to a flat JSON object using sjson and are read
//     back with gjson; timestamps are strfmt.DateTime.
//
// Handler targets:
//
//	// "c.d" fires with the original payload; "e.f" fires with x=1 merged in
//	targets, _ := events.ParseTargets([]string{"c.d", "e.f { x: 1 }"})
//	for _, ev := range events.Expand(payload, targets) {
//	    bus.Publish(ctx, ev)
//	}
package events

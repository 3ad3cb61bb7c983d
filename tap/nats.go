package tap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/pkg/slogx"
	"github.com/nats-io/nats.go"
)

// NATSSink publishes events as JSON on subject "<prefix>.<event name>".
type NATSSink struct {
	client *nats.Conn
	prefix string
}

// NATS creates a sink publishing on the connection. An empty prefix publishes
// on the bare event name.
func NATS(client *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{client: client, prefix: prefix}
}

// Subject returns the subject an event name is published on.
func (s *NATSSink) Subject(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "." + name
}

func (s *NATSSink) Send(_ context.Context, ev events.Event) error {
	data, err := ev.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.client.Publish(s.Subject(ev.Name), data)
}

// SubscribeNATS delivers mirrored events published under prefix to fn. Every
// event name is matched with the ">" wildcard. Messages that do not decode are
// logged and skipped.
func SubscribeNATS(client *nats.Conn, prefix string, fn func(events.Event)) (*nats.Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("callback is required")
	}
	subject := ">"
	if prefix != "" {
		subject = prefix + ".>"
	}
	return client.Subscribe(subject, func(msg *nats.Msg) {
		ev, err := events.Decode(msg.Data)
		if err != nil {
			slog.Error("failed to decode mirrored event", slog.String("subject", msg.Subject), slogx.Error(err))
			return
		}
		fn(ev)
	})
}

package tap

import (
	"context"
	"fmt"

	"github.com/casualjim/strix/events"
	"github.com/redis/go-redis/v9"
)

// RedisSink publishes events as JSON on channel "<prefix>:<event name>".
type RedisSink struct {
	client redis.UniversalClient
	prefix string
}

// Redis creates a sink publishing with the client. An empty prefix publishes
// on the bare event name.
func Redis(client redis.UniversalClient, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Channel returns the channel an event name is published on.
func (s *RedisSink) Channel(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

func (s *RedisSink) Send(ctx context.Context, ev events.Event) error {
	data, err := ev.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.Channel(ev.Name), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Name, err)
	}
	return nil
}

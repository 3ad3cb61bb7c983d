package tap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/casualjim/strix/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisSink_Channel(t *testing.T) {
	assert.Equal(t, "strix:order.placed", Redis(nil, "strix").Channel("order.placed"))
	assert.Equal(t, "order.placed", Redis(nil, "").Channel("order.placed"))
}

func TestRedisSink_MirrorsEvents(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	ps := client.PSubscribe(ctx, "strix:*")
	t.Cleanup(func() { _ = ps.Close() })
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	b := newBus(t)
	_, err = Attach(b, Redis(client, "strix"), "order.any")
	require.NoError(t, err)

	b.Emit(ctx, "order.placed", map[string]any{"order": "o-1"})
	settle(t, b)

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(rctx)
	require.NoError(t, err)
	assert.Equal(t, "strix:order.placed", msg.Channel)

	ev, err := events.Decode([]byte(msg.Payload))
	require.NoError(t, err)
	assert.Equal(t, "order.placed", ev.Name)
	assert.Equal(t, "o-1", ev.Payload["order"])
	assert.NotEmpty(t, ev.ID)
}

func TestRedisSink_PublishError(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	s.Close()

	err := Redis(client, "strix").Send(context.Background(), events.New("a.b", nil))
	assert.ErrorContains(t, err, "failed to publish a.b")
}

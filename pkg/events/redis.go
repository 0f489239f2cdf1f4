package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conductorsdk/worker-go/internal/logger"
)

const bridgeChannelPrefix = "conductor:worker:events:"

// envelope is the wire form a bridged event is published in.
type envelope struct {
	Type      Type        `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// RedisBridge is an optional listener that republishes runtime events to
// Redis Pub/Sub for consumers outside the worker process (dashboards,
// alerting). Publish failures are logged and dropped; the bridge never
// blocks the runtime longer than its publish timeout.
type RedisBridge struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisBridge creates a bridge over an existing Redis client.
func NewRedisBridge(client *redis.Client) *RedisBridge {
	return &RedisBridge{
		client:  client,
		timeout: 2 * time.Second,
	}
}

// OnEvent implements Listener.
func (b *RedisBridge) OnEvent(e Event) {
	data, err := json.Marshal(envelope{
		Type:      e.EventType(),
		Timestamp: time.Now().UTC(),
		Data:      e,
	})
	if err != nil {
		logger.Error().Err(err).
			Str("event_type", string(e.EventType())).
			Msg("failed to serialize bridged event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	channel := bridgeChannelPrefix + string(e.EventType())
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		logger.Error().Err(err).
			Str("channel", channel).
			Msg("failed to publish bridged event")
		return
	}

	logger.Debug().
		Str("event_type", string(e.EventType())).
		Str("channel", channel).
		Msg("event bridged")
}

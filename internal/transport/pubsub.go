package transport

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pdsno.io/controller/internal/envelope"
	"pdsno.io/controller/internal/pkg/logger"
)

// Topic builds the pdsno/<category>/<region>/<sender> channel hierarchy
// used for pub/sub delivery.
func Topic(category, region, sender string) string {
	return strings.Join([]string{"pdsno", category, region, sender}, "/")
}

// PubSubDispatcher publishes envelopes over Redis; it never returns a
// reply, matching the fire-and-forget semantics of broadcast categories
// like DISCOVERY_REPORT fan-out to operator consumers.
type PubSubDispatcher struct {
	client   *redis.Client
	category string
}

// NewPubSubDispatcher creates a dispatcher that publishes under category.
func NewPubSubDispatcher(client *redis.Client, category string) *PubSubDispatcher {
	return &PubSubDispatcher{client: client, category: category}
}

// Send implements Dispatcher; the reply is always nil.
func (d *PubSubDispatcher) Send(ctx context.Context, e *envelope.Envelope) (*envelope.Envelope, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	topic := Topic(d.category, regionOf(e), e.SenderID)
	return nil, d.client.Publish(ctx, topic, body).Err()
}

func regionOf(e *envelope.Envelope) string {
	// Region is not a first-class envelope field; callers that need
	// region-scoped topics route through PublishTo instead.
	return "all"
}

// PublishTo publishes e under an explicit topic, bypassing the
// category/region inference Send uses for the common case.
func (d *PubSubDispatcher) PublishTo(ctx context.Context, topic string, e *envelope.Envelope) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return d.client.Publish(ctx, topic, body).Err()
}

// Subscriber consumes envelopes from one or more topic patterns, supporting
// Redis glob wildcards. Patterns are passed to PSUBSCRIBE unchanged;
// MQTT-style `+`/`#` wildcards are not translated.
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber creates a pub/sub subscriber.
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe subscribes to the given glob patterns and invokes handle for
// every envelope received until ctx is cancelled.
func (s *Subscriber) Subscribe(ctx context.Context, patterns []string, handle func(*envelope.Envelope)) error {
	pubsub := s.client.PSubscribe(ctx, patterns...)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e envelope.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				logger.Warn("discarding malformed pub/sub message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			handle(&e)
		}
	}
}

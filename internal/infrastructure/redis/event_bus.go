package redis

import (
	"context"

	"orcabus-run-manager/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RunEventBus carries run-state-change traffic over Redis Pub/Sub, one
// channel pair per run kind.
type RunEventBus struct {
	client *redis.Client
}

func NewRunEventBus(client *redis.Client) *RunEventBus {
	return &RunEventBus{client: client}
}

func inboundChannel(kind domain.RunKind) string {
	return "runstatechange:inbound:" + string(kind)
}

func outboundChannel(kind domain.RunKind) string {
	return "runstatechange:events:" + string(kind)
}

// PublishRunStateChange broadcasts a canonical outbound event for one kind.
func (b *RunEventBus) PublishRunStateChange(ctx context.Context, kind domain.RunKind, ev *domain.RunStateChange) error {
	payload, err := ev.Marshall()
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, outboundChannel(kind), payload).Err()
}

// SubscribeToInbound opens a continuous stream of raw inbound events for the
// ingest consumer. Bytes are forwarded unparsed; deserialization (and
// dead-lettering) is the consumer's concern.
func (b *RunEventBus) SubscribeToInbound(ctx context.Context, kind domain.RunKind) (<-chan []byte, error) {
	pubsub := b.client.Subscribe(ctx, inboundChannel(kind))

	msgChan := make(chan []byte)

	// Background goroutine listens to Redis and forwards to our Go channel
	go func() {
		defer close(msgChan)
		for {
			select {
			case <-ctx.Done(): // Handle shutdown gracefully
				pubsub.Close()
				return
			default:
				msg, err := pubsub.ReceiveMessage(ctx)
				if err == nil {
					msgChan <- []byte(msg.Payload)
				}
			}
		}
	}()

	return msgChan, nil
}

// Package events publishes lifecycle outcomes over a watermill pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/expresswash/jobsync/pkg/core"
	"github.com/expresswash/jobsync/pkg/security"
)

// Topic is the topic every lifecycle event is published on.
const Topic = "jobsync.jobs"

// MetadataEventType is the message metadata key holding the event type.
const MetadataEventType = "event_type"

// Bus fans lifecycle events out to subscribers.
// A nil *Bus accepts and drops every event.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
}

// NewBus creates an in-process bus backed by a watermill Go channel.
func NewBus() *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NopLogger{})
	return &Bus{publisher: pubsub, subscriber: pubsub, logger: watermill.NopLogger{}}
}

// NewBusWith creates a bus over any watermill publisher and subscriber,
// such as an AMQP or Kafka transport. subscriber may be nil for publish-only use.
func NewBusWith(publisher message.Publisher, subscriber message.Subscriber, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{publisher: publisher, subscriber: subscriber, logger: logger}
}

// Publish sends ev to every subscriber. A zero Timestamp is set to now and
// Error is sanitized before it leaves the process.
func (b *Bus) Publish(ctx context.Context, ev core.Event) error {
	if b == nil || b.publisher == nil {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Error = security.SanitizeErrorMessage(ev.Error)

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataEventType, string(ev.Type))
	msg.SetContext(ctx)

	if err := b.publisher.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of events published after the call.
// The channel closes when ctx ends or the bus closes.
func (b *Bus) Subscribe(ctx context.Context) (<-chan core.Event, error) {
	if b == nil || b.subscriber == nil {
		return nil, fmt.Errorf("jobsync: event bus has no subscriber")
	}
	messages, err := b.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan core.Event)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev core.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.logger.Error("Failed to decode event", err, watermill.LogFields{
					"message_uuid": msg.UUID,
				})
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the underlying transport down.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var firstErr error
	if b.publisher != nil {
		firstErr = b.publisher.Close()
	}
	if b.subscriber != nil && any(b.subscriber) != any(b.publisher) {
		if err := b.subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

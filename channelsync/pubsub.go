package channelsync

import (
	"context"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/hotel_backend/config"
	"github.com/mmdatafocus/hotel_backend/models"
)

// Topology: one topic per channel integration (the exchange analog), one
// subscription per direction filtered on the direction attribute (the bound
// queue analog), one dead-letter topic per subscription. Event-type and
// priority ride as message attributes.

func TopicName(channel string) string {
	return "chansync." + channel
}

func SubscriptionName(channel, direction string) string {
	return fmt.Sprintf("chansync.%s.%s", channel, direction)
}

func DeadLetterTopicName(channel, direction string) string {
	return fmt.Sprintf("chansync.%s.%s.dlq", channel, direction)
}

// EnsureChannelTopology creates the topic, both direction subscriptions and
// their dead-letter topics for one channel integration. Gated behind
// PUBSUB_AUTO_CREATE; production topologies are owned by infrastructure.
func EnsureChannelTopology(ctx context.Context, channel string) error {
	if !config.AutoCreatePubSubResources() {
		return nil
	}
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic, err := config.CreateTopicIfNotExists(client, TopicName(channel))
	if err != nil {
		return err
	}

	for _, direction := range []string{models.EventDirectionInbound, models.EventDirectionOutbound} {
		if _, err := config.CreateTopicIfNotExists(client, DeadLetterTopicName(channel, direction)); err != nil {
			return err
		}
		spec := config.SubscriptionSpec{
			Name:                SubscriptionName(channel, direction),
			Filter:              fmt.Sprintf(`attributes.direction = "%s"`, direction),
			DeadLetterTopic:     DeadLetterTopicName(channel, direction),
			MaxDeliveryAttempts: 5,
		}
		if _, err := config.CreateSubscriptionIfNotExists(client, topic, spec); err != nil {
			return err
		}
	}
	return nil
}

func eventAttributes(event *models.ChannelEvent) map[string]string {
	return map[string]string{
		"event_id":   strconv.FormatUint(uint64(event.ID), 10),
		"direction":  event.Direction,
		"event_type": event.EventType,
		"priority":   strconv.Itoa(event.Priority),
	}
}

// PublishEvent publishes a ledger row to its channel topic and returns the
// Pub/Sub message id.
func PublishEvent(ctx context.Context, event *models.ChannelEvent) (string, error) {
	data := encodeEventMessage(eventMessage{
		EventId:    event.ID,
		PropertyId: event.PropertyId,
		Channel:    event.Source,
	})
	return config.PublishWithResult(ctx, TopicName(event.Source), data, eventAttributes(event))
}

// PublishToDeadLetter parks an exhausted event on the DLQ topic for manual
// replay. The original attributes ride along for triage.
func PublishToDeadLetter(ctx context.Context, event *models.ChannelEvent) (string, error) {
	data := encodeEventMessage(eventMessage{
		EventId:    event.ID,
		PropertyId: event.PropertyId,
		Channel:    event.Source,
	})
	return config.PublishWithResult(ctx, DeadLetterTopicName(event.Source, event.Direction), data, eventAttributes(event))
}

// ChannelSubscription returns the direction subscription with prefetch=1:
// one outstanding message serializes per-integration calls against the
// remote API's own rate limit.
func ChannelSubscription(ctx context.Context, channel, direction string) (*pubsub.Subscription, error) {
	client, err := config.GetClient(ctx)
	if err != nil {
		return nil, err
	}
	sub := client.Subscription(SubscriptionName(channel, direction))
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.NumGoroutines = 1
	return sub, nil
}

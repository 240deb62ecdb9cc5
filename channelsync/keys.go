package channelsync

import (
	"fmt"
	"strings"
	"time"
)

// Idempotency key construction. Inbound keys must be stable across webhook
// redeliveries, so the channel-supplied event id wins when present. Outbound
// keys embed a wall-clock timestamp on purpose: two rapid updates to the
// same entity are two logical events and both must apply.

func InboundIdempotencyKey(channel, channelEventId, externalId string, eventType EventType, at time.Time) string {
	if id := strings.TrimSpace(channelEventId); id != "" {
		return fmt.Sprintf("%s-%s", channel, id)
	}
	return fmt.Sprintf("%s-%s-%s-%d", channel, externalId, eventType, at.UTC().Unix())
}

// The target channel is part of the key: one PMS change fans out to one
// ledger row per channel, and the rows must never collide on the unique
// index.
func OutboundIdempotencyKey(channel, entityType string, entityId uint, action string, at time.Time) string {
	return fmt.Sprintf("pms-%s-%s-%d-%s-%d", channel, entityType, entityId, action, at.UTC().UnixNano())
}

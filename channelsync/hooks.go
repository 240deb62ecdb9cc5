package channelsync

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mmdatafocus/hotel_backend/config"
	"github.com/mmdatafocus/hotel_backend/models"
)

// Outbound hooks. The PMS calls these after committing a local change; each
// hook fans the change out to every connected channel as an outbound ledger
// event. Hooks never fail the caller: a sync problem must not block a front
// desk operation, so every error here is logged and swallowed.

const (
	featurePushReservations = "push_reservations"
	featurePushAvailability = "push_availability"
	featurePushRates        = "push_rates"
)

// shouldPush decides whether a change is pushed to one channel. The master
// switch and the per-feature flag must both be on, and a change to an entity
// that came FROM this channel is never echoed back to it.
func shouldPush(cfg *models.ChannelConfig, entitySource, feature string) bool {
	if cfg == nil || cfg.Status != models.ChannelStatusConnected || !cfg.SyncEnabled {
		return false
	}
	if entitySource == cfg.Channel {
		return false
	}
	switch feature {
	case featurePushReservations:
		return cfg.PushReservations
	case featurePushAvailability:
		return cfg.PushAvailability
	case featurePushRates:
		return cfg.PushRates
	}
	return false
}

func reservationEventType(action string) (EventType, bool) {
	switch action {
	case "created":
		return EventTypeBookingCreated, true
	case "modified":
		return EventTypeBookingModified, true
	case "cancelled":
		return EventTypeBookingCancelled, true
	}
	return "", false
}

// NotifyReservationChange queues a reservation push for every channel that
// wants it. action is one of created, modified, cancelled.
func NotifyReservationChange(db *gorm.DB, logger *logrus.Logger, reservation *models.Reservation, action string) {
	eventType, ok := reservationEventType(action)
	if !ok {
		logger.WithField("action", action).Warn("unknown reservation action, hook skipped")
		return
	}
	payload, err := json.Marshal(reservation)
	if err != nil {
		config.LogError(logger, "channelsync", "NotifyReservationChange", "marshal reservation", reservation.ID, err)
		return
	}
	fanOutOutbound(db, logger, reservation.PropertyId, reservation.Source, featurePushReservations,
		eventType, strconv.FormatUint(uint64(reservation.ID), 10), reservation.ID, action, payload)
}

// NotifyAvailabilityChange queues an allotment push for every channel with
// availability sync on. entitySource is SourcePMS for local edits.
func NotifyAvailabilityChange(db *gorm.DB, logger *logrus.Logger, propertyId, entitySource string, change AvailabilityChange) {
	payload, err := json.Marshal(change)
	if err != nil {
		config.LogError(logger, "channelsync", "NotifyAvailabilityChange", "marshal change", change.RoomTypeId, err)
		return
	}
	fanOutOutbound(db, logger, propertyId, entitySource, featurePushAvailability,
		EventTypeAvailabilityChanged, strconv.FormatUint(uint64(change.RoomTypeId), 10), change.RoomTypeId, "changed", payload)
}

// NotifyRateChange queues a rate push for every channel with rate sync on.
func NotifyRateChange(db *gorm.DB, logger *logrus.Logger, propertyId, entitySource string, change RateChange) {
	payload, err := json.Marshal(change)
	if err != nil {
		config.LogError(logger, "channelsync", "NotifyRateChange", "marshal change", change.RoomTypeId, err)
		return
	}
	fanOutOutbound(db, logger, propertyId, entitySource, featurePushRates,
		EventTypeRateChanged, strconv.FormatUint(uint64(change.RoomTypeId), 10), change.RoomTypeId, "changed", payload)
}

func fanOutOutbound(db *gorm.DB, logger *logrus.Logger, propertyId, entitySource, feature string,
	eventType EventType, internalId string, entityId uint, action string, payload []byte) {

	configs, err := models.ListSyncableConfigs(db)
	if err != nil {
		config.LogError(logger, "channelsync", "fanOutOutbound", "list configs", propertyId, err)
		return
	}
	now := time.Now()
	for i := range configs {
		cfg := &configs[i]
		if cfg.PropertyId != propertyId || !shouldPush(cfg, entitySource, feature) {
			continue
		}
		event, created, err := models.RecordEvent(db, models.NewChannelEvent{
			PropertyId:       propertyId,
			Direction:        models.EventDirectionOutbound,
			Source:           cfg.Channel,
			EventType:        string(eventType),
			EntityType:       eventType.EntityType(),
			EntityInternalId: internalId,
			IdempotencyKey:   OutboundIdempotencyKey(cfg.Channel, eventType.EntityType(), entityId, action, now),
			Payload:          payload,
			Priority:         eventType.Priority(),
		})
		if err != nil {
			config.LogError(logger, "channelsync", "fanOutOutbound", "record event", map[string]interface{}{
				"channel": cfg.Channel, "event_type": eventType,
			}, err)
			continue
		}
		if created {
			go publishPendingEvent(db, logger, event.ID)
		}
	}
}

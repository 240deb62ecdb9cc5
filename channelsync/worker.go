package channelsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mmdatafocus/hotel_backend/config"
	"github.com/mmdatafocus/hotel_backend/models"
)

const workerLockTTL = 2 * time.Minute

// Worker consumes one direction of one channel integration. Prefetch is one
// message, so calls against the remote API stay serialized under its rate
// limit. At-least-once delivery is absorbed by the ledger: a redelivered
// done event acks without side effects, and the attempt counter bounds
// retries independently of how often the broker redelivers.
type Worker struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	Channel   string
	Direction string
	Clients   ClientFactory
	Locker    *redislock.Client
}

func (w *Worker) Run(ctx context.Context) error {
	sub, err := ChannelSubscription(ctx, w.Channel, w.Direction)
	if err != nil {
		return err
	}
	w.Logger.WithFields(logrus.Fields{
		"channel":   w.Channel,
		"direction": w.Direction,
	}).Info("worker started")
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		w.handle(ctx, msg)
	})
}

type msgAction int

const (
	actionProcess msgAction = iota
	actionAckNoop
	actionDeadLetter
	actionRetry
)

// triageDelivery decides what a delivery deserves before any handler work
// runs, from the ledger row alone. An exhausted row is parked whatever its
// status: a crash after the attempt counter hit the bound can strand the row
// in processing, and only the dead-letter path puts it back in front of an
// operator.
func triageDelivery(event *models.ChannelEvent) msgAction {
	if event.Status == models.EventStatusDone {
		return actionAckNoop
	}
	if event.AttemptsExhausted() {
		return actionDeadLetter
	}
	return actionProcess
}

// settleFailure decides between broker redelivery and the dead letter queue
// after a handler error.
func settleFailure(err error, event *models.ChannelEvent) msgAction {
	if IsTerminal(err) || event.AttemptsExhausted() {
		return actionDeadLetter
	}
	return actionRetry
}

func (w *Worker) handle(ctx context.Context, msg *pubsub.Message) {
	event, err := w.loadEvent(msg)
	if err != nil {
		// Unparseable or unknown message; redelivery cannot help.
		w.Logger.WithField("channel", w.Channel).Warn("dropping undecodable message: " + err.Error())
		msg.Ack()
		return
	}

	switch triageDelivery(event) {
	case actionAckNoop:
		msg.Ack()
		return
	case actionDeadLetter:
		w.parkOnDeadLetter(ctx, event, errors.New("retry attempts exhausted"))
		msg.Ack()
		return
	}

	// One event per integration at a time, across worker replicas. Losing
	// the lock just redelivers the message later.
	if w.Locker != nil {
		lock, err := w.Locker.Obtain(ctx, "chansync:"+w.Channel+":"+event.PropertyId, workerLockTTL, nil)
		if err != nil {
			if !errors.Is(err, redislock.ErrNotObtained) {
				config.LogError(w.Logger, "channelsync", "Worker.handle", "obtain lock", event.ID, err)
			}
			msg.Nack()
			return
		}
		defer lock.Release(context.Background())
	}

	if err := event.MarkProcessing(w.DB); err != nil {
		if errors.Is(err, models.ErrEventTerminal) {
			msg.Ack()
			return
		}
		msg.Nack()
		return
	}
	if _, err := event.IncrementAttempts(w.DB); err != nil {
		if errors.Is(err, models.ErrEventTerminal) {
			w.parkOnDeadLetter(ctx, event, errors.New("retry attempts exhausted"))
			msg.Ack()
			return
		}
		msg.Nack()
		return
	}

	processErr := w.process(ctx, event)
	if processErr == nil {
		if err := event.MarkDone(w.DB); err != nil {
			config.LogError(w.Logger, "channelsync", "Worker.handle", "mark done", event.ID, err)
		}
		msg.Ack()
		return
	}

	if markErr := event.MarkFailed(w.DB, processErr); markErr != nil {
		config.LogError(w.Logger, "channelsync", "Worker.handle", "mark failed", event.ID, markErr)
	}
	if settleFailure(processErr, event) == actionDeadLetter {
		w.Logger.WithFields(logrus.Fields{
			"channel":    w.Channel,
			"event_id":   event.ID,
			"event_type": event.EventType,
			"attempts":   event.Attempts,
			"terminal":   IsTerminal(processErr),
		}).Error("event moved to dead letter: " + processErr.Error())
		w.parkOnDeadLetter(ctx, event, processErr)
		msg.Ack()
		return
	}

	w.Logger.WithFields(logrus.Fields{
		"channel":  w.Channel,
		"event_id": event.ID,
		"attempts": event.Attempts,
	}).Warn("event failed, will retry: " + processErr.Error())
	msg.Nack()
}

// loadEvent resolves the ledger row, preferring the event_id attribute over
// the message body.
func (w *Worker) loadEvent(msg *pubsub.Message) (*models.ChannelEvent, error) {
	if raw, ok := msg.Attributes["event_id"]; ok {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err == nil {
			return models.GetEventByID(w.DB, uint(id))
		}
	}
	decoded, err := decodeEventMessage(msg.Data)
	if err != nil {
		return nil, err
	}
	return models.GetEventByID(w.DB, decoded.EventId)
}

// parkOnDeadLetter settles the ledger row as failed and publishes it to the
// DLQ topic. The status write matters: the operator DLQ view lists failed
// rows, and a crash mid-handler can reach here with the row still in
// processing.
func (w *Worker) parkOnDeadLetter(ctx context.Context, event *models.ChannelEvent, cause error) {
	if event.Status != models.EventStatusFailed {
		if err := event.MarkFailed(w.DB, cause); err != nil && !errors.Is(err, models.ErrEventTerminal) {
			config.LogError(w.Logger, "channelsync", "Worker.parkOnDeadLetter", "mark failed", event.ID, err)
		}
	}
	if _, err := PublishToDeadLetter(ctx, event); err != nil {
		config.LogError(w.Logger, "channelsync", "Worker.parkOnDeadLetter", "publish dlq", event.ID, err)
	}
}

func (w *Worker) process(ctx context.Context, event *models.ChannelEvent) error {
	eventType, err := ParseEventType(event.EventType)
	if err != nil {
		return Terminal(err)
	}
	if event.Direction == models.EventDirectionInbound {
		return w.processInbound(event, eventType)
	}
	return w.processOutbound(ctx, event, eventType)
}

func (w *Worker) processInbound(event *models.ChannelEvent, eventType EventType) error {
	cfg, err := models.GetChannelConfig(w.DB, event.PropertyId, w.Channel)
	if err != nil {
		return err
	}
	if cfg == nil {
		return Terminalf("no channel config for property %s channel %s", event.PropertyId, w.Channel)
	}

	switch eventType {
	case EventTypeBookingCreated, EventTypeBookingModified, EventTypeBookingCancelled:
		var payload WebhookPayload
		decoder := json.NewDecoder(bytes.NewReader(event.Payload))
		decoder.UseNumber()
		if err := decoder.Decode(&payload); err != nil {
			return Terminalf("undecodable booking payload: %v", err)
		}
		if payload.Booking == nil {
			return Terminalf("booking payload missing")
		}
		_, err := applyChannelBooking(w.DB, cfg, *payload.Booking, eventType)
		return err
	case EventTypeAvailabilityChanged, EventTypeRateChanged:
		// Channel managers own ARI; only bookings flow inbound.
		return Terminalf("event type %s is not accepted inbound", eventType)
	}
	return Terminalf("unhandled inbound event type %s", eventType)
}

func (w *Worker) processOutbound(ctx context.Context, event *models.ChannelEvent, eventType EventType) error {
	cfg, err := models.GetChannelConfig(w.DB, event.PropertyId, w.Channel)
	if err != nil {
		return err
	}
	if cfg == nil {
		return Terminalf("no channel config for property %s channel %s", event.PropertyId, w.Channel)
	}
	client, err := w.Clients(cfg)
	if err != nil {
		return err
	}

	switch eventType {
	case EventTypeBookingCreated, EventTypeBookingModified, EventTypeBookingCancelled:
		var reservation models.Reservation
		if err := json.Unmarshal(event.Payload, &reservation); err != nil {
			return Terminalf("undecodable reservation payload: %v", err)
		}
		externalRoomTypeId, err := resolveExternalRoomTypeId(w.DB, event.PropertyId, w.Channel, reservation.RoomTypeId)
		if err != nil {
			return err
		}
		booking, err := w.bookingFromReservation(&reservation, eventType)
		if err != nil {
			return err
		}
		return client.PushReservation(ctx, externalRoomTypeId, booking)
	case EventTypeAvailabilityChanged:
		var change AvailabilityChange
		if err := json.Unmarshal(event.Payload, &change); err != nil {
			return Terminalf("undecodable availability payload: %v", err)
		}
		externalRoomTypeId, err := resolveExternalRoomTypeId(w.DB, event.PropertyId, w.Channel, change.RoomTypeId)
		if err != nil {
			return err
		}
		return client.PushAvailability(ctx, externalRoomTypeId, change)
	case EventTypeRateChanged:
		var change RateChange
		if err := json.Unmarshal(event.Payload, &change); err != nil {
			return Terminalf("undecodable rate payload: %v", err)
		}
		externalRoomTypeId, err := resolveExternalRoomTypeId(w.DB, event.PropertyId, w.Channel, change.RoomTypeId)
		if err != nil {
			return err
		}
		return client.PushRates(ctx, externalRoomTypeId, change)
	}
	return Terminalf("unhandled outbound event type %s", eventType)
}

func (w *Worker) bookingFromReservation(reservation *models.Reservation, eventType EventType) (ChannelBooking, error) {
	booking := ChannelBooking{
		ID:          strconv.FormatUint(uint64(reservation.ID), 10),
		Status:      reservation.Status,
		Arrival:     reservation.CheckIn.Format(bookingDateLayout),
		Departure:   reservation.CheckOut.Format(bookingDateLayout),
		TotalAmount: json.Number(reservation.TotalAmount.String()),
		Currency:    reservation.Currency,
		Adults:      reservation.Adults,
		Children:    reservation.Children,
		Notes:       reservation.Notes,
	}
	if eventType == EventTypeBookingCancelled {
		booking.Status = models.ReservationStatusCancelled
	}
	if reservation.GuestId != 0 {
		guest, err := models.GetGuestByID(w.DB, reservation.PropertyId, reservation.GuestId)
		if err == nil && guest != nil && !guest.IsPlaceholder {
			booking.Guest = ChannelGuest{
				FirstName: guest.FirstName,
				LastName:  guest.LastName,
				Email:     guest.Email,
				Phone:     guest.Phone,
			}
		}
	}
	return booking, nil
}

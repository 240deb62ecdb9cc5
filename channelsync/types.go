package channelsync

import (
	"encoding/json"
	"fmt"
)

// EventType is the closed set of sync event kinds. Every dispatch site
// switches over all variants and treats anything else as a validation error
// (never retried), so an unhandled kind fails loud instead of silently
// falling through a default branch.
type EventType string

const (
	EventTypeBookingCreated      EventType = "booking.created"
	EventTypeBookingModified     EventType = "booking.modified"
	EventTypeBookingCancelled    EventType = "booking.cancelled"
	EventTypeAvailabilityChanged EventType = "availability.changed"
	EventTypeRateChanged         EventType = "rate.changed"
)

// AllEventTypes is used for routing setup and validation.
var AllEventTypes = []EventType{
	EventTypeBookingCreated,
	EventTypeBookingModified,
	EventTypeBookingCancelled,
	EventTypeAvailabilityChanged,
	EventTypeRateChanged,
}

func ParseEventType(s string) (EventType, error) {
	for _, t := range AllEventTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// Priority orders backlog triage: bookings carry money, availability guards
// against overbooking, rates are cosmetic by comparison.
func (t EventType) Priority() int {
	switch t {
	case EventTypeBookingCreated, EventTypeBookingModified, EventTypeBookingCancelled:
		return 10
	case EventTypeAvailabilityChanged:
		return 5
	case EventTypeRateChanged:
		return 1
	}
	return 0
}

func (t EventType) EntityType() string {
	switch t {
	case EventTypeBookingCreated, EventTypeBookingModified, EventTypeBookingCancelled:
		return "reservation"
	case EventTypeAvailabilityChanged:
		return "availability"
	case EventTypeRateChanged:
		return "rate"
	}
	return ""
}

// ChannelGuest is the guest block of a channel booking payload.
type ChannelGuest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// ChannelBooking is the channel-manager rendition of a booking, shared by
// webhook payloads and pull-sync responses. Dates are "2006-01-02".
type ChannelBooking struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	RoomTypeId  string       `json:"room_type_id"`
	Arrival     string       `json:"arrival"`
	Departure   string       `json:"departure"`
	Guest       ChannelGuest `json:"guest"`
	TotalAmount json.Number  `json:"total_amount"`
	Currency    string       `json:"currency"`
	Adults      int          `json:"adults"`
	Children    int          `json:"children"`
	Notes       string       `json:"notes"`
	UpdatedAt   string       `json:"updated_at"`
}

// WebhookPayload is the minimal envelope every supported channel manager
// sends: an event name, an optional channel-assigned event id and the
// booking it concerns.
type WebhookPayload struct {
	EventID    string          `json:"event_id"`
	Event      string          `json:"event"`
	PropertyId string          `json:"hotel_id"`
	Booking    *ChannelBooking `json:"booking"`
}

// AvailabilityChange is the outbound payload for allotment updates.
type AvailabilityChange struct {
	RoomTypeId uint   `json:"room_type_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Allotment  int    `json:"allotment"`
}

// RateChange is the outbound payload for price updates.
type RateChange struct {
	RoomTypeId uint        `json:"room_type_id"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	Rate       json.Number `json:"rate"`
	Currency   string      `json:"currency"`
}

// eventMessage is the Pub/Sub message body. Workers reload the ledger row by
// id, so the body stays a pointer rather than a copy of the payload.
type eventMessage struct {
	EventId    uint   `json:"event_id"`
	PropertyId string `json:"property_id"`
	Channel    string `json:"channel"`
}

func encodeEventMessage(m eventMessage) []byte {
	b, _ := json.Marshal(m)
	return b
}

func decodeEventMessage(raw []byte) (eventMessage, error) {
	var m eventMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return eventMessage{}, err
	}
	return m, nil
}

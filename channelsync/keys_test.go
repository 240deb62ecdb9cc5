package channelsync

import (
	"testing"
	"time"
)

func TestInboundIdempotencyKey_PrefersChannelEventId(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	key := InboundIdempotencyKey("cultbooking", "evt-789", "BK-1", EventTypeBookingCreated, at)
	if key != "cultbooking-evt-789" {
		t.Fatalf("expected cultbooking-evt-789, got %s", key)
	}

	// Redelivery of the same event id must produce the same key regardless
	// of when it arrives.
	later := InboundIdempotencyKey("cultbooking", "evt-789", "BK-1", EventTypeBookingCreated, at.Add(time.Hour))
	if later != key {
		t.Fatalf("redelivery produced a different key: %s vs %s", later, key)
	}
}

func TestInboundIdempotencyKey_FallsBackToExternalId(t *testing.T) {
	at := time.Unix(1770000000, 0)
	key := InboundIdempotencyKey("cultbooking", "", "BK-42", EventTypeBookingModified, at)
	expected := "cultbooking-BK-42-booking.modified-1770000000"
	if key != expected {
		t.Fatalf("expected %s, got %s", expected, key)
	}
}

func TestOutboundIdempotencyKey_DistinguishesRapidUpdates(t *testing.T) {
	at := time.Now()
	first := OutboundIdempotencyKey("cultbooking", "reservation", 7, "modified", at)
	second := OutboundIdempotencyKey("cultbooking", "reservation", 7, "modified", at.Add(time.Nanosecond))
	if first == second {
		t.Fatalf("two updates at different instants must not collapse: %s", first)
	}
}

// One PMS change fanning out to several channels builds every key at the
// same instant; the keys must still be distinct per channel or the second
// channel's ledger insert collapses onto the first's row and the change is
// never pushed to it.
func TestOutboundIdempotencyKey_DistinctPerChannel(t *testing.T) {
	at := time.Now()
	a := OutboundIdempotencyKey("cultbooking", "reservation", 42, "modified", at)
	b := OutboundIdempotencyKey("otherchannel", "reservation", 42, "modified", at)
	if a == b {
		t.Fatalf("keys for two channels in one fan-out are identical: %s", a)
	}
}

func TestParseEventType_RejectsUnknown(t *testing.T) {
	for _, et := range AllEventTypes {
		if _, err := ParseEventType(string(et)); err != nil {
			t.Fatalf("ParseEventType(%s) error: %v", et, err)
		}
	}
	if _, err := ParseEventType("booking.deleted"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestEventTypePriority_OrdersBookingsFirst(t *testing.T) {
	if EventTypeBookingCreated.Priority() <= EventTypeAvailabilityChanged.Priority() {
		t.Fatal("bookings must outrank availability")
	}
	if EventTypeAvailabilityChanged.Priority() <= EventTypeRateChanged.Priority() {
		t.Fatal("availability must outrank rates")
	}
}

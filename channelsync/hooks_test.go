package channelsync

import (
	"testing"

	"github.com/mmdatafocus/hotel_backend/models"
)

func syncableConfig(channel string) *models.ChannelConfig {
	return &models.ChannelConfig{
		PropertyId:       "prop-1",
		Channel:          channel,
		Status:           models.ChannelStatusConnected,
		SyncEnabled:      true,
		PushReservations: true,
		PushAvailability: true,
		PushRates:        true,
	}
}

func TestShouldPush_FeatureFlags(t *testing.T) {
	cfg := syncableConfig("cultbooking")
	cfg.PushRates = false

	if !shouldPush(cfg, models.SourcePMS, featurePushReservations) {
		t.Fatal("reservations flag on, expected push")
	}
	if shouldPush(cfg, models.SourcePMS, featurePushRates) {
		t.Fatal("rates flag off, expected no push")
	}
}

func TestShouldPush_MasterSwitchWins(t *testing.T) {
	cfg := syncableConfig("cultbooking")
	cfg.SyncEnabled = false
	if shouldPush(cfg, models.SourcePMS, featurePushReservations) {
		t.Fatal("master switch off must suppress every push")
	}
}

func TestShouldPush_DisconnectedChannel(t *testing.T) {
	cfg := syncableConfig("cultbooking")
	cfg.Status = models.ChannelStatusDisconnected
	if shouldPush(cfg, models.SourcePMS, featurePushReservations) {
		t.Fatal("disconnected channel must not receive pushes")
	}
}

func TestShouldPush_NeverEchoesBackToOrigin(t *testing.T) {
	cfg := syncableConfig("cultbooking")
	if shouldPush(cfg, "cultbooking", featurePushReservations) {
		t.Fatal("a booking pulled from cultbooking must not be pushed back to it")
	}
	if !shouldPush(cfg, "otherchannel", featurePushReservations) {
		t.Fatal("bookings from other channels should still fan out")
	}
}

func TestShouldPush_UnknownFeature(t *testing.T) {
	if shouldPush(syncableConfig("cultbooking"), models.SourcePMS, "push_everything") {
		t.Fatal("unknown feature must default to no push")
	}
}

func TestReservationEventType(t *testing.T) {
	cases := map[string]EventType{
		"created":   EventTypeBookingCreated,
		"modified":  EventTypeBookingModified,
		"cancelled": EventTypeBookingCancelled,
	}
	for action, expected := range cases {
		got, ok := reservationEventType(action)
		if !ok || got != expected {
			t.Fatalf("reservationEventType(%s) = %s, %v", action, got, ok)
		}
	}
	if _, ok := reservationEventType("deleted"); ok {
		t.Fatal("unknown action must not map to an event type")
	}
}

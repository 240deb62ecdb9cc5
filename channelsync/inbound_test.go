package channelsync

import (
	"encoding/json"
	"testing"

	"github.com/mmdatafocus/hotel_backend/models"
)

func TestNormalizeBookingStatus(t *testing.T) {
	cases := map[string]string{
		"confirmed":  models.ReservationStatusConfirmed,
		"Cancelled":  models.ReservationStatusCancelled,
		"canceled":   models.ReservationStatusCancelled,
		"no_show":    models.ReservationStatusNoShow,
		"NOSHOW":     models.ReservationStatusNoShow,
		"new":        models.ReservationStatusConfirmed,
		"":           models.ReservationStatusConfirmed,
		"  booked  ": models.ReservationStatusConfirmed,
	}
	for in, expected := range cases {
		if got := normalizeBookingStatus(in); got != expected {
			t.Fatalf("normalizeBookingStatus(%q) = %s, expected %s", in, got, expected)
		}
	}
}

func TestDecimalFromNumber(t *testing.T) {
	cases := map[string]string{
		"250.00": "250",
		"0.5":    "0.5",
		"":       "0",
		"n/a":    "0",
	}
	for in, expected := range cases {
		if got := decimalFromNumber(json.Number(in)); got.String() != expected {
			t.Fatalf("decimalFromNumber(%q) = %s, expected %s", in, got.String(), expected)
		}
	}
}

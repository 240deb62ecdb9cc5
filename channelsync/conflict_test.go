package channelsync

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmdatafocus/hotel_backend/models"
)

func reservationFixture() *models.Reservation {
	return &models.Reservation{
		ID:          12,
		PropertyId:  "prop-1",
		CheckIn:     time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		CheckOut:    time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC),
		Status:      models.ReservationStatusConfirmed,
		TotalAmount: decimal.RequireFromString("250.00"),
		Currency:    "USD",
	}
}

func TestCompareBooking_NoConflictWhenEqual(t *testing.T) {
	booking := ChannelBooking{
		ID:          "BK-12",
		Status:      "confirmed",
		Arrival:     "2026-04-10",
		Departure:   "2026-04-12",
		TotalAmount: "250.0",
	}
	conflicts := CompareBooking(reservationFixture(), booking)
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %+v", conflicts)
	}
}

func TestCompareBooking_DetectsDivergence(t *testing.T) {
	booking := ChannelBooking{
		ID:          "BK-12",
		Status:      "cancelled",
		Arrival:     "2026-04-11",
		Departure:   "2026-04-12",
		TotalAmount: "300.00",
	}
	conflicts := CompareBooking(reservationFixture(), booking)

	fields := make(map[string]FieldConflict, len(conflicts))
	for _, fc := range conflicts {
		fields[fc.Field] = fc
	}
	if len(fields) != 3 {
		t.Fatalf("expected check_in, status, total_amount conflicts, got %+v", conflicts)
	}
	if fc := fields["check_in"]; fc.PmsValue != "2026-04-10" || fc.ChannelValue != "2026-04-11" {
		t.Fatalf("check_in conflict wrong: %+v", fc)
	}
	if fc := fields["status"]; fc.ChannelValue != models.ReservationStatusCancelled {
		t.Fatalf("status conflict wrong: %+v", fc)
	}
	if fc := fields["total_amount"]; fc.PmsValue != "250" || fc.ChannelValue != "300" {
		t.Fatalf("total_amount conflict wrong: %+v", fc)
	}
}

func TestCompareBooking_CheckedInIsNotAConflict(t *testing.T) {
	reservation := reservationFixture()
	reservation.Status = models.ReservationStatusCheckedIn
	booking := ChannelBooking{
		Status:    "confirmed",
		Arrival:   "2026-04-10",
		Departure: "2026-04-12",
	}
	for _, fc := range CompareBooking(reservation, booking) {
		if fc.Field == "status" {
			t.Fatalf("checked_in vs confirmed reported as conflict: %+v", fc)
		}
	}
}

func TestCompareBooking_AmountComparesNumerically(t *testing.T) {
	booking := ChannelBooking{
		Status:      "confirmed",
		Arrival:     "2026-04-10",
		Departure:   "2026-04-12",
		TotalAmount: "250",
	}
	for _, fc := range CompareBooking(reservationFixture(), booking) {
		if fc.Field == "total_amount" {
			t.Fatalf("250 vs 250.00 reported as conflict: %+v", fc)
		}
	}
}

func TestCompareBooking_MissingAmountIsSkipped(t *testing.T) {
	booking := ChannelBooking{
		Status:    "confirmed",
		Arrival:   "2026-04-10",
		Departure: "2026-04-12",
	}
	if conflicts := CompareBooking(reservationFixture(), booking); len(conflicts) != 0 {
		t.Fatalf("absent channel amount must not conflict, got %+v", conflicts)
	}
}

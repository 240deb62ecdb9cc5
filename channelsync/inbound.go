package channelsync

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mmdatafocus/hotel_backend/models"
)

const bookingDateLayout = "2006-01-02"

type applyResult string

const (
	applyCreated applyResult = "created"
	applyUpdated applyResult = "updated"
	applySkipped applyResult = "skipped"
)

// applyChannelBooking upserts one channel booking into the PMS. Shared by
// the inbound worker (webhook-driven) and the pull-sync scheduler, so both
// paths resolve mappings and match guests identically.
func applyChannelBooking(db *gorm.DB, cfg *models.ChannelConfig, booking ChannelBooking, eventType EventType) (applyResult, error) {
	externalId := strings.TrimSpace(booking.ID)
	if externalId == "" {
		return applySkipped, Terminalf("booking id missing from channel payload")
	}

	existing, err := models.FindReservationByExternalRef(db, cfg.PropertyId, cfg.Channel, externalId)
	if err != nil {
		return applySkipped, err
	}

	cancelled := eventType == EventTypeBookingCancelled || normalizeBookingStatus(booking.Status) == models.ReservationStatusCancelled
	if cancelled {
		if existing == nil {
			// A cancellation for a booking we never created needs no row.
			return applySkipped, nil
		}
		err := existing.UpdateReservation(db, map[string]interface{}{
			"status": models.ReservationStatusCancelled,
		})
		if err != nil {
			return applySkipped, err
		}
		return applyUpdated, nil
	}

	checkIn, err := time.Parse(bookingDateLayout, booking.Arrival)
	if err != nil {
		return applySkipped, Terminalf("invalid arrival date %q: %v", booking.Arrival, err)
	}
	checkOut, err := time.Parse(bookingDateLayout, booking.Departure)
	if err != nil {
		return applySkipped, Terminalf("invalid departure date %q: %v", booking.Departure, err)
	}
	if !checkOut.After(checkIn) {
		return applySkipped, Terminalf("departure %s is not after arrival %s", booking.Departure, booking.Arrival)
	}

	roomTypeId, err := resolveInternalRoomTypeId(db, cfg.PropertyId, cfg.Channel, strings.TrimSpace(booking.RoomTypeId))
	if err != nil {
		return applySkipped, err
	}

	amount := decimalFromNumber(booking.TotalAmount)

	if existing != nil {
		err := existing.UpdateReservation(db, map[string]interface{}{
			"room_type_id": roomTypeId,
			"check_in":     checkIn,
			"check_out":    checkOut,
			"status":       normalizeBookingStatus(booking.Status),
			"total_amount": amount,
			"currency":     strings.ToUpper(strings.TrimSpace(booking.Currency)),
			"adults":       booking.Adults,
			"children":     booking.Children,
		})
		if err != nil {
			return applySkipped, err
		}
		return applyUpdated, nil
	}

	guest, err := MatchOrCreateGuest(db, cfg.PropertyId, booking.Guest)
	if err != nil {
		return applySkipped, err
	}

	reservation := models.Reservation{
		PropertyId:  cfg.PropertyId,
		GuestId:     guest.ID,
		RoomTypeId:  roomTypeId,
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		Status:      normalizeBookingStatus(booking.Status),
		TotalAmount: amount,
		Currency:    strings.ToUpper(strings.TrimSpace(booking.Currency)),
		Adults:      booking.Adults,
		Children:    booking.Children,
		Notes:       booking.Notes,
		Source:      cfg.Channel,
		ExternalRef: externalId,
	}
	if err := models.CreateReservation(db, &reservation); err != nil {
		return applySkipped, err
	}
	if err := ensureReservationMapping(db, cfg.PropertyId, cfg.Channel, reservation.ID, externalId); err != nil {
		return applySkipped, err
	}
	return applyCreated, nil
}

func normalizeBookingStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "cancelled", "canceled":
		return models.ReservationStatusCancelled
	case "no_show", "noshow":
		return models.ReservationStatusNoShow
	default:
		return models.ReservationStatusConfirmed
	}
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}

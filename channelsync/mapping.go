package channelsync

import (
	"strconv"

	"github.com/mmdatafocus/hotel_backend/models"
	"gorm.io/gorm"
)

// Mapping resolution. A missing mapping is always a terminal MappingError:
// the event must be skipped with a descriptive message, never guessed.

func resolveInternalRoomTypeId(db *gorm.DB, propertyId, channel, externalId string) (uint, error) {
	mapping, err := models.FindMappingByExternalId(db, propertyId, channel, models.MappingTypeRoomType, externalId)
	if err != nil {
		return 0, err
	}
	if mapping == nil {
		return 0, Terminal(&MappingError{MappingType: models.MappingTypeRoomType, Channel: channel, Id: externalId, External: true})
	}
	id, err := strconv.ParseUint(mapping.InternalId, 10, 32)
	if err != nil {
		return 0, Terminalf("mapping %d has non-numeric internal id %q", mapping.ID, mapping.InternalId)
	}
	return uint(id), nil
}

func resolveExternalRoomTypeId(db *gorm.DB, propertyId, channel string, roomTypeId uint) (string, error) {
	internalId := strconv.FormatUint(uint64(roomTypeId), 10)
	mapping, err := models.FindMappingByInternalId(db, propertyId, channel, models.MappingTypeRoomType, internalId)
	if err != nil {
		return "", err
	}
	if mapping == nil {
		return "", Terminal(&MappingError{MappingType: models.MappingTypeRoomType, Channel: channel, Id: internalId})
	}
	return mapping.ExternalId, nil
}

// ensureReservationMapping links a channel booking id to the PMS reservation
// it produced. An existing link for either side is reused as-is.
func ensureReservationMapping(db *gorm.DB, propertyId, channel string, reservationId uint, externalId string) error {
	existing, err := models.FindMappingByExternalId(db, propertyId, channel, models.MappingTypeReservation, externalId)
	if err != nil {
		return err
	}
	if existing != nil {
		return models.TouchMapping(db, existing.ID)
	}
	_, err = models.CreateMapping(db, propertyId, channel, models.MappingTypeReservation,
		strconv.FormatUint(uint64(reservationId), 10), externalId)
	if err == models.ErrMappingConflict {
		// The internal side is already linked elsewhere; keep that link.
		return nil
	}
	return err
}

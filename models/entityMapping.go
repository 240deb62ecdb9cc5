package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	MappingTypeRoom        = "room"
	MappingTypeRoomType    = "room_type"
	MappingTypeReservation = "reservation"
)

// ErrMappingConflict means an active mapping already exists for the internal
// or external id. Broken links must be deactivated before remapping.
var ErrMappingConflict = errors.New("an active mapping already exists for this entity")

// EntityMapping links a PMS entity to its channel-manager identifier.
// active_flag is 1 while the mapping is live and NULL after deactivation, so
// the two unique indexes admit at most one active mapping per internal id and
// per external id while keeping the full history (deactivated, never deleted).
type EntityMapping struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	PropertyId    string     `gorm:"size:64;not null;uniqueIndex:idx_mapping_internal,priority:1;uniqueIndex:idx_mapping_external,priority:1" json:"property_id"`
	Channel       string     `gorm:"size:50;not null;uniqueIndex:idx_mapping_internal,priority:2;uniqueIndex:idx_mapping_external,priority:2" json:"channel"`
	MappingType   string     `gorm:"size:50;not null;uniqueIndex:idx_mapping_internal,priority:3;uniqueIndex:idx_mapping_external,priority:3" json:"mapping_type"`
	InternalId    string     `gorm:"size:128;not null;uniqueIndex:idx_mapping_internal,priority:4" json:"internal_id"`
	ExternalId    string     `gorm:"size:128;not null;uniqueIndex:idx_mapping_external,priority:4" json:"external_id"`
	ActiveFlag    *bool      `gorm:"uniqueIndex:idx_mapping_internal,priority:5;uniqueIndex:idx_mapping_external,priority:5" json:"-"`
	LastSeenAt    *time.Time `json:"last_seen_at"`
	DeactivatedAt *time.Time `json:"deactivated_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *EntityMapping) IsActive() bool {
	return m.ActiveFlag != nil && *m.ActiveFlag
}

func CreateMapping(db *gorm.DB, propertyId, channel, mappingType, internalId, externalId string) (*EntityMapping, error) {
	active := true
	mapping := EntityMapping{
		PropertyId:  propertyId,
		Channel:     channel,
		MappingType: mappingType,
		InternalId:  internalId,
		ExternalId:  externalId,
		ActiveFlag:  &active,
	}
	if err := db.Create(&mapping).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return nil, ErrMappingConflict
		}
		return nil, err
	}
	return &mapping, nil
}

// FindMappingByExternalId returns (nil, nil) when no active mapping exists.
func FindMappingByExternalId(db *gorm.DB, propertyId, channel, mappingType, externalId string) (*EntityMapping, error) {
	var mapping EntityMapping
	err := db.Where("property_id = ? AND channel = ? AND mapping_type = ? AND external_id = ? AND active_flag = 1",
		propertyId, channel, mappingType, externalId).
		Take(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

// FindMappingByInternalId returns (nil, nil) when no active mapping exists.
func FindMappingByInternalId(db *gorm.DB, propertyId, channel, mappingType, internalId string) (*EntityMapping, error) {
	var mapping EntityMapping
	err := db.Where("property_id = ? AND channel = ? AND mapping_type = ? AND internal_id = ? AND active_flag = 1",
		propertyId, channel, mappingType, internalId).
		Take(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mapping, nil
}

// DeactivateMapping retires a broken link. The row stays for audit; a new
// mapping for the same ids can then be created.
func (m *EntityMapping) DeactivateMapping(db *gorm.DB) error {
	now := time.Now().UTC()
	err := db.Model(&EntityMapping{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"active_flag":    nil,
			"deactivated_at": &now,
		}).Error
	if err != nil {
		return err
	}
	m.ActiveFlag = nil
	m.DeactivatedAt = &now
	return nil
}

func GetMappingByID(db *gorm.DB, propertyId string, id uint) (*EntityMapping, error) {
	var mapping EntityMapping
	if err := db.Where("id = ? AND property_id = ?", id, propertyId).Take(&mapping).Error; err != nil {
		return nil, err
	}
	return &mapping, nil
}

func ListMappings(db *gorm.DB, propertyId, channel, mappingType string, activeOnly bool) ([]EntityMapping, error) {
	var mappings []EntityMapping
	q := db.Where("property_id = ?", propertyId)
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	if mappingType != "" {
		q = q.Where("mapping_type = ?", mappingType)
	}
	if activeOnly {
		q = q.Where("active_flag = 1")
	}
	err := q.Order("id ASC").Find(&mappings).Error
	return mappings, err
}

// TouchMapping refreshes last_seen_at when the external side confirms the
// entity still exists.
func TouchMapping(db *gorm.DB, id uint) error {
	now := time.Now().UTC()
	return db.Model(&EntityMapping{}).
		Where("id = ?", id).
		Update("last_seen_at", &now).Error
}

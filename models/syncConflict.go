package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	ConflictStatusOpen     = "open"
	ConflictStatusResolved = "resolved"
	ConflictStatusIgnored  = "ignored"
)

// SyncConflict records a detected divergence between a PMS reservation and
// the channel manager's view of the same booking. Conflicts are reported for
// operator triage, never auto-corrected: a blind overwrite could destroy a
// legitimate local edit made after the last pull.
type SyncConflict struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	PropertyId    string     `gorm:"size:64;not null;index:idx_conflict_triage,priority:1" json:"property_id"`
	Channel       string     `gorm:"size:50;not null;index:idx_conflict_triage,priority:2" json:"channel"`
	EntityType    string     `gorm:"size:50;not null" json:"entity_type"`
	ExternalId    string     `gorm:"size:128;not null;index" json:"external_id"`
	InternalId    string     `gorm:"size:128" json:"internal_id"`
	Field         string     `gorm:"size:50;not null" json:"field"`
	PmsValue      string     `gorm:"size:255" json:"pms_value"`
	ChannelValue  string     `gorm:"size:255" json:"channel_value"`
	Description   string     `gorm:"type:text" json:"description"`
	Status        string     `gorm:"size:20;not null;default:'open';index:idx_conflict_triage,priority:3" json:"status"`
	DetectedRunId uint       `gorm:"index" json:"detected_run_id"`
	ResolvedAt    *time.Time `json:"resolved_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecordConflict creates an open conflict unless one is already open for the
// same entity and field, so repeated reconciliation runs don't pile up
// duplicates while the operator hasn't acted yet.
func RecordConflict(db *gorm.DB, conflict SyncConflict) (*SyncConflict, bool, error) {
	var existing SyncConflict
	err := db.Where("property_id = ? AND channel = ? AND entity_type = ? AND external_id = ? AND field = ? AND status = ?",
		conflict.PropertyId, conflict.Channel, conflict.EntityType, conflict.ExternalId, conflict.Field, ConflictStatusOpen).
		Take(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	conflict.Status = ConflictStatusOpen
	if err := db.Create(&conflict).Error; err != nil {
		return nil, false, err
	}
	return &conflict, true, nil
}

func (c *SyncConflict) SetStatus(db *gorm.DB, status string) error {
	if status != ConflictStatusResolved && status != ConflictStatusIgnored {
		return errors.New("conflict status must be resolved or ignored")
	}
	now := time.Now().UTC()
	err := db.Model(&SyncConflict{}).
		Where("id = ? AND status = ?", c.ID, ConflictStatusOpen).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": &now,
		}).Error
	if err != nil {
		return err
	}
	c.Status = status
	c.ResolvedAt = &now
	return nil
}

func GetConflictByID(db *gorm.DB, propertyId string, id uint) (*SyncConflict, error) {
	var conflict SyncConflict
	if err := db.Where("id = ? AND property_id = ?", id, propertyId).Take(&conflict).Error; err != nil {
		return nil, err
	}
	return &conflict, nil
}

func ListConflicts(db *gorm.DB, propertyId, channel, status string, limit int) ([]SyncConflict, error) {
	if limit <= 0 {
		limit = 100
	}
	var conflicts []SyncConflict
	q := db.Where("property_id = ?", propertyId)
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("id DESC").Limit(limit).Find(&conflicts).Error
	return conflicts, err
}

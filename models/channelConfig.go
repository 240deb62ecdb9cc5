package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	ChannelStatusConnected    = "connected"
	ChannelStatusDisconnected = "disconnected"
)

// ChannelConfig is the per-property, per-channel integration configuration.
// Credentials are stored encrypted (AES-GCM via utils); the unique index
// keeps one config per (property, channel) across hosts.
type ChannelConfig struct {
	ID                     uint       `gorm:"primary_key" json:"id"`
	PropertyId             string     `gorm:"size:64;not null;uniqueIndex:idx_channel_config,priority:1" json:"property_id"`
	Channel                string     `gorm:"size:50;not null;uniqueIndex:idx_channel_config,priority:2" json:"channel"`
	Status                 string     `gorm:"size:20;not null" json:"status"`
	APIKeyEncrypted        string     `gorm:"type:text" json:"-"`
	WebhookSecretEncrypted string     `gorm:"type:text" json:"-"`
	SyncEnabled            bool       `gorm:"not null;default:false" json:"sync_enabled"`
	PushReservations       bool       `gorm:"not null;default:true" json:"push_reservations"`
	PushAvailability       bool       `gorm:"not null;default:true" json:"push_availability"`
	PushRates              bool       `gorm:"not null;default:true" json:"push_rates"`
	PullReservations       bool       `gorm:"not null;default:true" json:"pull_reservations"`
	LastSuccessfulSync     *time.Time `json:"last_successful_sync"`
	SettingsJSON           []byte     `gorm:"type:json" json:"settings"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetChannelConfig returns (nil, nil) when the property has no config for
// the channel.
func GetChannelConfig(db *gorm.DB, propertyId, channel string) (*ChannelConfig, error) {
	var cfg ChannelConfig
	err := db.Where("property_id = ? AND channel = ?", propertyId, channel).Take(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func ListChannelConfigs(db *gorm.DB, propertyId string) ([]ChannelConfig, error) {
	var configs []ChannelConfig
	err := db.Where("property_id = ?", propertyId).Order("channel ASC").Find(&configs).Error
	return configs, err
}

func SaveChannelConfig(db *gorm.DB, cfg *ChannelConfig) error {
	return db.Save(cfg).Error
}

// ListSyncableConfigs returns every connected config with the master flag on;
// workers and the scheduler iterate these at startup and per tick.
func ListSyncableConfigs(db *gorm.DB) ([]ChannelConfig, error) {
	var configs []ChannelConfig
	err := db.Where("status = ? AND sync_enabled = 1", ChannelStatusConnected).Find(&configs).Error
	return configs, err
}

func (c *ChannelConfig) UpdateLastSuccessfulSync(db *gorm.DB, at time.Time) error {
	return db.Model(&ChannelConfig{}).
		Where("id = ?", c.ID).
		Update("last_successful_sync", &at).Error
}

func (c *ChannelConfig) Disconnect(db *gorm.DB) error {
	return db.Model(&ChannelConfig{}).
		Where("id = ?", c.ID).
		Updates(map[string]interface{}{
			"status":       ChannelStatusDisconnected,
			"sync_enabled": false,
		}).Error
}

package models

import (
	"log"

	"github.com/mmdatafocus/hotel_backend/config"
)

// MigrateTable runs AutoMigrate for every table the sync service owns.
// Gate with SKIP_MIGRATIONS=true in environments where the schema is managed
// out of band.
func MigrateTable() {
	db := config.GetDB()
	if db == nil {
		log.Printf("migrate skipped: db not connected")
		return
	}
	err := db.AutoMigrate(
		&Property{},
		&RoomType{},
		&Room{},
		&Guest{},
		&Reservation{},
		&ChannelConfig{},
		&ChannelEvent{},
		&SyncState{},
		&EntityMapping{},
		&SyncConflict{},
	)
	if err != nil {
		log.Printf("auto-migrate failed: %v", err)
	}
}

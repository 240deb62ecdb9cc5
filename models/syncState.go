package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SyncTypePullReservations = "pull_reservations"
	SyncTypeReconciliation   = "reconciliation"
)

const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredSystem = "system"
)

// SyncState records one scheduler run per row. The running_flag column is 1
// while the run is in flight and NULL otherwise; since MySQL unique indexes
// ignore NULLs, the composite unique index admits at most one running row per
// (property, channel, sync_type) — the row doubles as a distributed lock.
type SyncState struct {
	ID              uint       `gorm:"primary_key" json:"id"`
	PropertyId      string     `gorm:"size:64;not null;uniqueIndex:idx_sync_running,priority:1" json:"property_id"`
	Channel         string     `gorm:"size:50;not null;uniqueIndex:idx_sync_running,priority:2" json:"channel"`
	SyncType        string     `gorm:"size:50;not null;uniqueIndex:idx_sync_running,priority:3" json:"sync_type"`
	Status          string     `gorm:"size:20;index;not null" json:"status"`
	RunningFlag     *bool      `gorm:"uniqueIndex:idx_sync_running,priority:4" json:"-"`
	TriggeredBy     string     `gorm:"size:20" json:"triggered_by"`
	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	RecordsPulled   int        `json:"records_pulled"`
	RecordsUpserted int        `json:"records_upserted"`
	RecordsSkipped  int        `json:"records_skipped"`
	RetryCount      int        `gorm:"not null;default:0" json:"retry_count"`
	LastError       *string    `gorm:"type:text" json:"last_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// AcquireSyncLock inserts a running row for the sync type. A duplicate-key
// error means another process holds the lock; that is contention, not an
// error, so acquired=false with a nil error.
func AcquireSyncLock(db *gorm.DB, propertyId, channel, syncType, triggeredBy string, retryCount int) (*SyncState, bool, error) {
	running := true
	state := SyncState{
		PropertyId:  propertyId,
		Channel:     channel,
		SyncType:    syncType,
		Status:      SyncStatusRunning,
		RunningFlag: &running,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now().UTC(),
		RetryCount:  retryCount,
	}
	if err := db.Create(&state).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &state, true, nil
}

// ReclaimStaleSyncLocks force-fails running rows older than the lock timeout
// so a crashed run cannot wedge the scheduler. Returns how many were
// reclaimed.
func ReclaimStaleSyncLocks(db *gorm.DB, lockTimeout time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-lockTimeout)
	msg := "stale lock released"
	res := db.Model(&SyncState{}).
		Where("status = ? AND started_at < ?", SyncStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":       SyncStatusFailed,
			"running_flag": nil,
			"completed_at": &now,
			"last_error":   &msg,
		})
	return res.RowsAffected, res.Error
}

type SyncCounters struct {
	Pulled   int
	Upserted int
	Skipped  int
}

func (s *SyncState) Complete(db *gorm.DB, counters SyncCounters) error {
	now := time.Now().UTC()
	return db.Model(&SyncState{}).
		Where("id = ?", s.ID).
		Updates(map[string]interface{}{
			"status":           SyncStatusCompleted,
			"running_flag":     nil,
			"completed_at":     &now,
			"records_pulled":   counters.Pulled,
			"records_upserted": counters.Upserted,
			"records_skipped":  counters.Skipped,
		}).Error
}

func (s *SyncState) Fail(db *gorm.DB, cause error) error {
	now := time.Now().UTC()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return db.Model(&SyncState{}).
		Where("id = ?", s.ID).
		Updates(map[string]interface{}{
			"status":       SyncStatusFailed,
			"running_flag": nil,
			"completed_at": &now,
			"last_error":   &msg,
		}).Error
}

func ListSyncRuns(db *gorm.DB, propertyId, channel string, limit int) ([]SyncState, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []SyncState
	q := db.Where("property_id = ?", propertyId)
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	err := q.Order("id DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

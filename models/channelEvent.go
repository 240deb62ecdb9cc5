package models

import (
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const (
	EventDirectionInbound  = "inbound"
	EventDirectionOutbound = "outbound"
)

const (
	EventStatusReceived   = "received"
	EventStatusProcessing = "processing"
	EventStatusDone       = "done"
	EventStatusFailed     = "failed"
)

// Outbox publish lifecycle, independent from the processing status above.
// The row is written in the same transaction as the primary mutation; the
// dispatcher moves it PENDING -> SENT (or FAILED -> DEAD).
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

const DefaultMaxAttempts = 3

// ErrEventTerminal is returned when a transition is attempted on an event
// that already reached done, or failed with its attempts exhausted.
var ErrEventTerminal = errors.New("channel event is in a terminal state")

// ChannelEvent is the sync ledger: one row per logical sync event, keyed by
// an idempotency key that is unique regardless of how many times the event
// is delivered. Rows are append-only for audit; only the worker processing
// an event mutates its status.
type ChannelEvent struct {
	ID               uint       `gorm:"primary_key" json:"id"`
	PropertyId       string     `gorm:"size:64;index;not null" json:"property_id"`
	Direction        string     `gorm:"size:10;not null" json:"direction"`
	Source           string     `gorm:"size:50;not null" json:"source"`
	EventType        string     `gorm:"size:50;index;not null" json:"event_type"`
	EntityType       string     `gorm:"size:50;not null" json:"entity_type"`
	EntityExternalId string     `gorm:"size:128;index" json:"entity_external_id"`
	EntityInternalId string     `gorm:"size:128" json:"entity_internal_id"`
	IdempotencyKey   string     `gorm:"size:191;uniqueIndex;not null" json:"idempotency_key"`
	Payload          []byte     `gorm:"type:blob" json:"payload"`
	Status           string     `gorm:"size:20;index;not null;default:'received'" json:"status"`
	Attempts         int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts      int        `gorm:"not null;default:3" json:"max_attempts"`
	LastError        *string    `gorm:"type:text" json:"last_error"`
	Priority         int        `gorm:"not null;default:0" json:"priority"`
	ProcessedAt      *time.Time `json:"processed_at"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`

	// Outbox metadata (publish happens after commit via the dispatcher).
	PublishStatus    string     `gorm:"size:20;not null;default:'PENDING';index:idx_event_outbox,priority:1" json:"publish_status"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index:idx_event_outbox,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishedAt      *time.Time `json:"published_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewChannelEvent struct {
	PropertyId       string
	Direction        string
	Source           string
	EventType        string
	EntityType       string
	EntityExternalId string
	EntityInternalId string
	IdempotencyKey   string
	Payload          []byte
	Priority         int
	MaxAttempts      int
	CorrelationId    string
}

func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// RecordEvent inserts a ledger row for the idempotency key. If a row with the
// same key already exists the existing row is returned and created=false;
// this is the sole dedup mechanism for webhook redelivery and queue
// at-least-once redelivery.
func RecordEvent(db *gorm.DB, input NewChannelEvent) (*ChannelEvent, bool, error) {
	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	event := ChannelEvent{
		PropertyId:       input.PropertyId,
		Direction:        input.Direction,
		Source:           input.Source,
		EventType:        input.EventType,
		EntityType:       input.EntityType,
		EntityExternalId: input.EntityExternalId,
		EntityInternalId: input.EntityInternalId,
		IdempotencyKey:   input.IdempotencyKey,
		Payload:          input.Payload,
		Status:           EventStatusReceived,
		MaxAttempts:      maxAttempts,
		Priority:         input.Priority,
		PublishStatus:    OutboxPublishStatusPending,
		CorrelationId:    input.CorrelationId,
	}
	err := db.Create(&event).Error
	if err == nil {
		return &event, true, nil
	}
	if !IsDuplicateKeyErr(err) {
		return nil, false, err
	}

	existing, ferr := GetEventByIdempotencyKey(db, input.IdempotencyKey)
	if ferr != nil {
		return nil, false, ferr
	}
	return existing, false, nil
}

func GetEventByID(db *gorm.DB, id uint) (*ChannelEvent, error) {
	var event ChannelEvent
	if err := db.Where("id = ?", id).Take(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func GetEventByIdempotencyKey(db *gorm.DB, key string) (*ChannelEvent, error) {
	var event ChannelEvent
	if err := db.Where("idempotency_key = ?", key).Take(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkProcessing moves received -> processing, or failed -> processing on
// redelivery while the retry budget is not exhausted. Done rows never move.
func (e *ChannelEvent) MarkProcessing(db *gorm.DB) error {
	res := db.Model(&ChannelEvent{}).
		Where("id = ? AND (status IN ? OR (status = ? AND attempts < max_attempts))",
			e.ID, []string{EventStatusReceived, EventStatusProcessing}, EventStatusFailed).
		Update("status", EventStatusProcessing)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEventTerminal
	}
	e.Status = EventStatusProcessing
	return nil
}

func (e *ChannelEvent) MarkDone(db *gorm.DB) error {
	now := time.Now().UTC()
	res := db.Model(&ChannelEvent{}).
		Where("id = ? AND status = ?", e.ID, EventStatusProcessing).
		Updates(map[string]interface{}{
			"status":       EventStatusDone,
			"processed_at": &now,
			"last_error":   nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEventTerminal
	}
	e.Status = EventStatusDone
	e.ProcessedAt = &now
	return nil
}

func (e *ChannelEvent) MarkFailed(db *gorm.DB, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res := db.Model(&ChannelEvent{}).
		Where("id = ? AND status <> ?", e.ID, EventStatusDone).
		Updates(map[string]interface{}{
			"status":     EventStatusFailed,
			"last_error": &msg,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEventTerminal
	}
	e.Status = EventStatusFailed
	e.LastError = &msg
	return nil
}

// IncrementAttempts bumps the logical attempt counter and returns the new
// value. Ledger attempts count real handler executions, not broker
// deliveries, so the retry bound holds even under aggressive redelivery.
func (e *ChannelEvent) IncrementAttempts(db *gorm.DB) (int, error) {
	res := db.Model(&ChannelEvent{}).
		Where("id = ? AND attempts < max_attempts", e.ID).
		Update("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return e.Attempts, res.Error
	}
	if res.RowsAffected == 0 {
		return e.Attempts, ErrEventTerminal
	}
	e.Attempts++
	return e.Attempts, nil
}

// AttemptsExhausted reports DLQ eligibility.
func (e *ChannelEvent) AttemptsExhausted() bool {
	return e.Attempts >= e.MaxAttempts
}

// ResetForReplay re-arms a failed event for manual replay from the DLQ view:
// attempts return to zero and the outbox republishes it.
func (e *ChannelEvent) ResetForReplay(db *gorm.DB) error {
	res := db.Model(&ChannelEvent{}).
		Where("id = ? AND status = ?", e.ID, EventStatusFailed).
		Updates(map[string]interface{}{
			"status":             EventStatusReceived,
			"attempts":           0,
			"last_error":         nil,
			"publish_status":     OutboxPublishStatusPending,
			"publish_attempts":   0,
			"next_attempt_at":    nil,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEventTerminal
	}
	e.Status = EventStatusReceived
	e.Attempts = 0
	return nil
}

// ListFailedEvents is the operator-facing DLQ view, highest priority first.
func ListFailedEvents(db *gorm.DB, propertyId string, channel string, limit int) ([]ChannelEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []ChannelEvent
	q := db.Where("property_id = ? AND status = ?", propertyId, EventStatusFailed)
	if channel != "" {
		q = q.Where("source = ?", channel)
	}
	err := q.Order("priority DESC, id ASC").Limit(limit).Find(&events).Error
	return events, err
}

package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Lean PMS collaborator models. Full CRUD for hotel resources lives in the
// PMS service; the sync layer only needs the fields it reads and writes.

const (
	LifecycleStateActive   = "active"
	LifecycleStateArchived = "archived"
)

const (
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusCancelled = "cancelled"
	ReservationStatusCheckedIn = "checked_in"
	ReservationStatusNoShow    = "no_show"
)

// SourcePMS marks entities created locally rather than pulled from a channel.
const SourcePMS = "pms"

// Active scopes a query to live rows. One lifecycle_state column replaces
// per-table nullable deleted_at soft deletes.
func Active(db *gorm.DB) *gorm.DB {
	return db.Where("lifecycle_state = ?", LifecycleStateActive)
}

type Property struct {
	ID        string    `gorm:"primary_key;size:64" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Timezone  string    `gorm:"size:64" json:"timezone"`
	Currency  string    `gorm:"size:3" json:"currency"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type RoomType struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	PropertyId     string    `gorm:"size:64;index;not null" json:"property_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	LifecycleState string    `gorm:"size:20;not null;default:'active';index" json:"lifecycle_state"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Room struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	PropertyId     string    `gorm:"size:64;index;not null" json:"property_id"`
	RoomTypeId     uint      `gorm:"index;not null" json:"room_type_id"`
	Number         string    `gorm:"size:20;not null" json:"number"`
	LifecycleState string    `gorm:"size:20;not null;default:'active';index" json:"lifecycle_state"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Guest struct {
	ID             uint      `gorm:"primary_key" json:"id"`
	PropertyId     string    `gorm:"size:64;index;not null" json:"property_id"`
	FirstName      string    `gorm:"size:100" json:"first_name"`
	LastName       string    `gorm:"size:100" json:"last_name"`
	Email          string    `gorm:"size:255;index" json:"email"`
	Phone          string    `gorm:"size:32;index" json:"phone"`
	IsPlaceholder  bool      `gorm:"not null;default:false" json:"is_placeholder"`
	LifecycleState string    `gorm:"size:20;not null;default:'active';index" json:"lifecycle_state"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Reservation struct {
	ID          uint            `gorm:"primary_key" json:"id"`
	PropertyId  string          `gorm:"size:64;index;not null" json:"property_id"`
	GuestId     uint            `gorm:"index" json:"guest_id"`
	RoomId      uint            `gorm:"index" json:"room_id"`
	RoomTypeId  uint            `gorm:"index" json:"room_type_id"`
	CheckIn     time.Time       `gorm:"not null;index" json:"check_in"`
	CheckOut    time.Time       `gorm:"not null" json:"check_out"`
	Status      string          `gorm:"size:20;not null" json:"status"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_amount"`
	Currency    string          `gorm:"size:3" json:"currency"`
	Adults      int             `json:"adults"`
	Children    int             `json:"children"`
	Notes       string          `gorm:"type:text" json:"notes"`
	// Source is "pms" for locally created reservations and the channel name
	// for reservations pulled from a channel manager. Outbound hooks use it
	// to avoid pushing a booking back to the channel it came from.
	Source         string    `gorm:"size:50;not null;default:'pms';index" json:"source"`
	ExternalRef    string    `gorm:"size:128;index" json:"external_ref"`
	LifecycleState string    `gorm:"size:20;not null;default:'active';index" json:"lifecycle_state"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateGuest(db *gorm.DB, guest *Guest) error {
	if guest.LifecycleState == "" {
		guest.LifecycleState = LifecycleStateActive
	}
	return db.Create(guest).Error
}

func GetGuestByID(db *gorm.DB, propertyId string, id uint) (*Guest, error) {
	var guest Guest
	err := Active(db).Where("id = ? AND property_id = ?", id, propertyId).Take(&guest).Error
	if err != nil {
		return nil, err
	}
	return &guest, nil
}

func ListGuests(db *gorm.DB, propertyId string) ([]Guest, error) {
	var guests []Guest
	err := Active(db).Where("property_id = ?", propertyId).Find(&guests).Error
	return guests, err
}

func CreateReservation(db *gorm.DB, res *Reservation) error {
	if res.Status == "" {
		res.Status = ReservationStatusConfirmed
	}
	if res.Source == "" {
		res.Source = SourcePMS
	}
	if res.LifecycleState == "" {
		res.LifecycleState = LifecycleStateActive
	}
	return db.Create(res).Error
}

func (r *Reservation) UpdateReservation(db *gorm.DB, updates map[string]interface{}) error {
	return db.Model(&Reservation{}).Where("id = ?", r.ID).Updates(updates).Error
}

// FindReservationByExternalRef returns (nil, nil) when no live reservation
// carries the channel booking reference.
func FindReservationByExternalRef(db *gorm.DB, propertyId, source, externalRef string) (*Reservation, error) {
	var res Reservation
	err := Active(db).
		Where("property_id = ? AND source = ? AND external_ref = ?", propertyId, source, externalRef).
		Take(&res).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// ListChannelReservations returns live reservations that originated from the
// given channel; reconciliation compares these against the channel's view.
func ListChannelReservations(db *gorm.DB, propertyId, channel string) ([]Reservation, error) {
	var reservations []Reservation
	err := Active(db).
		Where("property_id = ? AND source = ?", propertyId, channel).
		Find(&reservations).Error
	return reservations, err
}

func GetRoomTypeByID(db *gorm.DB, propertyId string, id uint) (*RoomType, error) {
	var rt RoomType
	err := Active(db).Where("id = ? AND property_id = ?", id, propertyId).Take(&rt).Error
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

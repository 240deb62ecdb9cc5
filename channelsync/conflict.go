package channelsync

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mmdatafocus/hotel_backend/config"
	"github.com/mmdatafocus/hotel_backend/models"
)

// FieldConflict is one diverging field between the PMS reservation and the
// channel manager's rendition of the same booking.
type FieldConflict struct {
	Field        string
	PmsValue     string
	ChannelValue string
}

// CompareBooking diffs the fields reconciliation cares about. Amounts compare
// numerically so "100.0" and "100.00" are not a conflict.
func CompareBooking(reservation *models.Reservation, booking ChannelBooking) []FieldConflict {
	var conflicts []FieldConflict

	if arrival, err := time.Parse(bookingDateLayout, booking.Arrival); err == nil {
		if !sameDate(reservation.CheckIn, arrival) {
			conflicts = append(conflicts, FieldConflict{
				Field:        "check_in",
				PmsValue:     reservation.CheckIn.Format(bookingDateLayout),
				ChannelValue: booking.Arrival,
			})
		}
	}
	if departure, err := time.Parse(bookingDateLayout, booking.Departure); err == nil {
		if !sameDate(reservation.CheckOut, departure) {
			conflicts = append(conflicts, FieldConflict{
				Field:        "check_out",
				PmsValue:     reservation.CheckOut.Format(bookingDateLayout),
				ChannelValue: booking.Departure,
			})
		}
	}

	channelStatus := normalizeBookingStatus(booking.Status)
	if reservation.Status != channelStatus {
		// checked_in is a PMS-only refinement of confirmed, not a divergence.
		if !(reservation.Status == models.ReservationStatusCheckedIn && channelStatus == models.ReservationStatusConfirmed) {
			conflicts = append(conflicts, FieldConflict{
				Field:        "status",
				PmsValue:     reservation.Status,
				ChannelValue: channelStatus,
			})
		}
	}

	if booking.TotalAmount != "" {
		channelAmount := decimalFromNumber(booking.TotalAmount)
		if !reservation.TotalAmount.Equal(channelAmount) {
			conflicts = append(conflicts, FieldConflict{
				Field:        "total_amount",
				PmsValue:     reservation.TotalAmount.String(),
				ChannelValue: channelAmount.String(),
			})
		}
	}
	return conflicts
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// ReconcileResult summarizes one reconciliation run.
type ReconcileResult struct {
	Compared     int `json:"compared"`
	Conflicts    int `json:"conflicts"`
	ChannelOnly  int `json:"channel_only"`
	PmsOnly      int `json:"pms_only"`
	NewConflicts int `json:"new_conflicts"`
}

// Reconciler periodically compares the PMS view of channel bookings against
// the channel manager's and records divergences for operator triage. It
// never writes reservations itself.
type Reconciler struct {
	DB      *gorm.DB
	Logger  *logrus.Logger
	Clients ClientFactory

	Interval    time.Duration
	LockTimeout time.Duration
	LookBack    time.Duration
}

func NewReconciler(db *gorm.DB, logger *logrus.Logger, clients ClientFactory) *Reconciler {
	return &Reconciler{
		DB:          db,
		Logger:      logger,
		Clients:     clients,
		Interval:    6 * time.Hour,
		LockTimeout: schedulerLockTimeout,
		LookBack:    firstPullWindow,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	r.Logger.Info("reconciler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	configs, err := models.ListSyncableConfigs(r.DB)
	if err != nil {
		config.LogError(r.Logger, "channelsync", "Reconciler.tick", "list configs", nil, err)
		return
	}
	for i := range configs {
		if _, err := r.ReconcileOnce(ctx, &configs[i], models.SyncTriggeredSystem); err != nil {
			r.Logger.WithFields(logrus.Fields{
				"property": configs[i].PropertyId,
				"channel":  configs[i].Channel,
			}).Error("reconciliation failed: " + err.Error())
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// ReconcileOnce runs one reconciliation for an integration under its own
// sync lock.
func (r *Reconciler) ReconcileOnce(ctx context.Context, cfg *models.ChannelConfig, triggeredBy string) (*ReconcileResult, error) {
	state, acquired, err := models.AcquireSyncLock(r.DB, cfg.PropertyId, cfg.Channel, models.SyncTypeReconciliation, triggeredBy, 0)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, nil
	}

	result, err := r.compare(ctx, cfg, state.ID)
	if err != nil {
		_ = state.Fail(r.DB, err)
		return nil, err
	}
	if err := state.Complete(r.DB, models.SyncCounters{
		Pulled:   result.Compared,
		Upserted: result.NewConflicts,
		Skipped:  result.ChannelOnly + result.PmsOnly,
	}); err != nil {
		config.LogError(r.Logger, "channelsync", "Reconciler.ReconcileOnce", "complete state", state.ID, err)
	}
	return result, nil
}

func (r *Reconciler) compare(ctx context.Context, cfg *models.ChannelConfig, runId uint) (*ReconcileResult, error) {
	client, err := r.Clients(cfg)
	if err != nil {
		return nil, err
	}
	bookings, err := client.FetchBookings(ctx, time.Now().UTC().Add(-r.LookBack))
	if err != nil {
		return nil, err
	}
	reservations, err := models.ListChannelReservations(r.DB, cfg.PropertyId, cfg.Channel)
	if err != nil {
		return nil, err
	}

	byRef := make(map[string]*models.Reservation, len(reservations))
	for i := range reservations {
		byRef[reservations[i].ExternalRef] = &reservations[i]
	}

	result := &ReconcileResult{}
	seen := make(map[string]bool, len(bookings))
	for _, booking := range bookings {
		seen[booking.ID] = true
		reservation, ok := byRef[booking.ID]
		if !ok {
			result.ChannelOnly++
			r.recordConflict(cfg, runId, booking.ID, "", "existence", "missing", "present", result)
			continue
		}
		result.Compared++
		for _, fc := range CompareBooking(reservation, booking) {
			result.Conflicts++
			r.recordConflict(cfg, runId, booking.ID,
				strconv.FormatUint(uint64(reservation.ID), 10), fc.Field, fc.PmsValue, fc.ChannelValue, result)
		}
	}
	for i := range reservations {
		if reservations[i].Status == models.ReservationStatusCancelled {
			continue
		}
		if !seen[reservations[i].ExternalRef] {
			result.PmsOnly++
			r.recordConflict(cfg, runId, reservations[i].ExternalRef,
				strconv.FormatUint(uint64(reservations[i].ID), 10), "existence", "present", "missing", result)
		}
	}
	return result, nil
}

func (r *Reconciler) recordConflict(cfg *models.ChannelConfig, runId uint, externalId, internalId, field, pmsValue, channelValue string, result *ReconcileResult) {
	_, created, err := models.RecordConflict(r.DB, models.SyncConflict{
		PropertyId:    cfg.PropertyId,
		Channel:       cfg.Channel,
		EntityType:    "reservation",
		ExternalId:    externalId,
		InternalId:    internalId,
		Field:         field,
		PmsValue:      pmsValue,
		ChannelValue:  channelValue,
		DetectedRunId: runId,
	})
	if err != nil {
		config.LogError(r.Logger, "channelsync", "Reconciler.recordConflict", "record", externalId, err)
		return
	}
	if created {
		result.NewConflicts++
	}
}

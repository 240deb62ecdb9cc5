package channelsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/mmdatafocus/hotel_backend/config"
	"github.com/mmdatafocus/hotel_backend/models"
)

const (
	schedulerBaseInterval = time.Minute
	schedulerLockTimeout  = 10 * time.Minute
	schedulerMaxBackoff   = 15 * time.Minute

	// First pull for a never-synced integration looks this far back.
	firstPullWindow = 90 * 24 * time.Hour
)

// ClientFactory builds the API client for one integration. Injected so tests
// and the reconciler can substitute fakes.
type ClientFactory func(cfg *models.ChannelConfig) (ChannelClient, error)

// Scheduler periodically pulls bookings for every syncable integration.
// Webhooks are the fast path; the pull closes the gap when a webhook was
// missed or the channel manager does not send them at all. The SyncState row
// acts as a cross-replica lock, so running several scheduler replicas is
// safe.
type Scheduler struct {
	DB      *gorm.DB
	Logger  *logrus.Logger
	Clients ClientFactory

	Interval    time.Duration
	LockTimeout time.Duration
	MaxBackoff  time.Duration

	mu      sync.Mutex
	backoff map[string]backoffState
	owned   map[string]*models.SyncState
}

type backoffState struct {
	failures int
	until    time.Time
}

func NewScheduler(db *gorm.DB, logger *logrus.Logger, clients ClientFactory) *Scheduler {
	return &Scheduler{
		DB:          db,
		Logger:      logger,
		Clients:     clients,
		Interval:    schedulerBaseInterval,
		LockTimeout: schedulerLockTimeout,
		MaxBackoff:  schedulerMaxBackoff,
		backoff:     make(map[string]backoffState),
		owned:       make(map[string]*models.SyncState),
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	s.Logger.Info("pull-sync scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.releaseOwnedLocks()
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if n, err := models.ReclaimStaleSyncLocks(s.DB, s.LockTimeout); err != nil {
		config.LogError(s.Logger, "channelsync", "Scheduler.tick", "reclaim stale locks", nil, err)
	} else if n > 0 {
		s.Logger.WithField("count", n).Warn("reclaimed stale sync locks")
	}

	configs, err := models.ListSyncableConfigs(s.DB)
	if err != nil {
		config.LogError(s.Logger, "channelsync", "Scheduler.tick", "list configs", nil, err)
		return
	}
	now := time.Now().UTC()
	for i := range configs {
		cfg := &configs[i]
		if !cfg.PullReservations {
			continue
		}
		key := cfg.PropertyId + "/" + cfg.Channel
		if s.deferredUntil(key).After(now) {
			continue
		}
		acquired, err := s.runPull(ctx, cfg, models.SyncTriggeredSystem, 0)
		s.recordOutcome(key, acquired, err, now)
		if ctx.Err() != nil {
			return
		}
	}
}

// runPull executes one pull-sync run under the DB lock. Contention (another
// replica holds the lock) is not an error; acquired=false reports it so the
// caller can leave the backoff schedule alone.
func (s *Scheduler) runPull(ctx context.Context, cfg *models.ChannelConfig, triggeredBy string, retryCount int) (bool, error) {
	state, acquired, err := models.AcquireSyncLock(s.DB, cfg.PropertyId, cfg.Channel, models.SyncTypePullReservations, triggeredBy, retryCount)
	if err != nil {
		config.LogError(s.Logger, "channelsync", "Scheduler.runPull", "acquire lock", cfg.Channel, err)
		return false, err
	}
	if !acquired {
		return false, nil
	}
	s.trackOwned(cfg, state)
	defer s.untrackOwned(cfg)

	counters, err := s.pull(ctx, cfg)
	if err != nil {
		if ferr := state.Fail(s.DB, err); ferr != nil {
			config.LogError(s.Logger, "channelsync", "Scheduler.runPull", "fail state", state.ID, ferr)
		}
		s.Logger.WithFields(logrus.Fields{
			"property": cfg.PropertyId,
			"channel":  cfg.Channel,
		}).Error("pull sync failed: " + err.Error())
		return true, err
	}

	if err := state.Complete(s.DB, counters); err != nil {
		config.LogError(s.Logger, "channelsync", "Scheduler.runPull", "complete state", state.ID, err)
	}
	if err := cfg.UpdateLastSuccessfulSync(s.DB, state.StartedAt); err != nil {
		config.LogError(s.Logger, "channelsync", "Scheduler.runPull", "update last sync", cfg.ID, err)
	}
	s.Logger.WithFields(logrus.Fields{
		"property": cfg.PropertyId,
		"channel":  cfg.Channel,
		"pulled":   counters.Pulled,
		"upserted": counters.Upserted,
		"skipped":  counters.Skipped,
	}).Info("pull sync completed")
	return true, nil
}

func (s *Scheduler) pull(ctx context.Context, cfg *models.ChannelConfig) (models.SyncCounters, error) {
	var counters models.SyncCounters

	client, err := s.Clients(cfg)
	if err != nil {
		return counters, err
	}

	since := time.Now().UTC().Add(-firstPullWindow)
	if cfg.LastSuccessfulSync != nil {
		since = *cfg.LastSuccessfulSync
	}
	bookings, err := client.FetchBookings(ctx, since)
	if err != nil {
		return counters, err
	}
	counters.Pulled = len(bookings)

	for _, booking := range bookings {
		result, err := applyChannelBooking(s.DB, cfg, booking, EventTypeBookingModified)
		if err != nil {
			// A bad booking must not sink the whole run.
			counters.Skipped++
			s.Logger.WithFields(logrus.Fields{
				"channel":    cfg.Channel,
				"booking_id": booking.ID,
			}).Warn("booking skipped during pull: " + err.Error())
			continue
		}
		switch result {
		case applyCreated, applyUpdated:
			counters.Upserted++
		default:
			counters.Skipped++
		}
		if ctx.Err() != nil {
			return counters, ctx.Err()
		}
	}
	return counters, nil
}

// TriggerManualSync runs one pull for an integration outside the ticker,
// e.g. from the ops API. Returns false when another run already holds the
// lock.
func (s *Scheduler) TriggerManualSync(ctx context.Context, propertyId, channel string) (bool, error) {
	cfg, err := models.GetChannelConfig(s.DB, propertyId, channel)
	if err != nil {
		return false, err
	}
	if cfg == nil {
		return false, errors.New("no channel config")
	}
	state, acquired, err := models.AcquireSyncLock(s.DB, propertyId, channel, models.SyncTypePullReservations, models.SyncTriggeredManual, 0)
	if err != nil || !acquired {
		return false, err
	}
	s.trackOwned(cfg, state)
	defer s.untrackOwned(cfg)

	counters, err := s.pull(ctx, cfg)
	if err != nil {
		_ = state.Fail(s.DB, err)
		return true, err
	}
	if err := state.Complete(s.DB, counters); err != nil {
		return true, err
	}
	return true, cfg.UpdateLastSuccessfulSync(s.DB, state.StartedAt)
}

// releaseOwnedLocks fails every run this replica still holds so a clean
// shutdown never leaves a lock to time out.
func (s *Scheduler) releaseOwnedLocks() {
	s.mu.Lock()
	owned := make([]*models.SyncState, 0, len(s.owned))
	for _, st := range s.owned {
		owned = append(owned, st)
	}
	s.owned = make(map[string]*models.SyncState)
	s.mu.Unlock()

	for _, st := range owned {
		if err := st.Fail(s.DB, errors.New("interrupted by shutdown")); err != nil {
			config.LogError(s.Logger, "channelsync", "Scheduler.releaseOwnedLocks", "fail state", st.ID, err)
		}
	}
}

func (s *Scheduler) trackOwned(cfg *models.ChannelConfig, state *models.SyncState) {
	s.mu.Lock()
	s.owned[cfg.PropertyId+"/"+cfg.Channel] = state
	s.mu.Unlock()
}

func (s *Scheduler) untrackOwned(cfg *models.ChannelConfig) {
	s.mu.Lock()
	delete(s.owned, cfg.PropertyId+"/"+cfg.Channel)
	s.mu.Unlock()
}

// recordOutcome updates the backoff schedule after a tick touched one
// integration. A failed run backs off, a completed run resets, and losing the
// lock to another replica changes nothing: the loser must not shadow the
// winner's outcome either way.
func (s *Scheduler) recordOutcome(key string, acquired bool, err error, now time.Time) {
	if err != nil {
		s.noteFailure(key, now)
		return
	}
	if acquired {
		s.clearBackoff(key)
	}
}

func (s *Scheduler) deferredUntil(key string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backoff[key].until
}

func (s *Scheduler) noteFailure(key string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.backoff[key]
	state.failures++
	state.until = now.Add(nextBackoff(s.Interval, state.failures, s.MaxBackoff))
	s.backoff[key] = state
}

func (s *Scheduler) clearBackoff(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.backoff, key)
}

// nextBackoff doubles the base interval per consecutive failure up to max.
func nextBackoff(base time.Duration, failures int, max time.Duration) time.Duration {
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

package channelsync

import (
	"errors"
	"testing"
	"time"
)

func TestNextBackoff_DoublesAndCaps(t *testing.T) {
	base := time.Minute
	max := 15 * time.Minute

	cases := []struct {
		failures int
		expected time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 15 * time.Minute},
		{10, 15 * time.Minute},
	}
	for _, tc := range cases {
		if got := nextBackoff(base, tc.failures, max); got != tc.expected {
			t.Fatalf("nextBackoff(failures=%d) = %s, expected %s", tc.failures, got, tc.expected)
		}
	}
}

func TestSchedulerBackoffState(t *testing.T) {
	s := NewScheduler(nil, testLogger(), nil)
	now := time.Now().UTC()
	key := "prop-1/cultbooking"

	if s.deferredUntil(key).After(now) {
		t.Fatal("fresh integration must not be deferred")
	}

	s.noteFailure(key, now)
	if !s.deferredUntil(key).After(now) {
		t.Fatal("a failure must defer the next attempt")
	}
	first := s.deferredUntil(key)

	s.noteFailure(key, now)
	if !s.deferredUntil(key).After(first) {
		t.Fatal("consecutive failures must push the deferral further out")
	}

	s.clearBackoff(key)
	if s.deferredUntil(key).After(now) {
		t.Fatal("a success must clear the backoff")
	}
}

func TestRecordOutcome(t *testing.T) {
	now := time.Now().UTC()
	key := "prop-1/cultbooking"

	t.Run("failure defers the next attempt", func(t *testing.T) {
		s := NewScheduler(nil, testLogger(), nil)
		s.recordOutcome(key, true, errors.New("fetch failed"), now)
		if !s.deferredUntil(key).After(now) {
			t.Fatal("a failed run must back the integration off")
		}
	})

	t.Run("success clears an earlier backoff", func(t *testing.T) {
		s := NewScheduler(nil, testLogger(), nil)
		s.noteFailure(key, now)
		s.recordOutcome(key, true, nil, now)
		if s.deferredUntil(key).After(now) {
			t.Fatal("a completed run must clear the backoff")
		}
	})

	// A replica that keeps losing the lock learns nothing about the
	// integration's health and must not reset the backoff it accrued from
	// its own failed runs.
	t.Run("lock contention leaves the backoff untouched", func(t *testing.T) {
		s := NewScheduler(nil, testLogger(), nil)
		s.noteFailure(key, now)
		deferred := s.deferredUntil(key)

		s.recordOutcome(key, false, nil, now)
		if got := s.deferredUntil(key); !got.Equal(deferred) {
			t.Fatalf("contention changed the deferral from %s to %s", deferred, got)
		}
	})
}

func TestSchedulerBackoffIsPerIntegration(t *testing.T) {
	s := NewScheduler(nil, testLogger(), nil)
	now := time.Now().UTC()

	s.noteFailure("prop-1/cultbooking", now)
	if s.deferredUntil("prop-1/otherchannel").After(now) {
		t.Fatal("one integration's failure must not defer another")
	}
	if s.deferredUntil("prop-2/cultbooking").After(now) {
		t.Fatal("one property's failure must not defer another")
	}
}

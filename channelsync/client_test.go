package channelsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) ChannelClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("CHANNEL_API_BASE_URL_TESTCHANNEL", srv.URL)
	t.Setenv("CHANNEL_RATE_LIMIT_PER_MIN", "600000")

	client, err := NewChannelClient("testchannel", "key-123")
	if err != nil {
		t.Fatalf("NewChannelClient: %v", err)
	}
	return client
}

func TestFetchBookings_FollowsCursor(t *testing.T) {
	var requests []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "key-123" {
			t.Fatalf("api key header = %q", got)
		}
		requests = append(requests, r.URL.Query().Get("cursor"))
		resp := bookingListResponse{}
		if r.URL.Query().Get("cursor") == "" {
			resp.Data = []ChannelBooking{{ID: "BK-1"}, {ID: "BK-2"}}
			resp.NextCursor = "page2"
		} else {
			resp.Data = []ChannelBooking{{ID: "BK-3"}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))

	bookings, err := client.FetchBookings(context.Background(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("FetchBookings: %v", err)
	}
	if len(bookings) != 3 {
		t.Fatalf("expected 3 bookings across pages, got %d", len(bookings))
	}
	if len(requests) != 2 || requests[1] != "page2" {
		t.Fatalf("cursor not followed: %v", requests)
	}
}

func TestFetchBookings_SendsModifiedSince(t *testing.T) {
	since := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("modified_since"); got != since.Format(time.RFC3339) {
			t.Fatalf("modified_since = %q", got)
		}
		_ = json.NewEncoder(w).Encode(bookingListResponse{})
	}))
	if _, err := client.FetchBookings(context.Background(), since); err != nil {
		t.Fatalf("FetchBookings: %v", err)
	}
}

func TestClient_SurfacesAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))

	_, err := client.FetchBookings(context.Background(), time.Now())
	var apiErr *ChannelAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected ChannelAPIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || !apiErr.Retryable() {
		t.Fatalf("429 must be retryable: %+v", apiErr)
	}
}

func TestClient_PushReservationRejection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room type closed", http.StatusUnprocessableEntity)
	}))

	err := client.PushReservation(context.Background(), "RT-EXT-1", ChannelBooking{ID: "12"})
	var apiErr *ChannelAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected ChannelAPIError, got %v", err)
	}
	if apiErr.Retryable() {
		t.Fatal("422 must not be retryable")
	}
}

func TestNewChannelClient_RequiresBaseURL(t *testing.T) {
	t.Setenv("CHANNEL_API_BASE_URL_NOWHERE", "")
	if _, err := NewChannelClient("nowhere", "key"); err == nil {
		t.Fatal("expected error without base url")
	}
}

package channelsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ChannelClient is the black-box request/response surface of a channel
// manager. Implementations own their rate limiting; callers only see
// errors and classify them through ChannelAPIError.
type ChannelClient interface {
	FetchBookings(ctx context.Context, modifiedSince time.Time) ([]ChannelBooking, error)
	PushReservation(ctx context.Context, externalRoomTypeId string, booking ChannelBooking) error
	PushAvailability(ctx context.Context, externalRoomTypeId string, change AvailabilityChange) error
	PushRates(ctx context.Context, externalRoomTypeId string, change RateChange) error
}

// ChannelAPIError carries the remote status so workers can separate
// retryable transport failures (timeout, 5xx, 429) from terminal rejections.
type ChannelAPIError struct {
	StatusCode int
	Body       string
}

func (e *ChannelAPIError) Error() string {
	return fmt.Sprintf("channel api error %d: %s", e.StatusCode, e.Body)
}

func (e *ChannelAPIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type httpChannelClient struct {
	channel   string
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

// NewChannelClient builds the rate-limited HTTP client for a channel.
// Base URL and rate limit are per-channel env settings, e.g.
// CHANNEL_API_BASE_URL_CULTBOOKING.
func NewChannelClient(channel, apiKey string) (ChannelClient, error) {
	envKey := strings.ToUpper(strings.ReplaceAll(channel, "-", "_"))
	baseURL := strings.TrimSpace(os.Getenv("CHANNEL_API_BASE_URL_" + envKey))
	if baseURL == "" {
		return nil, fmt.Errorf("CHANNEL_API_BASE_URL_%s is not set", envKey)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("channel api key is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("CHANNEL_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("CHANNEL_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &httpChannelClient{
		channel:   channel,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type bookingListResponse struct {
	Data       []ChannelBooking `json:"data"`
	Bookings   []ChannelBooking `json:"bookings"`
	NextCursor string           `json:"next_cursor"`
	HasMore    *bool            `json:"has_more"`
}

func (c *httpChannelClient) FetchBookings(ctx context.Context, modifiedSince time.Time) ([]ChannelBooking, error) {
	var all []ChannelBooking
	cursor := ""
	for {
		params := url.Values{}
		params.Set("modified_since", modifiedSince.UTC().Format(time.RFC3339))
		params.Set("limit", "200")
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		body, err := c.do(ctx, http.MethodGet, "/v1/bookings?"+params.Encode(), nil)
		if err != nil {
			return all, err
		}
		var parsed bookingListResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return all, err
		}
		page := parsed.Data
		if len(page) == 0 {
			page = parsed.Bookings
		}
		all = append(all, page...)

		if parsed.NextCursor == "" || (parsed.HasMore != nil && !*parsed.HasMore) {
			return all, nil
		}
		cursor = parsed.NextCursor
	}
}

func (c *httpChannelClient) PushReservation(ctx context.Context, externalRoomTypeId string, booking ChannelBooking) error {
	booking.RoomTypeId = externalRoomTypeId
	payload, err := json.Marshal(booking)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/v1/reservations", payload)
	return err
}

func (c *httpChannelClient) PushAvailability(ctx context.Context, externalRoomTypeId string, change AvailabilityChange) error {
	payload, err := json.Marshal(map[string]interface{}{
		"room_type_id": externalRoomTypeId,
		"from":         change.From,
		"to":           change.To,
		"allotment":    change.Allotment,
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/v1/availability", payload)
	return err
}

func (c *httpChannelClient) PushRates(ctx context.Context, externalRoomTypeId string, change RateChange) error {
	payload, err := json.Marshal(map[string]interface{}{
		"room_type_id": externalRoomTypeId,
		"from":         change.From,
		"to":           change.To,
		"rate":         change.Rate,
		"currency":     change.Currency,
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/v1/rates", payload)
	return err
}

func (c *httpChannelClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	<-c.limiter

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ChannelAPIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

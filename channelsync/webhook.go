package channelsync

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/hotel_backend/config"
	"github.com/mmdatafocus/hotel_backend/models"
	"github.com/mmdatafocus/hotel_backend/utils"
)

const maxWebhookBody = 1 << 20

// SignatureHeader is where the channel manager puts the hex HMAC-SHA256 of
// the raw request body, e.g. X-Cultbooking-Signature.
func SignatureHeader(channel string) string {
	parts := strings.Split(channel, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return "X-" + strings.Join(parts, "-") + "-Signature"
}

// VerifySignature checks the hex HMAC-SHA256 of body against the shared
// secret in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	given := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(given)))
}

// webhookProperty resolves the property a delivery belongs to. The body
// field wins; the query parameter covers channel managers that cannot put it
// in the payload.
func webhookProperty(payload WebhookPayload, queryParam string) string {
	if id := strings.TrimSpace(payload.PropertyId); id != "" {
		return id
	}
	return strings.TrimSpace(queryParam)
}

// WebhookHandler ingests channel-manager webhooks for one channel route.
// The request is acknowledged as soon as the ledger row is committed; all
// PMS mutations happen asynchronously on the inbound worker. Redeliveries
// collapse onto the existing ledger row and still return 200.
//
// The signature is verified before any payload validation responds. A decode
// error is held until after the check, so an unauthenticated caller cannot
// use the 400/401 split to probe what the endpoint accepts. Only the property
// id is extracted early, to locate the secret.
func WebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB()
		logger := config.GetLogger()
		channel := c.Param("channel")

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "unreadable request body"})
			return
		}

		var payload WebhookPayload
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		decodeErr := decoder.Decode(&payload)

		propertyId := webhookProperty(payload, c.Query("property_id"))
		if propertyId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "unknown integration"})
			return
		}

		cfg, err := models.GetChannelConfig(db, propertyId, channel)
		if err != nil {
			config.LogError(logger, "channelsync", "WebhookHandler", "load channel config", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
			return
		}
		if cfg == nil || cfg.Status != models.ChannelStatusConnected {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "unknown integration"})
			return
		}

		signature := c.GetHeader(SignatureHeader(channel))
		if signature == "" {
			signature = c.GetHeader("X-Webhook-Signature")
		}
		if signature == "" {
			if config.RequireWebhookSignature() {
				c.JSON(http.StatusUnauthorized, gin.H{"message": "signature missing"})
				return
			}
		} else {
			secret, err := utils.DecryptCredential(cfg.WebhookSecretEncrypted)
			if err != nil || !VerifySignature(secret, body, signature) {
				c.JSON(http.StatusUnauthorized, gin.H{"message": "signature mismatch"})
				return
			}
		}

		if decodeErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "malformed payload"})
			return
		}

		eventType, err := ParseEventType(payload.Event)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}

		externalId := ""
		if payload.Booking != nil {
			externalId = strings.TrimSpace(payload.Booking.ID)
		}
		switch eventType {
		case EventTypeBookingCreated, EventTypeBookingModified, EventTypeBookingCancelled:
			if externalId == "" {
				c.JSON(http.StatusBadRequest, gin.H{"message": "booking payload missing"})
				return
			}
		}

		correlationId, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		key := InboundIdempotencyKey(channel, payload.EventID, externalId, eventType, time.Now())
		event, created, err := models.RecordEvent(db, models.NewChannelEvent{
			PropertyId:       propertyId,
			Direction:        models.EventDirectionInbound,
			Source:           channel,
			EventType:        string(eventType),
			EntityType:       eventType.EntityType(),
			EntityExternalId: externalId,
			IdempotencyKey:   key,
			Payload:          body,
			Priority:         eventType.Priority(),
			CorrelationId:    correlationId,
		})
		if err != nil {
			config.LogError(logger, "channelsync", "WebhookHandler", "record event", map[string]interface{}{
				"channel": channel, "event_type": eventType,
			}, err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
			return
		}

		if created {
			// Best effort; the outbox dispatcher republishes anything missed.
			go publishPendingEvent(db, logger, event.ID)
		} else {
			logger.WithFields(logrus.Fields{
				"channel":  channel,
				"event_id": event.ID,
				"key":      key,
			}).Info("duplicate webhook delivery ignored")
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "accepted",
			"event_id":  event.ID,
			"duplicate": !created,
		})
	}
}

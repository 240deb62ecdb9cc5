package channelsync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/mmdatafocus/hotel_backend/config"
	"github.com/mmdatafocus/hotel_backend/models"
	"github.com/mmdatafocus/hotel_backend/utils"
)

// Ops API for channel integrations: connect/disconnect, sync controls, the
// failed-event view and conflict triage. Every handler resolves the property
// from the session token; a token for one property can never touch another.

func resolvePropertyID(c *gin.Context) (string, error) {
	token := c.GetHeader("token")
	if token == "" {
		return "", utils.ErrorUnauthorized
	}
	return utils.PropertyIdFromToken(token)
}

type connectRequest struct {
	APIKey        string          `json:"api_key"`
	WebhookSecret string          `json:"webhook_secret"`
	Settings      json.RawMessage `json:"settings"`
}

type settingsRequest struct {
	SyncEnabled      *bool `json:"sync_enabled"`
	PushReservations *bool `json:"push_reservations"`
	PushAvailability *bool `json:"push_availability"`
	PushRates        *bool `json:"push_rates"`
	PullReservations *bool `json:"pull_reservations"`
}

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		db := config.GetDB()

		configs, err := models.ListChannelConfigs(db, propertyId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"channels": configs})
	}
}

func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		channel := c.Param("channel")

		var req connectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(req.APIKey) == "" || strings.TrimSpace(req.WebhookSecret) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "api_key and webhook_secret are required"})
			return
		}

		apiKeyEnc, err := utils.EncryptCredential(req.APIKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		secretEnc, err := utils.EncryptCredential(req.WebhookSecret)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		db := config.GetDB()
		cfg, err := models.GetChannelConfig(db, propertyId, channel)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if cfg == nil {
			cfg = &models.ChannelConfig{
				PropertyId: propertyId,
				Channel:    channel,
			}
		}
		cfg.Status = models.ChannelStatusConnected
		cfg.APIKeyEncrypted = apiKeyEnc
		cfg.WebhookSecretEncrypted = secretEnc
		cfg.SyncEnabled = true
		if len(req.Settings) > 0 {
			cfg.SettingsJSON = req.Settings
		}
		if err := models.SaveChannelConfig(db, cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := EnsureChannelTopology(c.Request.Context(), channel); err != nil {
			config.LogError(config.GetLogger(), "channelsync", "ConnectHandler", "ensure topology", channel, err)
		}
		c.JSON(http.StatusOK, cfg)
	}
}

func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		channel := c.Param("channel")

		db := config.GetDB()
		cfg, err := models.GetChannelConfig(db, propertyId, channel)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if cfg == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "channel not connected"})
			return
		}
		if err := cfg.Disconnect(db); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": models.ChannelStatusDisconnected})
	}
}

func UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		channel := c.Param("channel")

		var req settingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		db := config.GetDB()
		cfg, err := models.GetChannelConfig(db, propertyId, channel)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if cfg == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "channel not connected"})
			return
		}

		if req.SyncEnabled != nil {
			cfg.SyncEnabled = *req.SyncEnabled
		}
		if req.PushReservations != nil {
			cfg.PushReservations = *req.PushReservations
		}
		if req.PushAvailability != nil {
			cfg.PushAvailability = *req.PushAvailability
		}
		if req.PushRates != nil {
			cfg.PushRates = *req.PushRates
		}
		if req.PullReservations != nil {
			cfg.PullReservations = *req.PullReservations
		}
		if err := models.SaveChannelConfig(db, cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// TriggerSyncHandler starts a manual pull for one channel. 409 when a run is
// already in flight.
func TriggerSyncHandler(scheduler *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		channel := c.Param("channel")

		acquired, err := scheduler.TriggerManualSync(c.Request.Context(), propertyId, channel)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !acquired {
			c.JSON(http.StatusConflict, gin.H{"error": "a sync is already running"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "completed"})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		runs, err := models.ListSyncRuns(config.GetDB(), propertyId, c.Query("channel"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func FailedEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		events, err := models.ListFailedEvents(config.GetDB(), propertyId, c.Query("channel"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

// ReplayEventHandler re-arms a failed event. The outbox republishes it with a
// fresh retry budget.
func ReplayEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
			return
		}

		db := config.GetDB()
		event, err := models.GetEventByID(db, uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if event.PropertyId != propertyId {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		if err := event.ResetForReplay(db); err != nil {
			if errors.Is(err, models.ErrEventTerminal) {
				c.JSON(http.StatusConflict, gin.H{"error": "only failed events can be replayed"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		go publishPendingEvent(db, config.GetLogger(), event.ID)
		c.JSON(http.StatusOK, gin.H{"status": "queued"})
	}
}

func ConflictsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		conflicts, err := models.ListConflicts(config.GetDB(), propertyId, c.Query("channel"), c.Query("status"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"conflicts": conflicts})
	}
}

func setConflictStatus(c *gin.Context, status string) {
	propertyId, err := resolvePropertyID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conflict id"})
		return
	}

	db := config.GetDB()
	conflict, err := models.GetConflictByID(db, propertyId, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conflict not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := conflict.SetStatus(db, status); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, conflict)
}

func ResolveConflictHandler() gin.HandlerFunc {
	return func(c *gin.Context) { setConflictStatus(c, models.ConflictStatusResolved) }
}

func IgnoreConflictHandler() gin.HandlerFunc {
	return func(c *gin.Context) { setConflictStatus(c, models.ConflictStatusIgnored) }
}

// ExportConflictsHandler streams the conflict list as an xlsx workbook for
// offline triage.
func ExportConflictsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		conflicts, err := models.ListConflicts(config.GetDB(), propertyId, c.Query("channel"), c.Query("status"), 10000)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		f := excelize.NewFile()
		sheet := "Conflicts"
		f.SetSheetName("Sheet1", sheet)
		headers := []string{"ID", "Channel", "Entity", "External ID", "Internal ID", "Field", "PMS Value", "Channel Value", "Status", "Detected At"}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(sheet, cell, h)
		}
		for row, conflict := range conflicts {
			values := []interface{}{
				conflict.ID, conflict.Channel, conflict.EntityType, conflict.ExternalId, conflict.InternalId,
				conflict.Field, conflict.PmsValue, conflict.ChannelValue, conflict.Status,
				conflict.CreatedAt.Format(time.RFC3339),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				f.SetCellValue(sheet, cell, v)
			}
		}

		var buf bytes.Buffer
		if err := f.Write(&buf); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		filename := fmt.Sprintf("conflicts-%s.xlsx", time.Now().Format("20060102-150405"))
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	}
}

type mappingRequest struct {
	MappingType string `json:"mapping_type"`
	InternalId  string `json:"internal_id"`
	ExternalId  string `json:"external_id"`
}

func ListMappingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		activeOnly := !strings.EqualFold(c.Query("include_inactive"), "true")
		mappings, err := models.ListMappings(config.GetDB(), propertyId, c.Param("channel"), c.Query("type"), activeOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"mappings": mappings})
	}
}

func CreateMappingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		channel := c.Param("channel")

		var req mappingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.MappingType == "" || req.InternalId == "" || req.ExternalId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mapping_type, internal_id and external_id are required"})
			return
		}

		mapping, err := models.CreateMapping(config.GetDB(), propertyId, channel, req.MappingType, req.InternalId, req.ExternalId)
		if err != nil {
			if errors.Is(err, models.ErrMappingConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, mapping)
	}
}

func DeactivateMappingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := resolvePropertyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mapping id"})
			return
		}

		db := config.GetDB()
		mapping, err := models.GetMappingByID(db, propertyId, uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "mapping not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !mapping.IsActive() {
			c.JSON(http.StatusConflict, gin.H{"error": "mapping is already inactive"})
			return
		}
		if err := mapping.DeactivateMapping(db); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, mapping)
	}
}

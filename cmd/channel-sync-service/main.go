package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/hotel_backend/channelsync"
	"github.com/mmdatafocus/hotel_backend/config"
	"github.com/mmdatafocus/hotel_backend/models"
	"github.com/mmdatafocus/hotel_backend/utils"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("CHANNEL_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(func(c *gin.Context) {
		if c.GetHeader("token") == "" {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token := strings.TrimSpace(auth[7:])
				if token != "" {
					c.Request.Header.Set("token", token)
				}
			}
		}
		c.Next()
	})
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	scheduler := channelsync.NewScheduler(nil, logger, clientForConfig)
	reconciler := channelsync.NewReconciler(nil, logger, clientForConfig)

	// Webhook ingest (signed, no session token).
	r.POST("/integrations/:channel/webhooks", channelsync.WebhookHandler())

	// Ops API.
	r.GET("/api/channels", channelsync.StatusHandler())
	r.POST("/api/channels/:channel/connect", channelsync.ConnectHandler())
	r.POST("/api/channels/:channel/disconnect", channelsync.DisconnectHandler())
	r.PATCH("/api/channels/:channel/settings", channelsync.UpdateSettingsHandler())
	r.POST("/api/channels/:channel/sync", channelsync.TriggerSyncHandler(scheduler))
	r.GET("/api/channels/sync-runs", channelsync.SyncHistoryHandler())
	r.GET("/api/channels/:channel/mappings", channelsync.ListMappingsHandler())
	r.POST("/api/channels/:channel/mappings", channelsync.CreateMappingHandler())
	r.POST("/api/mappings/:id/deactivate", channelsync.DeactivateMappingHandler())
	r.GET("/api/events/failed", channelsync.FailedEventsHandler())
	r.POST("/api/events/:id/replay", channelsync.ReplayEventHandler())
	r.GET("/api/conflicts", channelsync.ConflictsHandler())
	r.GET("/api/conflicts/export", channelsync.ExportConflictsHandler())
	r.POST("/api/conflicts/:id/resolve", channelsync.ResolveConflictHandler())
	r.POST("/api/conflicts/:id/ignore", channelsync.IgnoreConflictHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	scheduler.DB = db
	reconciler.DB = db

	go scheduler.Run(sigCtx)
	go reconciler.Run(sigCtx)
	go channelsync.NewOutboxDispatcher(db, logger).Run(sigCtx)
	go startWorkers(sigCtx, logger)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

// startWorkers launches one consumer pair per distinct channel with at least
// one syncable integration.
func startWorkers(ctx context.Context, logger *logrus.Logger) {
	db := config.GetDB()
	configs, err := models.ListSyncableConfigs(db)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "workers"}).Error(err)
		return
	}

	channels := make(map[string]bool)
	for _, cfg := range configs {
		channels[cfg.Channel] = true
	}
	for channel := range channels {
		if err := channelsync.EnsureChannelTopology(ctx, channel); err != nil {
			logger.WithFields(logrus.Fields{"field": "workers", "channel": channel}).Error(err)
			continue
		}
		for _, direction := range []string{models.EventDirectionInbound, models.EventDirectionOutbound} {
			worker := &channelsync.Worker{
				DB:        db,
				Logger:    logger,
				Channel:   channel,
				Direction: direction,
				Clients:   clientForConfig,
				Locker:    config.GetRedisLock(),
			}
			go func() {
				if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
					logger.WithFields(logrus.Fields{
						"field":     "workers",
						"channel":   worker.Channel,
						"direction": worker.Direction,
					}).Error(err)
				}
			}()
		}
	}
}

func clientForConfig(cfg *models.ChannelConfig) (channelsync.ChannelClient, error) {
	apiKey, err := utils.DecryptCredential(cfg.APIKeyEncrypted)
	if err != nil {
		return nil, err
	}
	return channelsync.NewChannelClient(cfg.Channel, apiKey)
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}

package main

import (
	"database/sql"
	"time"

	"call-assistant/internal/bridge"
	"call-assistant/internal/config"
	"call-assistant/internal/telephony"
	"call-assistant/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, db *sql.DB, webhooks *telephony.WebhookHandlers, mediaStream *bridge.Handler) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks. Twilio signs form POSTs with X-Twilio-Signature;
	// the WebSocket upgrade is not signed, so the media stream endpoint
	// stays outside the validated group.
	hooks := r.Group("/webhooks/twilio")
	if cfg.Twilio.ValidateSignatures {
		hooks.Use(telephony.RequireTwilioSignature(cfg.Twilio.AuthToken, cfg.App.PublicHost))
	}
	{
		hooks.POST("/voice", webhooks.HandleInboundCall)
		hooks.POST("/call-status", webhooks.HandleCallStatus)
		hooks.POST("/recording-complete", webhooks.HandleRecordingComplete)
		hooks.POST("/recording-status", webhooks.HandleRecordingStatus)
	}

	r.GET("/webhooks/twilio/media-stream", mediaStream.HandleMediaStream)
}

package main

import (
	"database/sql"
	"net/http"
	"time"

	"sales-dialer/internal/config"
	"sales-dialer/internal/telephony"
	"sales-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	answerPath = "/webhooks/twilio/answer"
	statusPath = "/webhooks/twilio/status"
)

// registerPublicRoutes wires health and provider webhooks. Agent routes
// live in httpapi.Mount.
// Keep this file free of business logic.
func registerPublicRoutes(r *gin.Engine, cfg config.Config, tel telephonyStack, db *sql.DB) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "provider": tel.provider.Name()})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if tel.twilio == nil {
		return
	}
	h := telephony.TwilioWebhookHandler{
		Provider: tel.twilio,
		CallerID: cfg.Twilio.CallerID,
	}
	hooks := r.Group("/", telephony.RequireTwilioSignature(cfg.Twilio.AuthToken, cfg.Twilio.PublicBaseURL))
	{
		hooks.POST(answerPath, h.HandleAnswer)
		hooks.POST(statusPath, h.HandleStatusCallback)
	}
}

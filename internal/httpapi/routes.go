package httpapi

import (
	"github.com/gin-gonic/gin"

	"sales-dialer/internal/rbac"
)

// Mount registers the agent console API under /v1. authMW must populate
// the identity context (see auth.RequireAccessToken).
func Mount(r *gin.Engine, h Handlers, authMW gin.HandlerFunc) {
	r.POST("/v1/auth/login", h.Login)

	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireAgent())
	{
		dial := v1.Group("")
		dial.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleManager))
		{
			dial.GET("/session", h.GetSession)
			dial.DELETE("/session", h.EndSession)
			dial.GET("/session/stream", h.Stream)
			dial.POST("/session/start", h.StartSession)
			dial.POST("/session/retry", h.RetrySession)
			dial.POST("/session/campaign", h.SelectCampaign)

			dial.POST("/call/start", h.StartCall)
			dial.POST("/call/hangup", h.Hangup)
			dial.POST("/call/mute", h.SetMuted)
			dial.POST("/calls/retry-log", h.RetryCallLog)

			dial.POST("/queue/skip", h.Skip)
			dial.PUT("/outcome", h.SetDraft)
			dial.POST("/outcome/save", h.SaveOutcome)

			dial.GET("/callbacks", h.ListCallbacks)
			dial.POST("/callbacks/:lead_id/select", h.SelectCallback)

			dial.GET("/voice/token", h.VoiceToken)
		}

		reports := v1.Group("/reports")
		reports.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleManager))
		{
			reports.GET("/calls", h.CallsReport)
			reports.GET("/outcomes", h.OutcomesReport)
		}
	}
}

package main

import (
	"github.com/gin-gonic/gin"

	"voicebot/internal/httpapi"
	"voicebot/internal/rbac"
	"voicebot/internal/telephony"
	"voicebot/internal/voice"
)

// registerPublicRoutes wires carrier webhooks, the media socket and health probes.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerPublicRoutes(r *gin.Engine, h httpapi.Handlers, wh telephony.TwilioWebhookHandler, vs *voice.Server) {
	r.GET("/health", h.Health)
	r.GET("/users/health", h.Health)

	// NOTE: These endpoints should be protected by Twilio signature validation in production.
	r.POST("/twiml", wh.HandleTwiML)
	r.POST("/twilio-call-status", wh.HandleCallStatus)
	r.GET(voice.WSPath, vs.HandleWS)
}

func registerAuthRoutes(r *gin.Engine, h httpapi.Handlers) {
	r.POST("/auth/refresh", h.Refresh)
}

// registerOperatorRoutes wires the dashboard API. authMW is nil when tokens are disabled,
// in which case role checks are skipped too.
func registerOperatorRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	guard := func(roles ...string) []gin.HandlerFunc {
		if authMW == nil {
			return nil
		}
		return []gin.HandlerFunc{rbac.RequireAnyRole(roles...)}
	}

	root := r.Group("/")
	users := r.Group("/users")
	if authMW != nil {
		root.Use(authMW)
		users.Use(authMW)
	}

	root.POST("/start", append(guard(rbac.Dialers...), h.StartCall)...)
	root.POST("/upload", append(guard(rbac.Dialers...), h.UploadContacts)...)

	users.GET("/calls", append(guard(rbac.Readers...), h.ListCalls)...)
	users.GET("/stats", append(guard(rbac.Readers...), h.Stats)...)
	users.GET("/call/:id", append(guard(rbac.Readers...), h.GetCall)...)
	users.GET("/call/:id/events", append(guard(rbac.Readers...), h.CallEvents)...)
	users.POST("/redial/:id", append(guard(rbac.Dialers...), h.Redial)...)
	users.PATCH("/:id/timestamp", append(guard(rbac.Dialers...), h.UpdateTimestamp)...)
}

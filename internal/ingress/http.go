// Package ingress implements the bridge's external HTTP, WebSocket, and
// webhook surfaces: start/end-call, health, the carrier media socket, and
// the carrier event webhook.
package ingress

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/audiobridge/internal/engine"
	"github.com/rapidaai/audiobridge/internal/voiceai"
	commons "github.com/rapidaai/audiobridge/pkg/commons"
)

// Server bundles the engine and collaborators needed by every ingress
// handler.
type Server struct {
	Engine       *engine.Engine
	Moderator    voiceai.Moderator
	BridgeSecret string
	Logger       commons.Logger
}

// BearerAuth rejects requests that do not carry the configured bridge
// secret as a bearer token.
func (s *Server) BearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token != s.BridgeSecret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

type startCallRequest struct {
	CallID      string `json:"call_id" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	Briefing    string `json:"briefing" binding:"required"`
	CallbackURL string `json:"callback_url" binding:"required"`
	Language    string `json:"language"`
	UserName    string `json:"user_name"`
}

// StartCall implements POST /start-call.
func (s *Server) StartCall(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Language == "" {
		req.Language = "auto"
	}

	if s.Moderator != nil {
		allowed, err := s.Moderator.Allowed(c.Request.Context(), req.Briefing)
		if err != nil {
			s.Logger.Warnw("moderation check failed, allowing by default", "call_id", req.CallID, "error", err)
		} else if !allowed {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "briefing rejected by content moderation"})
			return
		}
	}

	carrierCallID, err := s.Engine.StartCall(c.Request.Context(), engine.StartCallRequest{
		CallID:      req.CallID,
		PhoneNumber: req.PhoneNumber,
		Briefing:    req.Briefing,
		Language:    req.Language,
		UserName:    req.UserName,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "telnyx_call_control_id": carrierCallID})
}

type endCallRequest struct {
	CallID string `json:"call_id" binding:"required"`
}

// EndCall implements POST /end-call.
func (s *Server) EndCall(c *gin.Context) {
	var req endCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Best-effort, asynchronous: /end-call always returns ok whether or not
	// the call existed, but hangup + cleanup may involve a real network
	// call to the carrier so it runs detached from the request context.
	go s.Engine.EndCall(context.Background(), req.CallID)

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Health implements GET /health.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

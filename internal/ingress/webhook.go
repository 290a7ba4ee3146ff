package ingress

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type webhookPayload struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			CallControlID string `json:"call_control_id"`
		} `json:"payload"`
	} `json:"data"`
}

// Webhook implements POST /telnyx/webhook, handling call.answered and
// call.hangup; unknown event types are logged and acknowledged.
func (s *Server) Webhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	carrierCallID := payload.Data.Payload.CallControlID
	switch payload.Data.EventType {
	case "call.answered":
		go func() {
			if err := s.Engine.HandleAnswered(context.Background(), carrierCallID); err != nil {
				s.Logger.Errorf("handling call.answered for %s: %v", carrierCallID, err)
			}
		}()
	case "call.hangup":
		go s.Engine.HandleHangup(context.Background(), carrierCallID)
	default:
		s.Logger.Debugf("ignoring unhandled webhook event type %q", payload.Data.EventType)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

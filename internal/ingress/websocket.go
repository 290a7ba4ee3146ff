package ingress

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var mediaUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MediaStream implements GET /telnyx/media-stream?call_id=... : upgrades to
// a WebSocket and hands the connection to the engine's per-call media
// handler, closing with 1008 if call_id is missing.
func (s *Server) MediaStream(c *gin.Context) {
	callID := c.Query("call_id")

	conn, err := mediaUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Warnw("media stream upgrade failed", "error", err)
		return
	}

	if callID == "" {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "missing call_id"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	s.Engine.HandleMediaWS(c.Request.Context(), callID, conn)
}

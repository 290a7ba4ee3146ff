// Package router wires the ingress HTTP server's routes.
package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rapidaai/audiobridge/internal/ingress"
)

// requestID stamps every request with a correlation id, stored in the gin
// context as "request_id" and echoed in the X-Request-Id response header.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}

// Register attaches every bridge route to engine.
func Register(r *gin.Engine, server *ingress.Server) {
	r.Use(requestID())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/health", server.Health)

	authorized := r.Group("/")
	authorized.Use(server.BearerAuth())
	authorized.POST("/start-call", server.StartCall)
	authorized.POST("/end-call", server.EndCall)

	r.GET("/telnyx/media-stream", server.MediaStream)
	r.POST("/telnyx/webhook", server.Webhook)
}

// Package sse streams a user's notifications as server-sent events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/nickfinder/cache"
	mw "github.com/kasuganosora/nickfinder/middleware"
	"github.com/kasuganosora/nickfinder/social/notify"
	"go.uber.org/zap"
)

const announceChannel = "announce"

const keepaliveInterval = 30 * time.Second

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt> behind mw.Auth.
// Events published for the user are forwarded with their type as the event
// name; announcements go out as "announce".
func (h *Handler) ServeSSE(c *gin.Context) {
	userID := mw.GetUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, notify.Channel(userID), announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", eventName(msg), msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

func eventName(msg *cache.Message) string {
	if msg.Channel == announceChannel {
		return "announce"
	}
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Type == "" {
		return "notify"
	}
	return ev.Type
}

// Announce publishes a message to every connected client.
func (h *Handler) Announce(ctx context.Context, message string) error {
	b, err := json.Marshal(gin.H{"message": message})
	if err != nil {
		return err
	}
	return h.pubsub.Publish(ctx, announceChannel, string(b))
}

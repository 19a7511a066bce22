// Package sse streams an agent's presentation batches to browser clients.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/stalker/cache"
	"github.com/kasuganosora/stalker/game/world"
)

const keepaliveEvery = 30 * time.Second

// Handler serves the intent stream endpoint.
type Handler struct {
	pubsub    cache.PubSub
	wm        *world.WorldManager
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, wm *world.WorldManager, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, wm: wm, keepalive: keepaliveEvery, logger: logger}
}

// ServeAgent handles GET /sse/agents/:id.
// It sends the current snapshot as a "snapshot" event, then every batch
// published on the agent's intent channel as an "intents" event.
func (h *Handler) ServeAgent(c *gin.Context) {
	id := c.Param("id")
	s, err := h.wm.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, world.IntentChannel(id))
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("agent_id", id), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	snap, err := json.Marshal(s.Snapshot())
	if err != nil {
		h.logger.Error("sse snapshot marshal failed", zap.String("agent_id", id), zap.Error(err))
		return
	}
	fmt.Fprintf(c.Writer, "event: snapshot\ndata: %s\n\n", snap)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: intents\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kasuganosora/stalker/game/world"
)

// Health handles GET /health.
func Health(wm *world.WorldManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "agents": wm.Count()})
	}
}

package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kasuganosora/stalker/game/world"
	"github.com/kasuganosora/stalker/model"
	"github.com/kasuganosora/stalker/scheduler"
)

const maxCommandLogLimit = 500

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by the AdminKey middleware.
type AdminHandler struct {
	db     *gorm.DB
	wm     *world.WorldManager
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, wm *world.WorldManager, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, wm: wm, sched: sched, logger: logger}
}

// Register mounts the admin routes on g (normally /api/admin).
func (h *AdminHandler) Register(g *gin.RouterGroup) {
	g.GET("/metrics", h.Metrics)
	g.GET("/agents", h.ListAgents)
	g.GET("/scheduler", h.ListSchedulerTasks)
	g.POST("/scheduler/:name/run", h.RunSchedulerTask)
	g.GET("/commands", h.ListCommands)
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_agents":   h.wm.Count(),
		"scheduler_tasks": len(h.sched.Tasks()),
	})
}

// ListAgents returns the latest snapshot of every agent.
// GET /api/admin/agents
func (h *AdminHandler) ListAgents(c *gin.Context) {
	snaps := h.wm.Snapshots()
	c.JSON(http.StatusOK, gin.H{"agents": snaps, "count": len(snaps)})
}

// ListSchedulerTasks returns every registered task with its run statistics.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// RunSchedulerTask runs a task immediately.
// POST /api/admin/scheduler/:name/run
func (h *AdminHandler) RunSchedulerTask(c *gin.Context) {
	name := c.Param("name")
	err := h.sched.RunNow(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownTask):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("admin ran scheduler task", zap.String("task", name))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListCommands returns the newest command log entries, optionally for one agent.
// GET /api/admin/commands?agent_id=&limit=
func (h *AdminHandler) ListCommands(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxCommandLogLimit)
	}
	q := h.db.WithContext(c.Request.Context()).Order("id DESC").Limit(limit)
	if id := c.Query("agent_id"); id != "" {
		q = q.Where("agent_id = ?", id)
	}
	var logs []model.CommandLog
	if err := q.Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"commands": logs})
}

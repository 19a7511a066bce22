package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kasuganosora/stalker/audit"
	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/game/save"
	"github.com/kasuganosora/stalker/game/spatial"
	"github.com/kasuganosora/stalker/game/world"
	mw "github.com/kasuganosora/stalker/middleware"
	"github.com/kasuganosora/stalker/model"
)

// Saves is the persistence the agent routes need.
type Saves interface {
	Save(ctx context.Context, slot, agentID string, st *brain.State) error
	Load(ctx context.Context, slot string) (*brain.State, error)
	List(ctx context.Context, agentID string) ([]model.AgentSave, error)
	Delete(ctx context.Context, slot string) error
}

// Auditor records commands. *audit.Service satisfies it.
type Auditor interface {
	Log(e audit.Entry)
}

// AgentHandler serves the agent command surface.
type AgentHandler struct {
	wm     *world.WorldManager
	saves  Saves
	audit  Auditor
	logger *zap.Logger
}

// NewAgentHandler creates an AgentHandler. audit may be nil.
func NewAgentHandler(wm *world.WorldManager, saves Saves, auditor Auditor, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{wm: wm, saves: saves, audit: auditor, logger: logger}
}

// Register mounts the agent routes on g (normally /api).
func (h *AgentHandler) Register(g *gin.RouterGroup) {
	g.GET("/agents", h.List)
	g.POST("/agents", h.Spawn)
	g.GET("/agents/:id", h.Get)
	g.DELETE("/agents/:id", h.Destroy)
	g.POST("/agents/:id/threat", h.SetThreat)
	g.POST("/agents/:id/threat/add", h.AddThreat)
	g.POST("/agents/:id/stage/front", h.FrontStage)
	g.POST("/agents/:id/stage/back", h.BackStage)
	g.POST("/agents/:id/pose", h.Pose)
	g.POST("/agents/:id/target", h.Target)
	g.POST("/agents/:id/save", h.Save)
	g.POST("/agents/:id/load", h.Load)
	g.GET("/agents/:id/saves", h.ListSaves)
	g.DELETE("/saves/:slot", h.DeleteSave)
}

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, world.ErrUnknownAgent), errors.Is(err, save.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, world.ErrAgentExists), errors.Is(err, world.ErrStopped):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, world.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, save.ErrCorrupt):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// command resolves the session, runs fn and logs the outcome to the audit
// trail. fn errors are written to the response.
func (h *AgentHandler) command(c *gin.Context, name string, args interface{}, fn func(s *world.Session) error) bool {
	start := time.Now()
	id := c.Param("id")
	s, err := h.wm.Get(id)
	if err == nil {
		err = fn(s)
	}
	if h.audit != nil {
		e := audit.Entry{
			TraceID:    mw.GetTraceID(c),
			AgentID:    id,
			Command:    name,
			Args:       args,
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if err != nil {
			e.Error = err.Error()
		}
		h.audit.Log(e)
	}
	if err != nil {
		writeError(c, err)
		return false
	}
	return true
}

func accepted(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

// List handles GET /api/agents.
func (h *AgentHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.wm.IDs()})
}

// Spawn handles POST /api/agents. An empty id gets a generated one.
func (h *AgentHandler) Spawn(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"max=64"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.wm.Spawn(req.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": s.ID()})
}

// Get handles GET /api/agents/:id.
func (h *AgentHandler) Get(c *gin.Context) {
	s, err := h.wm.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// Destroy handles DELETE /api/agents/:id.
func (h *AgentHandler) Destroy(c *gin.Context) {
	if err := h.wm.Destroy(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type threatRequest struct {
	Value *int `json:"value" binding:"required"`
}

// SetThreat handles POST /api/agents/:id/threat.
func (h *AgentHandler) SetThreat(c *gin.Context) {
	var req threatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.command(c, "set_threat", req, func(s *world.Session) error { return s.SetThreat(*req.Value) }) {
		accepted(c)
	}
}

type addThreatRequest struct {
	Delta *int `json:"delta" binding:"required"`
}

// AddThreat handles POST /api/agents/:id/threat/add.
func (h *AgentHandler) AddThreat(c *gin.Context) {
	var req addThreatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.command(c, "add_threat", req, func(s *world.Session) error { return s.AddThreat(*req.Delta) }) {
		accepted(c)
	}
}

// FrontStage handles POST /api/agents/:id/stage/front.
func (h *AgentHandler) FrontStage(c *gin.Context) {
	if h.command(c, "send_front_stage", nil, (*world.Session).SendFrontStage) {
		accepted(c)
	}
}

// BackStage handles POST /api/agents/:id/stage/back.
func (h *AgentHandler) BackStage(c *gin.Context) {
	if h.command(c, "send_back_stage", nil, (*world.Session).SendBackStage) {
		accepted(c)
	}
}

type poseRequest struct {
	Position *spatial.Vec `json:"position" binding:"required"`
	Yaw      float64      `json:"yaw"`
}

// Pose handles POST /api/agents/:id/pose.
func (h *AgentHandler) Pose(c *gin.Context) {
	var req poseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pose := brain.Pose{Position: *req.Position, Yaw: req.Yaw}
	if h.command(c, "apply_saved_pose", req, func(s *world.Session) error { return s.ApplySavedPose(pose) }) {
		accepted(c)
	}
}

type targetRequest struct {
	Position *spatial.Vec `json:"position" binding:"required"`
}

// Target handles POST /api/agents/:id/target.
func (h *AgentHandler) Target(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.command(c, "move_target", req, func(s *world.Session) error { return s.MoveTarget(*req.Position) }) {
		accepted(c)
	}
}

type slotRequest struct {
	Slot string `json:"slot" binding:"max=64"`
}

// slot reads the optional body; the default slot is "manual-<id>".
func slot(c *gin.Context) (string, bool) {
	var req slotRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return "", false
		}
	}
	if req.Slot == "" {
		req.Slot = "manual-" + c.Param("id")
	}
	return req.Slot, true
}

// Save handles POST /api/agents/:id/save. It persists the state published at
// the last tick boundary.
func (h *AgentHandler) Save(c *gin.Context) {
	name, ok := slot(c)
	if !ok {
		return
	}
	var snap world.Snapshot
	saved := h.command(c, "save", slotRequest{Slot: name}, func(s *world.Session) error {
		snap = s.Snapshot()
		return h.saves.Save(c.Request.Context(), name, s.ID(), snap.State)
	})
	if saved {
		c.JSON(http.StatusOK, gin.H{"slot": name, "tick": snap.Tick, "mode": snap.State.Mode})
	}
}

// Load handles POST /api/agents/:id/load. The restore is applied at the start
// of the next tick.
func (h *AgentHandler) Load(c *gin.Context) {
	name, ok := slot(c)
	if !ok {
		return
	}
	var st *brain.State
	loaded := h.command(c, "load", slotRequest{Slot: name}, func(s *world.Session) error {
		var err error
		if st, err = h.saves.Load(c.Request.Context(), name); err != nil {
			return err
		}
		return s.Restore(st)
	})
	if loaded {
		c.JSON(http.StatusAccepted, gin.H{"slot": name, "mode": st.Mode})
	}
}

// ListSaves handles GET /api/agents/:id/saves.
func (h *AgentHandler) ListSaves(c *gin.Context) {
	saves, err := h.saves.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saves": saves})
}

// DeleteSave handles DELETE /api/saves/:slot.
func (h *AgentHandler) DeleteSave(c *gin.Context) {
	if err := h.saves.Delete(c.Request.Context(), c.Param("slot")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

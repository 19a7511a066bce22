// Package perception decides whether the agent can see the target.
package perception

import (
	"time"

	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/game/spatial"
)

// Config tunes the perception model.
type Config struct {
	// Interval is the minimum time between raw occlusion checks.
	Interval time.Duration `mapstructure:"interval"`
	// Grace keeps a failed check reporting visible for this long after the
	// last successful one.
	Grace time.Duration `mapstructure:"grace"`
	// TargetTag is the collider tag of the target; a hit on it is not an occluder.
	TargetTag string `mapstructure:"target_tag"`
	// Mask selects the collider categories a ray considers.
	Mask spatial.Mask `mapstructure:"mask"`
}

// DefaultConfig returns the tuning used when none is configured.
func DefaultConfig() Config {
	return Config{
		Interval:  100 * time.Millisecond,
		Grace:     350 * time.Millisecond,
		TargetTag: "player",
		Mask:      spatial.MaskSight,
	}
}

// Result is the outcome of one evaluation.
type Result struct {
	HasLineOfSight    bool
	LastKnownPosition spatial.Vec
	HasLastKnown      bool
	// Evaluated is true when a raw check ran this call.
	Evaluated bool
}

// Model evaluates sight for one agent. It keeps no state of its own; the
// throttle and grace bookkeeping lives in the brain.Sight block and the
// last-known estimate in the owning brain.State.
type Model struct {
	cfg Config
	svc spatial.QueryService
}

// New creates a Model. A zero Mask selects MaskSight.
func New(cfg Config, svc spatial.QueryService) *Model {
	if cfg.Mask == 0 {
		cfg.Mask = spatial.MaskSight
	}
	return &Model{cfg: cfg, svc: spatial.OrEuclidean(svc)}
}

// Config returns the model's tuning.
func (m *Model) Config() Config { return m.cfg }

// Visible runs the raw occlusion test without touching any bookkeeping.
func (m *Model) Visible(eye, target spatial.Vec) bool {
	hit, ok := m.svc.RaycastOcclusion(eye, target, m.cfg.Mask)
	if !ok {
		return true
	}
	return m.cfg.TargetTag != "" && hit.Tag == m.cfg.TargetTag
}

// Evaluate updates sight for this tick and returns the current verdict.
// lastKnown is written only when the verdict is true.
func (m *Model) Evaluate(st *brain.State, eye, target spatial.Vec, now time.Duration) Result {
	s := &st.Sight
	res := Result{Evaluated: !s.Evaluated || now >= s.NextEvalAt}
	if res.Evaluated {
		raw := m.Visible(eye, target)
		visible := raw
		if raw {
			s.LastRawSight = now
			s.EverSighted = true
		} else if s.EverSighted && now-s.LastRawSight <= m.cfg.Grace {
			visible = true
		}
		s.Visible = visible
		s.Evaluated = true
		s.NextEvalAt = now + m.cfg.Interval
	}

	res.HasLineOfSight = s.Visible
	if res.HasLineOfSight && res.Evaluated {
		st.LastKnownTargetPosition = target
		st.HasLastKnown = true
	}
	res.LastKnownPosition = st.LastKnownTargetPosition
	res.HasLastKnown = st.HasLastKnown
	return res
}

package planner

import (
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/game/spatial"
)

// StuckConfig tunes stuck detection and detours.
type StuckConfig struct {
	// MinSpeed is the ground speed below which the agent counts as stalled.
	MinSpeed float64 `mapstructure:"min_speed"`
	// Threshold is the stalled time that triggers a recovery.
	Threshold time.Duration `mapstructure:"threshold"`
	// Cooldown is the minimum time between two recoveries.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// ProbeDistance is the length of the four lateral probes.
	ProbeDistance float64 `mapstructure:"probe_distance"`
	// DetourDistance is how far the escape point lies from the agent.
	DetourDistance float64 `mapstructure:"detour_distance"`
	// DetourTimeout abandons a detour that was not reached.
	DetourTimeout time.Duration `mapstructure:"detour_timeout"`
	// ArriveDistance completes a detour.
	ArriveDistance float64 `mapstructure:"arrive_distance"`
	// Budget is the number of detours per navigation episode.
	Budget int `mapstructure:"budget"`
}

func DefaultStuckConfig() StuckConfig {
	return StuckConfig{
		MinSpeed:       0.2,
		Threshold:      time.Second,
		Cooldown:       1500 * time.Millisecond,
		ProbeDistance:  1,
		DetourDistance: 2.5,
		DetourTimeout:  3 * time.Second,
		ArriveDistance: 0.4,
		Budget:         3,
	}
}

// StuckResult is what the controller should do this tick.
type StuckResult struct {
	// Detour replaces the current destination while HasDetour is set.
	Detour    spatial.Vec
	HasDetour bool
	// Exhausted reports that the agent is stuck again with no detours left.
	Exhausted bool
}

// probes are the four lateral directions tested for blockage.
var probes = [4]spatial.Vec{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}

// StuckRecovery watches positional progress and injects detour destinations.
type StuckRecovery struct {
	cfg    StuckConfig
	svc    spatial.QueryService
	rng    *rand.Rand
	snap   float64
	logger *zap.Logger
}

// NewStuckRecovery creates a StuckRecovery. Detours are snapped to walkable
// ground within snapRadius.
func NewStuckRecovery(cfg StuckConfig, svc spatial.QueryService, rng *rand.Rand, snapRadius float64, logger *zap.Logger) *StuckRecovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StuckRecovery{cfg: cfg, svc: spatial.OrEuclidean(svc), rng: rng, snap: snapRadius, logger: logger}
}

// Reset starts a new navigation episode.
func Reset(st *brain.Stuck) {
	*st = brain.Stuck{}
}

// Tick advances stuck detection by dt.
func (s *StuckRecovery) Tick(st *brain.Stuck, pos spatial.Vec, wantsToMove bool, dt time.Duration, now time.Duration) StuckResult {
	if !wantsToMove {
		st.StuckFor = 0
		st.LastPosition, st.HasLast = pos, true
		st.HasDetour = false
		return StuckResult{}
	}
	if st.HasLast && dt > 0 {
		speed := spatial.HorizontalDist(pos, st.LastPosition) / dt.Seconds()
		if speed < s.cfg.MinSpeed {
			st.StuckFor += dt
		} else {
			st.StuckFor = 0
		}
	}
	st.LastPosition, st.HasLast = pos, true

	if st.HasDetour {
		st.DetourFor += dt
		if spatial.WithinSq(pos, st.Detour, s.cfg.ArriveDistance) || st.DetourFor >= s.cfg.DetourTimeout {
			st.HasDetour = false
		}
	}

	if st.StuckFor >= s.cfg.Threshold && (!st.Recovered || now-st.LastRecoveryAt >= s.cfg.Cooldown) {
		if st.Detours >= s.cfg.Budget {
			return StuckResult{Exhausted: true}
		}
		st.Detour = s.escape(pos)
		st.HasDetour = true
		st.DetourFor = 0
		st.Detours++
		st.Recovered = true
		st.LastRecoveryAt = now
		st.StuckFor = 0
		s.logger.Debug("stuck detour issued",
			zap.Int("detours", st.Detours),
			zap.Float64("x", st.Detour.X), zap.Float64("z", st.Detour.Z))
	}

	if st.HasDetour {
		return StuckResult{Detour: st.Detour, HasDetour: true}
	}
	return StuckResult{}
}

// escape points away from the blocked probe directions.
func (s *StuckRecovery) escape(pos spatial.Vec) spatial.Vec {
	var sum spatial.Vec
	blocked := 0
	for _, d := range probes {
		end := spatial.Offset(pos, d, s.cfg.ProbeDistance)
		if _, hit := s.svc.RaycastOcclusion(pos, end, spatial.MaskWorld); hit {
			sum = r3.Sub(sum, d)
			blocked++
		}
	}
	dir, ok := spatial.HorizontalDir(spatial.Vec{}, sum)
	if blocked == 0 || blocked == len(probes) || !ok {
		dir = spatial.Polar(s.rng.Float64() * 2 * math.Pi)
	}
	target := spatial.Offset(pos, dir, s.cfg.DetourDistance)
	if w, ok := s.svc.NearestWalkable(target, s.snap); ok {
		return w
	}
	return target
}

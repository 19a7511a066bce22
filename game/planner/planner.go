// Package planner picks navigation destinations and recovers an agent that
// stopped making progress.
package planner

import (
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/kasuganosora/stalker/game/spatial"
)

// Config tunes destination sampling.
type Config struct {
	// Attempts is the number of random samples tried before falling back.
	Attempts int `mapstructure:"attempts"`
	// SnapRadius bounds the NearestWalkable projection of a sample.
	SnapRadius float64 `mapstructure:"snap_radius"`
	// BackstageSpread scales the outer radius of the backstage annulus
	// relative to the required distance.
	BackstageSpread float64 `mapstructure:"backstage_spread"`
}

func DefaultConfig() Config {
	return Config{
		Attempts:        12,
		SnapRadius:      2,
		BackstageSpread: 1.5,
	}
}

// Planner samples destinations in annuli and filters them against the
// query service. Every pick returns a usable point; the second return value
// is false when the deterministic fallback was used.
type Planner struct {
	cfg    Config
	svc    spatial.QueryService
	rng    *rand.Rand
	logger *zap.Logger
}

// New creates a planner drawing from rng. A nil svc selects the Euclidean fallback.
func New(cfg Config, svc spatial.QueryService, rng *rand.Rand, logger *zap.Logger) *Planner {
	if cfg.BackstageSpread < 1 {
		cfg.BackstageSpread = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{cfg: cfg, svc: spatial.OrEuclidean(svc), rng: rng, logger: logger}
}

// sample returns a uniformly distributed point in the ground-plane annulus
// [inner, outer] around c.
func (p *Planner) sample(c spatial.Vec, inner, outer float64) spatial.Vec {
	if inner > outer {
		inner, outer = outer, inner
	}
	if inner < 0 {
		inner = 0
	}
	a := p.rng.Float64() * 2 * math.Pi
	r := math.Sqrt(inner*inner + p.rng.Float64()*(outer*outer-inner*inner))
	pt := spatial.Offset(c, spatial.Polar(a), r)
	pt.Y = c.Y
	return pt
}

// accept snaps pt to walkable space and checks it is reachable from from.
func (p *Planner) accept(pt, from spatial.Vec) (spatial.Vec, bool) {
	w, ok := p.svc.NearestWalkable(pt, p.cfg.SnapRadius)
	if !ok {
		return spatial.Vec{}, false
	}
	if !spatial.SameRegion(p.svc, from, w) || !p.svc.PathExists(from, w) {
		return spatial.Vec{}, false
	}
	return w, true
}

func (p *Planner) project(pt spatial.Vec) spatial.Vec {
	if w, ok := p.svc.NearestWalkable(pt, p.cfg.SnapRadius); ok {
		return w
	}
	return pt
}

// away is the point at distance dist from target on the side of from.
func away(target, from spatial.Vec, dist float64) spatial.Vec {
	dir, ok := spatial.HorizontalDir(target, from)
	if !ok {
		dir = spatial.Vec{X: 1}
	}
	pt := spatial.Offset(target, dir, dist)
	pt.Y = from.Y
	return pt
}

// PickRoam picks a reachable point between minDist and radius of center.
// Falls back to the walkable projection of center.
func (p *Planner) PickRoam(center, from spatial.Vec, minDist, radius float64) (spatial.Vec, bool) {
	for i := 0; i < p.cfg.Attempts; i++ {
		pt, ok := p.accept(p.sample(center, minDist, radius), from)
		if !ok {
			continue
		}
		d := spatial.HorizontalDistSq(pt, center)
		if d < minDist*minDist || d > radius*radius {
			continue
		}
		return pt, true
	}
	p.logger.Debug("roam pick fell back to origin", zap.Int("attempts", p.cfg.Attempts))
	return p.project(center), false
}

// PickInvestigate picks a reachable point within jitter of near.
func (p *Planner) PickInvestigate(near, from spatial.Vec, jitter float64) (spatial.Vec, bool) {
	if jitter > 0 {
		for i := 0; i < p.cfg.Attempts; i++ {
			if pt, ok := p.accept(p.sample(near, 0, jitter), from); ok {
				return pt, true
			}
		}
	}
	return p.project(near), false
}

// PickBackstage picks a reachable point at least required away from target.
// Falls back to the point directly away from target at required distance.
func (p *Planner) PickBackstage(target, from spatial.Vec, required float64) (spatial.Vec, bool) {
	outer := required * p.cfg.BackstageSpread
	for i := 0; i < p.cfg.Attempts; i++ {
		pt, ok := p.accept(p.sample(target, required, outer), from)
		if !ok || !meetsDistance(pt, target, required) {
			continue
		}
		return pt, true
	}
	p.logger.Debug("backstage pick fell back to away-from-target",
		zap.Float64("required", required), zap.Int("attempts", p.cfg.Attempts))
	return p.project(away(target, from, required)), false
}

// PickFrontstageReveal picks a point between minDist and maxDist of target
// from which the target can be reached. The agent is relocated there while
// hidden, so reachability is checked toward the target rather than from the
// agent's parked position.
func (p *Planner) PickFrontstageReveal(target, from spatial.Vec, minDist, maxDist float64) (spatial.Vec, bool) {
	for i := 0; i < p.cfg.Attempts; i++ {
		pt, ok := p.accept(p.sample(target, minDist, maxDist), target)
		if !ok || !meetsDistance(pt, target, minDist) {
			continue
		}
		return pt, true
	}
	p.logger.Debug("reveal pick fell back to away-from-target", zap.Float64("min_distance", minDist))
	return p.project(away(target, from, minDist)), false
}

func meetsDistance(pt, target spatial.Vec, required float64) bool {
	return spatial.HorizontalDistSq(pt, target) >= required*required
}

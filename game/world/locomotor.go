package world

import (
	"time"

	"github.com/kasuganosora/stalker/game/ai"
	"github.com/kasuganosora/stalker/game/spatial"
)

// Pather is implemented by spatial services that can produce waypoints.
type Pather interface {
	Path(from, to spatial.Vec) []spatial.Vec
}

// Locomotor moves the agent toward the controller's intent. It keeps no path
// between ticks: the route is recomputed from the current position every step,
// so a restored session moves exactly like the one that was saved.
type Locomotor struct {
	svc    spatial.QueryService
	pather Pather
}

// NewLocomotor uses svc for walkability checks and, when svc implements
// Pather, for routing. Otherwise the agent walks straight lines.
func NewLocomotor(svc spatial.QueryService) *Locomotor {
	svc = spatial.OrEuclidean(svc)
	l := &Locomotor{svc: svc}
	if p, ok := svc.(Pather); ok {
		l.pather = p
	}
	return l
}

// Step returns the position reached after following it for dt.
func (l *Locomotor) Step(pos spatial.Vec, it ai.Intent, dt time.Duration) spatial.Vec {
	if !it.Moving || !it.HasDestination || it.Speed <= 0 || dt <= 0 {
		return pos
	}
	budget := it.Speed * dt.Seconds()

	if it.Direct || l.pather == nil {
		next := toward(pos, it.Destination, budget)
		if l.walkable(next) {
			return next
		}
		if l.pather == nil {
			return pos
		}
	}

	waypoints := l.pather.Path(pos, it.Destination)
	if waypoints == nil {
		return pos
	}
	if len(waypoints) == 0 {
		waypoints = []spatial.Vec{it.Destination}
	}
	for _, w := range waypoints {
		d := spatial.HorizontalDist(pos, w)
		if d > budget {
			return toward(pos, w, budget)
		}
		pos = w
		budget -= d
	}
	return pos
}

func (l *Locomotor) walkable(p spatial.Vec) bool {
	_, ok := l.svc.NearestWalkable(p, 0)
	return ok
}

// toward moves at most dist from p toward dest on the ground plane, easing
// height linearly with the horizontal progress.
func toward(p, dest spatial.Vec, dist float64) spatial.Vec {
	d := spatial.HorizontalDist(p, dest)
	if d <= dist || d == 0 {
		return dest
	}
	t := dist / d
	return spatial.Vec{
		X: p.X + (dest.X-p.X)*t,
		Y: p.Y + (dest.Y-p.Y)*t,
		Z: p.Z + (dest.Z-p.Z)*t,
	}
}

package planner

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/game/spatial"
)

func openGrid(n int) *spatial.Grid {
	g := spatial.NewGrid(n, n, 1, spatial.Vec{})
	g.Build()
	return g
}

// walledGrid is 10x10 with a closed wall column at x=5.
func walledGrid() *spatial.Grid {
	g := spatial.NewGrid(10, 10, 1, spatial.Vec{})
	for z := 0; z < 10; z++ {
		g.SetBlocked(spatial.Cell{X: 5, Z: z}, true)
	}
	g.Build()
	return g
}

func newPlanner(cfg Config, svc spatial.QueryService) *Planner {
	return New(cfg, svc, rand.New(rand.NewSource(1)), zap.NewNop())
}

func TestPickRoam_WithinAnnulus(t *testing.T) {
	p := newPlanner(DefaultConfig(), openGrid(20))
	center := spatial.Vec{X: 10, Z: 10}
	for i := 0; i < 50; i++ {
		pt, sampled := p.PickRoam(center, spatial.Vec{X: 3, Z: 3}, 2, 5)
		require.True(t, sampled)
		d := spatial.HorizontalDist(pt, center)
		assert.GreaterOrEqual(t, d, 2.0)
		assert.LessOrEqual(t, d, 5.0)
	}
}

func TestPickRoam_UnreachableFallsBackToCenter(t *testing.T) {
	p := newPlanner(DefaultConfig(), walledGrid())
	center := spatial.Vec{X: 7.5, Z: 2.5}
	pt, sampled := p.PickRoam(center, spatial.Vec{X: 2.5, Z: 2.5}, 0.5, 1.5)
	assert.False(t, sampled)
	assert.Equal(t, center, pt)
}

func TestPickRoam_ZeroAttemptsForcesFallback(t *testing.T) {
	p := newPlanner(Config{Attempts: 0, SnapRadius: 2}, openGrid(10))
	pt, sampled := p.PickRoam(spatial.Vec{X: 4, Z: 4}, spatial.Vec{}, 1, 3)
	assert.False(t, sampled)
	assert.Equal(t, spatial.Vec{X: 4, Z: 4}, pt)
}

func TestPickBackstage_MeetsRequiredDistance(t *testing.T) {
	p := newPlanner(DefaultConfig(), openGrid(30))
	target := spatial.Vec{X: 15, Z: 15}
	for i := 0; i < 20; i++ {
		pt, sampled := p.PickBackstage(target, spatial.Vec{X: 14, Z: 15}, 6)
		require.True(t, sampled)
		assert.GreaterOrEqual(t, spatial.HorizontalDist(pt, target), 6.0)
	}
}

func TestPickBackstage_FallbackAwayFromTarget(t *testing.T) {
	cfg := Config{Attempts: 8, SnapRadius: 20, BackstageSpread: 1.5}
	p := newPlanner(cfg, openGrid(10))
	target := spatial.Vec{X: 5.5, Z: 5.5}
	from := spatial.Vec{X: 8.5, Z: 5.5}

	// No walkable point on a 10x10 grid is 20 units from its middle.
	pt, sampled := p.PickBackstage(target, from, 20)
	assert.False(t, sampled)
	assert.Equal(t, spatial.Vec{X: 9.5, Z: 5.5}, pt, "away point projected onto the nearest walkable cell")
}

func TestPickBackstage_FallbackIsDeterministic(t *testing.T) {
	cfg := Config{Attempts: 0, SnapRadius: 2}
	a := newPlanner(cfg, openGrid(10))
	b := New(cfg, openGrid(10), rand.New(rand.NewSource(99)), nil)
	target := spatial.Vec{X: 5.5, Z: 5.5}
	from := spatial.Vec{X: 2.5, Z: 5.5}

	pa, _ := a.PickBackstage(target, from, 6)
	pb, _ := b.PickBackstage(target, from, 6)
	assert.Equal(t, pa, pb)
	assert.Equal(t, spatial.Vec{X: 0.5, Z: 5.5}, pa)
}

func TestPickBackstage_EuclideanFallback(t *testing.T) {
	p := newPlanner(Config{Attempts: 0}, nil)
	pt, sampled := p.PickBackstage(spatial.Vec{}, spatial.Vec{}, 4)
	assert.False(t, sampled)
	assert.Equal(t, spatial.Vec{X: 4}, pt, "coincident target and mover fall back to +X")
}

func TestPickFrontstageReveal_ReachableFromTarget(t *testing.T) {
	p := newPlanner(DefaultConfig(), walledGrid())
	target := spatial.Vec{X: 2.5, Z: 5}
	parked := spatial.Vec{X: 8.5, Z: 5}
	for i := 0; i < 20; i++ {
		pt, sampled := p.PickFrontstageReveal(target, parked, 2, 3)
		if !sampled {
			continue
		}
		assert.Less(t, pt.X, 5.0, "reveal point stays on the target's side of the wall")
		assert.GreaterOrEqual(t, spatial.HorizontalDist(pt, target), 2.0)
	}
}

func TestPickInvestigate(t *testing.T) {
	p := newPlanner(DefaultConfig(), openGrid(10))
	near := spatial.Vec{X: 5, Z: 5}

	pt, sampled := p.PickInvestigate(near, spatial.Vec{X: 1, Z: 1}, 1)
	assert.True(t, sampled)
	assert.LessOrEqual(t, spatial.HorizontalDist(pt, near), 1.0)

	pt, sampled = p.PickInvestigate(near, spatial.Vec{X: 1, Z: 1}, 0)
	assert.False(t, sampled)
	assert.Equal(t, near, pt)
}

func stuckConfig() StuckConfig {
	cfg := DefaultStuckConfig()
	cfg.Threshold = time.Second
	cfg.Cooldown = 0
	cfg.DetourDistance = 2.5
	cfg.Budget = 1
	return cfg
}

func TestStuck_EscapesAwayFromWall(t *testing.T) {
	s := NewStuckRecovery(stuckConfig(), walledGrid(), rand.New(rand.NewSource(1)), 1, zap.NewNop())
	var st brain.Stuck
	pos := spatial.Vec{X: 4.5, Z: 2.5}
	dt := 100 * time.Millisecond

	var res StuckResult
	for i := 0; i <= 10; i++ {
		res = s.Tick(&st, pos, true, dt, time.Duration(i)*dt)
		if i < 10 {
			require.False(t, res.HasDetour, "tick %d", i)
		}
	}
	require.True(t, res.HasDetour)
	assert.Equal(t, spatial.Vec{X: 2, Z: 2.5}, res.Detour)
	assert.Equal(t, 1, st.Detours)
}

func TestStuck_BudgetExhausted(t *testing.T) {
	s := NewStuckRecovery(stuckConfig(), nil, rand.New(rand.NewSource(1)), 1, nil)
	var st brain.Stuck
	dt := 100 * time.Millisecond
	exhausted := false
	for i := 0; i < 40 && !exhausted; i++ {
		exhausted = s.Tick(&st, spatial.Vec{}, true, dt, time.Duration(i)*dt).Exhausted
	}
	assert.True(t, exhausted)
	assert.Equal(t, 1, st.Detours)
}

func TestStuck_RandomEscapeInOpenField(t *testing.T) {
	cfg := stuckConfig()
	s := NewStuckRecovery(cfg, nil, rand.New(rand.NewSource(5)), 1, nil)
	st := brain.Stuck{HasLast: true, StuckFor: cfg.Threshold}
	res := s.Tick(&st, spatial.Vec{}, true, 100*time.Millisecond, 0)
	require.True(t, res.HasDetour)
	assert.InDelta(t, cfg.DetourDistance, spatial.HorizontalDist(res.Detour, spatial.Vec{}), 1e-9)
}

func TestStuck_ProgressAndIdleReset(t *testing.T) {
	s := NewStuckRecovery(stuckConfig(), nil, rand.New(rand.NewSource(1)), 1, nil)
	var st brain.Stuck
	dt := 100 * time.Millisecond
	s.Tick(&st, spatial.Vec{}, true, dt, 0)
	s.Tick(&st, spatial.Vec{}, true, dt, dt)
	assert.Equal(t, dt, st.StuckFor)

	s.Tick(&st, spatial.Vec{X: 1}, true, dt, 2*dt)
	assert.Zero(t, st.StuckFor, "moving at 10 u/s clears the stall")

	s.Tick(&st, spatial.Vec{X: 1}, true, dt, 3*dt)
	s.Tick(&st, spatial.Vec{X: 1}, false, dt, 4*dt)
	assert.Zero(t, st.StuckFor)

	st.Detours = 2
	Reset(&st)
	assert.Equal(t, brain.Stuck{}, st)
}

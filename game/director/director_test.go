package director

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/game/planner"
	"github.com/kasuganosora/stalker/game/spatial"
)

func newDirector(cfg Config) *Director {
	return New(cfg, planner.DefaultConfig(), nil, zap.NewNop())
}

func TestDirector_Hysteresis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecayPerSecond = 0
	d := newDirector(cfg)
	st := brain.NewState(1, true, brain.Pose{})
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 2000; i++ {
		d.SetThreat(st, rng.Intn(101))
		before := st.FrontStageIntent
		d.Tick(st, Input{Dt: 100 * time.Millisecond})
		after := st.FrontStageIntent
		switch {
		case !before && after:
			require.GreaterOrEqual(t, st.Threat, cfg.UpperThreshold, "step %d", i)
		case before && !after:
			require.LessOrEqual(t, st.Threat, cfg.LowerThreshold, "step %d", i)
		}
		if st.Threat > cfg.LowerThreshold && st.Threat < cfg.UpperThreshold {
			require.Equal(t, before, after, "step %d: threat %d between thresholds", i, st.Threat)
		}
	}
}

func TestDirector_InitialIntentIsKept(t *testing.T) {
	d := newDirector(DefaultConfig())
	st := brain.NewState(1, true, brain.Pose{})
	d.Tick(st, Input{Dt: 100 * time.Millisecond})
	assert.True(t, st.FrontStageIntent, "threat 0 on the first tick is not a crossing")
}

func TestDirector_CommandsStick(t *testing.T) {
	d := newDirector(DefaultConfig())
	st := brain.NewState(1, true, brain.Pose{})
	d.SetThreat(st, 80)
	d.Tick(st, Input{Dt: 100 * time.Millisecond})

	d.SendBackStage(st)
	d.Tick(st, Input{Dt: 100 * time.Millisecond})
	assert.False(t, st.FrontStageIntent)
	assert.True(t, d.Levers(st).WantsBackstage)

	d.SendFrontStage(st)
	assert.True(t, st.FrontStageIntent)
	assert.False(t, st.HasBackstageDestination)
}

func TestDirector_EngagementFloor(t *testing.T) {
	cfg := DefaultConfig()
	d := newDirector(cfg)
	for _, m := range []brain.Mode{brain.ModeInvestigating, brain.ModeHunting, brain.ModeKilling} {
		st := brain.NewState(1, true, brain.Pose{})
		st.Enter(m, brain.DefaultPhase(m))
		st.SetThreat(5)
		d.Tick(st, Input{Dt: time.Second})
		assert.GreaterOrEqual(t, st.Threat, cfg.FrontStageThreshold, m.String())

		st.SetThreat(5)
		d.Settle(st)
		assert.Equal(t, cfg.FrontStageThreshold, st.Threat, m.String())
	}

	st := brain.NewState(1, true, brain.Pose{})
	st.SetThreat(5)
	d.Settle(st)
	assert.Equal(t, 5, st.Threat, "roaming is not engaged")
}

func TestDirector_LinearDecay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecayPerSecond = 2
	d := newDirector(cfg)
	st := brain.NewState(1, true, brain.Pose{})
	d.SetThreat(st, 50)
	for i := 0; i < 4; i++ {
		d.Tick(st, Input{Dt: 500 * time.Millisecond})
	}
	assert.Equal(t, 46, st.Threat)

	d.SetThreat(st, 1)
	for i := 0; i < 10; i++ {
		d.Tick(st, Input{Dt: time.Second})
	}
	assert.Zero(t, st.Threat)
}

func TestDirector_HintSmoothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HintNoiseMax, cfg.HintNoiseMin = 0, 0
	cfg.HintInterval = 100 * time.Millisecond
	cfg.HintSmoothing = time.Second
	d := newDirector(cfg)
	st := brain.NewState(1, true, brain.Pose{})

	dt := 100 * time.Millisecond
	d.Tick(st, Input{Dt: dt, Target: spatial.Vec{X: 10}})
	assert.Equal(t, spatial.Vec{X: 10}, st.PlayerLocationHint, "first estimate seeds the hint")

	d.Tick(st, Input{Dt: dt, Target: spatial.Vec{X: 20}})
	alpha := 1 - math.Exp(-0.1)
	assert.InDelta(t, 10+10*alpha, st.PlayerLocationHint.X, 1e-9)
	assert.Less(t, st.PlayerLocationHint.X, 20.0, "hint drifts instead of snapping")
	assert.Equal(t, st.PlayerLocationHint, d.Levers(st).RoamCenter)
}

func TestDirector_HintNoiseScalesWithThreat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HintInterval = time.Millisecond
	cfg.DecayPerSecond = 0
	d := newDirector(cfg)

	assert.Equal(t, cfg.HintNoiseMax, d.NoiseRadius(0))
	assert.Equal(t, cfg.HintNoiseMin, d.NoiseRadius(100))
	assert.InDelta(t, (cfg.HintNoiseMax+cfg.HintNoiseMin)/2, d.NoiseRadius(50), 1e-9)

	for _, threat := range []int{0, 40, 100} {
		st := brain.NewState(int64(threat), true, brain.Pose{})
		d.SetThreat(st, threat)
		target := spatial.Vec{X: 5, Z: -3}
		for i := 0; i < 100; i++ {
			d.Tick(st, Input{Dt: 10 * time.Millisecond, Target: target})
			require.LessOrEqual(t, spatial.HorizontalDist(st.HintEstimate, target), d.NoiseRadius(threat)+1e-9)
		}
	}
}

func TestDirector_LeversFollowThreat(t *testing.T) {
	cfg := DefaultConfig()
	d := newDirector(cfg)
	st := brain.NewState(1, true, brain.Pose{})

	low := d.Levers(st)
	assert.Equal(t, cfg.RoamRadiusMax, low.RoamRadius)
	assert.Equal(t, cfg.MinRoamDistanceMax, low.MinRoamDistance)
	assert.Equal(t, cfg.ChaseRangeMin, low.ChaseRange)
	assert.False(t, low.WantsBackstage)

	st.SetThreat(100)
	high := d.Levers(st)
	assert.Equal(t, cfg.RoamRadiusMin, high.RoamRadius)
	assert.Equal(t, cfg.MinRoamDistanceMin, high.MinRoamDistance)
	assert.Equal(t, cfg.ChaseRangeMax, high.ChaseRange)
	assert.Equal(t, cfg.BackstageMinDistance, high.BackstageMinDistance)

	st.SetThreat(65)
	assert.Greater(t, d.Levers(st).ChaseRange, 3.0)
}

func TestDirector_BackstageDestination(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackstageRepickCooldown = time.Second
	d := newDirector(cfg)
	st := brain.NewState(1, true, brain.Pose{})
	target := spatial.Vec{X: 1, Z: 1}
	in := Input{Dt: 100 * time.Millisecond, Target: target}

	d.SendBackStage(st)
	d.Tick(st, in)
	require.True(t, st.HasBackstageDestination)
	first := st.BackstageDestination
	assert.GreaterOrEqual(t, spatial.HorizontalDist(first, target), cfg.BackstageMinDistance)

	st.BackstageRepickRequested = true
	for i := 0; i < 9; i++ {
		d.Tick(st, in)
		require.Equal(t, first, st.BackstageDestination, "cooldown holds the repick at tick %d", i)
	}
	d.Tick(st, in)
	assert.NotEqual(t, first, st.BackstageDestination)
}

func TestDirector_ThreatCommandsClamp(t *testing.T) {
	d := newDirector(DefaultConfig())
	st := brain.NewState(1, true, brain.Pose{})
	d.SetThreat(st, 150)
	assert.Equal(t, 100, st.Threat)
	d.AddThreat(st, -500)
	assert.Equal(t, 0, st.Threat)
	d.AddThreat(st, 30)
	assert.Equal(t, 30, st.Threat)
}

func TestDirector_Restore(t *testing.T) {
	d := newDirector(DefaultConfig())
	st := brain.NewState(1, false, brain.Pose{})
	st.BackstageIdle = true
	assert.True(t, d.Restore(st))
	assert.Equal(t, brain.ModeBackstageIdle, st.Mode)

	fresh := brain.NewState(1, true, brain.Pose{})
	assert.False(t, d.Restore(fresh))
}

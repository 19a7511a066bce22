package perception

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/game/spatial"
)

// scripted answers each raycast from a queue; an empty queue means clear.
type scripted struct {
	spatial.Euclidean
	hits  []*spatial.Hit
	calls int
}

func (s *scripted) RaycastOcclusion(_, _ spatial.Vec, _ spatial.Mask) (spatial.Hit, bool) {
	s.calls++
	if len(s.hits) == 0 {
		return spatial.Hit{}, false
	}
	h := s.hits[0]
	s.hits = s.hits[1:]
	if h == nil {
		return spatial.Hit{}, false
	}
	return *h, true
}

var wall = &spatial.Hit{Tag: "wall"}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Interval = 100 * time.Millisecond
	cfg.Grace = 300 * time.Millisecond
	return cfg
}

func TestEvaluate_NoGraceOnFirstCheck(t *testing.T) {
	svc := &scripted{hits: []*spatial.Hit{wall}}
	m := New(testConfig(), svc)
	st := brain.NewState(1, true, brain.Pose{})

	res := m.Evaluate(st, spatial.Vec{}, spatial.Vec{X: 3}, 0)
	assert.True(t, res.Evaluated)
	assert.False(t, res.HasLineOfSight)
	assert.False(t, res.HasLastKnown)
}

func TestEvaluate_TargetHitIsNotOccluder(t *testing.T) {
	svc := &scripted{hits: []*spatial.Hit{{Tag: "player"}}}
	m := New(testConfig(), svc)
	st := brain.NewState(1, true, brain.Pose{})

	res := m.Evaluate(st, spatial.Vec{}, spatial.Vec{X: 3}, 0)
	assert.True(t, res.HasLineOfSight)
	assert.Equal(t, spatial.Vec{X: 3}, res.LastKnownPosition)
}

func TestEvaluate_Throttled(t *testing.T) {
	svc := &scripted{}
	m := New(testConfig(), svc)
	st := brain.NewState(1, true, brain.Pose{})

	m.Evaluate(st, spatial.Vec{}, spatial.Vec{X: 3}, 0)
	res := m.Evaluate(st, spatial.Vec{}, spatial.Vec{X: 4}, 50*time.Millisecond)
	assert.False(t, res.Evaluated)
	assert.True(t, res.HasLineOfSight, "cached verdict is returned")
	assert.Equal(t, spatial.Vec{X: 3}, res.LastKnownPosition)
	assert.Equal(t, 1, svc.calls)

	res = m.Evaluate(st, spatial.Vec{}, spatial.Vec{X: 4}, 100*time.Millisecond)
	assert.True(t, res.Evaluated)
	assert.Equal(t, 2, svc.calls)
	assert.Equal(t, spatial.Vec{X: 4}, res.LastKnownPosition)
}

func TestEvaluate_GraceWindow(t *testing.T) {
	svc := &scripted{hits: []*spatial.Hit{nil, wall, wall, wall, wall}}
	m := New(testConfig(), svc)
	st := brain.NewState(1, true, brain.Pose{})

	ms := time.Millisecond
	assert.True(t, m.Evaluate(st, spatial.Vec{}, spatial.Vec{X: 1}, 0).HasLineOfSight)
	assert.True(t, m.Evaluate(st, spatial.Vec{}, spatial.Vec{X: 2}, 100*ms).HasLineOfSight)
	assert.True(t, m.Evaluate(st, spatial.Vec{}, spatial.Vec{X: 3}, 300*ms).HasLineOfSight)
	res := m.Evaluate(st, spatial.Vec{}, spatial.Vec{X: 4}, 400*ms)
	assert.False(t, res.HasLineOfSight)
	// Grace ticks report visible and follow the target.
	assert.Equal(t, spatial.Vec{X: 3}, res.LastKnownPosition)
}

func TestEvaluate_LastKnownChangesOnlyOnTrue(t *testing.T) {
	// Grace and throttle off so every call is a raw check.
	cfg := Config{TargetTag: "player"}
	svc := &scripted{}
	m := New(cfg, svc)
	st := brain.NewState(1, true, brain.Pose{})

	pattern := []bool{true, false, false, true, false, true, true, false}
	for _, v := range pattern {
		if v {
			svc.hits = append(svc.hits, nil)
		} else {
			svc.hits = append(svc.hits, wall)
		}
	}

	var prev spatial.Vec
	var prevOK bool
	for i, want := range pattern {
		target := spatial.Vec{X: float64(i + 10), Z: float64(i)}
		res := m.Evaluate(st, spatial.Vec{}, target, time.Duration(i)*time.Second)
		require.Equal(t, want, res.HasLineOfSight, "tick %d", i)
		if want {
			assert.Equal(t, target, res.LastKnownPosition, "tick %d", i)
		} else {
			assert.Equal(t, prev, res.LastKnownPosition, "tick %d", i)
			assert.Equal(t, prevOK, res.HasLastKnown, "tick %d", i)
		}
		prev, prevOK = res.LastKnownPosition, res.HasLastKnown
	}
}

func TestEvaluate_RealOccluders(t *testing.T) {
	g := spatial.NewGrid(10, 10, 1, spatial.Vec{})
	for z := 0; z < 10; z++ {
		g.SetBlocked(spatial.Cell{X: 5, Z: z}, true)
	}
	g.Build()
	g.Occluders().AddMover("agent", 0.4, spatial.MaskAgent, spatial.SelfGroup, spatial.Vec{X: 2.5, Z: 2.5})
	g.Occluders().AddMover("player", 0.4, spatial.MaskTarget, 0, spatial.Vec{X: 3.5, Z: 6.5})

	m := New(testConfig(), g)
	st := brain.NewState(1, true, brain.Pose{})
	eye := spatial.Vec{X: 2.5, Z: 2.5}

	assert.True(t, m.Evaluate(st, eye, spatial.Vec{X: 3.5, Z: 6.5}, 0).HasLineOfSight)
	assert.False(t, New(testConfig(), g).Visible(eye, spatial.Vec{X: 8.5, Z: 2.5}))
}

// Package ai implements the hostile agent's behavioral state machine.
package ai

import (
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/game/perception"
	"github.com/kasuganosora/stalker/game/planner"
	"github.com/kasuganosora/stalker/game/spatial"
)

// DefaultEmoteDuration is used when Config.EmoteDuration is unset.
const DefaultEmoteDuration = 2 * time.Second

// Config tunes the controller.
type Config struct {
	KillDistance   float64 `mapstructure:"kill_distance"`
	ArriveDistance float64 `mapstructure:"arrive_distance"`

	RoamSpeed                  float64 `mapstructure:"roam_speed"`
	HuntSpeedMultiplier        float64 `mapstructure:"hunt_speed_multiplier"`
	InvestigateSpeedMultiplier float64 `mapstructure:"investigate_speed_multiplier"`
	TravelSpeedMultiplier      float64 `mapstructure:"travel_speed_multiplier"`

	RoamDwell            time.Duration `mapstructure:"roam_dwell"`
	EmoteChancePerSecond float64       `mapstructure:"emote_chance_per_second"`
	EmoteDuration        time.Duration `mapstructure:"emote_duration"`
	EmoteEffect          string        `mapstructure:"emote_effect"`

	InvestigateDuration time.Duration `mapstructure:"investigate_duration"`
	InvestigateJitter   float64       `mapstructure:"investigate_jitter"`
	IdleDuration        time.Duration `mapstructure:"idle_duration"`

	// HuntGiveUpAfterSight applies once the target was sighted again after
	// the hunt began, HuntGiveUpNoSight when it never was. Both count from the
	// end of the perception grace window, so a hunt is lost after
	// Perception.Grace plus the applicable give-up.
	HuntGiveUpAfterSight time.Duration `mapstructure:"hunt_give_up_after_sight"`
	HuntGiveUpNoSight    time.Duration `mapstructure:"hunt_give_up_no_sight"`
	HuntRepathInterval   time.Duration `mapstructure:"hunt_repath_interval"`
	MaxPathFailures      int           `mapstructure:"max_path_failures"`

	Kill       KillTimeline        `mapstructure:"kill"`
	Perception perception.Config   `mapstructure:"perception"`
	Planner    planner.Config      `mapstructure:"planner"`
	Stuck      planner.StuckConfig `mapstructure:"stuck"`
}

// DefaultConfig returns the tuning used when none is configured.
func DefaultConfig() Config {
	return Config{
		KillDistance:               1.2,
		ArriveDistance:             0.5,
		RoamSpeed:                  2,
		HuntSpeedMultiplier:        1.8,
		InvestigateSpeedMultiplier: 1.2,
		TravelSpeedMultiplier:      1.5,
		RoamDwell:                  1500 * time.Millisecond,
		EmoteChancePerSecond:       0.05,
		EmoteDuration:              DefaultEmoteDuration,
		EmoteEffect:                "sniff",
		InvestigateDuration:        6 * time.Second,
		InvestigateJitter:          1.5,
		IdleDuration:               2 * time.Second,
		HuntGiveUpAfterSight:       1500 * time.Millisecond,
		HuntGiveUpNoSight:          600 * time.Millisecond,
		HuntRepathInterval:         500 * time.Millisecond,
		MaxPathFailures:            3,
		Kill:                       DefaultKillTimeline(),
		Perception:                 perception.DefaultConfig(),
		Planner:                    planner.DefaultConfig(),
		Stuck:                      planner.DefaultStuckConfig(),
	}
}

// Levers are the director-derived parameters pushed in every tick.
type Levers struct {
	RoamCenter           spatial.Vec
	RoamRadius           float64
	MinRoamDistance      float64
	ChaseRange           float64
	RevealMinDistance    float64
	RevealMaxDistance    float64
	BackstageMinDistance float64
	WantsBackstage       bool
}

// Input is the world snapshot for one tick.
type Input struct {
	Dt       time.Duration
	Now      time.Duration
	Position spatial.Vec
	Eye      spatial.Vec
	Target   spatial.Vec
	Levers   Levers
}

// Intent is the movement request handed to locomotion.
type Intent struct {
	Destination    spatial.Vec `json:"destination"`
	HasDestination bool        `json:"has_destination"`
	Speed          float64     `json:"speed"`
	// Direct bypasses path waypoints.
	Direct    bool `json:"direct"`
	Moving    bool `json:"moving"`
	Sprinting bool `json:"sprinting"`
}

// Output is the result of one tick.
type Output struct {
	Intent       Intent
	Mode         brain.Mode
	Transitioned bool
	// CancelPath asks locomotion to drop any pending path.
	CancelPath bool
	// Teleport asks locomotion to place the agent at State.Pose.
	Teleport bool
}

// HasArrived reports whether pos is within arrive of dest on the ground plane.
func HasArrived(pos, dest spatial.Vec, arrive float64) bool {
	return spatial.WithinSq(pos, dest, arrive)
}

// Controller runs the state machine for one agent. It holds no behavioral
// state between ticks; everything lives in the brain.State passed to Tick.
type Controller struct {
	cfg     Config
	svc     spatial.QueryService
	sight   *perception.Model
	planner *planner.Planner
	stuck   *planner.StuckRecovery
	src     *brain.Source
	rng     *rand.Rand
	sink    PresentationSink
	logger  *zap.Logger
	scratch uint64
}

// NewController creates a Controller. A nil svc falls back to Euclidean
// geometry and a nil sink discards presentation calls.
func NewController(cfg Config, svc spatial.QueryService, sink PresentationSink, logger *zap.Logger) *Controller {
	svc = spatial.OrEuclidean(svc)
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{cfg: cfg, svc: svc, sink: sink, logger: logger}
	c.src = brain.NewSource(&c.scratch)
	c.rng = rand.New(c.src)
	c.sight = perception.New(cfg.Perception, svc)
	c.planner = planner.New(cfg.Planner, svc, c.rng, logger)
	c.stuck = planner.NewStuckRecovery(cfg.Stuck, svc, c.rng, cfg.Planner.SnapRadius, logger)
	return c
}

// Config returns the controller's tuning.
func (c *Controller) Config() Config { return c.cfg }

type frame struct {
	in        Input
	sight     perception.Result
	inKill    bool
	inChase   bool
	canEngage bool
	out       *Output
}

// Tick advances the state machine by one simulation step.
func (c *Controller) Tick(st *brain.State, in Input) Output {
	c.src.Bind(&st.AgentRand)
	defer c.src.Bind(&c.scratch)

	c.ObservePosition(st, in.Position)

	out := Output{}
	f := &frame{in: in, out: &out}
	f.sight = c.sight.Evaluate(st, in.Eye, in.Target, in.Now)
	d := spatial.HorizontalDistSq(in.Position, in.Target)
	f.inKill = d <= c.cfg.KillDistance*c.cfg.KillDistance
	f.inChase = d <= in.Levers.ChaseRange*in.Levers.ChaseRange
	f.canEngage = f.inChase && f.sight.HasLineOfSight && c.svc.PathExists(in.Position, in.Target)

	if st.Mode != brain.ModeKilling && f.inKill {
		c.transition(st, f, brain.ModeKilling, brain.Phase{Kill: &brain.KillPhase{}})
	} else {
		c.step(st, f)
	}
	if out.Transitioned {
		out.Intent = c.plan(st, f)
	}
	out.Mode = st.Mode
	c.sink.SetLocomotion(out.Intent.Moving, out.Intent.Sprinting)
	return out
}

func (c *Controller) step(st *brain.State, f *frame) {
	switch st.Mode {
	case brain.ModeIdle:
		c.stepIdle(st, f)
	case brain.ModeRoaming:
		c.stepRoam(st, f)
	case brain.ModeInvestigating:
		c.stepInvestigate(st, f)
	case brain.ModeHunting:
		c.stepHunt(st, f)
	case brain.ModeEmote:
		c.stepEmote(st, f)
	case brain.ModeKilling:
		c.stepKill(st, f)
	case brain.ModeBackstageTravel:
		c.stepTravel(st, f)
	case brain.ModeBackstageIdle:
		c.stepParked(st, f)
	}
}

func (c *Controller) stepIdle(st *brain.State, f *frame) {
	p := st.Phase.Idle
	if f.canEngage {
		c.hunt(st, f)
		return
	}
	p.Remaining -= f.in.Dt
	if p.Remaining <= 0 {
		c.transition(st, f, p.Next, brain.DefaultPhase(p.Next))
		return
	}
	c.navigate(st, f)
}

func (c *Controller) stepRoam(st *brain.State, f *frame) {
	if f.in.Levers.WantsBackstage {
		c.transition(st, f, brain.ModeBackstageTravel, brain.Phase{Travel: &brain.TravelPhase{}})
		return
	}
	if f.canEngage {
		c.hunt(st, f)
		return
	}
	if f.inChase && !f.sight.HasLineOfSight {
		near, _ := c.planner.PickInvestigate(f.in.Levers.RoamCenter, st.Pose.Position, c.cfg.InvestigateJitter)
		c.investigate(st, f, near, false)
		return
	}

	r := st.Phase.Roam
	pos := st.Pose.Position
	switch {
	case !st.HasRoamDestination || !c.svc.PathExists(pos, st.RoamDestination):
		c.pickRoam(st, f)
	case HasArrived(pos, st.RoamDestination, c.cfg.ArriveDistance):
		if !r.Dwelling {
			r.Dwelling, r.Dwell = true, c.cfg.RoamDwell
		} else {
			r.Dwell -= f.in.Dt
		}
		if r.Dwell <= 0 {
			c.pickRoam(st, f)
		} else if c.rollEmote(f.in.Dt) {
			c.transition(st, f, brain.ModeEmote, brain.Phase{Emote: &brain.EmotePhase{
				Remaining: c.emoteDuration(),
				Return:    brain.ModeRoaming,
			}})
			return
		}
	}
	if c.navigate(st, f).Exhausted {
		planner.Reset(&st.Stuck)
		c.pickRoam(st, f)
	}
}

func (c *Controller) stepInvestigate(st *brain.State, f *frame) {
	p := st.Phase.Investigate
	if f.sight.HasLineOfSight && c.svc.PathExists(f.in.Position, f.in.Target) {
		c.hunt(st, f)
		return
	}
	p.Remaining -= f.in.Dt
	if p.Remaining <= 0 || HasArrived(st.Pose.Position, st.InvestigateTarget, c.cfg.ArriveDistance) {
		c.endInvestigate(st, f)
		return
	}
	if c.navigate(st, f).Exhausted {
		c.endInvestigate(st, f)
	}
}

func (c *Controller) endInvestigate(st *brain.State, f *frame) {
	if st.Phase.Investigate.FromHunt {
		next := brain.ModeRoaming
		if f.in.Levers.WantsBackstage {
			next = brain.ModeBackstageTravel
		}
		c.transition(st, f, brain.ModeIdle, brain.Phase{Idle: &brain.IdlePhase{
			Remaining: c.cfg.IdleDuration,
			Next:      next,
		}})
		return
	}
	next := st.InvestigateReturnMode
	if next != brain.ModeBackstageTravel {
		next = brain.ModeRoaming
	}
	c.transition(st, f, next, brain.DefaultPhase(next))
}

func (c *Controller) stepHunt(st *brain.State, f *frame) {
	h := st.Phase.Hunt
	visible := f.sight.HasLineOfSight
	if st.Sight.EverSighted && st.Sight.LastRawSight > h.EnteredAt {
		h.EverSaw = true
	}
	if visible {
		h.LostFor = 0
	} else {
		h.LostFor += f.in.Dt
	}
	giveUp := c.cfg.HuntGiveUpNoSight
	if h.EverSaw {
		giveUp = c.cfg.HuntGiveUpAfterSight
	}
	if !visible && h.LostFor > giveUp {
		c.loseHunt(st, f, "sight lost")
		return
	}

	h.RepathIn -= f.in.Dt
	if h.RepathIn <= 0 {
		h.RepathIn = c.cfg.HuntRepathInterval
		goal := st.LastKnownTargetPosition
		if visible {
			goal = f.in.Target
		}
		if c.svc.PathExists(st.Pose.Position, goal) {
			h.PathFailures = 0
		} else {
			h.PathFailures++
		}
		if c.cfg.MaxPathFailures > 0 && h.PathFailures >= c.cfg.MaxPathFailures {
			c.loseHunt(st, f, "no path")
			return
		}
	}

	if c.navigate(st, f).Exhausted && !h.EverSaw {
		c.loseHunt(st, f, "stuck")
	}
}

func (c *Controller) loseHunt(st *brain.State, f *frame, reason string) {
	c.logger.Debug("hunt lost", zap.String("reason", reason))
	if f.in.Levers.WantsBackstage {
		c.transition(st, f, brain.ModeBackstageTravel, brain.Phase{Travel: &brain.TravelPhase{}})
		return
	}
	target := st.Pose.Position
	if st.HasLastKnown {
		target = st.LastKnownTargetPosition
	}
	c.investigate(st, f, target, true)
}

func (c *Controller) stepEmote(st *brain.State, f *frame) {
	e := st.Phase.Emote
	if f.canEngage {
		c.hunt(st, f)
		return
	}
	e.Remaining -= f.in.Dt
	if e.Remaining <= 0 {
		c.transition(st, f, e.Return, brain.DefaultPhase(e.Return))
		return
	}
	c.navigate(st, f)
}

func (c *Controller) stepKill(st *brain.State, f *frame) {
	if !f.inKill {
		c.transition(st, f, brain.ModeRoaming, brain.DefaultPhase(brain.ModeRoaming))
		return
	}
	ev := c.cfg.Kill.Advance(st.Phase.Kill, f.in.Dt)
	if ev.SpeedChanged {
		c.sink.SetPlaybackSpeed(ev.Speed)
	}
	if ev.FireEffect && c.cfg.Kill.Effect != "" {
		c.sink.PlayOneShotEffect(c.cfg.Kill.Effect)
	}
	if ev.Complete {
		c.logger.Debug("kill sequence complete")
		c.sink.KillComplete()
	}
	c.navigate(st, f)
}

func (c *Controller) stepTravel(st *brain.State, f *frame) {
	if !f.in.Levers.WantsBackstage {
		c.transition(st, f, brain.ModeRoaming, brain.DefaultPhase(brain.ModeRoaming))
		return
	}
	if f.canEngage {
		c.hunt(st, f)
		return
	}
	t := st.Phase.Travel
	pos := st.Pose.Position
	st.BackstageRepickRequested = false
	switch {
	case !st.HasBackstageDestination:
		t.WaitedFor += f.in.Dt
		st.BackstageRepickRequested = true
	case HasArrived(pos, st.BackstageDestination, c.cfg.ArriveDistance):
		need := f.in.Levers.BackstageMinDistance
		if spatial.HorizontalDistSq(pos, f.in.Target) >= need*need {
			c.transition(st, f, brain.ModeBackstageIdle, brain.Phase{Parked: &brain.ParkedPhase{}})
			return
		}
		st.BackstageRepickRequested = true
	case !c.svc.PathExists(pos, st.BackstageDestination):
		st.BackstageRepickRequested = true
	}
	if c.navigate(st, f).Exhausted {
		planner.Reset(&st.Stuck)
		st.BackstageRepickRequested = true
	}
}

func (c *Controller) stepParked(st *brain.State, f *frame) {
	if f.in.Levers.WantsBackstage {
		c.navigate(st, f)
		return
	}
	l := f.in.Levers
	pt, sampled := c.planner.PickFrontstageReveal(f.in.Target, st.Pose.Position, l.RevealMinDistance, l.RevealMaxDistance)
	c.logger.Debug("frontstage reveal", zap.Bool("sampled", sampled),
		zap.Float64("x", pt.X), zap.Float64("z", pt.Z))
	st.Pose.Position = pt
	f.out.Teleport = true
	c.transition(st, f, brain.ModeRoaming, brain.DefaultPhase(brain.ModeRoaming))
}

func (c *Controller) hunt(st *brain.State, f *frame) {
	c.transition(st, f, brain.ModeHunting, brain.Phase{Hunt: &brain.HuntPhase{}})
}

func (c *Controller) investigate(st *brain.State, f *frame, target spatial.Vec, fromHunt bool) {
	st.InvestigateTarget = target
	c.transition(st, f, brain.ModeInvestigating, brain.Phase{Investigate: &brain.InvestigatePhase{
		Remaining: c.cfg.InvestigateDuration,
		FromHunt:  fromHunt,
	}})
}

func (c *Controller) pickRoam(st *brain.State, f *frame) {
	l := f.in.Levers
	st.RoamDestination, _ = c.planner.PickRoam(l.RoamCenter, st.Pose.Position, l.MinRoamDistance, l.RoamRadius)
	st.HasRoamDestination = true
	if st.Phase.Roam != nil {
		st.Phase.Roam.Dwelling = false
		st.Phase.Roam.Dwell = 0
	}
}

func (c *Controller) rollEmote(dt time.Duration) bool {
	if c.cfg.EmoteChancePerSecond <= 0 {
		return false
	}
	return c.rng.Float64() < c.cfg.EmoteChancePerSecond*dt.Seconds()
}

func (c *Controller) emoteDuration() time.Duration {
	if c.cfg.EmoteDuration > 0 {
		return c.cfg.EmoteDuration
	}
	return DefaultEmoteDuration
}

func (c *Controller) transition(st *brain.State, f *frame, to brain.Mode, p brain.Phase) {
	from := st.Mode
	c.exit(st, f)
	st.Enter(to, p)
	c.enter(st, f, from)
	f.out.Transitioned = true
	c.logger.Debug("agent mode transition",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("threat", st.Threat))
}

func (c *Controller) exit(st *brain.State, f *frame) {
	f.out.CancelPath = true
	planner.Reset(&st.Stuck)
	switch st.Mode {
	case brain.ModeRoaming:
		st.HasRoamDestination = false
	case brain.ModeKilling:
		c.sink.SetTargetInDeathSequence(false)
		c.sink.SetPlaybackSpeed(1)
	case brain.ModeBackstageTravel:
		st.BackstageRepickRequested = false
	case brain.ModeBackstageIdle:
		st.BackstageIdle = false
		c.sink.SetVisible(true)
		c.sink.SetCollidable(true)
	}
}

func (c *Controller) enter(st *brain.State, f *frame, from brain.Mode) {
	switch st.Mode {
	case brain.ModeRoaming:
		c.pickRoam(st, f)
	case brain.ModeInvestigating:
		st.InvestigateReturnMode = from
	case brain.ModeHunting:
		st.HuntingReturnMode = from
		st.Phase.Hunt.RepathIn = c.cfg.HuntRepathInterval
		st.Phase.Hunt.EnteredAt = f.in.Now
	case brain.ModeEmote:
		if c.cfg.EmoteEffect != "" {
			c.sink.PlayOneShotEffect(c.cfg.EmoteEffect)
		}
	case brain.ModeKilling:
		c.sink.SetTargetInDeathSequence(true)
		c.sink.SetPlaybackSpeed(1)
	case brain.ModeBackstageTravel:
		st.BackstageRepickRequested = !st.HasBackstageDestination
	case brain.ModeBackstageIdle:
		st.BackstageIdle = true
		c.sink.SetVisible(false)
		c.sink.SetCollidable(false)
	}
}

// plan derives this tick's movement request from the current mode.
func (c *Controller) plan(st *brain.State, f *frame) Intent {
	var it Intent
	switch st.Mode {
	case brain.ModeRoaming:
		if st.HasRoamDestination && !st.Phase.Roam.Dwelling {
			it = Intent{Destination: st.RoamDestination, HasDestination: true, Speed: c.cfg.RoamSpeed}
		}
	case brain.ModeInvestigating:
		it = Intent{
			Destination:    st.InvestigateTarget,
			HasDestination: true,
			Speed:          c.cfg.RoamSpeed * c.cfg.InvestigateSpeedMultiplier,
		}
	case brain.ModeHunting:
		it.Speed = c.cfg.RoamSpeed * c.cfg.HuntSpeedMultiplier
		it.Sprinting = true
		if f.sight.HasLineOfSight {
			it.Destination, it.HasDestination, it.Direct = f.in.Target, true, true
		} else if st.HasLastKnown {
			it.Destination, it.HasDestination = st.LastKnownTargetPosition, true
		}
	case brain.ModeBackstageTravel:
		if st.HasBackstageDestination {
			it = Intent{
				Destination:    st.BackstageDestination,
				HasDestination: true,
				Speed:          c.cfg.RoamSpeed * c.cfg.TravelSpeedMultiplier,
			}
		}
	}
	it.Moving = it.HasDestination && !HasArrived(st.Pose.Position, it.Destination, c.cfg.ArriveDistance)
	it.Sprinting = it.Sprinting && it.Moving
	return it
}

// navigate sets the tick's intent, substituting a stuck detour when one is active.
func (c *Controller) navigate(st *brain.State, f *frame) planner.StuckResult {
	it := c.plan(st, f)
	res := c.stuck.Tick(&st.Stuck, st.Pose.Position, it.Moving, f.in.Dt, f.in.Now)
	if res.HasDetour {
		it.Destination, it.HasDestination = res.Detour, true
		it.Direct, it.Moving = false, true
	}
	f.out.Intent = it
	return res
}

// ObservePosition records where locomotion actually left the agent and turns
// it to face its direction of travel.
func (c *Controller) ObservePosition(st *brain.State, pos spatial.Vec) {
	if dir, ok := spatial.HorizontalDir(st.Pose.Position, pos); ok {
		st.Pose.Yaw = math.Atan2(dir.Z, dir.X)
	}
	st.Pose.Position = pos
}

// ApplySavedPose places the agent at a stored pose. Locomotion must be
// synced to State.Pose by the caller.
func (c *Controller) ApplySavedPose(st *brain.State, pose brain.Pose) {
	st.Pose = pose
	planner.Reset(&st.Stuck)
}

// Resume re-applies presentation for a record that was just restored.
// With forceParked the agent is put straight into BackstageIdle so it never
// shows mid-transit.
func (c *Controller) Resume(st *brain.State, forceParked bool) {
	if forceParked && st.Mode != brain.ModeBackstageIdle {
		c.logger.Debug("restored agent forced into backstage idle", zap.String("saved_mode", st.Mode.String()))
		st.Enter(brain.ModeBackstageIdle, brain.Phase{Parked: &brain.ParkedPhase{}})
	}
	st.BackstageIdle = st.Mode == brain.ModeBackstageIdle
	c.sink.SetVisible(!st.BackstageIdle)
	c.sink.SetCollidable(!st.BackstageIdle)
	if k := st.Phase.Kill; k != nil {
		c.sink.SetTargetInDeathSequence(true)
		c.sink.SetPlaybackSpeed(c.cfg.Kill.SpeedAt(k.Elapsed))
	} else {
		c.sink.SetTargetInDeathSequence(false)
		c.sink.SetPlaybackSpeed(1)
	}
	c.sink.SetLocomotion(false, false)
}

// Package director turns the threat score into stage intent and the
// controller's tuning levers.
package director

import (
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/kasuganosora/stalker/game/ai"
	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/game/planner"
	"github.com/kasuganosora/stalker/game/spatial"
)

// Config tunes the director. Pairs named Max/Min are the values at threat 0
// and threat 100 respectively, unless noted.
type Config struct {
	InitialFrontStage bool `mapstructure:"initial_front_stage"`

	// FrontStageThreshold floors threat while the agent is engaged.
	FrontStageThreshold int     `mapstructure:"front_stage_threshold"`
	UpperThreshold      int     `mapstructure:"upper_threshold"`
	LowerThreshold      int     `mapstructure:"lower_threshold"`
	DecayPerSecond      float64 `mapstructure:"decay_per_second"`

	HintInterval  time.Duration `mapstructure:"hint_interval"`
	HintSmoothing time.Duration `mapstructure:"hint_smoothing"`
	HintNoiseMax  float64       `mapstructure:"hint_noise_max"`
	HintNoiseMin  float64       `mapstructure:"hint_noise_min"`

	RoamRadiusMax      float64 `mapstructure:"roam_radius_max"`
	RoamRadiusMin      float64 `mapstructure:"roam_radius_min"`
	MinRoamDistanceMax float64 `mapstructure:"min_roam_distance_max"`
	MinRoamDistanceMin float64 `mapstructure:"min_roam_distance_min"`
	// Chase range grows with threat: ChaseRangeMin at 0, ChaseRangeMax at 100.
	ChaseRangeMin float64 `mapstructure:"chase_range_min"`
	ChaseRangeMax float64 `mapstructure:"chase_range_max"`

	RevealMinDistance       float64       `mapstructure:"reveal_min_distance"`
	RevealMaxDistance       float64       `mapstructure:"reveal_max_distance"`
	BackstageMinDistance    float64       `mapstructure:"backstage_min_distance"`
	BackstageRepickCooldown time.Duration `mapstructure:"backstage_repick_cooldown"`
}

// DefaultConfig returns the pacing used when none is configured.
func DefaultConfig() Config {
	return Config{
		InitialFrontStage:       true,
		FrontStageThreshold:     60,
		UpperThreshold:          60,
		LowerThreshold:          25,
		DecayPerSecond:          2,
		HintInterval:            2 * time.Second,
		HintSmoothing:           1500 * time.Millisecond,
		HintNoiseMax:            12,
		HintNoiseMin:            1.5,
		RoamRadiusMax:           14,
		RoamRadiusMin:           4,
		MinRoamDistanceMax:      4,
		MinRoamDistanceMin:      1,
		ChaseRangeMin:           2,
		ChaseRangeMax:           10,
		RevealMinDistance:       10,
		RevealMaxDistance:       16,
		BackstageMinDistance:    18,
		BackstageRepickCooldown: 2 * time.Second,
	}
}

// Input is what the director observes each tick.
type Input struct {
	Dt            time.Duration
	Target        spatial.Vec
	AgentPosition spatial.Vec
}

// Director owns threat, stage intent, the location hint and the backstage
// destination of one agent's brain.State.
type Director struct {
	cfg     Config
	planner *planner.Planner
	src     *brain.Source
	rng     *rand.Rand
	logger  *zap.Logger
	scratch uint64
}

// New creates a Director whose backstage picks use a planner built from pcfg.
func New(cfg Config, pcfg planner.Config, svc spatial.QueryService, logger *zap.Logger) *Director {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Director{cfg: cfg, logger: logger}
	d.src = brain.NewSource(&d.scratch)
	d.rng = rand.New(d.src)
	d.planner = planner.New(pcfg, svc, d.rng, logger)
	return d
}

// Config returns the director's tuning.
func (d *Director) Config() Config { return d.cfg }

// Tick updates director-owned fields and returns the levers for this tick's
// controller step.
func (d *Director) Tick(st *brain.State, in Input) ai.Levers {
	d.src.Bind(&st.DirectorRand)
	defer d.src.Bind(&d.scratch)

	d.updateThreat(st, in.Dt)
	d.updateStage(st)
	d.updateBackstage(st, in)
	d.updateHint(st, in)
	return d.Levers(st)
}

// Settle re-applies the engagement floor after the controller has run, so a
// transition into an engaged mode never ends a tick at low threat.
func (d *Director) Settle(st *brain.State) {
	if st.Mode.Engaged() && st.Threat < d.cfg.FrontStageThreshold {
		st.SetThreat(d.cfg.FrontStageThreshold)
		st.ThreatCarry = 0
	}
}

func (d *Director) updateThreat(st *brain.State, dt time.Duration) {
	if st.Mode.Engaged() {
		if st.Threat < d.cfg.FrontStageThreshold {
			st.SetThreat(d.cfg.FrontStageThreshold)
		}
		st.ThreatCarry = 0
		return
	}
	if st.Threat <= brain.MinThreat {
		st.ThreatCarry = 0
		return
	}
	st.ThreatCarry += d.cfg.DecayPerSecond * dt.Seconds()
	whole := math.Floor(st.ThreatCarry)
	st.ThreatCarry -= whole
	st.SetThreat(st.Threat - int(whole))
}

// updateStage flips intent only when threat crosses a threshold, so values
// between the thresholds and explicit stage commands are left alone.
func (d *Director) updateStage(st *brain.State) {
	prev := st.StageThreat
	st.StageThreat = st.Threat
	switch {
	case !st.FrontStageIntent && prev < d.cfg.UpperThreshold && st.Threat >= d.cfg.UpperThreshold:
		d.setFrontStage(st, true, "threat rose")
	case st.FrontStageIntent && prev > d.cfg.LowerThreshold && st.Threat <= d.cfg.LowerThreshold:
		d.setFrontStage(st, false, "threat fell")
	}
}

func (d *Director) setFrontStage(st *brain.State, front bool, reason string) {
	if st.FrontStageIntent == front {
		return
	}
	st.FrontStageIntent = front
	st.HasBackstageDestination = false
	st.BackstageRepickCooldown = 0
	d.logger.Info("director stage intent changed",
		zap.Bool("front_stage", front),
		zap.Int("threat", st.Threat),
		zap.String("reason", reason))
}

func (d *Director) updateBackstage(st *brain.State, in Input) {
	if st.BackstageRepickCooldown > 0 {
		st.BackstageRepickCooldown -= in.Dt
		if st.BackstageRepickCooldown < 0 {
			st.BackstageRepickCooldown = 0
		}
	}
	if st.FrontStageIntent {
		return
	}
	repick := st.BackstageRepickRequested && st.BackstageRepickCooldown <= 0
	if st.HasBackstageDestination && !repick {
		return
	}
	p, sampled := d.planner.PickBackstage(in.Target, in.AgentPosition, d.cfg.BackstageMinDistance)
	st.BackstageDestination = p
	st.HasBackstageDestination = true
	st.BackstageRepickCooldown = d.cfg.BackstageRepickCooldown
	d.logger.Debug("backstage destination picked",
		zap.Bool("sampled", sampled), zap.Bool("repick", repick),
		zap.Float64("x", p.X), zap.Float64("z", p.Z))
}

func (d *Director) updateHint(st *brain.State, in Input) {
	st.HintTimer -= in.Dt
	if !st.HasHint || st.HintTimer <= 0 {
		st.HintEstimate = d.estimate(st.Threat, in.Target)
		st.HintTimer = d.cfg.HintInterval
		if !st.HasHint {
			st.PlayerLocationHint = st.HintEstimate
			st.HasHint = true
		}
	}
	alpha := 1.0
	if d.cfg.HintSmoothing > 0 {
		alpha = 1 - math.Exp(-in.Dt.Seconds()/d.cfg.HintSmoothing.Seconds())
	}
	st.PlayerLocationHint = spatial.LerpVec(st.PlayerLocationHint, st.HintEstimate, alpha)
}

// NoiseRadius is the hint error bound at threat.
func (d *Director) NoiseRadius(threat int) float64 {
	return spatial.Lerp(d.cfg.HintNoiseMax, d.cfg.HintNoiseMin, threatFraction(threat))
}

func (d *Director) estimate(threat int, target spatial.Vec) spatial.Vec {
	r := d.NoiseRadius(threat) * math.Sqrt(d.rng.Float64())
	a := d.rng.Float64() * 2 * math.Pi
	return spatial.Offset(target, spatial.Polar(a), r)
}

// Levers maps the current record to controller levers.
func (d *Director) Levers(st *brain.State) ai.Levers {
	t := threatFraction(st.Threat)
	center := st.PlayerLocationHint
	if !st.HasHint {
		center = st.Pose.Position
	}
	return ai.Levers{
		RoamCenter:           center,
		RoamRadius:           spatial.Lerp(d.cfg.RoamRadiusMax, d.cfg.RoamRadiusMin, t),
		MinRoamDistance:      spatial.Lerp(d.cfg.MinRoamDistanceMax, d.cfg.MinRoamDistanceMin, t),
		ChaseRange:           spatial.Lerp(d.cfg.ChaseRangeMin, d.cfg.ChaseRangeMax, t),
		RevealMinDistance:    d.cfg.RevealMinDistance,
		RevealMaxDistance:    d.cfg.RevealMaxDistance,
		BackstageMinDistance: d.cfg.BackstageMinDistance,
		WantsBackstage:       !st.FrontStageIntent,
	}
}

func threatFraction(threat int) float64 {
	return spatial.Clamp01(float64(threat) / float64(brain.MaxThreat))
}

// SetThreat is the external threat command.
func (d *Director) SetThreat(st *brain.State, v int) {
	st.SetThreat(v)
	st.ThreatCarry = 0
}

// AddThreat is the external threat-delta command.
func (d *Director) AddThreat(st *brain.State, delta int) {
	d.SetThreat(st, st.Threat+delta)
}

// SendFrontStage forces frontstage intent.
func (d *Director) SendFrontStage(st *brain.State) {
	d.setFrontStage(st, true, "command")
}

// SendBackStage forces backstage intent; a destination is picked next tick.
func (d *Director) SendBackStage(st *brain.State) {
	d.setFrontStage(st, false, "command")
}

// Restore normalizes a freshly loaded record and reports whether it was saved
// parked, in which case the controller must be forced into BackstageIdle.
func (d *Director) Restore(st *brain.State) bool {
	if st.Normalize() {
		d.logger.Warn("restored behavior state needed repair")
	}
	return st.Mode == brain.ModeBackstageIdle
}

package world

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kasuganosora/stalker/game/ai"
	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/game/director"
	"github.com/kasuganosora/stalker/game/spatial"
)

// Collider tags registered on the occluder space.
const (
	AgentTag  = "agent"
	TargetTag = "player"
)

var (
	ErrQueueFull = errors.New("world: command queue full")
	ErrStopped   = errors.New("world: session stopped")
)

// Config holds the simulation loop settings.
type Config struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	CommandBuffer int           `mapstructure:"command_buffer"`
	EyeHeight     float64       `mapstructure:"eye_height"`
	AgentRadius   float64       `mapstructure:"agent_radius"`
	TargetRadius  float64       `mapstructure:"target_radius"`
}

func DefaultConfig() Config {
	return Config{
		TickInterval:  50 * time.Millisecond,
		CommandBuffer: 64,
		EyeHeight:     1.6,
		AgentRadius:   0.4,
		TargetRadius:  0.3,
	}
}

// Options wires one session.
type Options struct {
	World    Config
	Agent    ai.Config
	Director director.Config
	// Space answers navigation and sight queries. nil means an open field.
	Space spatial.QueryService
	// Occluders, when set, gets movers for the agent and the target.
	Occluders *spatial.Occluders
	Spawn     spatial.Vec
	Target    spatial.Vec
	Seed      int64
	// State replaces the fresh record built from Spawn and Seed.
	State     *brain.State
	Publisher Publisher
	Observers []Observer
	Logger    *zap.Logger
}

// Snapshot is a point-in-time copy published at a tick boundary.
type Snapshot struct {
	AgentID string       `json:"agent_id"`
	Tick    uint64       `json:"tick"`
	State   *brain.State `json:"state"`
	Target  spatial.Vec  `json:"target"`
	Intent  ai.Intent    `json:"intent"`
}

// Observer is notified after every tick, on the session goroutine.
type Observer interface {
	ObserveTick(s Snapshot)
}

type command func(s *Session)

// Session runs one Director and one Controller over a single brain.State.
// Step must only be called from one goroutine; other goroutines talk to the
// session through its command methods and read it through Snapshot.
type Session struct {
	id       string
	cfg      Config
	director *director.Director
	ctrl     *ai.Controller
	loco     *Locomotor
	occ      *spatial.Occluders
	sink     *bufferedSink
	pub      Publisher
	obs      []Observer
	logger   *zap.Logger

	st     *brain.State
	target spatial.Vec
	tick   uint64
	last   ai.Output

	cmds     chan command
	stopCh   chan struct{}
	stopOnce sync.Once

	mu   sync.RWMutex
	snap Snapshot
}

// NewSession builds a session from opts. It does not start ticking; call Run
// or Step.
func NewSession(id string, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("agent_id", id))
	cfg := opts.World
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultConfig().CommandBuffer
	}
	svc := opts.Space
	if svc == nil && opts.Occluders != nil {
		svc = spatial.OpenField{Occluders: opts.Occluders}
	}
	svc = spatial.OrEuclidean(svc)

	s := &Session{
		id:     id,
		cfg:    cfg,
		occ:    opts.Occluders,
		sink:   &bufferedSink{},
		pub:    opts.Publisher,
		obs:    opts.Observers,
		logger: logger,
		target: opts.Target,
		cmds:   make(chan command, cfg.CommandBuffer),
		stopCh: make(chan struct{}),
	}
	s.director = director.New(opts.Director, opts.Agent.Planner, svc, logger)
	s.ctrl = ai.NewController(opts.Agent, svc, s.sink, logger)
	s.loco = NewLocomotor(svc)

	if opts.State != nil {
		s.restore(opts.State.Clone())
	} else {
		s.st = brain.NewState(opts.Seed, opts.Director.InitialFrontStage, brain.Pose{Position: opts.Spawn})
		s.ctrl.Resume(s.st, false)
	}
	if s.occ != nil {
		s.occ.AddMover(AgentTag, cfg.AgentRadius, spatial.MaskAgent, spatial.SelfGroup, s.st.Pose.Position)
		s.occ.AddMover(TargetTag, cfg.TargetRadius, spatial.MaskTarget, 0, s.target)
	}
	s.publish()
	return s
}

// ID returns the agent id.
func (s *Session) ID() string { return s.id }

// submit queues fn to run at the start of the next tick.
func (s *Session) submit(fn command) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}
	select {
	case s.cmds <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// SetThreat queues an absolute threat command.
func (s *Session) SetThreat(v int) error {
	return s.submit(func(s *Session) { s.director.SetThreat(s.st, v) })
}

// AddThreat queues a threat delta.
func (s *Session) AddThreat(delta int) error {
	return s.submit(func(s *Session) { s.director.AddThreat(s.st, delta) })
}

func (s *Session) SendFrontStage() error {
	return s.submit(func(s *Session) { s.director.SendFrontStage(s.st) })
}

func (s *Session) SendBackStage() error {
	return s.submit(func(s *Session) { s.director.SendBackStage(s.st) })
}

// ApplySavedPose queues a teleport to pose.
func (s *Session) ApplySavedPose(pose brain.Pose) error {
	return s.submit(func(s *Session) {
		s.ctrl.ApplySavedPose(s.st, pose)
		s.moveCollider(AgentTag, pose.Position)
	})
}

// MoveTarget queues a new position for the target avatar.
func (s *Session) MoveTarget(p spatial.Vec) error {
	return s.submit(func(s *Session) {
		s.target = p
		s.moveCollider(TargetTag, p)
	})
}

// Restore queues a wholesale replacement of the behavior record.
func (s *Session) Restore(st *brain.State) error {
	if st == nil {
		return errors.New("world: restore: nil state")
	}
	st = st.Clone()
	return s.submit(func(s *Session) { s.restore(st) })
}

func (s *Session) restore(st *brain.State) {
	forceParked := s.director.Restore(st)
	s.st = st
	s.sink.known = false
	s.ctrl.Resume(s.st, forceParked)
	s.moveCollider(AgentTag, s.st.Pose.Position)
	s.logger.Info("behavior state restored",
		zap.String("mode", s.st.Mode.String()),
		zap.Int("threat", s.st.Threat),
		zap.Bool("parked", forceParked))
}

func (s *Session) moveCollider(tag string, p spatial.Vec) {
	if s.occ != nil {
		s.occ.Move(tag, p)
	}
}

func (s *Session) drain() {
	for {
		select {
		case fn := <-s.cmds:
			fn(s)
		default:
			return
		}
	}
}

// Step advances the session by dt.
func (s *Session) Step(dt time.Duration) ai.Output {
	s.drain()
	s.st.Clock += dt
	s.tick++

	pos := s.st.Pose.Position
	levers := s.director.Tick(s.st, director.Input{Dt: dt, Target: s.target, AgentPosition: pos})
	eye := pos
	eye.Y += s.cfg.EyeHeight
	out := s.ctrl.Tick(s.st, ai.Input{
		Dt:       dt,
		Now:      s.st.Clock,
		Position: pos,
		Eye:      eye,
		Target:   s.target,
		Levers:   levers,
	})
	s.director.Settle(s.st)

	next := s.st.Pose.Position
	if !out.Teleport {
		next = s.loco.Step(next, out.Intent, dt)
	}
	s.ctrl.ObservePosition(s.st, next)
	s.moveCollider(AgentTag, next)

	s.last = out
	if events := s.sink.take(); len(events) > 0 && s.pub != nil {
		s.pub.PublishBatch(Batch{AgentID: s.id, Clock: s.st.Clock, Events: events})
	}
	snap := s.publish()
	for _, o := range s.obs {
		o.ObserveTick(snap)
	}
	return out
}

func (s *Session) publish() Snapshot {
	snap := Snapshot{
		AgentID: s.id,
		Tick:    s.tick,
		State:   s.st.Clone(),
		Target:  s.target,
		Intent:  s.last.Intent,
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return snap
}

// Snapshot returns the state published at the last tick boundary.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.State = s.snap.State.Clone()
	return out
}

// Run ticks the session until ctx is cancelled or Stop is called.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Step(s.cfg.TickInterval)
		case <-ctx.Done():
			s.Stop()
			return
		case <-s.stopCh:
			return
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

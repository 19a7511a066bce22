package world

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kasuganosora/stalker/cache"
)

// Event kinds carried in a Batch.
const (
	EventLocomotion    = "locomotion"
	EventVisible       = "visible"
	EventCollidable    = "collidable"
	EventEffect        = "effect"
	EventPlaybackSpeed = "playback_speed"
	EventDeathSequence = "death_sequence"
	EventKillComplete  = "kill_complete"
)

// Event is one presentation call.
type Event struct {
	Kind      string  `json:"kind"`
	Moving    bool    `json:"moving"`
	Sprinting bool    `json:"sprinting"`
	On        bool    `json:"on"`
	Effect    string  `json:"effect,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
}

// Batch is every presentation call made during one tick.
type Batch struct {
	AgentID string        `json:"agent_id"`
	Clock   time.Duration `json:"clock"`
	Events  []Event       `json:"events"`
}

// Publisher receives a session's presentation batches at tick boundaries.
type Publisher interface {
	PublishBatch(b Batch)
}

// bufferedSink collects presentation calls during a tick. Locomotion is only
// recorded when it changes, since the controller reports it every tick.
type bufferedSink struct {
	events    []Event
	known     bool
	moving    bool
	sprinting bool
}

func (s *bufferedSink) SetLocomotion(moving, sprinting bool) {
	if s.known && s.moving == moving && s.sprinting == sprinting {
		return
	}
	s.known, s.moving, s.sprinting = true, moving, sprinting
	s.events = append(s.events, Event{Kind: EventLocomotion, Moving: moving, Sprinting: sprinting})
}

func (s *bufferedSink) SetVisible(v bool) {
	s.events = append(s.events, Event{Kind: EventVisible, On: v})
}

func (s *bufferedSink) SetCollidable(v bool) {
	s.events = append(s.events, Event{Kind: EventCollidable, On: v})
}

func (s *bufferedSink) PlayOneShotEffect(id string) {
	s.events = append(s.events, Event{Kind: EventEffect, Effect: id})
}

func (s *bufferedSink) SetPlaybackSpeed(m float64) {
	s.events = append(s.events, Event{Kind: EventPlaybackSpeed, Speed: m})
}

func (s *bufferedSink) SetTargetInDeathSequence(v bool) {
	s.events = append(s.events, Event{Kind: EventDeathSequence, On: v})
}

func (s *bufferedSink) KillComplete() {
	s.events = append(s.events, Event{Kind: EventKillComplete})
}

// take returns and clears the pending events.
func (s *bufferedSink) take() []Event {
	ev := s.events
	s.events = nil
	return ev
}

// IntentChannel is the pub/sub channel an agent's batches are published on.
func IntentChannel(agentID string) string {
	return fmt.Sprintf("agent:%s:intents", agentID)
}

// PubSubSink publishes batches as JSON through a cache.PubSub.
type PubSubSink struct {
	ps      cache.PubSub
	timeout time.Duration
	logger  *zap.Logger
}

// NewPubSubSink creates a PubSubSink with a one second publish timeout.
func NewPubSubSink(ps cache.PubSub, logger *zap.Logger) *PubSubSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubSink{ps: ps, timeout: time.Second, logger: logger}
}

// PublishBatch implements Publisher. Empty batches are not sent.
func (p *PubSubSink) PublishBatch(b Batch) {
	if len(b.Events) == 0 {
		return
	}
	data, err := json.Marshal(b)
	if err != nil {
		p.logger.Error("marshal intent batch", zap.String("agent_id", b.AgentID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.ps.Publish(ctx, IntentChannel(b.AgentID), string(data)); err != nil {
		p.logger.Error("publish intent batch", zap.String("agent_id", b.AgentID), zap.Error(err))
	}
}

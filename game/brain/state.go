// Package brain defines BehaviorState, the single persisted record for one
// hostile agent.
//
// Fields are grouped by writer. The director writes threat, stage, hint and
// backstage destination; the controller writes mode, phase, pose, navigation
// targets and its perception/stuck bookkeeping; the simulation loop writes
// Clock. No field has two writers, so a point-in-time copy taken between
// ticks is always consistent.
package brain

import (
	"encoding/json"
	"time"

	"github.com/kasuganosora/stalker/game/spatial"
)

// SchemaVersion is bumped when the persisted layout changes incompatibly.
const SchemaVersion = 1

const (
	MinThreat = 0
	MaxThreat = 100
)

// Pose is the agent's world placement.
type Pose struct {
	Position spatial.Vec `json:"position"`
	Yaw      float64     `json:"yaw"`
}

// Sight is the perception model's bookkeeping.
type Sight struct {
	Evaluated    bool          `json:"evaluated"`
	Visible      bool          `json:"visible"`
	NextEvalAt   time.Duration `json:"next_eval_at"`
	LastRawSight time.Duration `json:"last_raw_sight"`
	EverSighted  bool          `json:"ever_sighted"`
}

// Stuck is stuck-recovery bookkeeping for the current navigation episode.
type Stuck struct {
	LastPosition   spatial.Vec   `json:"last_position"`
	HasLast        bool          `json:"has_last"`
	StuckFor       time.Duration `json:"stuck_for"`
	LastRecoveryAt time.Duration `json:"last_recovery_at"`
	Recovered      bool          `json:"recovered"`
	Detours        int           `json:"detours"`
	Detour         spatial.Vec   `json:"detour"`
	HasDetour      bool          `json:"has_detour"`
	DetourFor      time.Duration `json:"detour_for"`
}

// State is the BehaviorState record.
type State struct {
	Version int           `json:"version"`
	Clock   time.Duration `json:"clock"`

	// Director-owned.
	Threat                  int           `json:"threat"`
	ThreatCarry             float64       `json:"threat_carry"`
	StageThreat             int           `json:"stage_threat"`
	FrontStageIntent        bool          `json:"front_stage_intent"`
	PlayerLocationHint      spatial.Vec   `json:"player_location_hint"`
	HintEstimate            spatial.Vec   `json:"hint_estimate"`
	HasHint                 bool          `json:"has_hint"`
	HintTimer               time.Duration `json:"hint_timer"`
	BackstageDestination    spatial.Vec   `json:"backstage_destination"`
	HasBackstageDestination bool          `json:"has_backstage_destination"`
	BackstageRepickCooldown time.Duration `json:"backstage_repick_cooldown"`
	DirectorRand            uint64        `json:"director_rand"`

	// Controller-owned.
	Mode                     Mode        `json:"mode"`
	Phase                    Phase       `json:"phase"`
	Pose                     Pose        `json:"pose"`
	LastKnownTargetPosition  spatial.Vec `json:"last_known_target_position"`
	HasLastKnown             bool        `json:"has_last_known"`
	RoamDestination          spatial.Vec `json:"roam_destination"`
	HasRoamDestination       bool        `json:"has_roam_destination"`
	InvestigateTarget        spatial.Vec `json:"investigate_target"`
	HuntingReturnMode        Mode        `json:"hunting_return_mode"`
	InvestigateReturnMode    Mode        `json:"investigate_return_mode"`
	BackstageIdle            bool        `json:"backstage_idle"`
	BackstageRepickRequested bool        `json:"backstage_repick_requested"`
	Sight                    Sight       `json:"sight"`
	Stuck                    Stuck       `json:"stuck"`
	AgentRand                uint64      `json:"agent_rand"`
}

// NewState returns a fresh record: roaming at pose, the given stage intent,
// zero threat, with both random streams derived from seed.
func NewState(seed int64, frontStage bool, pose Pose) *State {
	s := &State{
		Version:               SchemaVersion,
		FrontStageIntent:      frontStage,
		Mode:                  ModeRoaming,
		Phase:                 DefaultPhase(ModeRoaming),
		Pose:                  pose,
		HuntingReturnMode:     ModeRoaming,
		InvestigateReturnMode: ModeRoaming,
		AgentRand:             uint64(seed),
		DirectorRand:          uint64(seed) ^ 0x5851f42d4c957f2d,
	}
	if !frontStage {
		s.Mode = ModeBackstageTravel
		s.Phase = DefaultPhase(ModeBackstageTravel)
	}
	return s
}

// SetThreat clamps and stores threat. Director only.
func (s *State) SetThreat(v int) {
	s.Threat = ClampThreat(v)
}

// ClampThreat clamps v into [MinThreat, MaxThreat].
func ClampThreat(v int) int {
	if v < MinThreat {
		return MinThreat
	}
	if v > MaxThreat {
		return MaxThreat
	}
	return v
}

// Enter switches to mode m with a freshly built phase. Controller only.
func (s *State) Enter(m Mode, p Phase) {
	if pm, ok := p.Mode(); !ok || pm != m {
		p = DefaultPhase(m)
	}
	s.Mode = m
	s.Phase = p
}

// InvestigateTimeRemaining is the investigate countdown, zero outside Investigating.
func (s *State) InvestigateTimeRemaining() time.Duration {
	if s.Phase.Investigate == nil {
		return 0
	}
	return s.Phase.Investigate.Remaining
}

// EmoteTimeRemaining is the emote countdown, zero outside Emote.
func (s *State) EmoteTimeRemaining() time.Duration {
	if s.Phase.Emote == nil {
		return 0
	}
	return s.Phase.Emote.Remaining
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Phase = s.Phase.clone()
	return &c
}

// Normalize repairs a restored record in place: clamps threat, replaces an
// unknown mode or a phase that does not match the mode, and reconciles the
// parked flag with the mode. It reports whether anything was changed.
func (s *State) Normalize() bool {
	changed := false
	if t := ClampThreat(s.Threat); t != s.Threat {
		s.Threat = t
		changed = true
	}
	if !s.Mode.Valid() {
		s.Mode = ModeRoaming
		changed = true
	}
	// A parked flag wins over the mode so a reload never shows the agent.
	if s.BackstageIdle && s.Mode != ModeBackstageIdle {
		s.Mode = ModeBackstageIdle
		changed = true
	} else if !s.BackstageIdle && s.Mode == ModeBackstageIdle {
		s.BackstageIdle = true
		changed = true
	}
	if pm, ok := s.Phase.Mode(); !ok || pm != s.Mode {
		s.Phase = DefaultPhase(s.Mode)
		changed = true
	}
	if !s.HuntingReturnMode.Valid() {
		s.HuntingReturnMode = ModeRoaming
		changed = true
	}
	if !s.InvestigateReturnMode.Valid() {
		s.InvestigateReturnMode = ModeRoaming
		changed = true
	}
	if s.Version == 0 {
		s.Version = SchemaVersion
		changed = true
	}
	return changed
}

// Marshal serializes the record verbatim.
func (s *State) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal decodes a record and normalizes it.
func Unmarshal(b []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	s.Normalize()
	return &s, nil
}

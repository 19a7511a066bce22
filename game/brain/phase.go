package brain

import "time"

// Phase is the per-mode tagged union: exactly one variant is non-nil and it
// matches State.Mode. A new Phase is built on every transition so no timer
// outlives the mode that owns it.
type Phase struct {
	Idle        *IdlePhase        `json:"idle,omitempty"`
	Roam        *RoamPhase        `json:"roam,omitempty"`
	Investigate *InvestigatePhase `json:"investigate,omitempty"`
	Hunt        *HuntPhase        `json:"hunt,omitempty"`
	Emote       *EmotePhase       `json:"emote,omitempty"`
	Kill        *KillPhase        `json:"kill,omitempty"`
	Travel      *TravelPhase      `json:"travel,omitempty"`
	Parked      *ParkedPhase      `json:"parked,omitempty"`
}

// IdlePhase is a timed handoff; Next is decided at entry.
type IdlePhase struct {
	Remaining time.Duration `json:"remaining"`
	Next      Mode          `json:"next"`
}

// RoamPhase tracks the dwell after reaching a roam destination.
type RoamPhase struct {
	Dwell    time.Duration `json:"dwell"`
	Dwelling bool          `json:"dwelling"`
}

// InvestigatePhase carries the investigate countdown and the entry context.
type InvestigatePhase struct {
	Remaining time.Duration `json:"remaining"`
	FromHunt  bool          `json:"from_hunt"`
}

// HuntPhase carries per-hunt bookkeeping.
type HuntPhase struct {
	// EnteredAt is the clock at hunt entry.
	EnteredAt    time.Duration `json:"entered_at"`
	// EverSaw is set once a raw sighting lands after EnteredAt; grace-held
	// visibility does not count.
	EverSaw      bool          `json:"ever_saw"`
	LostFor      time.Duration `json:"lost_for"`
	PathFailures int           `json:"path_failures"`
	RepathIn     time.Duration `json:"repath_in"`
}

// EmotePhase is a cosmetic pause.
type EmotePhase struct {
	Remaining time.Duration `json:"remaining"`
	Return    Mode          `json:"return"`
}

// KillPhase is the kill timeline cursor.
type KillPhase struct {
	Elapsed     time.Duration `json:"elapsed"`
	EffectFired bool          `json:"effect_fired"`
	Completed   bool          `json:"completed"`
}

// TravelPhase is the trip to the backstage destination.
type TravelPhase struct {
	// WaitedFor counts time spent without a valid destination.
	WaitedFor time.Duration `json:"waited_for"`
}

// ParkedPhase is the hidden parking state.
type ParkedPhase struct{}

// Mode returns the mode of the single populated variant.
func (p Phase) Mode() (Mode, bool) {
	var m Mode
	n := 0
	if p.Idle != nil {
		m, n = ModeIdle, n+1
	}
	if p.Roam != nil {
		m, n = ModeRoaming, n+1
	}
	if p.Investigate != nil {
		m, n = ModeInvestigating, n+1
	}
	if p.Hunt != nil {
		m, n = ModeHunting, n+1
	}
	if p.Emote != nil {
		m, n = ModeEmote, n+1
	}
	if p.Kill != nil {
		m, n = ModeKilling, n+1
	}
	if p.Travel != nil {
		m, n = ModeBackstageTravel, n+1
	}
	if p.Parked != nil {
		m, n = ModeBackstageIdle, n+1
	}
	return m, n == 1
}

// clone deep-copies the populated variant.
func (p Phase) clone() Phase {
	var out Phase
	if p.Idle != nil {
		v := *p.Idle
		out.Idle = &v
	}
	if p.Roam != nil {
		v := *p.Roam
		out.Roam = &v
	}
	if p.Investigate != nil {
		v := *p.Investigate
		out.Investigate = &v
	}
	if p.Hunt != nil {
		v := *p.Hunt
		out.Hunt = &v
	}
	if p.Emote != nil {
		v := *p.Emote
		out.Emote = &v
	}
	if p.Kill != nil {
		v := *p.Kill
		out.Kill = &v
	}
	if p.Travel != nil {
		v := *p.Travel
		out.Travel = &v
	}
	if p.Parked != nil {
		v := *p.Parked
		out.Parked = &v
	}
	return out
}

// DefaultPhase builds the zero-timer variant for m. Used when a restored
// record carries a mode without a matching phase.
func DefaultPhase(m Mode) Phase {
	switch m {
	case ModeIdle:
		return Phase{Idle: &IdlePhase{Next: ModeRoaming}}
	case ModeInvestigating:
		return Phase{Investigate: &InvestigatePhase{}}
	case ModeHunting:
		return Phase{Hunt: &HuntPhase{}}
	case ModeEmote:
		return Phase{Emote: &EmotePhase{Return: ModeRoaming}}
	case ModeKilling:
		return Phase{Kill: &KillPhase{}}
	case ModeBackstageTravel:
		return Phase{Travel: &TravelPhase{}}
	case ModeBackstageIdle:
		return Phase{Parked: &ParkedPhase{}}
	default:
		return Phase{Roam: &RoamPhase{}}
	}
}

package ai

import (
	"time"

	"github.com/kasuganosora/stalker/game/brain"
)

// KillTimeline scripts the kill sequence: playback runs at normal speed,
// drops to SlowSpeed between SlowAt and ResumeAt, and returns to normal.
// Effect fires once at EffectAt; the sequence completes at End.
type KillTimeline struct {
	SlowAt    time.Duration `mapstructure:"slow_at"`
	ResumeAt  time.Duration `mapstructure:"resume_at"`
	SlowSpeed float64       `mapstructure:"slow_speed"`
	EffectAt  time.Duration `mapstructure:"effect_at"`
	Effect    string        `mapstructure:"effect"`
	End       time.Duration `mapstructure:"end"`
}

func DefaultKillTimeline() KillTimeline {
	return KillTimeline{
		SlowAt:    400 * time.Millisecond,
		ResumeAt:  1200 * time.Millisecond,
		SlowSpeed: 0.35,
		EffectAt:  800 * time.Millisecond,
		Effect:    "kill_sting",
		End:       2500 * time.Millisecond,
	}
}

// SpeedAt returns the playback multiplier at elapsed.
func (t KillTimeline) SpeedAt(elapsed time.Duration) float64 {
	if elapsed >= t.SlowAt && elapsed < t.ResumeAt {
		return t.SlowSpeed
	}
	return 1
}

// KillEvents are the presentation events produced by one Advance.
type KillEvents struct {
	Speed        float64
	SpeedChanged bool
	FireEffect   bool
	Complete     bool
}

// Advance moves the cursor by dt. A completed timeline no longer advances.
func (t KillTimeline) Advance(k *brain.KillPhase, dt time.Duration) KillEvents {
	if k.Completed {
		return KillEvents{Speed: 1}
	}
	before := t.SpeedAt(k.Elapsed)
	k.Elapsed += dt
	ev := KillEvents{Speed: t.SpeedAt(k.Elapsed)}
	ev.SpeedChanged = ev.Speed != before
	if !k.EffectFired && k.Elapsed >= t.EffectAt {
		k.EffectFired = true
		ev.FireEffect = true
	}
	if k.Elapsed >= t.End {
		k.Completed = true
		ev.Complete = true
		if ev.Speed != 1 {
			ev.Speed, ev.SpeedChanged = 1, true
		}
	}
	return ev
}

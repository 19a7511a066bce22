package brain

import (
	"encoding/json"
	"fmt"
)

// Mode enumerates the agent's behavioral states.
type Mode int

const (
	ModeIdle Mode = iota
	ModeRoaming
	ModeInvestigating
	ModeHunting
	ModeEmote
	ModeKilling
	ModeBackstageTravel
	ModeBackstageIdle
)

var modeNames = [...]string{
	ModeIdle:            "idle",
	ModeRoaming:         "roaming",
	ModeInvestigating:   "investigating",
	ModeHunting:         "hunting",
	ModeEmote:           "emote",
	ModeKilling:         "killing",
	ModeBackstageTravel: "backstage_travel",
	ModeBackstageIdle:   "backstage_idle",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m >= 0 && int(m) < len(modeNames)
}

// Engaged reports whether the mode counts as engagement for the director's
// threat floor.
func (m Mode) Engaged() bool {
	return m == ModeInvestigating || m == ModeHunting || m == ModeKilling
}

// Backstage reports whether the mode belongs to the backstage trajectory.
func (m Mode) Backstage() bool {
	return m == ModeBackstageTravel || m == ModeBackstageIdle
}

// ParseMode is the inverse of String.
func ParseMode(s string) (Mode, error) {
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}
	return ModeIdle, fmt.Errorf("brain: unknown mode %q", s)
}

// MarshalJSON stores modes by name so saved records survive enum reordering.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

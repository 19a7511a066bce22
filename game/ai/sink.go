package ai

// PresentationSink receives the agent's outward-facing intents. Calls are
// fire-and-forget; the controller never waits on or reads back from a sink.
type PresentationSink interface {
	SetLocomotion(moving, sprinting bool)
	SetVisible(visible bool)
	SetCollidable(collidable bool)
	PlayOneShotEffect(id string)
	SetPlaybackSpeed(multiplier float64)
	SetTargetInDeathSequence(active bool)
	KillComplete()
}

// NopSink discards every call.
type NopSink struct{}

func (NopSink) SetLocomotion(bool, bool)      {}
func (NopSink) SetVisible(bool)               {}
func (NopSink) SetCollidable(bool)            {}
func (NopSink) PlayOneShotEffect(string)      {}
func (NopSink) SetPlaybackSpeed(float64)      {}
func (NopSink) SetTargetInDeathSequence(bool) {}
func (NopSink) KillComplete()                 {}

package brain

import "math/rand"

// Source is a splitmix64 generator whose whole state is one uint64 living in
// the behavior record, so a restored session draws the same numbers as an
// uninterrupted one.
type Source struct {
	state *uint64
}

// NewSource binds a generator to a state word.
func NewSource(state *uint64) *Source {
	return &Source{state: state}
}

// Bind points the generator at another state word, typically the matching
// field of a freshly restored record.
func (s *Source) Bind(state *uint64) {
	s.state = state
}

func (s *Source) Uint64() uint64 {
	*s.state += 0x9e3779b97f4a7c15
	z := *s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (s *Source) Int63() int64 {
	return int64(s.Uint64() >> 1)
}

func (s *Source) Seed(seed int64) {
	*s.state = uint64(seed)
}

// Rand returns a *rand.Rand drawing from the state word.
// math/rand keeps no buffered state for Float64/Intn, so the word is authoritative.
func Rand(state *uint64) *rand.Rand {
	return rand.New(NewSource(state))
}

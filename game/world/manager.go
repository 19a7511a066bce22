package world

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnknownAgent = errors.New("world: unknown agent")
	ErrAgentExists  = errors.New("world: agent already exists")
)

// OptionsFunc builds the options for a new agent. Each agent needs its own
// Occluders since the agent and target movers are registered on it.
type OptionsFunc func(id string) (Options, error)

// WorldManager owns every running agent session.
type WorldManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cancels  map[string]context.CancelFunc
	build    OptionsFunc
	logger   *zap.Logger
}

// NewWorldManager creates a manager that builds each session with build.
func NewWorldManager(build OptionsFunc, logger *zap.Logger) *WorldManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorldManager{
		sessions: make(map[string]*Session),
		cancels:  make(map[string]context.CancelFunc),
		build:    build,
		logger:   logger,
	}
}

// Spawn creates and starts a session. An empty id gets a generated one.
func (wm *WorldManager) Spawn(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	wm.mu.RLock()
	_, ok := wm.sessions[id]
	wm.mu.RUnlock()
	if ok {
		return nil, ErrAgentExists
	}

	opts, err := wm.build(id)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = wm.logger
	}

	wm.mu.Lock()
	defer wm.mu.Unlock()
	// Double-check after acquiring write lock.
	if _, ok := wm.sessions[id]; ok {
		return nil, ErrAgentExists
	}
	s := NewSession(id, opts)
	runCtx, cancel := context.WithCancel(context.Background())
	wm.sessions[id] = s
	wm.cancels[id] = cancel
	go s.Run(runCtx)
	wm.logger.Info("agent session started", zap.String("agent_id", id))
	return s, nil
}

// Get returns the session for id.
func (wm *WorldManager) Get(id string) (*Session, error) {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	s, ok := wm.sessions[id]
	if !ok {
		return nil, ErrUnknownAgent
	}
	return s, nil
}

// IDs returns the running agent ids in sorted order.
func (wm *WorldManager) IDs() []string {
	wm.mu.RLock()
	ids := make([]string, 0, len(wm.sessions))
	for id := range wm.sessions {
		ids = append(ids, id)
	}
	wm.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Snapshots returns a snapshot of every running session.
func (wm *WorldManager) Snapshots() []Snapshot {
	ids := wm.IDs()
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if s, err := wm.Get(id); err == nil {
			out = append(out, s.Snapshot())
		}
	}
	return out
}

// Destroy stops and removes the session for id.
func (wm *WorldManager) Destroy(id string) error {
	wm.mu.Lock()
	s, ok := wm.sessions[id]
	cancel := wm.cancels[id]
	delete(wm.sessions, id)
	delete(wm.cancels, id)
	wm.mu.Unlock()
	if !ok {
		return ErrUnknownAgent
	}
	cancel()
	s.Stop()
	wm.logger.Info("agent session stopped", zap.String("agent_id", id))
	return nil
}

// Count returns the number of running sessions.
func (wm *WorldManager) Count() int {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return len(wm.sessions)
}

// StopAll stops every session (used at server shutdown).
func (wm *WorldManager) StopAll() {
	wm.mu.Lock()
	sessions := make([]*Session, 0, len(wm.sessions))
	for _, s := range wm.sessions {
		sessions = append(sessions, s)
	}
	cancels := wm.cancels
	wm.sessions = make(map[string]*Session)
	wm.cancels = make(map[string]context.CancelFunc)
	wm.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	for _, s := range sessions {
		s.Stop()
	}
}

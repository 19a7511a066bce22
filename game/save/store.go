// Package save persists behavior records in save slots. The database is the
// source of truth; the cache holds a hot copy of recently used slots.
package save

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kasuganosora/stalker/cache"
	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/model"
)

var (
	ErrNotFound = errors.New("save: slot not found")
	ErrCorrupt  = errors.New("save: slot data corrupt")
)

// Adapter is what the engine needs from persistence.
type Adapter interface {
	Save(ctx context.Context, slot, agentID string, st *brain.State) error
	Load(ctx context.Context, slot string) (*brain.State, error)
}

// Store implements Adapter over gorm with a cache in front.
type Store struct {
	db     *gorm.DB
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewStore creates a Store. c may be nil to disable the hot copy.
func NewStore(db *gorm.DB, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, cache: c, ttl: ttl, logger: logger}
}

func snapshotKey(slot string) string { return "save:" + slot }

func lockKey(slot string) string { return "lock:save:" + slot }

// Save writes st to slot, replacing whatever was there.
func (s *Store) Save(ctx context.Context, slot, agentID string, st *brain.State) error {
	data, err := st.Marshal()
	if err != nil {
		return fmt.Errorf("save: marshal %s: %w", slot, err)
	}
	row := model.AgentSave{
		SlotID:  slot,
		AgentID: agentID,
		Version: st.Version,
		Mode:    st.Mode.String(),
		State:   datatypes.JSON(data),
		SavedAt: time.Now(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"agent_id", "version", "mode", "state", "saved_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save: write %s: %w", slot, err)
	}
	s.remember(ctx, slot, string(data))
	return nil
}

// Load returns the record in slot. It reports ErrNotFound for an empty slot
// and ErrCorrupt when the stored bytes do not decode.
func (s *Store) Load(ctx context.Context, slot string) (*brain.State, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, snapshotKey(slot)); err == nil {
			if st, err := brain.Unmarshal([]byte(raw)); err == nil {
				return st, nil
			}
			s.logger.Warn("dropping undecodable cached save", zap.String("slot", slot))
			_ = s.cache.Del(ctx, snapshotKey(slot))
		} else if !errors.Is(err, cache.ErrNotFound) {
			s.logger.Warn("save cache read failed", zap.String("slot", slot), zap.Error(err))
		}
	}

	var row model.AgentSave
	err := s.db.WithContext(ctx).First(&row, "slot_id = ?", slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("save: read %s: %w", slot, err)
	}
	st, err := brain.Unmarshal(row.State)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, slot, err)
	}
	s.remember(ctx, slot, string(row.State))
	return st, nil
}

// LoadOr returns the record in slot, or fallback() when the slot is missing
// or unreadable. The second result reports whether the slot was used.
func (s *Store) LoadOr(ctx context.Context, slot string, fallback func() *brain.State) (*brain.State, bool) {
	st, err := s.Load(ctx, slot)
	if err == nil {
		return st, true
	}
	s.logger.Warn("save slot unusable, starting fresh", zap.String("slot", slot), zap.Error(err))
	return fallback(), false
}

// List returns slot metadata for agentID (every agent when empty), newest
// first. State is not loaded.
func (s *Store) List(ctx context.Context, agentID string) ([]model.AgentSave, error) {
	q := s.db.WithContext(ctx).Model(&model.AgentSave{}).
		Select("slot_id", "agent_id", "version", "mode", "saved_at", "created_at").
		Order("saved_at DESC")
	if agentID != "" {
		q = q.Where("agent_id = ?", agentID)
	}
	var rows []model.AgentSave
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("save: list: %w", err)
	}
	return rows, nil
}

// Delete empties slot.
func (s *Store) Delete(ctx context.Context, slot string) error {
	res := s.db.WithContext(ctx).Delete(&model.AgentSave{}, "slot_id = ?", slot)
	if res.Error != nil {
		return fmt.Errorf("save: delete %s: %w", slot, res.Error)
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, snapshotKey(slot))
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Autosave saves st unless another writer saved slot within hold. It reports
// whether a write happened.
func (s *Store) Autosave(ctx context.Context, slot, agentID string, st *brain.State, hold time.Duration) (bool, error) {
	if s.cache != nil && hold > 0 {
		ok, err := s.cache.SetNX(ctx, lockKey(slot), agentID, hold)
		if err != nil {
			s.logger.Warn("autosave lock failed, saving anyway", zap.String("slot", slot), zap.Error(err))
		} else if !ok {
			return false, nil
		}
	}
	if err := s.Save(ctx, slot, agentID, st); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) remember(ctx context.Context, slot, data string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, snapshotKey(slot), data, s.ttl); err != nil {
		s.logger.Warn("save cache write failed", zap.String("slot", slot), zap.Error(err))
	}
}

package save

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/kasuganosora/stalker/cache"
	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/game/spatial"
	"github.com/kasuganosora/stalker/model"
	"github.com/kasuganosora/stalker/testutil"
)

func newStore(t *testing.T) (*Store, cache.Cache) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	return NewStore(db, c, time.Minute, zap.NewNop()), c
}

func sampleState() *brain.State {
	st := brain.NewState(9, true, brain.Pose{Position: spatial.Vec{X: 4, Z: 6}, Yaw: 0.5})
	st.Enter(brain.ModeHunting, brain.Phase{Hunt: &brain.HuntPhase{EverSaw: true, PathFailures: 1}})
	st.SetThreat(72)
	st.Clock = 3 * time.Second
	return st
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	st := sampleState()

	require.NoError(t, s.Save(ctx, "slot-1", "stalker", st))
	got, err := s.Load(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestStore_SaveOverwritesSlot(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	st := sampleState()
	require.NoError(t, s.Save(ctx, "slot-1", "stalker", st))

	st.SetThreat(10)
	require.NoError(t, s.Save(ctx, "slot-1", "stalker", st))

	got, err := s.Load(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Threat)

	rows, err := s.List(ctx, "stalker")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "hunting", rows[0].Mode)
	assert.Empty(t, rows[0].State, "listings skip the state column")
}

func TestStore_LoadFallsBackToDatabase(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	ctx := context.Background()
	st := sampleState()

	writer := NewStore(db, nil, 0, zap.NewNop())
	require.NoError(t, writer.Save(ctx, "slot-1", "stalker", st))

	reader := NewStore(db, c, time.Minute, zap.NewNop())
	got, err := reader.Load(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, st, got)

	raw, err := c.Get(ctx, "save:slot-1")
	require.NoError(t, err, "a database hit warms the cache")
	assert.NotEmpty(t, raw)
}

func TestStore_BadCacheEntryIsDropped(t *testing.T) {
	s, c := newStore(t)
	ctx := context.Background()
	st := sampleState()
	require.NoError(t, s.Save(ctx, "slot-1", "stalker", st))
	require.NoError(t, c.Set(ctx, "save:slot-1", "{not json", time.Minute))

	got, err := s.Load(ctx, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestStore_MissingAndCorrupt(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := NewStore(db, nil, 0, zap.NewNop())
	ctx := context.Background()

	_, err := s.Load(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Create(&model.AgentSave{
		SlotID: "bad", AgentID: "stalker", State: datatypes.JSON(`"garbage"`), SavedAt: time.Now(),
	}).Error)
	_, err = s.Load(ctx, "bad")
	assert.ErrorIs(t, err, ErrCorrupt)

	fresh := brain.NewState(1, true, brain.Pose{})
	got, used := s.LoadOr(ctx, "bad", func() *brain.State { return fresh })
	assert.False(t, used)
	assert.Same(t, fresh, got)
}

func TestStore_Delete(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "slot-1", "stalker", sampleState()))
	require.NoError(t, s.Delete(ctx, "slot-1"))

	_, err := s.Load(ctx, "slot-1")
	assert.ErrorIs(t, err, ErrNotFound, "the cached copy goes with the row")
	assert.ErrorIs(t, s.Delete(ctx, "slot-1"), ErrNotFound)
}

func TestStore_AutosaveHonoursLock(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	st := sampleState()

	wrote, err := s.Autosave(ctx, "auto", "stalker", st, time.Minute)
	require.NoError(t, err)
	assert.True(t, wrote)

	st.SetThreat(5)
	wrote, err = s.Autosave(ctx, "auto", "stalker", st, time.Minute)
	require.NoError(t, err)
	assert.False(t, wrote, "a second writer inside the hold is skipped")

	got, err := s.Load(ctx, "auto")
	require.NoError(t, err)
	assert.Equal(t, 72, got.Threat)
}

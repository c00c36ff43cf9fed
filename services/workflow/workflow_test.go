package workflow

import (
	"context"
	"testing"
	"time"

	"jpjportal_go/database/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFlow = Flow{
	Stages: []string{"requested", "paid"},
	Required: map[string][]string{
		"requested": {"record_id", "amount"},
		"paid":      {"transaction_id"},
	},
}

func newTestEngine(t *testing.T, now time.Time) (*Engine, *DBStore) {
	t.Helper()
	store := NewDBStore(dbtest.New(t))
	store.now = func() time.Time { return now }
	engine := NewEngine(store, 30*time.Minute)
	engine.now = func() time.Time { return now }
	engine.Register("road_tax", testFlow)
	return engine, store
}

func TestEngineStartAdvanceFinish(t *testing.T) {
	now := time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)
	engine, _ := newTestEngine(t, now)
	ctx := context.Background()

	st, err := engine.Start(ctx, "road_tax", 3, map[string]string{"record_id": "12", "amount": "90.00"})
	require.NoError(t, err)
	assert.NotEmpty(t, st.Token)
	assert.Equal(t, "requested", st.Stage)
	assert.Equal(t, now.Add(30*time.Minute), st.ExpiresAt)

	loaded, err := engine.Load(ctx, st.Token, "road_tax", 3)
	require.NoError(t, err)
	assert.Equal(t, "12", loaded.Get("record_id"))

	paid, err := engine.Advance(ctx, loaded, "requested", map[string]string{"transaction_id": "TXN-1"})
	require.NoError(t, err)
	assert.Equal(t, "paid", paid.Stage)
	assert.Equal(t, "90.00", paid.Get("amount"))

	reloaded, err := engine.Load(ctx, st.Token, "road_tax", 3)
	require.NoError(t, err)
	assert.Equal(t, "paid", reloaded.Stage)
	assert.Equal(t, "TXN-1", reloaded.Get("transaction_id"))

	_, err = engine.Advance(ctx, reloaded, "requested", map[string]string{"transaction_id": "TXN-2"})
	assert.ErrorIs(t, err, ErrWrongStage)

	require.NoError(t, engine.Finish(ctx, st.Token))
	_, err = engine.Load(ctx, st.Token, "road_tax", 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngineRequiredFields(t *testing.T) {
	engine, _ := newTestEngine(t, time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := engine.Start(ctx, "road_tax", 3, map[string]string{"record_id": "12"})
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.Contains(t, err.Error(), "amount")

	st, err := engine.Start(ctx, "road_tax", 3, map[string]string{"record_id": "12", "amount": "1"})
	require.NoError(t, err)
	_, err = engine.Advance(ctx, st, "requested", nil)
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = engine.Start(ctx, "unknown", 3, nil)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestEngineLoadRejectsForeignOrExpired(t *testing.T) {
	now := time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)
	engine, store := newTestEngine(t, now)
	ctx := context.Background()

	st, err := engine.Start(ctx, "road_tax", 3, map[string]string{"record_id": "12", "amount": "1"})
	require.NoError(t, err)

	_, err = engine.Load(ctx, st.Token, "road_tax", 4)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = engine.Load(ctx, st.Token, "mock_test", 3)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = engine.Load(ctx, "", "road_tax", 3)
	assert.ErrorIs(t, err, ErrNotFound)

	later := now.Add(31 * time.Minute)
	engine.now = func() time.Time { return later }
	store.now = func() time.Time { return later }
	_, err = engine.Load(ctx, st.Token, "road_tax", 3)
	assert.ErrorIs(t, err, ErrNotFound)

	purged, err := store.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

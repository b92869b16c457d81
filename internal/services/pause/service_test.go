package pause

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saqiah/waterbot/internal/repository"
)

func newTestRegistry(t *testing.T, ttl time.Duration) *Registry {
	t.Helper()
	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRegistry(db.Pauses(), ttl)
}

func TestIsPausedLifecycle(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	paused, err := reg.IsPaused(ctx, "966501234567")
	require.NoError(t, err)
	assert.False(t, paused)

	created, err := reg.CreatePause(ctx, "966501234567", "966501234567", "agent-1", 0)
	require.NoError(t, err)
	assert.True(t, created.Active)
	assert.WithinDuration(t, time.Now().Add(time.Hour), created.ExpiresAt, time.Minute)

	paused, err = reg.IsPaused(ctx, "966501234567")
	require.NoError(t, err)
	assert.True(t, paused)

	// other conversations are unaffected
	paused, err = reg.IsPaused(ctx, "966509999999")
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestIsPausedExpiryLazySweep(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	_, err := reg.CreatePause(ctx, "966501234567", "966501234567", "agent-1", 30*time.Millisecond)
	require.NoError(t, err)

	paused, err := reg.IsPaused(ctx, "966501234567")
	require.NoError(t, err)
	assert.True(t, paused)

	time.Sleep(50 * time.Millisecond)

	paused, err = reg.IsPaused(ctx, "966501234567")
	require.NoError(t, err)
	assert.False(t, paused)

	// the lazy sweep deactivated the row, so Info sees nothing active
	info, err := reg.Info(ctx, "966501234567")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestCreatePauseSupersedes(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	first, err := reg.CreatePause(ctx, "966501234567", "966501234567", "agent-1", time.Hour)
	require.NoError(t, err)
	second, err := reg.CreatePause(ctx, "966501234567", "966501234567", "agent-2", 2*time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	info, err := reg.Info(ctx, "966501234567")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, second.ID, info.ID)
	assert.Equal(t, "agent-2", info.Agent)
}

func TestSweep(t *testing.T) {
	reg := newTestRegistry(t, time.Hour)
	ctx := context.Background()

	_, err := reg.CreatePause(ctx, "111", "111", "agent-1", 10*time.Millisecond)
	require.NoError(t, err)
	_, err = reg.CreatePause(ctx, "222", "222", "agent-1", time.Hour)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	n, err := reg.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	paused, err := reg.IsPaused(ctx, "222")
	require.NoError(t, err)
	assert.True(t, paused)
}

func TestDefaultTTLFallback(t *testing.T) {
	reg := newTestRegistry(t, 0)
	ctx := context.Background()

	created, err := reg.CreatePause(ctx, "966501234567", "966501234567", "agent-1", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), created.ExpiresAt, time.Minute)
}

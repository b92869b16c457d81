package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saqiah/waterbot/internal/domain"
)

func newPause(conversationID string, ttl time.Duration) *domain.ConversationPause {
	now := time.Now()
	return &domain.ConversationPause{
		ID:             conversationID + "-" + now.Format("150405.000000"),
		ConversationID: conversationID,
		Phone:          conversationID,
		Agent:          "agent-1",
		Active:         true,
		PausedAt:       now,
		ExpiresAt:      now.Add(ttl),
	}
}

func TestPauseCreateSupersedesPrior(t *testing.T) {
	db := openTestDB(t)
	repo := db.Pauses()
	ctx := context.Background()

	first := newPause("966501234567", time.Hour)
	require.NoError(t, repo.Create(ctx, first))

	time.Sleep(2 * time.Millisecond)
	second := newPause("966501234567", 2*time.Hour)
	require.NoError(t, repo.Create(ctx, second))

	active, err := repo.FindActive(ctx, "966501234567")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	var count int64
	require.NoError(t, db.db.Model(&domain.ConversationPause{}).
		Where("conversation_id = ? AND active = ?", "966501234567", true).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestPauseFindActiveNotFound(t *testing.T) {
	db := openTestDB(t)
	repo := db.Pauses()

	_, err := repo.FindActive(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPauseDeactivateExpired(t *testing.T) {
	db := openTestDB(t)
	repo := db.Pauses()
	ctx := context.Background()

	expired := newPause("111", -time.Minute)
	require.NoError(t, repo.Create(ctx, expired))
	fresh := newPause("222", time.Hour)
	require.NoError(t, repo.Create(ctx, fresh))

	// scoped sweep only touches its conversation
	n, err := repo.DeactivateExpired(ctx, "222", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = repo.DeactivateExpired(ctx, "111", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = repo.FindActive(ctx, "111")
	assert.ErrorIs(t, err, ErrNotFound)

	active, err := repo.FindActive(ctx, "222")
	require.NoError(t, err)
	assert.True(t, active.InForce(time.Now()))
}

func TestPauseDeactivateExpiredGlobalSweep(t *testing.T) {
	db := openTestDB(t)
	repo := db.Pauses()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPause("111", -time.Minute)))
	require.NoError(t, repo.Create(ctx, newPause("222", -time.Second)))
	require.NoError(t, repo.Create(ctx, newPause("333", time.Hour)))

	n, err := repo.DeactivateExpired(ctx, "", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/saqiah/waterbot/internal/domain"
)

// PauseRepository persists conversation pauses. The (conversation_id,
// active, expires_at) index keeps the per-message lookup cheap.
type PauseRepository interface {
	// FindActive returns the active pause for a conversation, expired or
	// not. Callers decide whether it is in force.
	FindActive(ctx context.Context, conversationID string) (*domain.ConversationPause, error)

	// DeactivateExpired marks expired active pauses inactive. With a
	// non-empty conversationID only that conversation is swept (the lazy
	// sweep on read); empty sweeps everything (janitor).
	DeactivateExpired(ctx context.Context, conversationID string, now time.Time) (int64, error)

	// Create stores a pause after deactivating any prior active pause for
	// the same conversation id, atomically.
	Create(ctx context.Context, pause *domain.ConversationPause) error
}

// GormPauseRepository is the SQLite-backed implementation.
type GormPauseRepository struct {
	db *gorm.DB
}

func NewGormPauseRepository(db *gorm.DB) *GormPauseRepository {
	return &GormPauseRepository{db: db}
}

func (r *GormPauseRepository) FindActive(ctx context.Context, conversationID string) (*domain.ConversationPause, error) {
	var pause domain.ConversationPause
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND active = ?", conversationID, true).
		Order("paused_at DESC").
		First(&pause).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pause, nil
}

func (r *GormPauseRepository) DeactivateExpired(ctx context.Context, conversationID string, now time.Time) (int64, error) {
	q := r.db.WithContext(ctx).
		Model(&domain.ConversationPause{}).
		Where("active = ? AND expires_at <= ?", true, now)
	if conversationID != "" {
		q = q.Where("conversation_id = ?", conversationID)
	}
	res := q.Update("active", false)
	return res.RowsAffected, res.Error
}

func (r *GormPauseRepository) Create(ctx context.Context, pause *domain.ConversationPause) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// a new pause supersedes any prior active one
		if err := tx.Model(&domain.ConversationPause{}).
			Where("conversation_id = ? AND active = ?", pause.ConversationID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(pause).Error
	})
}

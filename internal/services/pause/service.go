// Package pause implements the agent-triggered bot pause registry. Every
// inbound message consults IsPaused before any other work, so lookups are
// served from an in-process read-through cache in front of the table.
package pause

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"go.uber.org/zap"

	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/internal/repository"
	"github.com/saqiah/waterbot/pkg/logger"
)

// DefaultTTL applies when a pause is created without an explicit duration.
const DefaultTTL = 10 * time.Hour

// Registry creates, queries and expires conversation pauses.
type Registry struct {
	repo       repository.PauseRepository
	defaultTTL time.Duration

	mu    sync.Mutex
	cache map[string]*domain.ConversationPause // conversation id -> active pause
}

// NewRegistry builds the registry. A non-positive defaultTTL falls back to
// DefaultTTL.
func NewRegistry(repo repository.PauseRepository, defaultTTL time.Duration) *Registry {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Registry{
		repo:       repo,
		defaultTTL: defaultTTL,
		cache:      make(map[string]*domain.ConversationPause),
	}
}

// IsPaused reports whether an active, unexpired pause exists for the
// conversation. Expired pauses found on the way are marked inactive (lazy
// sweep), atomically with respect to the check itself.
func (r *Registry) IsPaused(ctx context.Context, conversationID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if cached, ok := r.cache[conversationID]; ok {
		if cached.InForce(now) {
			return true, nil
		}
		delete(r.cache, conversationID)
	}

	pause, err := r.repo.FindActive(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !pause.InForce(now) {
		if _, err := r.repo.DeactivateExpired(ctx, conversationID, now); err != nil {
			return false, err
		}
		return false, nil
	}

	r.cache[conversationID] = pause
	return true, nil
}

// CreatePause stores a new pause, superseding any prior active pause for
// the same conversation id. A non-positive ttl uses the registry default.
func (r *Registry) CreatePause(ctx context.Context, conversationID, phone, agent string, ttl time.Duration) (*domain.ConversationPause, error) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	now := time.Now()
	pause := &domain.ConversationPause{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Phone:          phone,
		Agent:          agent,
		Active:         true,
		PausedAt:       now,
		ExpiresAt:      now.Add(ttl),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.repo.Create(ctx, pause); err != nil {
		return nil, err
	}
	r.cache[conversationID] = pause

	logger.Base().Info("conversation paused",
		zap.String("conversation_id", conversationID),
		zap.String("agent", agent),
		zap.Time("expires_at", pause.ExpiresAt))

	out := &domain.ConversationPause{}
	if err := copier.Copy(out, pause); err != nil {
		return nil, err
	}
	return out, nil
}

// Info returns the active pause for diagnostics, or nil when none exists.
func (r *Registry) Info(ctx context.Context, conversationID string) (*domain.ConversationPause, error) {
	pause, err := r.repo.FindActive(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := &domain.ConversationPause{}
	if err := copier.Copy(out, pause); err != nil {
		return nil, err
	}
	return out, nil
}

// Sweep deactivates every expired pause. Run periodically as a janitor in
// addition to the lazy per-read sweep.
func (r *Registry) Sweep(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, cached := range r.cache {
		if !cached.InForce(now) {
			delete(r.cache, id)
		}
	}
	return r.repo.DeactivateExpired(ctx, "", now)
}

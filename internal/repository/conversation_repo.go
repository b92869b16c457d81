package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/pkg/language"
)

// ConversationRepository persists users, inbound messages, bot replies and
// the classifier side-effect records.
type ConversationRepository interface {
	// UpsertUser finds or creates the user for a phone; idempotent by phone.
	UpsertUser(ctx context.Context, phone string) (*domain.User, error)

	// RecordInbound stores an inbound message. When gatewayID is non-nil
	// and already stored, the existing message is returned together with
	// ErrDuplicateMessage.
	RecordInbound(ctx context.Context, userID uint, text string, lang language.Lang, gatewayID *string) (*domain.InboundMessage, error)

	// AlreadyProcessed reports whether a gateway message id is stored.
	AlreadyProcessed(ctx context.Context, gatewayID string) (bool, error)

	// RecordReply stores the single reply for an inbound message. A second
	// call for the same inbound id returns ErrReplyExists.
	RecordReply(ctx context.Context, inboundID uint, text string, lang language.Lang) (*domain.BotReply, error)

	// SetIntent records the classified intent on a stored inbound message.
	SetIntent(ctx context.Context, inboundID uint, intent domain.Intent) error

	// RecentHistory returns the last n inbound/reply events for a user,
	// oldest first, shaped for LLM context.
	RecentHistory(ctx context.Context, userID uint, n int) ([]domain.HistoryTurn, error)

	CreateComplaint(ctx context.Context, inboundID uint, text string) error
	CreateSuggestion(ctx context.Context, inboundID uint, text string) error

	// DeleteConversation removes all messages and replies for a phone.
	// Maintenance only.
	DeleteConversation(ctx context.Context, phone string) error
}

// GormConversationRepository is the SQLite-backed implementation.
type GormConversationRepository struct {
	db *gorm.DB
}

func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) UpsertUser(ctx context.Context, phone string) (*domain.User, error) {
	user := domain.User{Phone: phone}
	err := r.db.WithContext(ctx).
		Where(domain.User{Phone: phone}).
		Attrs(domain.User{CreatedAt: time.Now()}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormConversationRepository) RecordInbound(ctx context.Context, userID uint, text string, lang language.Lang, gatewayID *string) (*domain.InboundMessage, error) {
	msg := domain.InboundMessage{
		UserID:           userID,
		Text:             text,
		Language:         lang,
		GatewayMessageID: gatewayID,
		ReceivedAt:       time.Now(),
	}
	err := r.db.WithContext(ctx).Create(&msg).Error
	if err == nil {
		return &msg, nil
	}
	// The unique index on gateway_message_id is the idempotency barrier:
	// under concurrent delivery exactly one insert wins.
	if gatewayID != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		var existing domain.InboundMessage
		if ferr := r.db.WithContext(ctx).
			Where("gateway_message_id = ?", *gatewayID).
			First(&existing).Error; ferr == nil {
			return &existing, ErrDuplicateMessage
		}
	}
	return nil, err
}

func (r *GormConversationRepository) AlreadyProcessed(ctx context.Context, gatewayID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.InboundMessage{}).
		Where("gateway_message_id = ?", gatewayID).
		Count(&count).Error
	return count > 0, err
}

func (r *GormConversationRepository) RecordReply(ctx context.Context, inboundID uint, text string, lang language.Lang) (*domain.BotReply, error) {
	reply := domain.BotReply{
		InboundMessageID: inboundID,
		Text:             text,
		Language:         lang,
		SentAt:           time.Now(),
	}
	err := r.db.WithContext(ctx).Create(&reply).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrReplyExists
		}
		return nil, err
	}
	return &reply, nil
}

func (r *GormConversationRepository) SetIntent(ctx context.Context, inboundID uint, intent domain.Intent) error {
	return r.db.WithContext(ctx).
		Model(&domain.InboundMessage{}).
		Where("id = ?", inboundID).
		Update("intent", intent).Error
}

func (r *GormConversationRepository) RecentHistory(ctx context.Context, userID uint, n int) ([]domain.HistoryTurn, error) {
	var messages []domain.InboundMessage
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("received_at DESC").
		Limit(n).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	var replies []domain.BotReply
	if err := r.db.WithContext(ctx).
		Where("inbound_message_id IN ?", ids).
		Find(&replies).Error; err != nil {
		return nil, err
	}

	turns := make([]domain.HistoryTurn, 0, len(messages)+len(replies))
	for _, m := range messages {
		turns = append(turns, domain.HistoryTurn{
			Role: "user", Content: m.Text, Language: m.Language, Timestamp: m.ReceivedAt,
		})
	}
	for _, rep := range replies {
		turns = append(turns, domain.HistoryTurn{
			Role: "bot", Content: rep.Text, Language: rep.Language, Timestamp: rep.SentAt,
		})
	}
	sortTurns(turns)
	// the window counts combined events, not inbound messages
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns, nil
}

func sortTurns(turns []domain.HistoryTurn) {
	// insertion sort; history windows are tiny
	for i := 1; i < len(turns); i++ {
		for j := i; j > 0 && turns[j].Timestamp.Before(turns[j-1].Timestamp); j-- {
			turns[j], turns[j-1] = turns[j-1], turns[j]
		}
	}
}

func (r *GormConversationRepository) CreateComplaint(ctx context.Context, inboundID uint, text string) error {
	return r.db.WithContext(ctx).Create(&domain.Complaint{
		InboundMessageID: inboundID,
		Text:             text,
		CreatedAt:        time.Now(),
	}).Error
}

func (r *GormConversationRepository) CreateSuggestion(ctx context.Context, inboundID uint, text string) error {
	return r.db.WithContext(ctx).Create(&domain.Suggestion{
		InboundMessageID: inboundID,
		Text:             text,
		CreatedAt:        time.Now(),
	}).Error
}

func (r *GormConversationRepository) DeleteConversation(ctx context.Context, phone string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user domain.User
		if err := tx.Where("phone = ?", phone).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		var ids []uint
		if err := tx.Model(&domain.InboundMessage{}).
			Where("user_id = ?", user.ID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := tx.Where("inbound_message_id IN ?", ids).Delete(&domain.BotReply{}).Error; err != nil {
				return err
			}
			if err := tx.Where("inbound_message_id IN ?", ids).Delete(&domain.Complaint{}).Error; err != nil {
				return err
			}
			if err := tx.Where("inbound_message_id IN ?", ids).Delete(&domain.Suggestion{}).Error; err != nil {
				return err
			}
		}
		return tx.Where("user_id = ?", user.ID).Delete(&domain.InboundMessage{}).Error
	})
}

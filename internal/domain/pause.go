package domain

import "time"

// ConversationPause suppresses bot replies for one conversation while a
// human agent handles it. At most one active pause exists per conversation
// id; a pause is in force iff Active && now < ExpiresAt.
type ConversationPause struct {
	ID             string    `json:"id" gorm:"column:id;primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"column:conversation_id;index:idx_pauses_lookup"`
	Phone          string    `json:"phone" gorm:"column:phone"`
	Agent          string    `json:"agent" gorm:"column:agent"`
	Active         bool      `json:"active" gorm:"column:active;index:idx_pauses_lookup"`
	PausedAt       time.Time `json:"paused_at" gorm:"column:paused_at"`
	ExpiresAt      time.Time `json:"expires_at" gorm:"column:expires_at;index:idx_pauses_lookup"`
}

func (ConversationPause) TableName() string { return "conversation_pauses" }

// InForce reports whether the pause currently suppresses replies.
func (p *ConversationPause) InForce(now time.Time) bool {
	return p.Active && now.Before(p.ExpiresAt)
}

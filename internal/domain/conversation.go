package domain

import (
	"time"

	"github.com/saqiah/waterbot/pkg/language"
)

// Intent is the enumerated tag assigned to an inbound message.
type Intent string

const (
	IntentServiceRequest Intent = "service_request"
	IntentInquiry        Intent = "inquiry"
	IntentComplaint      Intent = "complaint"
	IntentSuggestion     Intent = "suggestion"
	IntentGreeting       Intent = "greeting"
	IntentThanking       Intent = "thanking"
	IntentTemplateReply  Intent = "template_reply"
	IntentOther          Intent = "other"
)

// User is a WhatsApp customer, identified by a digits-only phone number.
type User struct {
	ID         uint      `json:"id" gorm:"column:id;primaryKey"`
	Phone      string    `json:"phone" gorm:"column:phone;uniqueIndex"`
	Name       string    `json:"name" gorm:"column:name"`
	Conclusion string    `json:"conclusion" gorm:"column:conclusion"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (User) TableName() string { return "users" }

// InboundMessage is one message received from the gateway. GatewayMessageID
// is the deduplication key: at most one row exists per non-null id.
type InboundMessage struct {
	ID               uint          `json:"id" gorm:"column:id;primaryKey"`
	UserID           uint          `json:"user_id" gorm:"column:user_id;index"`
	Text             string        `json:"text" gorm:"column:text"`
	Language         language.Lang `json:"language" gorm:"column:language"`
	Intent           *Intent       `json:"intent" gorm:"column:intent"`
	GatewayMessageID *string       `json:"gateway_message_id" gorm:"column:gateway_message_id;uniqueIndex"`
	ReceivedAt       time.Time     `json:"received_at" gorm:"column:received_at"`
}

func (InboundMessage) TableName() string { return "inbound_messages" }

// BotReply is the at-most-one reply produced for an inbound message.
type BotReply struct {
	ID               uint          `json:"id" gorm:"column:id;primaryKey"`
	InboundMessageID uint          `json:"inbound_message_id" gorm:"column:inbound_message_id;uniqueIndex"`
	Text             string        `json:"text" gorm:"column:text"`
	Language         language.Lang `json:"language" gorm:"column:language"`
	SentAt           time.Time     `json:"sent_at" gorm:"column:sent_at"`
}

func (BotReply) TableName() string { return "bot_replies" }

// Complaint is created as a classifier side effect when intent is complaint.
type Complaint struct {
	ID               uint      `json:"id" gorm:"column:id;primaryKey"`
	InboundMessageID uint      `json:"inbound_message_id" gorm:"column:inbound_message_id;index"`
	Text             string    `json:"text" gorm:"column:text"`
	CreatedAt        time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Complaint) TableName() string { return "complaints" }

// Suggestion is created as a classifier side effect when intent is suggestion.
type Suggestion struct {
	ID               uint      `json:"id" gorm:"column:id;primaryKey"`
	InboundMessageID uint      `json:"inbound_message_id" gorm:"column:inbound_message_id;index"`
	Text             string    `json:"text" gorm:"column:text"`
	CreatedAt        time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Suggestion) TableName() string { return "suggestions" }

// HistoryTurn is one event of the recent conversation history handed to the
// LLM as context, oldest first.
type HistoryTurn struct {
	Role      string        `json:"role"` // "user" or "bot"
	Content   string        `json:"content"`
	Language  language.Lang `json:"language"`
	Timestamp time.Time     `json:"timestamp"`
}

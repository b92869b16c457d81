// Package classifier assigns one of the seven intents to an inbound
// message, with a deterministic brand-keyword fast path ahead of the LLM.
package classifier

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/saqiah/waterbot/internal/core/llm"
	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/internal/prompts"
	"github.com/saqiah/waterbot/internal/repository"
	"github.com/saqiah/waterbot/pkg/language"
	"github.com/saqiah/waterbot/pkg/logger"
)

// HistoryWindow is how many recent turns the classifier sees.
const HistoryWindow = 5

// ChatService is the slice of the LLM client the classifier needs.
type ChatService interface {
	Chat(ctx context.Context, req llm.ChatRequest) (openai.ChatCompletionMessage, error)
}

// brandKeywords force intent to inquiry without an LLM call. Compared on
// the normalized form, so variants like مياة صحتك match too.
var brandKeywords = []string{"صحتك", "صحتيك"}

// Classifier assigns intents and records the complaint/suggestion side
// effects.
type Classifier struct {
	chat       ChatService
	translator language.Translator
	convRepo   repository.ConversationRepository
}

// New builds a classifier.
func New(chat ChatService, translator language.Translator, convRepo repository.ConversationRepository) *Classifier {
	return &Classifier{chat: chat, translator: translator, convRepo: convRepo}
}

// Classify assigns an intent to the stored inbound message. A nil intent
// with nil error means the model reply did not parse; downstream treats
// that as "route to humans". Complaint and suggestion records are created
// here as a side effect.
func (c *Classifier) Classify(ctx context.Context, msg *domain.InboundMessage, history []domain.HistoryTurn) (*domain.Intent, error) {
	intent, err := c.classify(ctx, msg, history)
	if err != nil || intent == nil {
		return intent, err
	}

	if err := c.convRepo.SetIntent(ctx, msg.ID, *intent); err != nil {
		return nil, err
	}
	switch *intent {
	case domain.IntentComplaint:
		if err := c.convRepo.CreateComplaint(ctx, msg.ID, msg.Text); err != nil {
			return nil, err
		}
	case domain.IntentSuggestion:
		if err := c.convRepo.CreateSuggestion(ctx, msg.ID, msg.Text); err != nil {
			return nil, err
		}
	}
	return intent, nil
}

func (c *Classifier) classify(ctx context.Context, msg *domain.InboundMessage, history []domain.HistoryTurn) (*domain.Intent, error) {
	normalized := language.NormalizeArabic(msg.Text)
	for _, kw := range brandKeywords {
		if strings.Contains(normalized, kw) {
			intent := domain.IntentInquiry
			return &intent, nil
		}
	}

	text := msg.Text
	if msg.Language == language.English && len(history) == 0 {
		translated, err := c.translator.TranslateTo(ctx, text, language.Arabic)
		if err != nil {
			logger.Base().Warn("pre-classification translation failed", zap.Error(err))
		} else if translated != "" {
			text = translated
		}
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompts.ClassifierSystem},
	}
	start := 0
	if len(history) > HistoryWindow {
		start = len(history) - HistoryWindow
	}
	for _, turn := range history[start:] {
		role := openai.ChatMessageRoleUser
		if turn.Role == "bot" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	reply, err := c.chat.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		Temperature: 0.1,
		MaxTokens:   20,
	})
	if err != nil {
		return nil, err
	}

	intent, ok := parseLabel(reply.Content)
	if !ok {
		logger.Base().Warn("classifier returned unparseable label",
			zap.String("label", reply.Content))
		return nil, nil
	}
	return &intent, nil
}

// parseLabel maps the model's Arabic label to an intent. The label must be
// one of the closed set; a label embedded in minor punctuation still
// parses, anything else does not.
func parseLabel(raw string) (domain.Intent, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.Trim(cleaned, `"'.:!،`)
	cleaned = language.NormalizeArabic(cleaned)

	for label, intent := range prompts.ClassifierLabels {
		if cleaned == language.NormalizeArabic(label) {
			return domain.Intent(intent), true
		}
	}
	return "", false
}

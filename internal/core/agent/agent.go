// Package agent answers catalog questions through a tool-using LLM loop
// over the catalog store.
package agent

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/saqiah/waterbot/internal/core/llm"
	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/internal/prompts"
	"github.com/saqiah/waterbot/pkg/language"
	"github.com/saqiah/waterbot/pkg/logger"
)

// MaxToolCalls caps one turn; exceeding it returns the localized retry
// message instead of looping forever.
const MaxToolCalls = 8

const historyWindow = 5

// ChatService is the slice of the LLM client the agent needs.
type ChatService interface {
	Chat(ctx context.Context, req llm.ChatRequest) (openai.ChatCompletionMessage, error)
}

// Agent is the catalog query agent.
type Agent struct {
	chat    ChatService
	catalog CatalogReader
}

// New builds the agent.
func New(chat ChatService, catalog CatalogReader) *Agent {
	return &Agent{chat: chat, catalog: catalog}
}

// Answer produces the reply for an inquiry or service request. District
// mentions short-circuit the LLM entirely: the district resolves to a city
// and the reply is the fixed app message for served or unserved areas.
func (a *Agent) Answer(ctx context.Context, text string, userLang language.Lang, history []domain.HistoryTurn) (string, error) {
	if cityName, found, err := a.resolveDistrict(ctx, text); err != nil {
		return "", err
	} else if found {
		_, served, err := a.catalog.GetCityIDByName(ctx, cityName)
		if err != nil {
			return "", err
		}
		if served {
			return prompts.CannedReply("district_served", userLang), nil
		}
		return prompts.CannedReply("use_app", userLang), nil
	}

	return a.runToolLoop(ctx, text, userLang, history)
}

// runToolLoop issues one tool call at a time, feeding the JSON result back
// until the model answers in plain text or the cap is hit.
func (a *Agent) runToolLoop(ctx context.Context, text string, userLang language.Lang, history []domain.HistoryTurn) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompts.AgentSystem},
	}
	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	for _, turn := range history[start:] {
		role := openai.ChatMessageRoleUser
		if turn.Role == "bot" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	tools := toolset()
	toolCalls := 0

	for {
		reply, err := a.chat.Chat(ctx, llm.ChatRequest{
			Messages:    messages,
			Temperature: 0.6,
			MaxTokens:   600,
			Tools:       tools,
		})
		if err != nil {
			return "", err
		}

		if len(reply.ToolCalls) == 0 {
			answer := strings.TrimSpace(reply.Content)
			if answer == "" {
				return prompts.CannedReply("retry", userLang), nil
			}
			return answer, nil
		}

		// parallel tool calls are disabled; take the first regardless
		call := reply.ToolCalls[0]
		toolCalls++
		if toolCalls > MaxToolCalls {
			logger.Base().Warn("catalog agent exceeded tool-call cap",
				zap.Int("cap", MaxToolCalls))
			return prompts.CannedReply("retry", userLang), nil
		}

		result, err := a.callTool(ctx, call.Function.Name, call.Function.Arguments)
		if err != nil {
			logger.Base().Warn("catalog tool failed",
				zap.String("tool", call.Function.Name), zap.Error(err))
			result = `{"error":"tool failed, answer with what you already know or apologize"}`
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{call},
		})
		messages = append(messages, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: call.ID,
			Content:    result,
		})
	}
}

// Package resolver decides whether an inbound message can be answered from
// the knowledge index. Precedence is fixed: language fence first,
// similarity thresholds second, the LLM evaluator last.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/saqiah/waterbot/internal/core/llm"
	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/internal/prompts"
	"github.com/saqiah/waterbot/internal/services/knowledge"
	"github.com/saqiah/waterbot/pkg/language"
	"github.com/saqiah/waterbot/pkg/logger"
)

// Action is the resolver's verdict.
type Action string

const (
	// ActionReply sends the stored answer verbatim.
	ActionReply Action = "reply"
	// ActionSkip ends the journey with no reply.
	ActionSkip Action = "skip"
	// ActionContinue hands off to the catalog path.
	ActionContinue Action = "continue"
)

// Thresholds on top-1 cosine similarity.
const (
	continueBelow  = 0.50
	replyAtOrAbove = 0.60
)

const evaluatorHistoryWindow = 3

// Result carries the verdict plus the match details for the journey log.
type Result struct {
	Action          Action
	Response        string
	MatchedQuestion string
	Confidence      float32
}

// Searcher is the slice of the knowledge index the resolver needs.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]knowledge.SearchResult, error)
}

// ChatService is the slice of the LLM client the evaluator needs.
type ChatService interface {
	Chat(ctx context.Context, req llm.ChatRequest) (openai.ChatCompletionMessage, error)
}

// Resolver runs the knowledge-index decision procedure.
type Resolver struct {
	index Searcher
	chat  ChatService
}

// New builds a resolver.
func New(index Searcher, chat ChatService) *Resolver {
	return &Resolver{index: index, chat: chat}
}

// Resolve decides reply/skip/continue for one inbound text.
func (r *Resolver) Resolve(ctx context.Context, text string, userLang language.Lang, history []domain.HistoryTurn) (Result, error) {
	results, err := r.index.Search(ctx, text, 3)
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 || results[0].Similarity < continueBelow {
		return Result{Action: ActionContinue}, nil
	}

	best := results[0]
	res := Result{MatchedQuestion: best.Question, Confidence: best.Similarity}

	answer := strings.TrimSpace(best.Answer)
	switch {
	case answer == "",
		language.NormalizeArabic(answer) == language.NormalizeArabic(best.Question),
		utf8.RuneCountInString(answer) < 3:
		// corrupt or useless stored answer: stay silent
		res.Action = ActionSkip
		return res, nil
	}

	// Language fence before anything else: never send an answer in the
	// wrong language, whatever the similarity says.
	if language.Detect(answer) != userLang {
		res.Action = ActionSkip
		return res, nil
	}

	if best.Similarity >= replyAtOrAbove {
		res.Action = ActionReply
		res.Response = answer
		return res, nil
	}

	// Mid-band: ask the evaluator.
	verdict, err := r.evaluate(ctx, text, best.Question, answer, history)
	if err != nil {
		return Result{}, err
	}
	res.Action = verdict
	if verdict == ActionReply {
		res.Response = answer
	}
	return res, nil
}

func (r *Resolver) evaluate(ctx context.Context, text, question, answer string, history []domain.HistoryTurn) (Action, error) {
	var b strings.Builder
	start := 0
	if len(history) > evaluatorHistoryWindow {
		start = len(history) - evaluatorHistoryWindow
	}
	if start < len(history) {
		b.WriteString("Recent conversation:\n")
		for _, turn := range history[start:] {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Customer message: %s\n", text)
	fmt.Fprintf(&b, "Matched stored question: %s\n", question)
	fmt.Fprintf(&b, "Stored answer: %s\n", answer)

	reply, err := r.chat.Chat(ctx, llm.ChatRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompts.EvaluatorSystem},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		return "", err
	}

	switch strings.ToLower(strings.Trim(strings.TrimSpace(reply.Content), `"'.`)) {
	case "reply":
		return ActionReply, nil
	case "skip":
		return ActionSkip, nil
	case "continue":
		return ActionContinue, nil
	default:
		logger.Base().Warn("evaluator returned unparseable verdict",
			zap.String("verdict", reply.Content))
		// fail open to the catalog path rather than answering wrongly
		return ActionContinue, nil
	}
}

// Package llm wraps the chat-completion and embedding providers behind a
// process-wide rate-limit guard: a minimum inter-request interval plus
// exponential backoff on 429.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/saqiah/waterbot/pkg/external"
	"github.com/saqiah/waterbot/pkg/language"
)

// Options configures the client.
type Options struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	EmbeddingModel     string
	MinRequestInterval time.Duration
	MaxRetries         int
	BaseDelay          time.Duration
	Timeout            time.Duration
}

// Client is the shared LLM client used by the classifier, the resolver and
// the catalog agent.
type Client struct {
	api            *openai.Client
	chatModel      string
	embeddingModel string
	limiter        *rate.Limiter
	maxRetries     int
	baseDelay      time.Duration
	timeout        time.Duration
}

// ChatRequest is one chat-completion step. Tools are optional; when the
// model answers with a tool call it appears on the returned message.
type ChatRequest struct {
	Messages    []openai.ChatCompletionMessage
	Temperature float32
	MaxTokens   int
	Tools       []openai.Tool
}

// NewClient builds the client. The rate limiter is shared by every request
// issued through it, across goroutines.
func NewClient(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	interval := opts.MinRequestInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		api:            openai.NewClientWithConfig(cfg),
		chatModel:      opts.ChatModel,
		embeddingModel: opts.EmbeddingModel,
		limiter:        rate.NewLimiter(rate.Every(interval), 1),
		maxRetries:     opts.MaxRetries,
		baseDelay:      opts.BaseDelay,
		timeout:        timeout,
	}
}

func retryableLLMError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	// transport errors and timeouts retry
	return !errors.Is(err, context.Canceled)
}

// Chat performs one chat-completion call and returns the first choice.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (openai.ChatCompletionMessage, error) {
	var msg openai.ChatCompletionMessage
	err := external.CallWithRetry(ctx, external.Policy{
		Name:       "llm.chat",
		Timeout:    c.timeout,
		MaxRetries: c.maxRetries,
		BaseDelay:  c.baseDelay,
		Retryable:  retryableLLMError,
	}, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		apiReq := openai.ChatCompletionRequest{
			Model:       c.chatModel,
			Messages:    req.Messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}
		if len(req.Tools) > 0 {
			apiReq.Tools = req.Tools
			apiReq.ParallelToolCalls = false
		}
		resp, err := c.api.CreateChatCompletion(ctx, apiReq)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("empty chat completion response")
		}
		msg = resp.Choices[0].Message
		return nil
	})
	return msg, err
}

// Complete is Chat for plain text: system + user in, text out.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	msg, err := c.Chat(ctx, ChatRequest{
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}

// Embed generates embeddings for the given texts, one vector per text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to embed")
	}
	var vectors [][]float32
	err := external.CallWithRetry(ctx, external.Policy{
		Name:       "llm.embed",
		Timeout:    c.timeout,
		MaxRetries: c.maxRetries,
		BaseDelay:  c.baseDelay,
		Retryable:  retryableLLMError,
	}, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("embedding count mismatch: want %d got %d", len(texts), len(resp.Data))
		}
		vectors = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vectors[i] = d.Embedding
		}
		return nil
	})
	return vectors, err
}

// TranslateTo translates text into the target language. Implements
// language.Translator.
func (c *Client) TranslateTo(ctx context.Context, text string, target language.Lang) (string, error) {
	name := "Arabic"
	if target == language.English {
		name = "English"
	}
	system := fmt.Sprintf(
		"You are a translator. Translate the user's message into %s. Reply with the translation only, no commentary.", name)
	return c.Complete(ctx, system, text, 0.0, 500)
}

var _ language.Translator = (*Client)(nil)

package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Transcriber converts voice-note audio to text via Gemini. It is an
// optional pre-processing stage: when no GEMINI_API_KEY is configured the
// pipeline drops audio messages at admission instead.
type Transcriber struct {
	client *genai.Client
	model  string
}

// NewTranscriber builds the Gemini-backed transcriber.
func NewTranscriber(ctx context.Context, apiKey, model string) (*Transcriber, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Transcriber{client: client, model: model}, nil
}

// Transcribe returns the verbatim transcription of the audio bytes.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "audio/ogg"
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(audio, mimeType),
		genai.NewPartFromText("Transcribe this voice message verbatim. It is in Arabic or English. Reply with the transcription only."),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := t.client.Models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

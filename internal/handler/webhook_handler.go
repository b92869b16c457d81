// Package handler exposes the HTTP surface: the WATI webhook, the
// read-only catalog API, the sync-control endpoints and the conversation
// pause endpoints.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saqiah/waterbot/internal/core/pipeline"
	"github.com/saqiah/waterbot/pkg/logger"
)

// processTimeout bounds one detached journey; the webhook itself returns
// immediately.
const processTimeout = 2 * time.Minute

// Processor runs the message pipeline for one parsed webhook payload.
type Processor interface {
	Process(ctx context.Context, req pipeline.InboundRequest) error
}

// AudioTranscriber converts a voice note to text. Nil disables the stage.
type AudioTranscriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// WebhookHandler receives WATI message events.
type WebhookHandler struct {
	processor   Processor
	transcriber AudioTranscriber
	verifyToken string
}

// NewWebhookHandler builds the handler. transcriber may be nil; audio
// messages are then dropped at parse time.
func NewWebhookHandler(processor Processor, transcriber AudioTranscriber, verifyToken string) *WebhookHandler {
	return &WebhookHandler{processor: processor, transcriber: transcriber, verifyToken: verifyToken}
}

// templateChoice is the selected option of an interactive template message.
type templateChoice struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (t *templateChoice) value() string {
	if t == nil {
		return ""
	}
	if t.Title != "" {
		return t.Title
	}
	return t.Text
}

// watiEvent is the inbound webhook payload. WATI sends one event per
// message; unknown fields are ignored.
type watiEvent struct {
	WaID                   string          `json:"waId"`
	ID                     string          `json:"id"`
	Type                   string          `json:"type"`
	Text                   string          `json:"text"`
	ButtonReply            *templateChoice `json:"buttonReply"`
	ListReply              *templateChoice `json:"listReply"`
	InteractiveButtonReply *templateChoice `json:"interactiveButtonReply"`
	FromMe                 bool            `json:"fromMe"`
	Owner                  bool            `json:"owner"`
	Data                   string          `json:"data"`     // base64 audio payload
	MimeType               string          `json:"mimeType"` // audio mime type
}

// Receive handles POST events. The gateway is always acknowledged right
// away; the pipeline runs detached so gateway retries are driven by dedup,
// not by our processing latency.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var event watiEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if event.WaID == "" {
		respondError(w, http.StatusBadRequest, "missing waId")
		return
	}

	// ack before any mapping work; audio transcription in particular can
	// take longer than the gateway waits
	respondJSON(w, http.StatusOK, map[string]string{"status": "success"})

	go h.process(&event)
}

func (h *WebhookHandler) process(event *watiEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	req, ok := h.toRequest(ctx, event)
	if !ok {
		return
	}
	_ = h.processor.Process(ctx, req)
}

// toRequest maps the event onto a pipeline request. It reports false when
// the event carries nothing processable (empty text, undecodable audio).
func (h *WebhookHandler) toRequest(ctx context.Context, event *watiEvent) (pipeline.InboundRequest, bool) {
	req := pipeline.InboundRequest{
		Phone:            strings.TrimPrefix(event.WaID, "+"),
		GatewayMessageID: event.ID,
		FromMe:           event.FromMe,
		Owner:            event.Owner,
	}

	switch {
	case event.ButtonReply != nil:
		req.Text = event.ButtonReply.value()
		req.IsTemplateReply = true
	case event.ListReply != nil:
		req.Text = event.ListReply.value()
		req.IsTemplateReply = true
	case event.InteractiveButtonReply != nil:
		req.Text = event.InteractiveButtonReply.value()
		req.IsTemplateReply = true
	case event.Type == "button":
		req.Text = event.Text
		req.IsTemplateReply = true
	case event.Type == "audio":
		text, ok := h.transcribe(ctx, event)
		if !ok {
			return pipeline.InboundRequest{}, false
		}
		req.Text = text
	default:
		req.Text = strings.TrimSpace(event.Text)
	}

	if req.Text == "" && !req.IsTemplateReply {
		logger.Base().Info("webhook event without text, dropping",
			zap.String("wa_id", event.WaID), zap.String("type", event.Type))
		return pipeline.InboundRequest{}, false
	}
	return req, true
}

func (h *WebhookHandler) transcribe(ctx context.Context, event *watiEvent) (string, bool) {
	if h.transcriber == nil {
		logger.Base().Info("audio message dropped, transcription not configured",
			zap.String("wa_id", event.WaID))
		return "", false
	}
	audio, err := base64.StdEncoding.DecodeString(event.Data)
	if err != nil || len(audio) == 0 {
		logger.Base().Warn("audio message dropped, bad payload",
			zap.String("wa_id", event.WaID), zap.Error(err))
		return "", false
	}
	text, err := h.transcriber.Transcribe(ctx, audio, event.MimeType)
	if err != nil {
		logger.Base().Warn("audio transcription failed",
			zap.String("wa_id", event.WaID), zap.Error(err))
		return "", false
	}
	if text == "" {
		return "", false
	}
	return text, true
}

// Verify handles the GET verification handshake. A matching verify token
// echoes the challenge back as an integer.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		respondError(w, http.StatusForbidden, "verification failed")
		return
	}
	challenge, err := strconv.Atoi(q.Get("hub.challenge"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid challenge")
		return
	}
	respondJSON(w, http.StatusOK, challenge)
}

// Package pipeline wires admission, persistence, resolution,
// classification, routing and dispatch into the per-message journey.
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saqiah/waterbot/internal/core/resolver"
	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/internal/prompts"
	"github.com/saqiah/waterbot/internal/repository"
	"github.com/saqiah/waterbot/pkg/language"
	"github.com/saqiah/waterbot/pkg/logger"
)

// historyWindow is the context depth handed to the classifier and agent.
const historyWindow = 5

// InboundRequest is a parsed webhook payload handed to the orchestrator.
type InboundRequest struct {
	Phone            string
	GatewayMessageID string
	Text             string
	IsTemplateReply  bool
	FromMe           bool
	Owner            bool
}

// Outcome says how a journey ended, for the structured journey log.
type Outcome string

const (
	OutcomeDropped Outcome = "dropped"
	OutcomeSkipped Outcome = "skipped"
	OutcomeReplied Outcome = "replied"
	OutcomeFailed  Outcome = "failed"
)

// Resolver decides whether the knowledge index answers a message.
type Resolver interface {
	Resolve(ctx context.Context, text string, userLang language.Lang, history []domain.HistoryTurn) (resolver.Result, error)
}

// Classifier assigns an intent to a stored inbound message.
type Classifier interface {
	Classify(ctx context.Context, msg *domain.InboundMessage, history []domain.HistoryTurn) (*domain.Intent, error)
}

// CatalogAgent answers inquiry/service-request messages.
type CatalogAgent interface {
	Answer(ctx context.Context, text string, userLang language.Lang, history []domain.HistoryTurn) (string, error)
}

// PauseChecker gates admission.
type PauseChecker interface {
	IsPaused(ctx context.Context, conversationID string) (bool, error)
}

// Sender posts the reply to the gateway.
type Sender interface {
	SendSessionMessage(ctx context.Context, phone, text string) error
}

// Orchestrator runs the pipeline. Stages for one user are serialized; the
// user lock is released before the gateway send so a slow send never blocks
// the user's next message.
type Orchestrator struct {
	conversations repository.ConversationRepository
	pauses        PauseChecker
	resolver      Resolver
	classifier    Classifier
	agent         CatalogAgent
	sender        Sender

	allowed   map[string]bool // empty means every phone is allowed
	locks     *userLocks
	sendSlots chan struct{} // bounded pool for gateway sends
}

// New builds the orchestrator.
func New(
	conversations repository.ConversationRepository,
	pauses PauseChecker,
	res Resolver,
	cls Classifier,
	agent CatalogAgent,
	sender Sender,
	allowedPhones []string,
) *Orchestrator {
	allowed := make(map[string]bool, len(allowedPhones))
	for _, p := range allowedPhones {
		allowed[p] = true
	}
	return &Orchestrator{
		conversations: conversations,
		pauses:        pauses,
		resolver:      res,
		classifier:    cls,
		agent:         agent,
		sender:        sender,
		allowed:       allowed,
		locks:         newUserLocks(),
		sendSlots:     make(chan struct{}, 16),
	}
}

// Process runs one inbound message end to end. It never panics into the
// caller; every failure is converted into a failed-journey log entry and an
// error return the webhook handler ignores (the gateway always gets 200).
func (o *Orchestrator) Process(ctx context.Context, req InboundRequest) error {
	journeyID := uuid.NewString()
	log := logger.Base().With(
		zap.String("journey_id", journeyID),
		zap.String("phone", req.Phone),
		zap.String("gateway_message_id", req.GatewayMessageID))

	outcome, stage, err := o.process(ctx, req, log)
	if err != nil {
		log.Error("journey failed",
			zap.String("stage", stage), zap.String("outcome", string(OutcomeFailed)), zap.Error(err))
		return err
	}
	log.Info("journey finished",
		zap.String("stage", stage), zap.String("outcome", string(outcome)))
	return nil
}

func (o *Orchestrator) process(ctx context.Context, req InboundRequest, log *zap.Logger) (Outcome, string, error) {
	// stage 1: admission
	if len(o.allowed) > 0 && !o.allowed[req.Phone] {
		log.Info("dropped: phone not on allow-list")
		return OutcomeDropped, "admission", nil
	}
	if req.FromMe || req.Owner {
		log.Info("dropped: message sent by bot or operator")
		return OutcomeDropped, "admission", nil
	}
	paused, err := o.pauses.IsPaused(ctx, req.Phone)
	if err != nil {
		return OutcomeFailed, "admission", err
	}
	if paused {
		log.Info("dropped: conversation paused")
		return OutcomeDropped, "admission", nil
	}
	if req.GatewayMessageID != "" {
		seen, err := o.conversations.AlreadyProcessed(ctx, req.GatewayMessageID)
		if err != nil {
			return OutcomeFailed, "admission", err
		}
		if seen {
			log.Info("dropped: duplicate gateway message id")
			return OutcomeDropped, "admission", nil
		}
	}

	release := o.locks.acquire(req.Phone)
	defer release()

	// stage 2: persist (the idempotency barrier)
	user, err := o.conversations.UpsertUser(ctx, req.Phone)
	if err != nil {
		return OutcomeFailed, "persist", err
	}
	userLang := language.Detect(req.Text)
	var gatewayID *string
	if req.GatewayMessageID != "" {
		gatewayID = &req.GatewayMessageID
	}
	msg, err := o.conversations.RecordInbound(ctx, user.ID, req.Text, userLang, gatewayID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateMessage) {
			log.Info("dropped: lost insert race on gateway message id")
			return OutcomeDropped, "persist", nil
		}
		return OutcomeFailed, "persist", err
	}

	// stage 3: template short-circuit
	if req.IsTemplateReply {
		if err := o.conversations.SetIntent(ctx, msg.ID, domain.IntentTemplateReply); err != nil {
			return OutcomeFailed, "template", err
		}
		log.Info("template reply stored, no bot reply")
		return OutcomeSkipped, "template", nil
	}

	history, err := o.conversations.RecentHistory(ctx, user.ID, historyWindow)
	if err != nil {
		return OutcomeFailed, "history", err
	}
	// the freshly stored message is part of history; context windows want
	// everything before it
	if n := len(history); n > 0 && history[n-1].Role == "user" && history[n-1].Content == msg.Text {
		history = history[:n-1]
	}

	// stage 4: knowledge resolution
	res, err := o.resolver.Resolve(ctx, msg.Text, userLang, history)
	if err != nil {
		return OutcomeFailed, "resolve", err
	}
	switch res.Action {
	case resolver.ActionReply:
		return o.deliver(ctx, req.Phone, msg.ID, res.Response, userLang, release, log)
	case resolver.ActionSkip:
		log.Info("resolver skipped", zap.String("matched_question", res.MatchedQuestion))
		return OutcomeSkipped, "resolve", nil
	}

	// stage 5: classification
	intent, err := o.classifier.Classify(ctx, msg, history)
	if err != nil {
		return OutcomeFailed, "classify", err
	}
	if intent == nil {
		log.Info("unclassifiable message, leaving to humans")
		return OutcomeSkipped, "classify", nil
	}

	// stage 6: route by intent
	var reply string
	switch *intent {
	case domain.IntentGreeting, domain.IntentThanking, domain.IntentComplaint, domain.IntentSuggestion:
		reply = prompts.CannedReply(string(*intent), userLang)
	case domain.IntentInquiry, domain.IntentServiceRequest:
		reply, err = o.agent.Answer(ctx, msg.Text, userLang, history)
		if err != nil {
			return OutcomeFailed, "agent", err
		}
	default:
		log.Info("no reply for intent", zap.String("intent", string(*intent)))
		return OutcomeSkipped, "route", nil
	}
	if reply == "" {
		return OutcomeSkipped, "route", nil
	}

	return o.deliver(ctx, req.Phone, msg.ID, reply, userLang, release, log)
}

// deliver persists the reply under the user lock, releases the lock, then
// sends through the bounded pool. A send failure after a persisted reply is
// a failed journey; the reply row stays as the at-most-once record.
func (o *Orchestrator) deliver(ctx context.Context, phone string, inboundID uint, text string, lang language.Lang, release func(), log *zap.Logger) (Outcome, string, error) {
	if _, err := o.conversations.RecordReply(ctx, inboundID, text, lang); err != nil {
		if errors.Is(err, repository.ErrReplyExists) {
			log.Warn("second reply attempt suppressed", zap.Uint("inbound_id", inboundID))
			return OutcomeSkipped, "send", nil
		}
		return OutcomeFailed, "send", err
	}

	release()

	select {
	case o.sendSlots <- struct{}{}:
	case <-ctx.Done():
		return OutcomeFailed, "send", ctx.Err()
	}
	defer func() { <-o.sendSlots }()

	if err := o.sender.SendSessionMessage(ctx, phone, text); err != nil {
		return OutcomeFailed, "send", err
	}
	return OutcomeReplied, "send", nil
}

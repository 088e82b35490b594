// Package handler adapts API Gateway webhook events from Telegram into
// orchestrator calls. It always acknowledges with 200 once the secret
// check passes so Telegram does not redeliver updates we already saw.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/alyavision/B2B/internal/integrations/telegram"
	"github.com/alyavision/B2B/internal/usecase"
)

const (
	secretHeader      = "X-Telegram-Bot-Api-Secret-Token"
	correlationHeader = "X-Correlation-Id"

	callbackStartChat = "start_chat"
	callbackResetChat = "reset_chat"

	guideCaption = "В знак благодарности отправляем вам наш гайд «Как игры помогают выявить лидеров в команде»."
)

// Orchestrator is the conversation core: one entry point per trigger.
type Orchestrator interface {
	Start(ctx context.Context, participantID int64) usecase.Reply
	Reset(ctx context.Context, participantID int64) usecase.Reply
	HandleText(ctx context.Context, participantID int64, text string) usecase.Reply
}

// Sender delivers outbound Telegram traffic back to the participant.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
}

// Audience records chats for later broadcasts. Optional.
type Audience interface {
	RegisterAudience(ctx context.Context, chatID int64) error
}

type Handler struct {
	orch     Orchestrator
	sender   Sender
	audience Audience // may be nil
	secret   string
	guideURL string
	log      *slog.Logger
}

type HandlerOption func(*Handler)

// WithWebhookSecret enables the Telegram secret-token check.
func WithWebhookSecret(secret string) HandlerOption {
	return func(h *Handler) {
		h.secret = strings.TrimSpace(secret)
	}
}

// WithAudience records every /start chat in a broadcast audience.
func WithAudience(a Audience) HandlerOption {
	return func(h *Handler) {
		h.audience = a
	}
}

// WithGuideURL sends the welcome guide link on /start.
func WithGuideURL(url string) HandlerOption {
	return func(h *Handler) {
		h.guideURL = strings.TrimSpace(url)
	}
}

func NewHandler(orch Orchestrator, sender Sender, log *slog.Logger, opts ...HandlerOption) (*Handler, error) {
	if orch == nil {
		return nil, errors.New("handler: orchestrator must not be nil")
	}
	if sender == nil {
		return nil, errors.New("handler: sender must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{orch: orch, sender: sender, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle processes one webhook delivery. Malformed or unmodeled updates
// are acknowledged and dropped; only a bad secret is rejected.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	log := h.log.With("correlation_id", corrID)

	if h.secret != "" && headerValue(req.Headers, secretHeader) != h.secret {
		log.Warn("handler: webhook secret mismatch")
		return respond(http.StatusForbidden, `{"ok":false}`, corrID), nil
	}

	var update telegram.Update
	if err := json.Unmarshal([]byte(req.Body), &update); err != nil {
		log.Error("handler: undecodable update", "err", err)
		return respond(http.StatusOK, `{"ok":false}`, corrID), nil
	}

	switch {
	case update.Message != nil && update.Message.Text != "":
		h.handleMessage(ctx, log, update.Message)
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, log, update.CallbackQuery)
	default:
		log.Info("handler: update without text or callback, dropped", "update_id", update.UpdateID)
	}

	return respond(http.StatusOK, `{"ok":true}`, corrID), nil
}

func (h *Handler) handleMessage(ctx context.Context, log *slog.Logger, msg *telegram.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		h.onStart(ctx, log, chatID)
	case strings.HasPrefix(text, "/reset"):
		h.deliver(ctx, log, chatID, h.orch.Reset(ctx, chatID))
	default:
		if err := h.sender.SendChatAction(ctx, chatID, "typing"); err != nil {
			log.Warn("handler: chat action failed", "chat", chatID, "err", err)
		}
		h.deliver(ctx, log, chatID, h.orch.HandleText(ctx, chatID, text))
	}
}

func (h *Handler) handleCallback(ctx context.Context, log *slog.Logger, cq *telegram.CallbackQuery) {
	if err := h.sender.AnswerCallbackQuery(ctx, cq.ID); err != nil {
		log.Warn("handler: callback answer failed", "callback", cq.ID, "err", err)
	}
	chatID := cq.ChatID()
	switch cq.Data {
	case callbackStartChat:
		h.onStart(ctx, log, chatID)
	case callbackResetChat:
		h.deliver(ctx, log, chatID, h.orch.Reset(ctx, chatID))
	default:
		log.Info("handler: unknown callback data, dropped", "data", cq.Data)
	}
}

// onStart registers the chat, sends the guide link and runs the scripted
// opening. Registration and the guide are best-effort extras; the opening
// exchange is the part the participant is waiting for.
func (h *Handler) onStart(ctx context.Context, log *slog.Logger, chatID int64) {
	if h.audience != nil {
		if err := h.audience.RegisterAudience(ctx, chatID); err != nil {
			log.Warn("handler: audience registration failed", "chat", chatID, "err", err)
		}
	}
	if h.guideURL != "" {
		if err := h.sender.SendMessage(ctx, chatID, guideCaption+"\n"+h.guideURL); err != nil {
			log.Warn("handler: guide delivery failed", "chat", chatID, "err", err)
		}
	}
	h.deliver(ctx, log, chatID, h.orch.Start(ctx, chatID))
}

func (h *Handler) deliver(ctx context.Context, log *slog.Logger, chatID int64, reply usecase.Reply) {
	if reply.Text == "" {
		return
	}
	if err := h.sender.SendMessage(ctx, chatID, reply.Text); err != nil {
		log.Error("handler: reply delivery failed", "chat", chatID, "err", err)
	}
}

// correlationID honors an incoming X-Correlation-Id header, case
// insensitively, and mints one otherwise.
func correlationID(headers map[string]string) string {
	if v := headerValue(headers, correlationHeader); v != "" {
		return v
	}
	return uuid.NewString()
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func respond(status int, body, corrID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: body,
	}
}

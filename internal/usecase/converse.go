// Package usecase holds the conversation orchestrator: one coordinator
// per incoming trigger that ties the session store, the assistant gateway,
// the sanitizer and the lead detector together and decides whether a turn
// is a plain reply or a reply plus a forwarded lead.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alyavision/B2B/internal/domain"
	"github.com/alyavision/B2B/internal/lead"
	"github.com/alyavision/B2B/internal/sanitize"
)

// Fixed user-facing strings. Failure detail never reaches the user; it is
// logged server-side only.
const (
	replyRunFailed = "Извините, произошла ошибка. Попробуйте позже."
	replyNoAnswer  = "Извините, не удалось получить ответ от ассистента."
	replyTransport = "Произошла ошибка. Попробуйте позже."
	replyReset     = "🔄 Разговор сброшен!\n\nИспользуйте /start для начала нового диалога."
)

// openingPrompt is the scripted first turn sent to the assistant when a
// participant starts a conversation.
const openingPrompt = "Начни общение как вежливый консультант FriendEvent. Веди себя естественно как человек, " +
	"опираясь на свою базу знаний. Поздоровайся, узнай контекст и потребности. Когда появится готовность, " +
	"оформи финальный блок заявки по шаблону с контактами."

// State is the per-participant conversation phase. Webhook hosts may lose
// in-process state between requests, so StateUnknown is an expected value,
// not an error: free text coerces any non-chatting state to chatting.
type State string

const (
	StateIdle     State = "idle"
	StateChatting State = "chatting"
	StateUnknown  State = "unknown"
)

type AssistantGateway interface {
	Converse(ctx context.Context, threadID, text string) (domain.Turn, error)
}

type SessionStore interface {
	ResolveOrCreate(ctx context.Context, participantID int64) (string, error)
	Forget(ctx context.Context, participantID int64)
}

type LeadNotifier interface {
	NotifyLead(ctx context.Context, text string) error
}

type LeadArchive interface {
	AppendLead(ctx context.Context, rec domain.LeadRecord) error
}

// Reply is what the transport delivers back to the participant.
type Reply struct {
	Text string
	// Forwarded reports that the turn carried a completed lead and a
	// forward to the operations chat was made.
	Forwarded bool
}

// ConverseService coordinates one participant turn end to end. No error
// escapes its entry points; every failure becomes a fixed reply.
type ConverseService struct {
	gateway  AssistantGateway
	sessions SessionStore
	notifier LeadNotifier
	archive  LeadArchive // optional
	log      *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	states map[int64]State
}

type ServiceOption func(*ConverseService)

// WithLeadArchive adds a best-effort durable archive for detected leads.
func WithLeadArchive(a LeadArchive) ServiceOption {
	return func(s *ConverseService) {
		s.archive = a
	}
}

func NewConverseService(gw AssistantGateway, sessions SessionStore, notifier LeadNotifier, log *slog.Logger, opts ...ServiceOption) (*ConverseService, error) {
	if gw == nil {
		return nil, errors.New("usecase: assistant gateway must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if notifier == nil {
		return nil, errors.New("usecase: lead notifier must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	s := &ConverseService{
		gateway:  gw,
		sessions: sessions,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		states:   make(map[int64]State),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins (or restarts) an assistant-guided exchange: the scripted
// opening goes to the assistant and the participant receives the
// markdown-stripped reply. State moves to chatting before the exchange so
// a slow backend cannot strand the participant in idle.
func (s *ConverseService) Start(ctx context.Context, participantID int64) Reply {
	s.setState(participantID, StateChatting)
	text, ok := s.exchange(ctx, participantID, openingPrompt)
	if !ok {
		return Reply{Text: text}
	}
	return Reply{Text: sanitize.StripMarkdown(text)}
}

// Reset destroys the participant's session. It is idempotent and always
// succeeds from the participant's point of view.
func (s *ConverseService) Reset(ctx context.Context, participantID int64) Reply {
	s.sessions.Forget(ctx, participantID)
	s.setState(participantID, StateIdle)
	return Reply{Text: replyReset}
}

// HandleText processes one free-text message. A reply that turns out to be
// a completed lead is forwarded to the operations chat exactly once and
// the participant receives the markdown-stripped copy; an ordinary reply
// is delivered cleaned but with its markdown intact.
func (s *ConverseService) HandleText(ctx context.Context, participantID int64, text string) Reply {
	if s.stateOf(participantID) != StateChatting {
		s.setState(participantID, StateChatting)
	}

	cleaned, ok := s.exchange(ctx, participantID, text)
	if !ok {
		return Reply{Text: cleaned}
	}

	if lead.Contains(cleaned, lead.ForwardLabels) {
		s.forwardLead(ctx, participantID, cleaned)
		return Reply{Text: sanitize.StripMarkdown(cleaned), Forwarded: true}
	}
	return Reply{Text: cleaned}
}

// StateOf reports the participant's current phase; participants never seen
// before are in StateUnknown.
func (s *ConverseService) StateOf(participantID int64) State {
	return s.stateOf(participantID)
}

// exchange runs one turn through the session store and the gateway and
// returns the cleaned reply. ok=false means the returned text is a fixed
// user-safe string and must not run through lead detection.
func (s *ConverseService) exchange(ctx context.Context, participantID int64, text string) (string, bool) {
	threadID, err := s.sessions.ResolveOrCreate(ctx, participantID)
	if err != nil {
		s.log.Error("usecase: session resolve failed", "participant", participantID,
			"err", newError(ErrorSession, "thread_create", err))
		return replyTransport, false
	}

	turn, err := s.gateway.Converse(ctx, threadID, text)
	switch {
	case errors.Is(err, domain.ErrRunFailed):
		s.log.Error("usecase: assistant run failed", "participant", participantID, "thread", threadID,
			"err", newError(ErrorRunFailure, "run_failed", err))
		return replyRunFailed, false
	case errors.Is(err, domain.ErrNoReply):
		s.log.Error("usecase: no assistant reply", "participant", participantID, "thread", threadID,
			"err", newError(ErrorNoReply, "empty_thread", err))
		return replyNoAnswer, false
	case err != nil:
		s.log.Error("usecase: assistant exchange failed", "participant", participantID, "thread", threadID,
			"err", newError(ErrorTransport, "assistant_transport", err))
		return replyTransport, false
	}

	cleaned := sanitize.Clean(turn.Text, turn.Annotations)
	if lead.Contains(cleaned, lead.ReplyLabels) {
		cleaned = lead.Format(cleaned)
	}
	return cleaned, true
}

// forwardLead delivers the block to the operations chat, retrying once
// with a plainer message. A lost forward is logged and never fails the
// participant-facing reply.
func (s *ConverseService) forwardLead(ctx context.Context, participantID int64, block string) {
	formatted := lead.Format(block)
	tagged := fmt.Sprintf("🚨 НОВАЯ ЗАЯВКА ОТ ПОЛЬЗОВАТЕЛЯ %d\n\n%s", participantID, formatted)
	if err := s.notifier.NotifyLead(ctx, tagged); err != nil {
		s.log.Warn("usecase: lead forward failed, retrying plain", "participant", participantID,
			"err", newError(ErrorForward, "forward_first_attempt", err))
		plain := fmt.Sprintf("НОВАЯ ЗАЯВКА ОТ ПОЛЬЗОВАТЕЛЯ %d\n\n%s", participantID, formatted)
		if err := s.notifier.NotifyLead(ctx, plain); err != nil {
			s.log.Error("usecase: lead forward lost", "participant", participantID,
				"err", newError(ErrorForward, "forward_retry", err))
		}
	}

	if s.archive == nil {
		return
	}
	rec := domain.LeadRecord{ParticipantID: participantID, Text: formatted, CreatedAt: s.now().UTC()}
	if err := s.archive.AppendLead(ctx, rec); err != nil {
		s.log.Warn("usecase: lead archive write failed", "participant", participantID, "err", err)
	}
}

func (s *ConverseService) stateOf(participantID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[participantID]
	if !ok {
		return StateUnknown
	}
	return st
}

func (s *ConverseService) setState(participantID int64, st State) {
	s.mu.Lock()
	s.states[participantID] = st
	s.mu.Unlock()
}

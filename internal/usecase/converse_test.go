package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alyavision/B2B/internal/domain"
)

const leadBlock = "[Заявка в рабочий чат]\n" +
	"Имя: Иван Петров\n" +
	"Телефон: +79990001122\n" +
	"Телеграм: @ivan\n" +
	"Запрос: корпоратив на 50 человек"

type fakeGateway struct {
	turn    domain.Turn
	err     error
	threads []string
	texts   []string
}

func (f *fakeGateway) Converse(_ context.Context, threadID, text string) (domain.Turn, error) {
	f.threads = append(f.threads, threadID)
	f.texts = append(f.texts, text)
	return f.turn, f.err
}

type fakeSessions struct {
	threadID  string
	err       error
	resolved  int
	forgotten []int64
}

func (f *fakeSessions) ResolveOrCreate(_ context.Context, _ int64) (string, error) {
	f.resolved++
	if f.err != nil {
		return "", f.err
	}
	if f.threadID == "" {
		return "thread-1", nil
	}
	return f.threadID, nil
}

func (f *fakeSessions) Forget(_ context.Context, participantID int64) {
	f.forgotten = append(f.forgotten, participantID)
}

type fakeNotifier struct {
	sent     []string
	failures int
}

func (f *fakeNotifier) NotifyLead(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	if f.failures > 0 {
		f.failures--
		return errors.New("chat unreachable")
	}
	return nil
}

type fakeArchive struct {
	records []domain.LeadRecord
	err     error
}

func (f *fakeArchive) AppendLead(_ context.Context, rec domain.LeadRecord) error {
	f.records = append(f.records, rec)
	return f.err
}

type serviceFixture struct {
	svc      *ConverseService
	gateway  *fakeGateway
	sessions *fakeSessions
	notifier *fakeNotifier
}

func newFixture(t *testing.T, opts ...ServiceOption) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		gateway:  &fakeGateway{},
		sessions: &fakeSessions{},
		notifier: &fakeNotifier{},
	}
	svc, err := NewConverseService(f.gateway, f.sessions, f.notifier, slog.Default(), opts...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewConverseService_Validation(t *testing.T) {
	gw := &fakeGateway{}
	sessions := &fakeSessions{}
	notifier := &fakeNotifier{}

	_, err := NewConverseService(nil, sessions, notifier, nil)
	require.Error(t, err)
	_, err = NewConverseService(gw, nil, notifier, nil)
	require.Error(t, err)
	_, err = NewConverseService(gw, sessions, nil, nil)
	require.Error(t, err)
}

func TestStart_SendsOpeningAndStripsMarkdown(t *testing.T) {
	f := newFixture(t)
	f.gateway.turn = domain.Turn{Text: "Здравствуйте! Я **консультант** FriendEvent."}

	got := f.svc.Start(context.Background(), 42)

	require.Equal(t, "Здравствуйте! Я консультант FriendEvent.", got.Text)
	require.False(t, got.Forwarded)
	require.Equal(t, StateChatting, f.svc.StateOf(42))
	require.Len(t, f.gateway.texts, 1)
	require.Contains(t, f.gateway.texts[0], "консультант FriendEvent")
}

func TestHandleText_OrdinaryReplyKeepsMarkdown(t *testing.T) {
	f := newFixture(t)
	f.gateway.turn = domain.Turn{Text: "Можно выбрать **квест** или *вечеринку*."}

	got := f.svc.HandleText(context.Background(), 42, "что у вас есть?")

	require.Equal(t, "Можно выбрать **квест** или *вечеринку*.", got.Text)
	require.False(t, got.Forwarded)
	require.Empty(t, f.notifier.sent)
}

func TestHandleText_AnnotationsRemovedBeforeDetection(t *testing.T) {
	f := newFixture(t)
	f.gateway.turn = domain.Turn{
		Text:        "Смотрите прайс【4:0†прайс.pdf】 во вложении.",
		Annotations: []domain.Annotation{{Start: 14, End: 29}},
	}

	got := f.svc.HandleText(context.Background(), 42, "сколько стоит?")
	require.Equal(t, "Смотрите прайс во вложении.", got.Text)
}

func TestHandleText_LeadForwardedOnce(t *testing.T) {
	archive := &fakeArchive{}
	f := newFixture(t, WithLeadArchive(archive))
	f.gateway.turn = domain.Turn{Text: "Спасибо!\n\n" + leadBlock}

	got := f.svc.HandleText(context.Background(), 42, "меня зовут Иван, телефон +79990001122")

	require.True(t, got.Forwarded)
	require.Len(t, f.notifier.sent, 1)
	require.True(t, strings.HasPrefix(f.notifier.sent[0], "🚨 НОВАЯ ЗАЯВКА ОТ ПОЛЬЗОВАТЕЛЯ 42\n\n"))
	require.Contains(t, f.notifier.sent[0], "Телефон: +79990001122")

	require.Len(t, archive.records, 1)
	require.Equal(t, int64(42), archive.records[0].ParticipantID)
	require.Contains(t, archive.records[0].Text, "Имя: Иван Петров")
	require.False(t, archive.records[0].CreatedAt.IsZero())
}

func TestHandleText_LeadReplyMarkdownStripped(t *testing.T) {
	f := newFixture(t)
	f.gateway.turn = domain.Turn{Text: "**Готово!**\n\n" + leadBlock}

	got := f.svc.HandleText(context.Background(), 42, "да, оформляйте")

	require.True(t, got.Forwarded)
	require.NotContains(t, got.Text, "**")
	require.Contains(t, got.Text, "Готово!")
	require.Contains(t, got.Text, "Запрос: корпоратив на 50 человек")
}

func TestHandleText_ForwardRetriesPlainOnFailure(t *testing.T) {
	f := newFixture(t)
	f.notifier.failures = 1
	f.gateway.turn = domain.Turn{Text: leadBlock}

	got := f.svc.HandleText(context.Background(), 42, "готово")

	require.True(t, got.Forwarded)
	require.Len(t, f.notifier.sent, 2)
	require.True(t, strings.HasPrefix(f.notifier.sent[1], "НОВАЯ ЗАЯВКА ОТ ПОЛЬЗОВАТЕЛЯ 42\n\n"))
	require.NotContains(t, f.notifier.sent[1], "🚨")
}

func TestHandleText_LostForwardStillReplies(t *testing.T) {
	f := newFixture(t)
	f.notifier.failures = 2
	f.gateway.turn = domain.Turn{Text: leadBlock}

	got := f.svc.HandleText(context.Background(), 42, "готово")

	require.True(t, got.Forwarded)
	require.Len(t, f.notifier.sent, 2)
	require.Contains(t, got.Text, "Имя: Иван Петров")
}

func TestHandleText_ReplyLabelsBlockNotForwarded(t *testing.T) {
	// Email instead of Телеграм: passes the reply-side format pass but
	// must not reach the operations chat.
	f := newFixture(t)
	f.gateway.turn = domain.Turn{Text: "[Заявка в рабочий чат]\n\nИмя: Иван\n\nТелефон: +79990001122\nEmail: ivan@example.com\nЗапрос: квест"}

	got := f.svc.HandleText(context.Background(), 42, "вот почта")

	require.False(t, got.Forwarded)
	require.Empty(t, f.notifier.sent)
	// the format pass collapsed the blank line inside the block
	require.Equal(t, "[Заявка в рабочий чат]\nИмя: Иван\nТелефон: +79990001122\nEmail: ivan@example.com\nЗапрос: квест", got.Text)
}

func TestHandleText_RunFailedReply(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = domain.ErrRunFailed

	got := f.svc.HandleText(context.Background(), 42, "привет")
	require.Equal(t, "Извините, произошла ошибка. Попробуйте позже.", got.Text)
	require.False(t, got.Forwarded)
}

func TestHandleText_NoReplyReply(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = domain.ErrNoReply

	got := f.svc.HandleText(context.Background(), 42, "привет")
	require.Equal(t, "Извините, не удалось получить ответ от ассистента.", got.Text)
}

func TestHandleText_TransportFailureReply(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = errors.New("connection reset")

	got := f.svc.HandleText(context.Background(), 42, "привет")
	require.Equal(t, "Произошла ошибка. Попробуйте позже.", got.Text)
}

func TestHandleText_SessionFailureSkipsGateway(t *testing.T) {
	f := newFixture(t)
	f.sessions.err = errors.New("store down")

	got := f.svc.HandleText(context.Background(), 42, "привет")
	require.Equal(t, "Произошла ошибка. Попробуйте позже.", got.Text)
	require.Empty(t, f.gateway.texts)
}

func TestHandleText_CoercesUnknownStateToChatting(t *testing.T) {
	f := newFixture(t)
	f.gateway.turn = domain.Turn{Text: "ок"}

	require.Equal(t, StateUnknown, f.svc.StateOf(42))
	f.svc.HandleText(context.Background(), 42, "привет")
	require.Equal(t, StateChatting, f.svc.StateOf(42))
}

func TestReset_ForgetsSessionAndReturnsFixedReply(t *testing.T) {
	f := newFixture(t)
	f.gateway.turn = domain.Turn{Text: "ок"}
	f.svc.HandleText(context.Background(), 42, "привет")

	got := f.svc.Reset(context.Background(), 42)

	require.Equal(t, "🔄 Разговор сброшен!\n\nИспользуйте /start для начала нового диалога.", got.Text)
	require.Equal(t, []int64{42}, f.sessions.forgotten)
	require.Equal(t, StateIdle, f.svc.StateOf(42))
}

func TestHandleText_ParticipantsIsolated(t *testing.T) {
	f := newFixture(t)
	f.gateway.turn = domain.Turn{Text: "ок"}

	f.svc.HandleText(context.Background(), 1, "привет")
	require.Equal(t, StateChatting, f.svc.StateOf(1))
	require.Equal(t, StateUnknown, f.svc.StateOf(2))

	f.svc.Reset(context.Background(), 1)
	require.Equal(t, StateIdle, f.svc.StateOf(1))
	require.Equal(t, StateUnknown, f.svc.StateOf(2))
}

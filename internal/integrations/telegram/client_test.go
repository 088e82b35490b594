package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubGetter struct {
	value string
	err   error
	calls int
}

func (s *stubGetter) GetParameter(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.value, s.err
}

func okGetter() *stubGetter {
	return &stubGetter{value: `{"token":"123:abc"}`}
}

func newTestClient(t *testing.T, baseURL string, getter Getter) *Client {
	t.Helper()
	c, err := NewClient(getter, "/b2b-bot", WithBaseURL(baseURL))
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "/b2b-bot")
	require.Error(t, err)
	_, err = NewClient(okGetter(), "   ")
	require.Error(t, err)
}

func TestSendMessage_PathAndBody(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, okGetter())
	require.NoError(t, c.SendMessage(context.Background(), -100500, "🚨 НОВАЯ ЗАЯВКА"))

	require.Equal(t, "/bot123:abc/sendMessage", gotPath)
	require.Equal(t, float64(-100500), gotBody["chat_id"])
	require.Equal(t, "🚨 НОВАЯ ЗАЯВКА", gotBody["text"])
}

func TestSendChatAction(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, okGetter())
	require.NoError(t, c.SendChatAction(context.Background(), 42, "typing"))

	require.Equal(t, "/bot123:abc/sendChatAction", gotPath)
	require.Equal(t, "typing", gotBody["action"])
}

func TestAnswerCallbackQuery(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, okGetter())
	require.NoError(t, c.AnswerCallbackQuery(context.Background(), "cb-1"))
	require.Equal(t, "cb-1", gotBody["callback_query_id"])
}

func TestCall_RejectedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, okGetter())
	err := c.SendMessage(context.Background(), 42, "hi")
	require.Error(t, err)
	require.ErrorContains(t, err, "chat not found")
}

func TestCall_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, okGetter())
	err := c.SendMessage(context.Background(), 42, "hi")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.HTTPStatusCode())
}

func TestResolveToken_CachedAcrossCalls(t *testing.T) {
	getter := okGetter()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, getter)
	require.NoError(t, c.SendMessage(context.Background(), 42, "a"))
	require.NoError(t, c.SendMessage(context.Background(), 42, "b"))
	require.Equal(t, 1, getter.calls)
}

func TestResolveToken_BadPayload(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0", &stubGetter{value: `{"token":""}`})
	err := c.SendMessage(context.Background(), 42, "hi")
	require.Error(t, err)
	require.ErrorContains(t, err, "bot token is empty")
}

func TestNewNotifier_Validation(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0", okGetter())

	_, err := NewNotifier(nil, 1)
	require.Error(t, err)
	_, err = NewNotifier(c, 0)
	require.Error(t, err)
}

func TestNotifyLead_SendsToWorkingChat(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n, err := NewNotifier(newTestClient(t, srv.URL, okGetter()), -100777)
	require.NoError(t, err)
	require.NoError(t, n.NotifyLead(context.Background(), "НОВАЯ ЗАЯВКА ОТ ПОЛЬЗОВАТЕЛЯ 42"))

	require.Equal(t, float64(-100777), gotBody["chat_id"])
	require.Equal(t, "НОВАЯ ЗАЯВКА ОТ ПОЛЬЗОВАТЕЛЯ 42", gotBody["text"])
}

func TestCallbackQuery_ChatID(t *testing.T) {
	withMessage := &CallbackQuery{
		From:    User{ID: 42},
		Message: &Message{Chat: Chat{ID: -100500}},
	}
	require.Equal(t, int64(-100500), withMessage.ChatID())

	withoutMessage := &CallbackQuery{From: User{ID: 42}}
	require.Equal(t, int64(42), withoutMessage.ChatID())
}

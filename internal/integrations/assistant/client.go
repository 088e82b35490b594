// Package assistant wraps the hosted OpenAI Assistants API: thread
// creation, appending user turns, starting runs, polling run status and
// fetching the newest assistant turn.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/alyavision/B2B/internal/domain"
)

const (
	defaultBaseURL      = "https://api.openai.com/v1"
	defaultPollInterval = time.Second
	defaultWaitTimeout  = 90 * time.Second
)

// createThreadResponse is the minimal shape of POST /threads.
type createThreadResponse struct {
	ID string `json:"id"`
}

type appendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type startRunRequest struct {
	AssistantID  string `json:"assistant_id"`
	Instructions string `json:"instructions,omitempty"`
}

type runState struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

// listMessagesResponse is the minimal shape of GET /threads/{id}/messages.
type listMessagesResponse struct {
	Data []message `json:"data"`
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text struct {
		Value       string `json:"value"`
		Annotations []struct {
			StartIndex int `json:"start_index"`
			EndIndex   int `json:"end_index"`
		} `json:"annotations"`
	} `json:"text"`
}

// tokenPayload is the expected JSON shape stored in SSM for the API key.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware
// context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("assistant: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to the Assistants API for one fixed assistant
// configuration.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	getter       Getter
	paramPrefix  string
	assistantID  string
	pollInterval time.Duration
	waitTimeout  time.Duration
	log          *slog.Logger

	keyOnce sync.Once
	apiKey  string
	keyErr  error

	instrOnce    sync.Once
	instructions string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithPollInterval overrides the 1s run-status poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithWaitTimeout bounds how long Converse waits for a run to finish.
// An expired deadline surfaces as a transport fault.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

// NewClient creates a Client backed by the given paramstore Getter. The
// API key is fetched from SSM on first use and cached for the process
// lifetime; the run instructions come from `<prefix>/instructions` with a
// built-in fallback.
func NewClient(ps Getter, paramPrefix, assistantID string, log *slog.Logger, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("assistant: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("assistant: parameter prefix must not be empty")
	}
	if strings.TrimSpace(assistantID) == "" {
		return nil, errors.New("assistant: assistant id must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		getter:       ps,
		paramPrefix:  paramPrefix,
		assistantID:  assistantID,
		pollInterval: defaultPollInterval,
		waitTimeout:  defaultWaitTimeout,
		log:          log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateThread mints a new conversation thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	raw, err := c.postJSON(ctx, c.baseURL+"/threads", struct{}{})
	if err != nil {
		return "", fmt.Errorf("assistant: create thread: %w", err)
	}
	var payload createThreadResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("assistant: decode thread: %w", err)
	}
	if payload.ID == "" {
		return "", errors.New("assistant: thread response missing id")
	}
	return payload.ID, nil
}

// Converse appends a user turn, runs the assistant against the thread and
// returns the newest assistant turn once the run completes. It blocks for
// the duration of polling, up to the configured wait timeout. A failed run
// yields domain.ErrRunFailed; a completed run with no assistant turn
// yields domain.ErrNoReply.
func (c *Client) Converse(ctx context.Context, threadID, text string) (domain.Turn, error) {
	if strings.TrimSpace(threadID) == "" {
		return domain.Turn{}, errors.New("assistant: thread id must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()

	if err := c.appendUserTurn(ctx, threadID, text); err != nil {
		return domain.Turn{}, err
	}
	runID, err := c.startRun(ctx, threadID)
	if err != nil {
		return domain.Turn{}, err
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		state, err := c.runStatus(ctx, threadID, runID)
		if err != nil {
			return domain.Turn{}, err
		}
		if state.Status == "completed" {
			break
		}
		if state.Status == "failed" || state.Status == "cancelled" || state.Status == "expired" {
			code, detail := "", ""
			if state.LastError != nil {
				code, detail = state.LastError.Code, state.LastError.Message
			}
			c.log.Error("assistant: run did not complete",
				"thread", threadID, "run", runID, "status", state.Status, "code", code, "detail", detail)
			return domain.Turn{}, domain.ErrRunFailed
		}
		select {
		case <-ctx.Done():
			return domain.Turn{}, fmt.Errorf("assistant: run %s still %s at deadline: %w", runID, state.Status, ctx.Err())
		case <-ticker.C:
		}
	}

	turn, found, err := c.latestAssistantTurn(ctx, threadID)
	if err != nil {
		return domain.Turn{}, err
	}
	if !found {
		return domain.Turn{}, domain.ErrNoReply
	}
	return turn, nil
}

func (c *Client) appendUserTurn(ctx context.Context, threadID, text string) error {
	url := fmt.Sprintf("%s/threads/%s/messages", c.baseURL, threadID)
	if _, err := c.postJSON(ctx, url, appendMessageRequest{Role: domain.RoleUser, Content: text}); err != nil {
		return fmt.Errorf("assistant: append user turn: %w", err)
	}
	return nil
}

func (c *Client) startRun(ctx context.Context, threadID string) (string, error) {
	url := fmt.Sprintf("%s/threads/%s/runs", c.baseURL, threadID)
	raw, err := c.postJSON(ctx, url, startRunRequest{
		AssistantID:  c.assistantID,
		Instructions: c.runInstructions(ctx),
	})
	if err != nil {
		return "", fmt.Errorf("assistant: start run: %w", err)
	}
	var state runState
	if err := json.Unmarshal(raw, &state); err != nil {
		return "", fmt.Errorf("assistant: decode run: %w", err)
	}
	if state.ID == "" {
		return "", errors.New("assistant: run response missing id")
	}
	return state.ID, nil
}

func (c *Client) runStatus(ctx context.Context, threadID, runID string) (runState, error) {
	url := fmt.Sprintf("%s/threads/%s/runs/%s", c.baseURL, threadID, runID)
	raw, err := c.getJSON(ctx, url)
	if err != nil {
		return runState{}, fmt.Errorf("assistant: run status: %w", err)
	}
	var state runState
	if err := json.Unmarshal(raw, &state); err != nil {
		return runState{}, fmt.Errorf("assistant: decode run status: %w", err)
	}
	return state, nil
}

// latestAssistantTurn fetches a bounded newest-first page of turns and
// returns the first one with the assistant role, decoded into the strict
// domain shape.
func (c *Client) latestAssistantTurn(ctx context.Context, threadID string) (domain.Turn, bool, error) {
	url := fmt.Sprintf("%s/threads/%s/messages?order=desc&limit=20", c.baseURL, threadID)
	raw, err := c.getJSON(ctx, url)
	if err != nil {
		return domain.Turn{}, false, fmt.Errorf("assistant: list turns: %w", err)
	}
	var payload listMessagesResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Turn{}, false, fmt.Errorf("assistant: decode turns: %w", err)
	}
	for _, m := range payload.Data {
		if m.Role != domain.RoleAssistant {
			continue
		}
		return toTurn(m), true, nil
	}
	return domain.Turn{}, false, nil
}

// toTurn concatenates text parts and lifts their citation spans into
// offsets over the combined text. Annotation indexes are per-part, so each
// span is shifted by the rune length of the parts before it.
func toTurn(m message) domain.Turn {
	var b strings.Builder
	var annotations []domain.Annotation
	offset := 0
	for _, part := range m.Content {
		if part.Type != "text" {
			continue
		}
		for _, a := range part.Text.Annotations {
			annotations = append(annotations, domain.Annotation{
				Start: offset + a.StartIndex,
				End:   offset + a.EndIndex,
			})
		}
		b.WriteString(part.Text.Value)
		offset += utf8.RuneCountInString(part.Text.Value)
	}
	return domain.Turn{Role: m.Role, Text: b.String(), Annotations: annotations}
}

// runInstructions resolves the assistant instructions once per process:
// the SSM parameter wins, the built-in consultant prompt is the fallback.
func (c *Client) runInstructions(ctx context.Context) string {
	c.instrOnce.Do(func() {
		raw, err := c.getter.GetParameter(ctx, c.paramPrefix+"/instructions")
		if err != nil {
			c.log.Warn("assistant: instructions parameter unavailable, using default", "err", err)
			c.instructions = defaultInstructions
			return
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			c.instructions = defaultInstructions
			return
		}
		c.instructions = raw
	})
	return c.instructions
}

// resolveAPIKey fetches the API key from SSM on the first call and returns
// the cached result afterwards.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = fetchAPIKeyFromParamStore(ctx, c.getter, c.paramPrefix+"/openai-token")
	})
	return c.apiKey, c.keyErr
}

func (c *Client) postJSON(ctx context.Context, url string, body any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.doJSONRequest(ctx, req, url)
}

func (c *Client) getJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.doJSONRequest(ctx, req, url)
}

func (c *Client) doJSONRequest(ctx context.Context, req *http.Request, url string) ([]byte, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	res, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("assistant: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("assistant: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("assistant: API token is empty")
	}
	return tp.Token, nil
}

// defaultInstructions mirrors the consultant behavior used when no
// instructions parameter is configured.
const defaultInstructions = "Ты — вежливый и компетентный консультант компании FriendEvent. Отвечай как человек, " +
	"кратко и по делу, опираясь на свою базу знаний. Разрешено рассказывать об игровых форматах, " +
	"включая CashFlow: что это, цель, длительность, состав участников, формат (офлайн/онлайн), " +
	"ожидаемые результаты для команды. Если нет точных цен — предлагай варианты и запрашивай бюджет. " +
	"Уточняй детали по необходимости. Когда у клиента будет готовность, оформи финальный блок заявки " +
	"по шаблону: [Заявка в рабочий чат] + Имя/Телефон/Телеграм/Email/Запрос."

package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/sonar-go/internal/config"
	"github.com/comigor/sonar-go/internal/models"
)

type mockLLM struct {
	mu    sync.Mutex
	calls []openai.ChatCompletionResponse
	err   error
	reqs  []openai.ChatCompletionRequest
}

func (m *mockLLM) CreateChatCompletion(ctx context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, r)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if len(m.calls) == 0 {
		panic("mockLLM: no more responses configured for request: " + r.Messages[len(r.Messages)-1].Content)
	}
	resp := m.calls[0]
	m.calls = m.calls[1:]
	return resp, nil
}

func reply(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}}}}
}

type recorded struct {
	msg   Message
	model string
}

type mockRecorder struct {
	got    []recorded
	err    error
	resets int
}

func (r *mockRecorder) Reset() { r.resets++ }

func (r *mockRecorder) Record(_ context.Context, msg Message, model string) error {
	r.got = append(r.got, recorded{msg, model})
	return r.err
}

func newController(client *mockLLM, opts ...Option) *Controller {
	cfg := config.LLMConfig{Temperature: 0.7, MaxTokens: 1000}
	return New(client, models.Builtin(), cfg, opts...)
}

func TestSubmit_Success(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{reply("Hello")}}
	c := newController(client)

	out := c.Submit(context.Background(), "hi there")
	require.NoError(t, out.Err)
	require.False(t, out.Skipped())
	require.NotNil(t, out.Reply)
	require.Equal(t, "Hello", out.Reply.Content)

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 2)
	require.Equal(t, RoleUser, snap.Messages[0].Role)
	require.Equal(t, "hi there", snap.Messages[0].Content)
	require.Equal(t, RoleAssistant, snap.Messages[1].Role)
	require.Equal(t, "Hello", snap.Messages[1].Content)
	require.Equal(t, snap.Messages[1].ID, snap.AnimatingID)
	require.False(t, snap.Busy)
}

func TestSubmit_RequestPayload(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{reply("first"), reply("second")}}
	c := newController(client)
	require.NoError(t, c.SelectModel("groq/moonshotai/kimi-k2-instruct"))

	c.Submit(context.Background(), "one")
	c.Submit(context.Background(), "two")

	require.Len(t, client.reqs, 2)
	req := client.reqs[1]
	require.Equal(t, "groq/moonshotai/kimi-k2-instruct", req.Model)
	require.InDelta(t, 0.7, req.Temperature, 0.0001)
	require.Equal(t, 1000, req.MaxTokens)
	require.Equal(t, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: defaultSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: "one"},
		{Role: openai.ChatMessageRoleAssistant, Content: "first"},
		{Role: openai.ChatMessageRoleUser, Content: "two"},
	}, req.Messages)
}

func TestSubmit_BlankInputIsSkipped(t *testing.T) {
	client := &mockLLM{}
	c := newController(client)

	for _, in := range []string{"", "   ", "\n\t"} {
		out := c.Submit(context.Background(), in)
		require.True(t, out.Skipped())
		require.NoError(t, out.Err)
	}
	require.Empty(t, c.Snapshot().Messages)
	require.Empty(t, client.reqs)
}

func TestBegin_AppendsUserBeforeSending(t *testing.T) {
	c := newController(&mockLLM{})

	p, ok := c.Begin(context.Background(), "hello")
	require.True(t, ok)
	snap := c.Snapshot()
	require.True(t, snap.Busy)
	require.Len(t, snap.Messages, 1)
	require.Equal(t, p.User, snap.Messages[0])
}

func TestBegin_WhileBusyIsNoop(t *testing.T) {
	c := newController(&mockLLM{})

	_, ok := c.Begin(context.Background(), "first")
	require.True(t, ok)

	_, ok = c.Begin(context.Background(), "second")
	require.False(t, ok)
	out := c.Submit(context.Background(), "third")
	require.True(t, out.Skipped())
	require.Len(t, c.Snapshot().Messages, 1)
}

func TestSubmit_EmptyChoicesUsesPlaceholder(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{{}, reply("")}}
	c := newController(client)

	out := c.Submit(context.Background(), "a")
	require.NoError(t, out.Err)
	require.Equal(t, NoResponse, out.Reply.Content)

	out = c.Submit(context.Background(), "b")
	require.Equal(t, NoResponse, out.Reply.Content)
}

func TestSubmit_TransportFailure(t *testing.T) {
	client := &mockLLM{err: context.DeadlineExceeded}
	c := newController(client)

	out := c.Submit(context.Background(), "hi")
	require.ErrorIs(t, out.Err, ErrSendFailed)
	require.ErrorIs(t, out.Err, context.DeadlineExceeded)
	require.Nil(t, out.Reply)

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Equal(t, RoleUser, snap.Messages[0].Role)
	require.False(t, snap.Busy)
	require.Empty(t, snap.AnimatingID)

	// retry is allowed immediately
	client.err = nil
	client.calls = []openai.ChatCompletionResponse{reply("ok")}
	out = c.Submit(context.Background(), "again")
	require.NoError(t, out.Err)
	require.Len(t, c.Snapshot().Messages, 3)
}

func TestSubmit_APIErrorIsSendFailure(t *testing.T) {
	client := &mockLLM{err: &openai.APIError{HTTPStatusCode: 500, Message: "boom"}}
	c := newController(client)

	out := c.Submit(context.Background(), "hi")
	require.ErrorIs(t, out.Err, ErrSendFailed)
	var apiErr *openai.APIError
	require.True(t, errors.As(out.Err, &apiErr))
}

func TestNewChat_ResetsEverythingButModel(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{reply("Hello")}}
	c := newController(client)
	require.NoError(t, c.SelectModel("sonar-reasoning(clinesp)"))
	c.Submit(context.Background(), "hi")
	_, ok := c.Begin(context.Background(), "pending")
	require.True(t, ok)

	c.NewChat()

	snap := c.Snapshot()
	require.Empty(t, snap.Messages)
	require.Empty(t, snap.AnimatingID)
	require.False(t, snap.Busy)
	require.Equal(t, "sonar-reasoning(clinesp)", snap.Model)

	c.NewChat()
	require.False(t, c.Busy())
}

func TestFinish_AfterNewChatAppendsButKeepsNewRequestBusy(t *testing.T) {
	c := newController(&mockLLM{})

	stale, ok := c.Begin(context.Background(), "old")
	require.True(t, ok)
	c.NewChat()
	fresh, ok := c.Begin(context.Background(), "new")
	require.True(t, ok)

	out := c.Finish(context.Background(), stale, "late reply", nil)
	require.NoError(t, out.Err)
	snap := c.Snapshot()
	require.True(t, snap.Busy)
	require.Len(t, snap.Messages, 2)
	require.Equal(t, "late reply", snap.Messages[1].Content)

	c.Finish(context.Background(), fresh, "fresh reply", nil)
	snap = c.Snapshot()
	require.False(t, snap.Busy)
	require.Equal(t, snap.Messages[2].ID, snap.AnimatingID)
}

func TestSelectModel_Unknown(t *testing.T) {
	c := newController(&mockLLM{})
	before := c.Model()

	err := c.SelectModel("gpt-9")
	require.ErrorIs(t, err, ErrUnknownModel)
	require.Equal(t, before, c.Model())
}

func TestNew_ConfiguredModel(t *testing.T) {
	c := New(&mockLLM{}, models.Builtin(), config.LLMConfig{Model: "sonar-reasoning-pro(clinesp)"})
	require.Equal(t, "sonar-reasoning-pro(clinesp)", c.Model())

	c = New(&mockLLM{}, models.Builtin(), config.LLMConfig{Model: "not-listed"})
	require.Equal(t, "sonar(clinesp)", c.Model())
}

func TestClearAnimating(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{reply("one"), reply("two")}}
	c := newController(client)

	first := c.Submit(context.Background(), "a").Reply
	second := c.Submit(context.Background(), "b").Reply

	c.ClearAnimating(first.ID)
	require.Equal(t, second.ID, c.Snapshot().AnimatingID)
	c.ClearAnimating(second.ID)
	require.Empty(t, c.Snapshot().AnimatingID)
}

func TestMessageIDsAreUniqueAndOrdered(t *testing.T) {
	client := &mockLLM{}
	for i := 0; i < 20; i++ {
		client.calls = append(client.calls, reply("r"))
	}
	c := newController(client)
	for i := 0; i < 20; i++ {
		c.Submit(context.Background(), "m")
	}

	seen := map[string]bool{}
	msgs := c.Snapshot().Messages
	for i, m := range msgs {
		require.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		if i > 0 {
			require.Less(t, msgs[i-1].ID, m.ID)
		}
	}
}

func TestRecorder(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{reply("Hello")}}
	rec := &mockRecorder{err: errors.New("disk full")}
	fixed := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	c := newController(client, WithRecorder(rec), WithClock(func() time.Time { return fixed }))

	out := c.Submit(context.Background(), "hi")
	require.NoError(t, out.Err, "recorder failures never surface")
	require.Len(t, rec.got, 2)
	require.Equal(t, RoleUser, rec.got[0].msg.Role)
	require.Equal(t, RoleAssistant, rec.got[1].msg.Role)
	require.Equal(t, "sonar(clinesp)", rec.got[1].model)
	require.Equal(t, fixed, rec.got[0].msg.CreatedAt)

	c.NewChat()
	require.Equal(t, 1, rec.resets)
}

func TestSnapshotIsACopy(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{reply("Hello")}}
	c := newController(client)
	c.Submit(context.Background(), "hi")

	snap := c.Snapshot()
	snap.Messages[0].Content = "mutated"
	require.Equal(t, "hi", c.Snapshot().Messages[0].Content)
}

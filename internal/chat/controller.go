// Package chat implements the conversation controller: the ordered message
// list, the selected model and the lifecycle of the single outstanding
// completion request.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/sonar-go/internal/config"
	"github.com/comigor/sonar-go/internal/llm"
	"github.com/comigor/sonar-go/internal/logger"
	"github.com/comigor/sonar-go/internal/models"
)

// Request lifecycle states.
type State string

const (
	StateIdle          State = "Idle"
	StateAwaitingReply State = "AwaitingReply"
)

// Request lifecycle triggers.
type Trigger string

const (
	TriggerSubmit        Trigger = "Submit"
	TriggerReplyReceived Trigger = "ReplyReceived"
	TriggerSendFailed    Trigger = "SendFailed"
	TriggerReset         Trigger = "Reset"
)

const (
	defaultSystemPrompt = "You are a helpful AI assistant."

	// NoResponse replaces a reply without any completion text.
	NoResponse = "No response received"

	// SendFailedNotice is the user-visible text for ErrSendFailed.
	SendFailedNotice = "Failed to send message. Please try again."
)

var (
	// ErrSendFailed covers every transport failure and non-success response.
	ErrSendFailed = errors.New("send failed")
	// ErrUnknownModel is returned by SelectModel for ids outside the catalog.
	ErrUnknownModel = errors.New("unknown model")
)

// Recorder receives every message appended to the conversation together with
// the model selected at that time. Errors are logged, never surfaced. Reset
// is called by NewChat.
type Recorder interface {
	Record(ctx context.Context, msg Message, model string) error
	Reset()
}

// Pending is a request that has been admitted by Begin and not yet finished.
type Pending struct {
	ticket  uint64
	request openai.ChatCompletionRequest

	User Message
}

// Outcome is the result of a submit. A skipped submit has a nil User.
type Outcome struct {
	User  *Message
	Reply *Message
	Err   error
}

// Skipped reports whether the submit was ignored (empty input or busy).
func (o Outcome) Skipped() bool { return o.User == nil }

// Controller owns the conversation state.
type Controller struct {
	mu sync.Mutex

	client   llm.Client
	catalog  *models.Catalog
	cfg      config.LLMConfig
	recorder Recorder
	now      func() time.Time

	fsm         *stateless.StateMachine
	messages    []Message
	model       string
	animatingID string

	seq     uint64
	current uint64 // ticket of the outstanding request, 0 if none
}

// Option customises a Controller.
type Option func(*Controller)

// WithRecorder persists every appended message through r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a controller. The initially selected model is cfg.Model when it
// belongs to the catalog, the catalog default otherwise.
func New(client llm.Client, catalog *models.Catalog, cfg config.LLMConfig, opts ...Option) *Controller {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	c := &Controller{
		client:  client,
		catalog: catalog,
		cfg:     cfg,
		now:     time.Now,
		model:   catalog.Default(),
	}
	if catalog.Contains(cfg.Model) {
		c.model = cfg.Model
	}
	for _, opt := range opts {
		opt(c)
	}

	fsm := stateless.NewStateMachine(StateIdle)
	fsm.Configure(StateIdle).
		Permit(TriggerSubmit, StateAwaitingReply).
		PermitReentry(TriggerReset).
		Ignore(TriggerReplyReceived).
		Ignore(TriggerSendFailed)
	fsm.Configure(StateAwaitingReply).
		Permit(TriggerReplyReceived, StateIdle).
		Permit(TriggerSendFailed, StateIdle).
		Permit(TriggerReset, StateIdle)
	fsm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		logger.L.Debug("conversation transition", "from", t.Source, "to", t.Destination, "trigger", t.Trigger)
	})
	c.fsm = fsm

	return c
}

// Begin admits a submit: it appends the user message, marks the conversation
// busy and prepares the completion request. It returns false without touching
// any state when text is blank or a request is already outstanding.
func (c *Controller) Begin(ctx context.Context, text string) (*Pending, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		logger.L.Debug("submit ignored while a request is outstanding")
		return nil, false
	}

	history := make([]openai.ChatCompletionMessage, 0, len(c.messages)+2)
	history = append(history, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.cfg.SystemPrompt})
	for _, m := range c.messages {
		history = append(history, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	history = append(history, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})

	user := c.newMessage(RoleUser, text)
	c.messages = append(c.messages, user)

	c.seq++
	c.current = c.seq
	if err := c.fsm.Fire(TriggerSubmit); err != nil {
		logger.L.Warn("FSM fire error", "error", err)
	}

	p := &Pending{
		ticket: c.seq,
		User:   user,
		request: openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    history,
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		},
	}
	model := c.model
	c.mu.Unlock()

	c.record(ctx, user, model)
	return p, true
}

// Send performs the completion request for p. It does not touch controller
// state and may run on any goroutine.
func (c *Controller) Send(ctx context.Context, p *Pending) (string, error) {
	logger.L.Info("sending completion request", "model", p.request.Model, "messages", len(p.request.Messages))

	resp, err := c.client.CreateChatCompletion(ctx, p.request)
	if err != nil {
		logger.L.Error("LLM call failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		logger.L.Warn("completion response carried no text", "choices", len(resp.Choices))
		return NoResponse, nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Finish applies the terminal result of p. On success the reply is appended
// and becomes the animating message. A reply that arrives after NewChat is
// still appended, but only the current request may clear the busy flag.
func (c *Controller) Finish(ctx context.Context, p *Pending, reply string, err error) Outcome {
	user := p.User
	out := Outcome{User: &user}

	c.mu.Lock()
	current := p.ticket == c.current
	if current {
		c.current = 0
	} else {
		logger.L.Debug("applying reply of a superseded request", "ticket", p.ticket)
	}

	if err != nil {
		if !errors.Is(err, ErrSendFailed) {
			err = fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
		out.Err = err
		if current {
			if fireErr := c.fsm.Fire(TriggerSendFailed); fireErr != nil {
				logger.L.Warn("FSM fire error", "error", fireErr)
			}
		}
		c.mu.Unlock()
		return out
	}

	msg := c.newMessage(RoleAssistant, reply)
	c.messages = append(c.messages, msg)
	c.animatingID = msg.ID
	if current {
		if fireErr := c.fsm.Fire(TriggerReplyReceived); fireErr != nil {
			logger.L.Warn("FSM fire error", "error", fireErr)
		}
	}
	model := p.request.Model
	c.mu.Unlock()

	c.record(ctx, msg, model)
	out.Reply = &msg
	return out
}

// Submit runs Begin, Send and Finish in sequence.
func (c *Controller) Submit(ctx context.Context, text string) Outcome {
	p, ok := c.Begin(ctx, text)
	if !ok {
		return Outcome{}
	}
	reply, err := c.Send(ctx, p)
	return c.Finish(ctx, p, reply, err)
}

// NewChat clears the conversation. The selected model is kept.
func (c *Controller) NewChat() {
	c.mu.Lock()
	c.messages = nil
	c.animatingID = ""
	c.current = 0
	if err := c.fsm.Fire(TriggerReset); err != nil {
		logger.L.Warn("FSM fire error", "error", err)
	}
	c.mu.Unlock()

	if c.recorder != nil {
		c.recorder.Reset()
	}
}

// SelectModel changes the model used by the next submit.
func (c *Controller) SelectModel(id string) error {
	if !c.catalog.Contains(id) {
		return fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	c.mu.Lock()
	c.model = id
	c.mu.Unlock()
	return nil
}

// ClearAnimating ends the reveal of id. It is a no-op when another message
// has become the animating one in the meantime.
func (c *Controller) ClearAnimating(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.animatingID == id {
		c.animatingID = ""
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Messages:    slices.Clone(c.messages),
		Model:       c.model,
		Busy:        c.busyLocked(),
		AnimatingID: c.animatingID,
	}
}

// Busy reports whether a request is outstanding.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyLocked()
}

// Model returns the selected model id.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Catalog returns the models the controller accepts.
func (c *Controller) Catalog() *models.Catalog {
	return c.catalog
}

func (c *Controller) busyLocked() bool {
	return c.fsm.MustState() == StateAwaitingReply
}

func (c *Controller) newMessage(role Role, content string) Message {
	return Message{
		ID:        newID(),
		Content:   content,
		Role:      role,
		CreatedAt: c.now(),
	}
}

func (c *Controller) record(ctx context.Context, msg Message, model string) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(ctx, msg, model); err != nil {
		logger.L.Error("failed to record message", "id", msg.ID, "error", err)
	}
}

// newID returns a time-ordered UUIDv7 so ids sort in creation order.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

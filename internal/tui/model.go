package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/comigor/sonar-go/internal/auth"
	"github.com/comigor/sonar-go/internal/chat"
	"github.com/comigor/sonar-go/internal/logger"
	"github.com/comigor/sonar-go/internal/reveal"
)

const toastTTL = 4 * time.Second

// Message types for the TUI
type (
	replyMsg struct {
		pending *chat.Pending
		reply   string
		err     error
	}
	revealTickMsg struct {
		token uint64
	}
	toastExpiredMsg struct {
		seq int
	}
)

// Options configures the chat view.
type Options struct {
	// Context bounds in-flight requests; nil means context.Background.
	Context context.Context
	// Identity is the signed-in user; nil means guest mode.
	Identity *auth.Identity
	// Interval is the typewriter delay per character.
	Interval time.Duration
	// Markdown renders finished assistant replies with glamour.
	Markdown bool
}

// tickScheduler adapts reveal.Scheduler to the bubbletea event loop: a
// schedule arms one tea.Tick and the tick runs on the update goroutine.
type tickScheduler struct {
	token uint64
	fn    func()
	delay time.Duration
	armed bool
}

func (s *tickScheduler) Schedule(d time.Duration, fn func()) func() {
	s.token++
	tok := s.token
	s.fn, s.delay, s.armed = fn, d, true
	return func() {
		if s.token == tok {
			s.fn, s.armed = nil, false
		}
	}
}

// cmd returns the tick command for a freshly armed schedule, or nil.
func (s *tickScheduler) cmd() tea.Cmd {
	if !s.armed {
		return nil
	}
	s.armed = false
	tok, d := s.token, s.delay
	return tea.Tick(d, func(time.Time) tea.Msg { return revealTickMsg{token: tok} })
}

func (s *tickScheduler) fire(tok uint64) {
	if tok != s.token || s.fn == nil {
		return
	}
	fn := s.fn
	s.fn = nil
	fn()
}

// animation ties the animator to the message it reveals.
type animation struct {
	animator *reveal.Animator
	sched    *tickScheduler
	id       string
}

type markdownCache struct {
	enabled  bool
	width    int
	renderer *glamour.TermRenderer
	rendered map[string]string
}

func (c *markdownCache) resize(width int) {
	if !c.enabled || width <= 0 || width == c.width {
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle("dark"), glamour.WithWordWrap(width))
	if err != nil {
		logger.L.Warn("markdown renderer unavailable", "error", err)
		c.enabled = false
		return
	}
	c.renderer, c.width = r, width
	c.rendered = make(map[string]string)
}

func (c *markdownCache) render(id, content string) string {
	if c.renderer == nil {
		return content
	}
	if out, ok := c.rendered[id]; ok {
		return out
	}
	out, err := c.renderer.Render(content)
	if err != nil {
		return content
	}
	out = strings.Trim(out, "\n")
	c.rendered[id] = out
	return out
}

// Model represents the TUI state
type Model struct {
	ctrl *chat.Controller
	opts Options
	ctx  context.Context

	// UI components
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	anim     *animation
	markdown *markdownCache

	toast    string
	toastSeq int

	ready  bool
	width  int
	height int
}

// New creates the chat view for ctrl.
func New(ctrl *chat.Controller, opts Options) Model {
	ta := textarea.New()
	ta.Placeholder = "Message AI..."
	ta.CharLimit = 4000
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("ctrl+j")
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(colorText)
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorTextDim)
	ta.BlurredStyle = ta.FocusedStyle
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	anim := &animation{sched: &tickScheduler{}}
	anim.animator = reveal.New(anim.sched,
		reveal.WithInterval(opts.Interval),
		reveal.OnComplete(func() { ctrl.ClearAnimating(anim.id) }),
	)

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	return Model{
		ctrl:     ctrl,
		opts:     opts,
		ctx:      ctx,
		textarea: ta,
		spinner:  s,
		anim:     anim,
		markdown: &markdownCache{enabled: opts.Markdown},
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		m.toast = ""
		switch msg.String() {
		case "ctrl+c", "esc":
			m.anim.animator.Stop()
			return m, tea.Quit
		case "enter":
			cmds = append(cmds, m.submit())
		case "ctrl+n":
			m.newChat()
		case "tab":
			m.cycleModel()
		case "pgup", "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		default:
			m.textarea, cmd = m.textarea.Update(msg)
			cmds = append(cmds, cmd)
		}

	case replyMsg:
		cmds = append(cmds, m.finish(msg))

	case revealTickMsg:
		m.anim.sched.fire(msg.token)

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = ""
		}

	case spinner.TickMsg:
		if m.ctrl.Busy() {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	default:
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.refresh()
	cmds = append(cmds, m.anim.sched.cmd())
	return m, tea.Batch(cmds...)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	mainWidth := max(width-sidebarWidth-1, 20)
	inputHeight := 5 // textarea plus border
	toastHeight := 1
	vpHeight := max(height-inputHeight-toastHeight, 3)

	if !m.ready {
		m.viewport = viewport.New(mainWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = mainWidth
		m.viewport.Height = vpHeight
	}
	m.textarea.SetWidth(mainWidth - 4)
	m.markdown.resize(mainWidth - 6)
}

// submit hands the input to the controller and starts the request.
func (m *Model) submit() tea.Cmd {
	p, ok := m.ctrl.Begin(m.ctx, m.textarea.Value())
	if !ok {
		return nil
	}
	m.textarea.Reset()

	ctrl, ctx := m.ctrl, m.ctx
	send := func() tea.Msg {
		reply, err := ctrl.Send(ctx, p)
		return replyMsg{pending: p, reply: reply, err: err}
	}
	return tea.Batch(send, m.spinner.Tick)
}

func (m *Model) finish(msg replyMsg) tea.Cmd {
	out := m.ctrl.Finish(m.ctx, msg.pending, msg.reply, msg.err)
	if out.Err != nil {
		return m.showToast(chat.SendFailedNotice)
	}
	m.anim.id = out.Reply.ID
	m.anim.animator.SetText(out.Reply.Content)
	return nil
}

func (m *Model) newChat() {
	m.anim.animator.Stop()
	m.anim.id = ""
	m.ctrl.NewChat()
}

func (m *Model) cycleModel() {
	next := m.ctrl.Catalog().Next(m.ctrl.Model())
	if err := m.ctrl.SelectModel(next); err != nil {
		logger.L.Warn("model switch failed", "error", err)
	}
}

func (m *Model) showToast(text string) tea.Cmd {
	m.toast = text
	m.toastSeq++
	seq := m.toastSeq
	return tea.Tick(toastTTL, func(time.Time) tea.Msg { return toastExpiredMsg{seq: seq} })
}

// refresh rebuilds the transcript from the controller state.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.transcript(m.ctrl.Snapshot()))
	m.viewport.GotoBottom()
}

func (m *Model) transcript(snap chat.Snapshot) string {
	width := max(m.viewport.Width-2, 10)

	if len(snap.Messages) == 0 && !snap.Busy {
		lines := []string{
			titleStyle.Render("Welcome to Sonar AI"),
			"Ask me anything, and I'll do my best to help!",
		}
		if m.opts.Identity == nil {
			lines = append(lines, hintStyle.Render("Sign in to save your chat history"))
		}
		return welcomeStyle.Width(width).Render("\n\n" + strings.Join(lines, "\n"))
	}

	var b strings.Builder
	for i, msg := range snap.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		ts := timestampStyle.Render(msg.CreatedAt.Format("15:04:05"))
		if msg.Role == chat.RoleUser {
			b.WriteString(userLabelStyle.Render("You") + " " + ts + "\n")
			b.WriteString(userBubbleStyle.Width(width).Render(msg.Content))
		} else {
			b.WriteString(assistantLabelStyle.Render("Assistant") + " " + ts + "\n")
			b.WriteString(assistantBubbleStyle.Width(width).Render(m.assistantText(msg, snap.AnimatingID)))
		}
		b.WriteString("\n")
	}

	if snap.Busy {
		b.WriteString("\n" + assistantLabelStyle.Render("Assistant") + " " + m.spinner.View() + "\n")
	}
	return b.String()
}

func (m *Model) assistantText(msg chat.Message, animatingID string) string {
	if msg.ID == animatingID && msg.ID == m.anim.id {
		text := m.anim.animator.Text()
		if !m.anim.animator.Done() {
			text += cursorStyle.Render("▋")
		}
		return text
	}
	return m.markdown.render(msg.ID, msg.Content)
}

// View renders the TUI
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	toast := ""
	if m.toast != "" {
		toast = toastStyle.Render("✗ " + m.toast)
	}
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		toast,
		inputPanelStyle.Width(m.viewport.Width-2).Render(m.textarea.View()),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, m.sidebar(), main)
}

func (m Model) sidebar() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sonar AI") + "\n")
	if m.opts.Identity != nil {
		b.WriteString(labelStyle.Render(m.opts.Identity.Name()) + "\n")
	}

	model := m.ctrl.Model()
	b.WriteString("\n" + labelStyle.Render("Model") + "\n")
	b.WriteString(valueStyle.Render(m.ctrl.Catalog().Label(model)) + "\n")
	b.WriteString(hintStyle.Render("tab to switch") + "\n\n")

	b.WriteString(valueStyle.Render("ctrl+n  New Chat") + "\n")
	if m.opts.Identity != nil {
		b.WriteString(valueStyle.Render("Account Settings") + "\n")
		b.WriteString(hintStyle.Render(fmt.Sprintf("signed in as %s", m.opts.Identity.Name())) + "\n")
	} else {
		b.WriteString(valueStyle.Render("Sign In") + "\n")
		b.WriteString(hintStyle.Render("set identity in config") + "\n")
	}
	b.WriteString("\n" + hintStyle.Render("enter send · ctrl+j newline · esc quit"))

	return sidebarStyle.Height(max(m.height-2, 1)).Render(b.String())
}

// Run starts the chat TUI
func Run(ctrl *chat.Controller, opts Options) error {
	progOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if opts.Context != nil {
		progOpts = append(progOpts, tea.WithContext(opts.Context))
	}
	p := tea.NewProgram(New(ctrl, opts), progOpts...)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && opts.Context != nil && opts.Context.Err() != nil {
		return nil
	}
	return err
}

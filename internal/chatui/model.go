// Package chatui is the interactive terminal chat with a tutor.
package chatui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joescharf/neotutor/internal/conversation"
	"github.com/joescharf/neotutor/internal/models"
)

// FailureText is shown after a question that produced no reply.
const FailureText = "Something went wrong. Please try again."

// Conversation is the engine behind the chat view.
type Conversation interface {
	Submit(ctx context.Context, query string) (conversation.Outcome, error)
	Messages() []models.Message
}

// Formatter renders one message for the transcript pane.
type Formatter func(m models.Message) string

type Model struct {
	ctx     context.Context
	conv    Conversation
	format  Formatter
	channel string

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	width  int
	height int

	sending bool
	pending string
	status  string
}

type replyMsg struct {
	outcome conversation.Outcome
	err     error
}

// NewModel builds the chat view. channel is the tutor name shown in the header.
func NewModel(ctx context.Context, conv Conversation, channel string, format Formatter) Model {
	vp := viewport.New(80, 20)

	ti := textinput.New()
	ti.Placeholder = "Ask your tutor..."
	ti.Prompt = "> "
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	h := help.New()

	m := Model{
		ctx:      ctx,
		conv:     conv,
		format:   format,
		channel:  channel,
		viewport: vp,
		input:    ti,
		spinner:  sp,
		help:     h,
		keys:     defaultKeys(),
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) submitCmd(query string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.conv.Submit(m.ctx, query)
		return replyMsg{outcome: out, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refresh()

	case replyMsg:
		m.sending = false
		m.pending = ""
		switch {
		case errors.Is(msg.err, conversation.ErrReplyPending):
			m.status = "Still waiting for the previous reply"
		case msg.err != nil:
			m.status = msg.err.Error()
		case msg.outcome.Err != nil:
			m.status = FailureText
		default:
			m.status = ""
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.sending {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Send):
			query := m.input.Value()
			if strings.TrimSpace(query) == "" {
				return m, nil
			}
			if m.sending {
				m.status = "Still waiting for the previous reply"
				return m, nil
			}
			m.input.Reset()
			m.sending = true
			m.pending = query
			m.status = ""
			m.refresh()
			return m, tea.Batch(m.submitCmd(query), m.spinner.Tick)
		case key.Matches(msg, m.keys.PageUp):
			m.viewport.HalfViewUp()
			return m, nil
		case key.Matches(msg, m.keys.PageDown):
			m.viewport.HalfViewDown()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// refresh re-renders the transcript and scrolls to the newest message.
func (m *Model) refresh() {
	msgs := m.conv.Messages()
	parts := make([]string, 0, len(msgs)+1)
	for _, msg := range msgs {
		parts = append(parts, m.format(msg))
	}
	// The engine appends the user message from the submit goroutine, so the
	// pending query is shown until the reply arrives.
	if m.pending != "" && !endsWith(msgs, m.pending) {
		parts = append(parts, m.format(models.Message{Sender: models.SenderUser, Text: m.pending}))
	}
	if len(parts) == 0 {
		m.viewport.SetContent(hintStyle.Render("Ask " + m.channel + " anything about the videos it was trained on."))
		return
	}
	m.viewport.SetContent(strings.Join(parts, "\n"))
	m.viewport.GotoBottom()
}

func endsWith(msgs []models.Message, query string) bool {
	if len(msgs) == 0 {
		return false
	}
	last := msgs[len(msgs)-1]
	return last.Sender == models.SenderUser && last.Text == query
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	// header, status, input and help lines
	bodyHeight := m.height - 5
	if bodyHeight < 5 {
		bodyHeight = 5
	}
	m.viewport.Width = m.width
	m.viewport.Height = bodyHeight
	m.input.Width = m.width - len(m.input.Prompt) - 1
	m.help.Width = m.width
}

func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(m.channel),
		m.viewport.View(),
		m.statusLine(),
		m.input.View(),
		m.help.View(m.keys),
	)
}

func (m Model) statusLine() string {
	switch {
	case m.sending:
		return m.spinner.View() + " " + m.channel + " is thinking..."
	case m.status != "":
		return errorStyle.Render(m.status)
	default:
		return ""
	}
}

// Sending reports whether a question is in flight.
func (m Model) Sending() bool { return m.sending }

// Status returns the current status line text.
func (m Model) Status() string { return m.status }

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)
)

type keyMap struct {
	Send     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.PageUp, k.PageDown, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Send, k.PageUp, k.PageDown, k.Quit}}
}

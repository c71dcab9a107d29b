package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/reinhart/assistantGPT/internal/assistant"
	"github.com/reinhart/assistantGPT/internal/logger"
	"github.com/reinhart/assistantGPT/internal/session"
)

// --- Mocha Palette & Styles ---

var (
	mochaText    = lipgloss.Color("#cdd6f4") // Main text
	colorSubtext = lipgloss.Color("#9399b2")

	colorInput  = lipgloss.Color("#f5e0dc")
	colorUser   = lipgloss.Color("#fab387") // Peach (User)
	colorAgent  = lipgloss.Color("#a6e3a1") // Green (Assistant)
	colorAccent = lipgloss.Color("#cba6f7") // Mauve

	colorBorder = lipgloss.Color("#45475a")
	colorActive = lipgloss.Color("#f9e2af")

	styleBase = lipgloss.NewStyle().Foreground(mochaText)

	styleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	styleFocusBorder = styleBorder.
				BorderForeground(colorActive)

	styleUserHeader = lipgloss.NewStyle().
			Foreground(colorUser).
			Bold(true).
			MarginTop(1)

	styleAgentHeader = lipgloss.NewStyle().
				Foreground(colorAgent).
				Bold(true).
				MarginTop(1)

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f38ba8")). // Red
			Bold(true)

	styleStatus = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Italic(true)
)

const (
	appName = "AssistantGPT"

	// MsgInvalidKey is shown when the credential prompt is submitted empty.
	MsgInvalidKey = "Please enter a valid API Key."
)

type State int

const (
	StateCredential State = iota
	StateConnecting
	StateReady
	StateThinking
)

// Connector turns a credential into a ready agent. It runs once per entered key.
// A non-empty notice is shown above the conversation.
type Connector func(ctx context.Context, apiKey string) (agent *assistant.Agent, notice string, err error)

// Options configure a Model. Agent and Session are set together when the
// credential was already known at startup; otherwise Connect is required.
type Options struct {
	Agent       *assistant.Agent
	Session     *session.Session
	Connect     Connector
	TurnTimeout time.Duration
	// Notice is shown above the conversation, for example the id of a newly created assistant.
	Notice string
}

type turnError struct {
	after int // history length when the turn failed
	err   error
}

type Model struct {
	agent       *assistant.Agent
	sess        *session.Session
	connect     Connector
	turnTimeout time.Duration
	cancelTurn  context.CancelFunc

	keyInput      textinput.Model
	textarea      textarea.Model
	viewport      viewport.Model
	spinner       spinner.Model
	state         State
	statusHistory []string
	turnErrors    []turnError
	notice        string
	info          string

	// Layout
	width  int
	height int
}

func NewModel(opts Options) Model {
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 3 * time.Minute
	}

	ki := textinput.New()
	ki.Placeholder = "sk-..."
	ki.Prompt = "OpenAI API Key: "
	ki.EchoMode = textinput.EchoPassword
	ki.EchoCharacter = '•'
	ki.PromptStyle = lipgloss.NewStyle().Foreground(colorUser)
	ki.TextStyle = lipgloss.NewStyle().Foreground(colorInput)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	m := Model{
		agent:         opts.Agent,
		sess:          opts.Session,
		connect:       opts.Connect,
		turnTimeout:   opts.TurnTimeout,
		info:          opts.Notice,
		keyInput:      ki,
		textarea:      newTextarea(80),
		viewport:      viewport.New(80, 20),
		spinner:       s,
		statusHistory: []string{},
	}

	if m.agent != nil && m.sess != nil {
		m.state = StateReady
	} else {
		m.state = StateCredential
		m.keyInput.Focus()
		m.textarea.Blur()
	}
	m.refreshHistory()
	return m
}

// newTextarea builds a fresh input box. Replacing the box after every
// submission resets its scroll position.
func newTextarea(width int) textarea.Model {
	ta := textarea.New()
	ta.Placeholder = "Ask whether a company's stock is worth buying..."
	ta.Focus()
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.CharLimit = 500

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorSubtext)
	ta.FocusedStyle.Text = lipgloss.NewStyle().Foreground(colorInput)
	ta.SetWidth(width)
	return ta
}

func (m Model) Init() tea.Cmd {
	if m.state == StateCredential {
		return tea.Batch(textinput.Blink, m.spinner.Tick)
	}
	return tea.Batch(textarea.Blink, m.spinner.Tick, listenForUpdates(m.agent.Updates()))
}

// State reports the current interaction state.
func (m Model) State() State {
	return m.state
}

// Session returns the active session, or nil before a credential was accepted.
func (m Model) Session() *session.Session {
	return m.sess
}

type connectedMsg struct {
	key    string
	agent  *assistant.Agent
	notice string
	err    error
}

type agentMsg struct {
	response string
	err      error
}

type statusMsg struct {
	msg string
}

// listenForUpdates waits for one status update. Exactly one listener is armed
// per agent: on start or connect, then again after each update it delivers.
func listenForUpdates(sub <-chan assistant.StatusUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-sub
		if !ok {
			return nil
		}
		return statusMsg{msg: update.Message}
	}
}

func (m Model) connectCmd(key string) tea.Cmd {
	connect := m.connect
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		agent, notice, err := connect(ctx, key)
		return connectedMsg{key: key, agent: agent, notice: notice, err: err}
	}
}

func processInput(ctx context.Context, cancel context.CancelFunc, agent *assistant.Agent, sess *session.Session, input string) tea.Cmd {
	return func() tea.Msg {
		defer cancel()
		resp, err := agent.ProcessMessage(ctx, sess, input)
		return agentMsg{response: resp, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Borders + Status + Input
		viewportHeight := msg.Height - 7
		if viewportHeight < 5 {
			viewportHeight = 5
		}
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = viewportHeight
		m.textarea.SetWidth(m.inputWidth())
		m.keyInput.Width = max(msg.Width-24, 10)
		m.refreshHistory()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.shutdown()
			return m, tea.Quit
		case tea.KeyEnter:
			if msg.Alt {
				break
			}
			switch m.state {
			case StateCredential:
				key := strings.TrimSpace(m.keyInput.Value())
				if key == "" {
					m.notice = MsgInvalidKey
					return m, nil
				}
				if m.connect == nil {
					m.notice = "No connector configured."
					return m, nil
				}
				m.notice = ""
				m.state = StateConnecting
				m.statusHistory = []string{"Connecting to OpenAI..."}
				return m, tea.Batch(m.spinner.Tick, m.connectCmd(key))

			case StateReady:
				input := strings.TrimSpace(m.textarea.Value())
				if input == "" {
					break
				}
				if input == "/new" {
					m.resetSession()
					m.textarea = newTextarea(m.inputWidth())
					return m, nil
				}

				m.state = StateThinking
				m.statusHistory = []string{"Thinking..."}
				m.textarea = newTextarea(m.inputWidth())

				ctx, cancel := context.WithTimeout(context.Background(), m.turnTimeout)
				m.cancelTurn = cancel

				// The user's line shows up before the run finishes.
				pending := m.renderHistory() + "\n" + styleUserHeader.Render("You") + "\n" +
					styleBase.Render(session.EscapeForDisplay(input)) + "\n"
				m.viewport.SetContent(pending)
				m.viewport.GotoBottom()

				cmds = append(cmds, m.spinner.Tick)
				cmds = append(cmds, processInput(ctx, cancel, m.agent, m.sess, input))
				return m, tea.Batch(cmds...)
			}
		}

	case connectedMsg:
		if msg.err != nil {
			logger.Error(msg.err, "Connect failed")
			m.state = StateCredential
			m.notice = fmt.Sprintf("Could not connect: %v", msg.err)
			m.keyInput.Focus()
			return m, nil
		}
		m.agent = msg.agent
		m.sess = session.New(msg.key)
		m.state = StateReady
		m.notice = ""
		m.info = msg.notice
		m.keyInput.Reset()
		m.keyInput.Blur()
		m.textarea = newTextarea(m.inputWidth())
		m.refreshHistory()
		return m, tea.Batch(textarea.Blink, listenForUpdates(m.agent.Updates()))

	case statusMsg:
		// Updates that trail a finished turn are dropped.
		if m.state == StateThinking {
			m.statusHistory = append(m.statusHistory, msg.msg)
			if len(m.statusHistory) > 3 {
				m.statusHistory = m.statusHistory[len(m.statusHistory)-3:]
			}
		}
		if m.agent != nil {
			cmds = append(cmds, listenForUpdates(m.agent.Updates()))
		}

	case agentMsg:
		m.state = StateReady
		m.cancelTurn = nil
		if msg.err != nil {
			m.turnErrors = append(m.turnErrors, turnError{after: len(m.sess.History()), err: msg.err})
		}
		m.refreshHistory()
		m.textarea.Focus()
		return m, nil

	case spinner.TickMsg:
		if m.state == StateThinking || m.state == StateConnecting {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	switch m.state {
	case StateCredential:
		m.keyInput, cmd = m.keyInput.Update(msg)
		cmds = append(cmds, cmd)
	case StateReady:
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) inputWidth() int {
	if m.width == 0 {
		return 80
	}
	return max(m.width-4, 10)
}

// shutdown aborts a running turn and ends the session.
func (m *Model) shutdown() {
	if m.cancelTurn != nil {
		m.cancelTurn()
		m.cancelTurn = nil
	}
	if m.sess != nil {
		m.sess.Close()
	}
}

// resetSession starts a new conversation with the same credential.
func (m *Model) resetSession() {
	key := m.sess.Credential()
	m.sess.Close()
	m.sess = session.New(key)
	m.turnErrors = nil
	m.refreshHistory()
}

func (m *Model) refreshHistory() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// renderHistory draws the session's display history with failed turns
// interleaved where they happened.
func (m Model) renderHistory() string {
	var b strings.Builder
	b.WriteString(styleAgentHeader.Render(appName) + "\n")
	b.WriteString(styleBase.Render("Ask me whether a company's stock is worth buying. Type /new to start over.") + "\n")
	if m.info != "" {
		b.WriteString(styleStatus.Render(m.info) + "\n")
	}

	if m.sess == nil {
		return b.String()
	}

	separator := lipgloss.NewStyle().Foreground(colorBorder).Render(strings.Repeat("─", max(m.width/2, 10)))
	errs := m.turnErrors
	writeErrors := func(upTo int) {
		for len(errs) > 0 && errs[0].after <= upTo {
			b.WriteString("\n" + styleAgentHeader.Render(appName) + "\n")
			b.WriteString(styleError.Render(fmt.Sprintf("Error: %v", errs[0].err)) + "\n\n" + separator + "\n")
			errs = errs[1:]
		}
	}

	for i, msg := range m.sess.Display() {
		writeErrors(i)
		switch msg.Role {
		case session.RoleHuman:
			b.WriteString("\n" + styleUserHeader.Render("You") + "\n")
			b.WriteString(styleBase.Render(msg.Content) + "\n")
		default:
			b.WriteString("\n" + styleAgentHeader.Render(appName) + "\n")
			b.WriteString(styleBase.Render(msg.Content) + "\n\n" + separator + "\n")
		}
	}
	writeErrors(len(m.sess.History()))
	return b.String()
}

func (m Model) View() string {
	chatView := styleBorder.Width(m.width - 2).Height(m.viewport.Height + 2).Render(m.viewport.View())

	var statusStr string
	switch m.state {
	case StateThinking, StateConnecting:
		fullStatus := strings.Join(m.statusHistory, "  ➜  ")
		statusStr = fmt.Sprintf(" %s %s", m.spinner.View(), styleStatus.Render(fullStatus))
	case StateCredential:
		if m.notice != "" {
			statusStr = styleError.Render(" " + m.notice)
		} else {
			statusStr = styleStatus.Render(" Enter your OpenAI API key to start.")
		}
	default:
		statusStr = styleStatus.Render(" Ready.")
	}
	statusView := lipgloss.NewStyle().Width(m.width).PaddingLeft(1).Render(statusStr)

	var inputView string
	if m.state == StateCredential || m.state == StateConnecting {
		inputView = styleFocusBorder.Width(m.width - 2).Render(m.keyInput.View())
	} else {
		prompt := lipgloss.NewStyle().Foreground(colorUser).Render("❯ ")
		inputContent := lipgloss.JoinHorizontal(lipgloss.Top, prompt, m.textarea.View())
		inputView = styleFocusBorder.Width(m.width - 2).Render(inputContent)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		chatView,
		statusView,
		inputView,
	)
}

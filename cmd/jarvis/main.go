package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/muesli/reflow/wordwrap"

	"github.com/PratyushRao/JARVIS/core"
	"github.com/PratyushRao/JARVIS/core/audio/miniaudio"
	"github.com/PratyushRao/JARVIS/core/audio/portaudio"
	"github.com/PratyushRao/JARVIS/core/brain"
	sttjarvis "github.com/PratyushRao/JARVIS/core/speechtotext/jarvis"
	ttsjarvis "github.com/PratyushRao/JARVIS/core/texttospeech/jarvis"
	"github.com/PratyushRao/JARVIS/internal/telemetry"
)

const (
	defaultAPIBase       = "http://127.0.0.1:8000"
	portaudioBufferSize  = 480
	audioBackendDisabled = "none"
	defaultPlaceholder   = "Ask JARVIS anything..."
)

type appConfig struct {
	apiBase      string
	token        string
	voice        string
	audioBackend string
	streamingTTS bool
}

func loadConfig() appConfig {
	_ = godotenv.Load()

	cfg := appConfig{
		apiBase:      envOr("JARVIS_API_BASE", defaultAPIBase),
		token:        os.Getenv("JARVIS_TOKEN"),
		voice:        os.Getenv("JARVIS_VOICE"),
		audioBackend: envOr("JARVIS_AUDIO_BACKEND", "miniaudio"),
		streamingTTS: os.Getenv("JARVIS_TTS_STREAMING") == "true",
	}
	return cfg
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

type audioDevice interface {
	core.AudioInput
	core.AudioOutput
	Close()
}

func openAudioDevice(cfg appConfig) (audioDevice, error) {
	switch cfg.audioBackend {
	case audioBackendDisabled:
		return nil, nil
	case "portaudio":
		client, err := portaudio.NewClient(portaudioBufferSize)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		client, err := miniaudio.NewClient()
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func main() {
	cfg := loadConfig()

	if _, err := telemetry.InitLogger(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}
	shutdownTelemetry, err := telemetry.Init(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize telemetry:", err)
		os.Exit(1)
	}
	defer shutdownTelemetry()

	brainClient := brain.NewClient(cfg.apiBase, brain.WithToken(cfg.token))
	transcriber := sttjarvis.NewTranscriptionClient(cfg.apiBase, sttjarvis.WithToken(cfg.token))

	var synthesizer core.TextToSpeech
	if cfg.streamingTTS {
		synthesizer = ttsjarvis.NewStreamingSynthesisClient(cfg.apiBase, ttsjarvis.WithToken(cfg.token))
	} else {
		synthesizer = ttsjarvis.NewSynthesisClient(cfg.apiBase, ttsjarvis.WithToken(cfg.token))
	}

	device, err := openAudioDevice(cfg)
	if err != nil {
		slog.Warn("audio device unavailable, running text-only", "error", err)
	}

	opts := []core.OrchestratorOption{
		core.WithBrain(brainClient),
		core.WithChatService(brainClient),
		core.WithAgentStatusService(brainClient),
		core.WithSpeechToText(transcriber),
		core.WithTextToSpeech(synthesizer),
	}
	if device != nil {
		opts = append(opts, core.WithAudioInput(device), core.WithAudioOutput(device))
		defer device.Close()
	}
	orchestrator := core.NewOrchestrator(opts...)
	defer orchestrator.Close()

	program := tea.NewProgram(newModel(orchestrator), tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orchestrator.Orchestrate(ctx,
		core.WithMessageAppendedCallback(func(message core.Message) {
			program.Send(transcriptChangedMsg{})
		}),
		core.WithTurnStateCallback(func(state core.TurnState) {
			program.Send(turnStateMsg(state))
		}),
		core.WithAgentStatusCallback(func(connected bool) {
			program.Send(agentStatusMsg(connected))
		}),
		core.WithAuthErrorCallback(func(err *brain.AuthError) {
			program.Send(authErrorMsg{err})
		}),
	)

	if _, err := program.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error running program:", err)
		os.Exit(1)
	}
}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	onlineStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	sidebarStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, true, false, false).PaddingRight(1)
	selectedStyle  = lipgloss.NewStyle().Reverse(true)
)

type transcriptChangedMsg struct{}
type turnStateMsg core.TurnState
type agentStatusMsg bool
type authErrorMsg struct{ err *brain.AuthError }
type chatsLoadedMsg []core.Chat
type errMsg struct{ err error }

type model struct {
	orch *core.Orchestrator

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	chats        []core.Chat
	selectedChat int
	sidebarFocus bool
	renaming     bool
	renameChatID string

	turnState    core.TurnState
	connected    bool
	authRequired bool
	lastErr      error

	width  int
	height int
	ready  bool
}

func newModel(orch *core.Orchestrator) model {
	input := textinput.New()
	input.Placeholder = defaultPlaceholder
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	return model{
		orch:      orch,
		input:     input,
		spin:      spin,
		turnState: core.TurnStateIdle,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.loadChats(true), textinput.Blink)
}

// loadChats refreshes the sidebar; on first load it also selects the first
// chat, or creates one when the server has none.
func (m model) loadChats(selectInitial bool) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		ctx := context.Background()
		chats, err := orch.ListChats(ctx)
		if err != nil {
			return errMsg{err}
		}
		if selectInitial {
			if len(chats) > 0 {
				if err := orch.SelectChat(ctx, chats[0].ID); err != nil {
					return errMsg{err}
				}
			} else {
				if _, err := orch.NewChat(ctx); err != nil {
					return errMsg{err}
				}
				chats = orch.Chats()
			}
		}
		return chatsLoadedMsg(chats)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		viewportHeight := msg.Height - 4
		if !m.ready {
			m.viewport = viewport.New(m.transcriptWidth(), viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.transcriptWidth()
			m.viewport.Height = viewportHeight
		}
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case transcriptChangedMsg:
		m.refreshTranscript()
		m.viewport.GotoBottom()
		return m, nil

	case turnStateMsg:
		m.turnState = core.TurnState(msg)
		return m, nil

	case agentStatusMsg:
		m.connected = bool(msg)
		return m, nil

	case authErrorMsg:
		m.authRequired = true
		m.lastErr = msg.err
		return m, nil

	case chatsLoadedMsg:
		m.chats = msg
		if m.selectedChat >= len(m.chats) {
			m.selectedChat = 0
		}
		m.refreshTranscript()
		return m, nil

	case errMsg:
		m.lastErr = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	if m.sidebarFocus {
		return m, nil
	}
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	orch := m.orch
	m.lastErr = nil

	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "tab":
		m.sidebarFocus = !m.sidebarFocus
		if m.sidebarFocus {
			m.input.Blur()
		} else {
			m.input.Focus()
		}
		return m, nil

	case "ctrl+r":
		if orch.IsRecording() {
			return m, func() tea.Msg {
				if err := orch.StopRecording(); err != nil {
					return errMsg{err}
				}
				return nil
			}
		}
		return m, func() tea.Msg {
			if err := orch.StartRecording(); err != nil {
				return errMsg{err}
			}
			return nil
		}

	case "ctrl+o":
		orch.SetMuted(!orch.Muted())
		return m, nil

	case "ctrl+n":
		return m, func() tea.Msg {
			if _, err := orch.NewChat(context.Background()); err != nil {
				return errMsg{err}
			}
			return chatsLoadedMsg(orch.Chats())
		}
	}

	if m.sidebarFocus {
		switch msg.String() {
		case "up", "k":
			if m.selectedChat > 0 {
				m.selectedChat--
			}
			return m, nil
		case "down", "j":
			if m.selectedChat < len(m.chats)-1 {
				m.selectedChat++
			}
			return m, nil
		case "enter":
			if m.selectedChat < len(m.chats) {
				chatID := m.chats[m.selectedChat].ID
				return m, func() tea.Msg {
					if err := orch.SelectChat(context.Background(), chatID); err != nil {
						return errMsg{err}
					}
					return transcriptChangedMsg{}
				}
			}
			return m, nil
		case "d":
			if m.selectedChat < len(m.chats) {
				chatID := m.chats[m.selectedChat].ID
				return m, func() tea.Msg {
					ctx := context.Background()
					wasActive := orch.ActiveChatID() == chatID
					if err := orch.DeleteChat(ctx, chatID); err != nil {
						return errMsg{err}
					}
					if wasActive {
						if _, err := orch.NewChat(ctx); err != nil {
							return errMsg{err}
						}
					}
					return chatsLoadedMsg(orch.Chats())
				}
			}
			return m, nil
		case "r":
			if m.selectedChat < len(m.chats) {
				chat := m.chats[m.selectedChat]
				m.renaming = true
				m.renameChatID = chat.ID
				m.sidebarFocus = false
				m.input.SetValue(chat.Name)
				m.input.Placeholder = "New chat name..."
				m.input.Focus()
				m.input.CursorEnd()
			}
			return m, nil
		}
		return m, nil
	}

	if msg.String() == "enter" {
		text := m.input.Value()
		m.input.Reset()
		if m.renaming {
			chatID := m.renameChatID
			m.renaming = false
			m.input.Placeholder = defaultPlaceholder
			// An empty name cancels the rename.
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			return m, func() tea.Msg {
				if err := orch.RenameChat(context.Background(), chatID, text); err != nil {
					return errMsg{err}
				}
				return chatsLoadedMsg(orch.Chats())
			}
		}
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		return m, func() tea.Msg {
			if err := orch.SubmitText(text); err != nil {
				return errMsg{err}
			}
			return nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) transcriptWidth() int {
	width := m.width - m.sidebarWidth() - 2
	if width < 20 {
		width = 20
	}
	return width
}

func (m *model) sidebarWidth() int {
	if m.width < 60 {
		return 0
	}
	return 24
}

func (m *model) refreshTranscript() {
	if !m.ready {
		return
	}

	var b strings.Builder
	for _, message := range m.orch.Messages() {
		label := assistantStyle.Render("JARVIS")
		if message.Sender == core.SenderUser {
			label = userStyle.Render("You")
		}
		b.WriteString(label + "\n")
		b.WriteString(wordwrap.String(message.Text, m.viewport.Width) + "\n\n")
	}
	m.viewport.SetContent(b.String())
}

func (m model) statusLine() string {
	status := onlineStyle.Render("● online")
	if !m.connected {
		status = offlineStyle.Render("● offline")
	}

	var turn string
	switch m.turnState {
	case core.TurnStateListening:
		turn = m.spin.View() + " listening"
	case core.TurnStateThinking:
		turn = m.spin.View() + " thinking"
	case core.TurnStateSpeaking:
		turn = m.spin.View() + " speaking"
	default:
		turn = "idle"
	}

	muted := ""
	if m.orch.Muted() {
		muted = " · muted"
	}

	line := fmt.Sprintf("%s · %s%s · tab: chats · ctrl+r: voice · ctrl+o: mute · ctrl+n: new chat", status, turn, muted)
	if m.sidebarFocus {
		line += " · enter: open · r: rename · d: delete"
	}
	if m.authRequired {
		line += " · " + errorStyle.Render("re-authenticate and restart")
	}
	if m.lastErr != nil {
		line += " · " + errorStyle.Render(m.lastErr.Error())
	}
	return statusStyle.Render(line)
}

func (m model) sidebarView() string {
	if m.sidebarWidth() == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Chats") + "\n")
	for i, chat := range m.chats {
		name := chat.Name
		if name == "" {
			name = chat.ID
		}
		if len(name) > 20 {
			name = name[:20]
		}
		marker := "  "
		if chat.ID == m.orch.ActiveChatID() {
			marker = "* "
		}
		line := marker + name
		if m.sidebarFocus && i == m.selectedChat {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return sidebarStyle.Width(m.sidebarWidth()).Height(m.height - 4).Render(b.String())
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), m.viewport.View())
	return lipgloss.JoinVertical(lipgloss.Left,
		main,
		m.input.View(),
		m.statusLine(),
	)
}

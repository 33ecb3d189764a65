package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tgcommands/pkg/bus"
)

type entry struct {
	role       string
	content    string
	messageID  int
	forceReply bool
	buttons    [][]bus.Button
}

// routedMsg reports the router outcome for one submitted input.
type routedMsg struct {
	input   string
	handled bool
	err     error
}

type model struct {
	ctx     context.Context
	session *Session

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	entries   []entry
	width     int
	height    int
	isReady   bool
	isBusy    bool
	lastErr   string
	followLog bool
}

func newModel(ctx context.Context, session *Session) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "/help, a reply, or !button"
	in.Focus()
	in.CharLimit = 0

	return &model{
		ctx:       ctx,
		session:   session,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case botMessageMsg:
		m.entries = append(m.entries, entry{
			role:       "bot",
			content:    typed.message.Text,
			messageID:  typed.message.MessageID,
			forceReply: typed.forceReply,
			buttons:    typed.buttons,
		})
		m.refreshViewport(false)
		return m, nil
	case noticeMsg:
		m.entries = append(m.entries, entry{role: "notice", content: typed.text})
		m.refreshViewport(false)
		return m, nil
	case routedMsg:
		m.isBusy = false
		switch {
		case typed.err != nil:
			m.lastErr = typed.err.Error()
			m.entries = append(m.entries, entry{role: "error", content: typed.err.Error()})
		case !typed.handled:
			m.lastErr = ""
			m.entries = append(m.entries, entry{role: "notice", content: fmt.Sprintf("%q was not handled", typed.input)})
		default:
			m.lastErr = ""
		}
		m.refreshViewport(false)
		return m, nil
	case spinner.TickMsg:
		if !m.isBusy {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.handleViewportKey(typed) {
			return m, nil
		}

		if typed.String() == "enter" {
			return m, m.submit()
		}
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) submit() tea.Cmd {
	if m.isBusy {
		return nil
	}

	input := strings.TrimSpace(m.input.Value())
	if input == "" {
		return nil
	}
	if isExitCommand(input) {
		return tea.Quit
	}

	m.entries = append(m.entries, entry{role: "user", content: input})
	m.input.SetValue("")
	m.isBusy = true
	m.followLog = true
	m.refreshViewport(true)

	return tea.Batch(m.spinner.Tick, submitCmd(m.ctx, m.session, input))
}

func submitCmd(ctx context.Context, session *Session, input string) tea.Cmd {
	return func() tea.Msg {
		handled, err := session.Submit(ctx, input)
		return routedMsg{input: input, handled: handled, err: err}
	}
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("tgcommands console")
	meta := m.theme.headerMeta.Render(fmt.Sprintf("chat:%d · messages:%d", ChatID, len(m.entries)))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send · !data press button · PgUp/PgDn scroll · Ctrl+C/Esc quit")
	if m.isBusy {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s routing...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("last input failed: " + m.lastErr)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render("You")+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := max(8, m.height-10)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.entries))
	for _, item := range m.entries {
		sections = append(sections, m.renderEntry(item))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderEntry(item entry) string {
	switch item.role {
	case "user":
		return lipgloss.JoinVertical(lipgloss.Left,
			m.theme.userTitle.Render("you"),
			m.theme.userBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
		)
	case "bot":
		title := fmt.Sprintf("bot #%d", item.messageID)
		if item.forceReply {
			title += " · reply expected"
		}
		body := strings.TrimSpace(item.content)
		if keyboard := m.renderButtons(item.buttons); keyboard != "" {
			body += "\n\n" + keyboard
		}
		return lipgloss.JoinVertical(lipgloss.Left,
			m.theme.botTitle.Render(title),
			m.theme.botBox.Width(m.viewport.Width).Render(body),
		)
	case "error":
		return lipgloss.JoinVertical(lipgloss.Left,
			m.theme.errorTitle.Render("error"),
			m.theme.errorBox.Width(m.viewport.Width).Render(strings.TrimSpace(item.content)),
		)
	default:
		return m.theme.noticeTitle.Render("note") + m.theme.noticeBox.Render(strings.TrimSpace(item.content))
	}
}

func (m *model) renderButtons(rows [][]bus.Button) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		buttons := make([]string, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, m.theme.button.Render(button.Text+" !"+button.Data))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, buttons...))
	}
	return strings.Join(lines, "\n")
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragserver/internal/domain"
)

// API is the TUI-facing subset of the knowledge-base client.
type API interface {
	Query(question string, topK int) (domain.QueryResult, error)
	Stats() (domain.StatsResult, error)
	Clear() (domain.ClearResult, error)
}

type exchange struct {
	question string
	result   domain.QueryResult
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	api      API
	topK     int
	input    textinput.Model
	viewport viewport.Model
	history  []exchange
	status   string
	ready    bool
}

// New creates a new chat model instance.
func New(api API, topK int, banner string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter (/stats, /clear, ctrl+c to quit)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{api: api, topK: topK, input: ti, viewport: vp, status: banner}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around the answer and input boxes
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header + status + input frame + spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				break
			}
			m.input.SetValue("")
			m = m.handleInput(q)
			m.viewport.SetContent(m.renderHistory())
			m.viewport.GotoBottom()
			return m, nil
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleInput(q string) Model {
	switch q {
	case "/stats":
		stats, err := m.api.Stats()
		if err != nil {
			m.status = "Error: " + err.Error()
		} else {
			m.status = fmt.Sprintf("%d chunks in collection %q", stats.TotalChunks, stats.CollectionName)
		}
		return m
	case "/clear":
		res, err := m.api.Clear()
		if err != nil {
			m.status = "Error: " + err.Error()
		} else {
			m.status = res.Message
			m.history = nil
		}
		return m
	}

	result, err := m.api.Query(q, m.topK)
	if err != nil {
		m.status = "Error: " + err.Error()
		return m
	}
	m.history = append(m.history, exchange{question: q, result: result})
	if result.Status == domain.StatusSuccess {
		m.status = fmt.Sprintf("Answered from %d context chunk(s)", result.ContextUsed)
	} else {
		m.status = result.Message
	}
	return m
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Knowledge Base Chat")
	answers := answerBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + answers + "\n" + input + "\n" + status
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return "No questions asked yet."
	}
	var blocks []string
	for _, ex := range m.history {
		q := questionStyle.Render("Q: " + ex.question)
		var body string
		if ex.result.Status == domain.StatusSuccess {
			body = ex.result.Answer
			if len(ex.result.Sources) > 0 {
				body += "\n" + sourceStyle.Render("Sources: "+strings.Join(ex.result.Sources, ", "))
			}
		} else {
			body = sourceStyle.Render(ex.result.Message)
		}
		blocks = append(blocks, q+"\n"+body)
	}
	return strings.Join(blocks, "\n\n")
}

var (
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

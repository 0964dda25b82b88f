package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"groundrag/internal/document"
	"groundrag/internal/domain"
)

// answerMsg carries a finished query back into Update. seq identifies the
// submission so that answers to abandoned questions can be dropped.
type answerMsg struct {
	seq    int
	query  string
	result domain.QueryResult
	err    error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service  domain.QueryService
	parent   context.Context
	doc      *document.Document
	input    textinput.Model
	viewport viewport.Model

	direct    bool
	seq       int
	cancel    context.CancelFunc
	result    *domain.QueryResult
	passages  []string
	cursor    int
	status    string
	lastQuery string
	ready     bool
}

// New creates a new TUI model. When doc is non-nil the model starts in
// direct mode over it; Tab switches between direct and retrieval mode.
func New(ctx context.Context, service domain.QueryService, doc *document.Document) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		parent:   ctx,
		doc:      doc,
		direct:   doc != nil,
		input:    ti,
		viewport: vp,
		status:   "Ready. Esc cancels a running question.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + mode, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case answerMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.stop()
		if msg.err != nil {
			m.status = "Error: " + describeError(msg.err)
			m.result = nil
			m.passages = nil
		} else {
			res := msg.result
			m.result = &res
			m.passages = res.Passages
			m.cursor = 0
			m.lastQuery = msg.query
			m.status = fmt.Sprintf("Answered %q", msg.query)
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			m.stop()
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.stop()
			m.seq++
			ctx, cancel := context.WithCancel(m.parent)
			m.cancel = cancel
			m.status = fmt.Sprintf("Asking %q...", q)
			return m, m.ask(ctx, m.seq, q)
		case "esc":
			if m.cancel != nil {
				m.stop()
				m.seq++
				m.status = "Canceled."
			}
			return m, nil
		case "tab":
			if m.doc != nil {
				m.direct = !m.direct
				m.status = "Mode: " + m.mode()
			}
			return m, nil
		case "down":
			if len(m.passages) > 0 {
				m.cursor = (m.cursor + 1) % len(m.passages)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.passages) > 0 {
				m.cursor = (m.cursor - 1 + len(m.passages)) % len(m.passages)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask runs the query off the update loop.
func (m Model) ask(ctx context.Context, seq int, q string) tea.Cmd {
	service := m.service
	direct := m.direct
	var text string
	if m.doc != nil {
		text = m.doc.Text
	}
	return func() tea.Msg {
		var (
			res domain.QueryResult
			err error
		)
		if direct {
			res, err = service.RunDirectQuery(ctx, text, q)
		} else {
			res, err = service.RunRetrievalQuery(ctx, q)
		}
		return answerMsg{seq: seq, query: q, result: res, err: err}
	}
}

func (m *Model) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m Model) mode() string {
	if m.direct {
		return "document " + m.doc.Name
	}
	return "retrieval"
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("groundrag")
	mode := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("Mode: " + m.mode())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + mode + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if m.result == nil {
		return "No answer yet."
	}
	var b strings.Builder
	b.WriteString(answerStyle.Render("Answer"))
	b.WriteString("\n")
	b.WriteString(m.result.Answer)
	b.WriteString("\n\n")
	if len(m.result.Sources) > 0 {
		b.WriteString(labelStyle.Render("Sources: "))
		b.WriteString(strings.Join(displaySources(m.result.Sources), ", "))
		b.WriteString("\n\n")
	}
	if len(m.passages) > 0 {
		title := fmt.Sprintf("Context %d/%d", m.cursor+1, len(m.passages))
		if m.cursor < len(m.result.Sources) {
			title += "  " + displaySource(m.result.Sources[m.cursor])
		}
		b.WriteString(labelStyle.Render(title))
		b.WriteString("\n")
		b.WriteString(highlightBestSentence(m.passages[m.cursor], m.lastQuery))
	}
	return b.String()
}

// describeError turns a pipeline failure into a message for the status line.
func describeError(err error) string {
	e, ok := domain.AsError(err)
	if !ok {
		return err.Error()
	}
	switch {
	case errors.Is(e, domain.ErrAdequacy):
		return "no sufficiently relevant passages were found; try rephrasing"
	case errors.Is(e, domain.ErrCanceled):
		return "canceled"
	case errors.Is(e, domain.ErrTimeout):
		return fmt.Sprintf("%s timed out", e.Stage)
	case errors.Is(e, domain.ErrConfiguration):
		return "configuration: " + e.Message
	default:
		return e.Error()
	}
}

func displaySources(sources []string) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = displaySource(s)
	}
	return out
}

func displaySource(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence marks the sentence of text sharing the most words
// with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

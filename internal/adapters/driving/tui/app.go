package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/quarry/internal/core/domain"
)

// styles holds the lipgloss styles for the search view.
type appStyles struct {
	Title    lipgloss.Style
	Prompt   lipgloss.Style
	Result   lipgloss.Style
	Selected lipgloss.Style
	Snippet  lipgloss.Style
	Status   lipgloss.Style
	Error    lipgloss.Style
}

func defaultStyles() appStyles {
	return appStyles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		Prompt:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		Result:   lipgloss.NewStyle().PaddingLeft(2),
		Selected: lipgloss.NewStyle().PaddingLeft(0).Bold(true).Foreground(lipgloss.Color("205")),
		Snippet:  lipgloss.NewStyle().PaddingLeft(6).Foreground(lipgloss.Color("245")),
		Status:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// resultsMsg carries the outcome of an asynchronous query.
type resultsMsg struct {
	query   string
	results []domain.QueryResult
	err     error
}

// searchModes is the cycle order for the mode toggle.
var searchModes = []domain.SearchMode{
	domain.SearchModeHybrid,
	domain.SearchModeKeyword,
	domain.SearchModeVector,
}

// App is the interactive search application. It implements tea.Model.
type App struct {
	ports  *Ports
	ctx    context.Context
	styles appStyles

	input textinput.Model

	mode          domain.SearchMode
	results       []domain.QueryResult
	selectedIndex int
	searching     bool
	searched      bool
	lastQuery     string
	err           error

	width  int
	height int
}

// Ensure App implements tea.Model.
var _ tea.Model = (*App)(nil)

// NewApp creates the search application with the given ports.
func NewApp(ports *Ports) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}

	input := textinput.New()
	input.Placeholder = "Search your documents..."
	input.Focus()
	input.CharLimit = 256

	return &App{
		ports:  ports,
		ctx:    context.Background(),
		styles: defaultStyles(),
		input:  input,
		mode:   domain.SearchModeHybrid,
	}, nil
}

// WithContext sets the context used for queries.
func (a *App) WithContext(ctx context.Context) {
	if ctx != nil {
		a.ctx = ctx
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case resultsMsg:
		// Ignore results for anything but the latest query.
		if msg.query != a.lastQuery {
			return a, nil
		}
		a.searching = false
		a.searched = true
		a.results = msg.results
		a.selectedIndex = 0
		a.err = msg.err
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// handleKey routes key presses.
func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return a, tea.Quit

	case tea.KeyEnter:
		return a, a.search()

	case tea.KeyTab:
		a.mode = nextMode(a.mode)
		return a, nil

	case tea.KeyUp:
		if a.selectedIndex > 0 {
			a.selectedIndex--
		}
		return a, nil

	case tea.KeyDown:
		if a.selectedIndex < len(a.results)-1 {
			a.selectedIndex++
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// search starts an asynchronous query for the current input.
func (a *App) search() tea.Cmd {
	query := strings.TrimSpace(a.input.Value())
	if query == "" {
		return nil
	}

	a.searching = true
	a.lastQuery = query
	a.err = nil

	ctx := a.ctx
	mode := a.mode
	ports := a.ports

	return func() tea.Msg {
		results, err := ports.Query.Query(ctx, query, domain.QueryOptions{Mode: mode})
		return resultsMsg{query: query, results: results, err: err}
	}
}

// nextMode cycles through the search modes.
func nextMode(mode domain.SearchMode) domain.SearchMode {
	for i, m := range searchModes {
		if m == mode {
			return searchModes[(i+1)%len(searchModes)]
		}
	}
	return searchModes[0]
}

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(a.styles.Title.Render("Quarry"))
	b.WriteString("  ")
	b.WriteString(a.styles.Status.Render(fmt.Sprintf("[%s]", a.mode)))
	b.WriteString("\n\n")

	b.WriteString(a.styles.Prompt.Render("> "))
	b.WriteString(a.input.View())
	b.WriteString("\n\n")

	switch {
	case a.err != nil:
		b.WriteString(a.styles.Error.Render("Error: " + a.err.Error()))
		b.WriteString("\n")

	case a.searching:
		b.WriteString(a.styles.Status.Render("Searching..."))
		b.WriteString("\n")

	case a.searched && len(a.results) == 0:
		b.WriteString(a.styles.Status.Render("No results."))
		b.WriteString("\n")

	default:
		a.renderResults(&b)
	}

	b.WriteString("\n")
	b.WriteString(a.styles.Status.Render("enter search · tab mode · ↑/↓ navigate · esc quit"))
	b.WriteString("\n")

	return b.String()
}

// renderResults writes the ranked result list.
func (a *App) renderResults(b *strings.Builder) {
	for i := range a.results {
		r := &a.results[i]
		title := r.Title
		if title == "" {
			title = r.FileName
		}

		line := fmt.Sprintf("%d. %s (%.4f)", i+1, title, r.Score)
		if i == a.selectedIndex {
			b.WriteString(a.styles.Selected.Render("> " + line))
		} else {
			b.WriteString(a.styles.Result.Render(line))
		}
		b.WriteString("\n")

		if r.Snippet != "" {
			b.WriteString(a.styles.Snippet.Render(r.Snippet))
			b.WriteString("\n")
		}
	}
}

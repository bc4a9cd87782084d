// Package tui provides a Bubble Tea terminal user interface for a batch
// run over the configured bookstore accounts.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/handiism/bookshelf-downloader/internal/config"
	"github.com/handiism/bookshelf-downloader/internal/download"
	"github.com/handiism/bookshelf-downloader/internal/storefront"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	accent = lipgloss.Color("#E0A458")
	teal   = lipgloss.Color("#5FA8A0")
	muted  = lipgloss.Color("#7A7F85")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(teal)
	mutedStyle  = lipgloss.NewStyle().Foreground(muted)
	summaryBox  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(teal).Padding(0, 1)

	levelStyles = map[download.ProgressLevel]lipgloss.Style{
		download.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("#D1495B")),
		download.LevelWarning: lipgloss.NewStyle().Foreground(accent),
		download.LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("#8CB369")),
		download.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("#BFD7EA")),
	}
	levelPrefixes = map[download.ProgressLevel]string{
		download.LevelError:   "✗",
		download.LevelWarning: "!",
		download.LevelSuccess: "✓",
		download.LevelInfo:    "›",
	}
)

func levelStyle(l download.ProgressLevel) lipgloss.Style {
	if st, ok := levelStyles[l]; ok {
		return st
	}
	return mutedStyle
}

// maxLogs is how many progress lines stay on screen.
const maxLogs = 10

// State represents the current UI state.
type State int

const (
	StateReady State = iota
	StateRunning
	StateComplete
	StateError
)

// LogEntry represents a log message in the UI.
type LogEntry struct {
	Message string
	Level   download.ProgressLevel
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	state    State
	spinner  spinner.Model
	progress progress.Model
	settings *config.Settings
	logs     []LogEntry
	reports  []*download.Report
	err      error

	// start releases the batch goroutine; cancel stops it.
	start  func()
	cancel context.CancelFunc

	runner *download.Runner

	// Batch progress
	receivedBytes int64
	formats       int32

	verbose bool

	width  int
	height int
}

// NewModel creates a new TUI model. start is called once when the user
// starts the batch and cancel when they abort it.
func NewModel(settings *config.Settings, start func(), cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(accent)

	prog := progress.New(progress.WithGradient("#5FA8A0", "#E0A458"))
	prog.Width = 50

	return Model{
		state:    StateReady,
		spinner:  sp,
		progress: prog,
		settings: settings,
		logs:     make([]LogEntry, 0),
		start:    start,
		cancel:   cancel,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Message types
type (
	// ProgressMsg is sent when download progress updates.
	ProgressMsg struct {
		Event download.ProgressEvent
	}

	// StartedMsg is sent once the batch goroutine has a runner.
	StartedMsg struct {
		Runner *download.Runner
	}

	// AccountDoneMsg is sent after each account.
	AccountDoneMsg struct {
		Report *download.Report
	}

	// BatchDoneMsg is sent when every account has been processed.
	BatchDoneMsg struct {
		Err error
	}

	// TickMsg is for periodic progress updates.
	TickMsg struct{}
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = min(max(msg.Width-20, 20), 80)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "esc":
			if m.state == StateReady {
				m.cancel()
				return m, tea.Quit
			}
			if m.state == StateRunning {
				m.cancel()
				m.state = StateError
				m.err = errors.New("cancelled")
			}

		case "enter":
			if m.state == StateReady && len(m.settings.Accounts) > 0 {
				m.state = StateRunning
				m.start()
				return m, tea.Batch(m.spinner.Tick, m.tickProgress())
			}

		case "v":
			m.verbose = !m.verbose

		case "q":
			if m.state == StateComplete || m.state == StateError {
				return m, tea.Quit
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case ProgressMsg:
		if msg.Event.Level == download.LevelVerbose && !m.verbose {
			return m, nil
		}
		m.logs = append(m.logs, LogEntry{Message: msg.Event.Message, Level: msg.Event.Level})
		if len(m.logs) > maxLogs {
			m.logs = m.logs[len(m.logs)-maxLogs:]
		}

	case StartedMsg:
		m.runner = msg.Runner

	case AccountDoneMsg:
		m.reports = append(m.reports, msg.Report)
		cmds = append(cmds, m.progress.SetPercent(m.percent()))

	case BatchDoneMsg:
		if m.runner != nil {
			m.receivedBytes, m.formats = m.runner.GetProgress()
		}
		switch {
		case m.state == StateError:
			// cancelled; keep the message
		case msg.Err != nil && m.failedAccounts() == len(m.settings.Accounts):
			m.state = StateError
			m.err = msg.Err
		default:
			m.state = StateComplete
		}

	case TickMsg:
		if m.runner != nil && m.state == StateRunning {
			m.receivedBytes, m.formats = m.runner.GetProgress()
		}
		if m.state == StateRunning {
			cmds = append(cmds, m.tickProgress())
		}

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) percent() float64 {
	if len(m.settings.Accounts) == 0 {
		return 0
	}
	return float64(len(m.reports)) / float64(len(m.settings.Accounts))
}

func (m Model) failedAccounts() int {
	n := 0
	for _, r := range m.reports {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// tickProgress returns a command to tick progress updates.
func (m Model) tickProgress() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("📚 Bookshelf Downloader"))
	b.WriteString("\n")

	switch m.state {
	case StateReady:
		b.WriteString(m.viewReady())
	case StateRunning:
		b.WriteString(m.viewRunning())
	case StateComplete:
		b.WriteString(m.viewComplete())
	case StateError:
		b.WriteString(m.viewError())
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(m.helpText()))

	return b.String()
}

func (m Model) viewReady() string {
	if len(m.settings.Accounts) == 0 {
		return levelStyle(download.LevelWarning).Render("No accounts configured. Run `bookshelf-dl init-config` first.") + "\n"
	}

	lines := []string{labelStyle.Render(fmt.Sprintf("Accounts (%d)", len(m.settings.Accounts)))}
	for _, acct := range m.settings.Accounts {
		lines = append(lines, fmt.Sprintf("  %-10s %s", acct.Storefront, acct.DisplayName()))
	}
	verbose := "off"
	if m.verbose {
		verbose = "on"
	}
	lines = append(lines,
		"",
		mutedStyle.Render("books: "+m.settings.BooksDir),
		mutedStyle.Render("verbose: "+verbose),
	)
	return strings.Join(lines, "\n") + "\n"
}

// accountLines marks finished accounts and the one in progress.
func (m Model) accountLines() []string {
	lines := make([]string, 0, len(m.settings.Accounts))
	for i, acct := range m.settings.Accounts {
		mark := mutedStyle.Render("·")
		switch {
		case i < len(m.reports) && m.reports[i].Err != nil:
			mark = levelStyle(download.LevelError).Render("✗")
		case i < len(m.reports):
			mark = levelStyle(download.LevelSuccess).Render("✓")
		case i == len(m.reports) && m.state == StateRunning:
			mark = m.spinner.View()
		}
		lines = append(lines, fmt.Sprintf("%s %s", mark, acct.DisplayName()))
	}
	return lines
}

func (m Model) viewRunning() string {
	var b strings.Builder

	b.WriteString(strings.Join(m.accountLines(), "\n"))
	b.WriteString("\n\n")
	b.WriteString(m.progress.ViewAs(m.percent()))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf("%d formats, %s received", m.formats, download.FormatBytes(m.receivedBytes))))
	b.WriteString("\n\n")
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) viewComplete() string {
	lines := []string{"Batch finished", ""}
	for _, r := range m.reports {
		lines = append(lines, r.Summary())
		for _, link := range r.RejectedLinks {
			lines = append(lines, "  too large, fetch manually: "+link)
		}
	}
	return summaryBox.Render(strings.Join(lines, "\n")) + "\n"
}

func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString(levelStyle(download.LevelError).Render("Stopped"))
	if m.err != nil {
		b.WriteString(": " + m.err.Error())
	}
	b.WriteString("\n\n")
	if len(m.reports) > 0 {
		b.WriteString(strings.Join(m.accountLines(), "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString(m.renderLogs())

	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder
	for _, entry := range m.logs {
		prefix, ok := levelPrefixes[entry.Level]
		if !ok {
			prefix = "·"
		}
		b.WriteString(levelStyle(entry.Level).Render(prefix + " " + entry.Message))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) helpText() string {
	switch m.state {
	case StateReady:
		return "enter start · v verbose · esc quit"
	case StateRunning:
		return "v verbose · esc cancel"
	case StateComplete, StateError:
		return "q quit"
	}
	return ""
}

// Run starts the TUI and the batch side by side. The batch waits until the
// user presses enter; quitting the UI cancels it.
func Run(ctx context.Context, settings *config.Settings, registry *storefront.Registry, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := make(chan struct{})
	var once sync.Once
	start := func() { once.Do(func() { close(started) }) }

	p := tea.NewProgram(NewModel(settings, start, cancel), tea.WithAltScreen())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		_, err := p.Run()
		return err
	})
	g.Go(func() error {
		select {
		case <-started:
		case <-gctx.Done():
			return nil
		}

		runner := download.NewRunner(settings, registry, func(event download.ProgressEvent) {
			p.Send(ProgressMsg{Event: event})
		}, download.WithLogger(logger))
		p.Send(StartedMsg{Runner: runner})

		var errList []error
		for _, acct := range settings.Accounts {
			if gctx.Err() != nil {
				break
			}
			report, err := runner.Run(gctx, acct)
			if err != nil {
				errList = append(errList, fmt.Errorf("%s: %w", acct.DisplayName(), err))
			}
			p.Send(AccountDoneMsg{Report: report})
		}
		p.Send(BatchDoneMsg{Err: errors.Join(errList...)})
		return nil
	})
	return g.Wait()
}

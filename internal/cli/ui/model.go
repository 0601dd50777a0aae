package ui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stackvity/dirhash/internal/cli/hooks"
	"github.com/stackvity/dirhash/pkg/dirhash"
)

// --- Constants ---

const (
	listHeightMargin = 6 // header, progress line, error line, footer and padding
	maxRecentFiles   = 200
	maxProgressWidth = 80
)

const (
	phaseInitializing = "Scanning..."
	phaseHashing      = "Hashing..."
	phaseComplete     = "Complete"
	phaseFailed       = "Failed"
	phaseCancelled    = "Cancelled"
)

// --- Model Struct ---

// Model represents the state of the TUI application.
type Model struct {
	// list shows the most recently hashed files, newest first.
	list list.Model
	// spinner indicates background activity until the run ends.
	spinner spinner.Model
	// progress renders hashed/total as a bar.
	progress progress.Model
	// width and height are the terminal size, updated on WindowSizeMsg.
	width  int
	height int
	// initialized tracks if the model has received initial dimensions.
	initialized bool
	// recent backs the list component, capped at maxRecentFiles.
	recent []listItem
	// summary tracks counts and timing for the current run.
	summary Summary
	// phaseMessage displays the current overall stage of the run.
	phaseMessage string
	// fatalError is set when the run ended with an Error event.
	fatalError string
	// quitting indicates the user asked to exit before the run finished.
	quitting bool
	// done is set once the run reported its terminal event.
	done bool
	// version is shown in the header.
	version string
	// onQuit cancels the run when the user quits early.
	onQuit func()
}

// listItem is one hashed file in the TUI list.
type listItem struct {
	path  string
	index int // completion position, starting at 1
}

// Summary holds the statistics displayed in the TUI footer.
type Summary struct {
	TotalFiles  int
	HashedFiles int
	StartTime   time.Time
	Duration    time.Duration // set when the run finishes
}

// --- Bubble Tea Interface Implementations ---

// Init starts the spinner.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages (user input, hook events) and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	// --- Internal Bubble Tea Messages ---
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(m.width, max(m.height-listHeightMargin, 1))
		m.progress.Width = max(min(m.width-20, maxProgressWidth), 10)
		m.initialized = true

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.done {
				m.quitting = true
				if m.onQuit != nil {
					m.onQuit()
				}
			}
			return m, tea.Quit
		}
		var listCmd tea.Cmd
		m.list, listCmd = m.list.Update(msg)
		cmds = append(cmds, listCmd)

	case spinner.TickMsg:
		if m.quitting || m.done {
			return m, nil
		}
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		cmds = append(cmds, spinnerCmd)

	// --- Custom Messages from Hooks ---
	case hooks.StartedMsg:
		m.summary.TotalFiles = msg.TotalFiles
		m.summary.StartTime = time.Now()
		m.phaseMessage = phaseHashing

	case hooks.ProgressMsg:
		m.summary.HashedFiles = msg.Hashed
		if msg.Total > 0 {
			m.summary.TotalFiles = msg.Total
		}
		m.recent = append([]listItem{{path: msg.Path, index: msg.Hashed}}, m.recent...)
		if len(m.recent) > maxRecentFiles {
			m.recent = m.recent[:maxRecentFiles]
		}
		cmds = append(cmds, m.list.SetItems(m.listItems()))

	case hooks.FinishedMsg:
		m.done = true
		m.summary.Duration = msg.Duration
		switch {
		case msg.Err == nil:
			m.phaseMessage = phaseComplete
			m.summary.HashedFiles = msg.FileCount
		case errors.Is(msg.Err, dirhash.ErrCancelled):
			m.phaseMessage = phaseCancelled
		default:
			m.phaseMessage = phaseFailed
			m.fatalError = fmt.Sprintf("Fatal Error: %s", msg.Err)
		}
		// The final frame stays on screen; the result is printed after it.
		cmds = append(cmds, tea.Quit)
	}

	return m, tea.Batch(cmds...)
}

// View renders the current state of the TUI model.
func (m *Model) View() string {
	if m.quitting {
		return "Cancelling...\n"
	}
	if !m.initialized {
		return phaseInitializing
	}

	// --- Header ---
	headerLeft := fmt.Sprintf("dirhash %s", m.version)
	headerRight := m.phaseMessage
	if !m.done {
		headerRight = m.spinner.View() + " " + m.phaseMessage
	}
	header := HeaderStyle.Width(m.width).Render(spread(m.width-2, headerLeft, headerRight))

	// --- Progress ---
	progressLine := fmt.Sprintf("%s  %d/%d", m.progress.ViewAs(m.percent()), m.summary.HashedFiles, m.summary.TotalFiles)

	// --- Fatal Error Display ---
	errorView := ""
	if m.fatalError != "" {
		errorView = StatusStyleFailed.Render(m.fatalError)
	}

	// --- Footer ---
	footerLeft := fmt.Sprintf("Hashed: %d of %d | Elapsed: %s", m.summary.HashedFiles, m.summary.TotalFiles, m.elapsed())
	footer := FooterStyle.Width(m.width).Render(spread(m.width-2, footerLeft, "q: quit"))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		ProgressStyle.Render(progressLine),
		m.list.View(),
		errorView,
		footer,
	)
}

// --- Helper Methods ---

// NewModel creates the initial model for the TUI. onQuit is called when the
// user quits before the run finishes; it may be nil.
func NewModel(version string, onQuit func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorAccent)

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	delegate.ShowDescription = false
	delegate.Styles.NormalTitle = delegate.Styles.NormalTitle.Foreground(ColorNormalFg).Padding(0, 0, 0, 1)
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorSelectedFg).
		Background(ColorSelectedBg).
		Bold(true).
		Padding(0, 0, 0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	return Model{
		list:         l,
		spinner:      s,
		progress:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		summary:      Summary{StartTime: time.Now()},
		phaseMessage: phaseInitializing,
		recent:       make([]listItem, 0, maxRecentFiles),
		version:      version,
		onQuit:       onQuit,
	}
}

func (m *Model) listItems() []list.Item {
	items := make([]list.Item, len(m.recent))
	for i, item := range m.recent {
		items[i] = item
	}
	return items
}

func (m *Model) percent() float64 {
	if m.summary.TotalFiles == 0 {
		if m.done && m.fatalError == "" {
			return 1
		}
		return 0
	}
	return float64(m.summary.HashedFiles) / float64(m.summary.TotalFiles)
}

func (m *Model) elapsed() string {
	if m.done {
		return formatDuration(m.summary.Duration)
	}
	return formatDuration(time.Since(m.summary.StartTime))
}

// spread places left and right at opposite ends of a line of the given width.
func spread(width int, left, right string) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.PlaceHorizontal(gap, lipgloss.Center, " "), right)
}

// --- List Item Interface ---

// FilterValue implements the list.Item interface.
func (i listItem) FilterValue() string { return i.path }

// Title implements the list.Item interface.
func (i listItem) Title() string {
	return fmt.Sprintf("%s %s", StatusStyleSuccess.Render(fmt.Sprintf("[%d]", i.index)), i.path)
}

// Description implements the list.Item interface.
func (i listItem) Description() string { return "" }

// formatDuration formats duration for display.
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// --- Styles ---

const (
	ColorHeaderFg = lipgloss.Color("252") // Light Gray
	ColorHeaderBg = lipgloss.Color("62")  // Purple

	ColorFooterFg = lipgloss.Color("252")
	ColorFooterBg = lipgloss.Color("56")

	ColorNormalFg   = lipgloss.Color("250")
	ColorSelectedFg = lipgloss.Color("255")
	ColorSelectedBg = lipgloss.Color("56")

	ColorAccent        = lipgloss.Color("205") // Pink, spinner
	ColorStatusSuccess = lipgloss.Color("40")  // Green
	ColorStatusFailed  = lipgloss.Color("196") // Red
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorHeaderFg).
			Background(ColorHeaderBg).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorFooterFg).
			Background(ColorFooterBg).
			Padding(0, 1)

	ProgressStyle = lipgloss.NewStyle().Padding(1, 1, 0, 1)

	StatusStyleSuccess = lipgloss.NewStyle().Foreground(ColorStatusSuccess)
	StatusStyleFailed  = lipgloss.NewStyle().Foreground(ColorStatusFailed).Bold(true).Padding(0, 1)
)

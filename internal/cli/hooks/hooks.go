// Package hooks routes the events of a hashing run to whichever display the
// CLI selected: the Bubble Tea TUI, a progress bar, or log lines.
package hooks

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stackvity/dirhash/pkg/dirhash"
)

// --- TUI Message Structs ---

// StartedMsg signals that enumeration finished and hashing begins.
type StartedMsg struct{ TotalFiles int }

// ProgressMsg signals that one more file was hashed.
type ProgressMsg struct {
	Path   string
	Hashed int
	Total  int
}

// FinishedMsg signals the end of the run. Err is nil on success.
type FinishedMsg struct {
	FileCount int
	Err       error
	Duration  time.Duration
}

// --- Hook Implementation ---

// CLIHooks bridges library events to the CLI's UI layer (TUI, logger, progress bar).
type CLIHooks struct {
	logger         *slog.Logger
	tuiEnabled     bool
	verboseEnabled bool
	tuiProgram     TUIProgram
	progressBar    ProgressBar // nil in log mode
	out            io.Writer   // where the progress bar draws
	mu             sync.Mutex
	total          int
	startTime      time.Time
}

// TUIProgram defines the interface needed to interact with the Bubble Tea program.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// ProgressBar defines the interface needed to interact with the progress bar.
// *progressbar.ProgressBar satisfies it.
type ProgressBar interface {
	ChangeMax(max int)
	Add(num int) error
	Describe(description string)
	Finish() error
	Close() error
}

// --- No-Op Implementations for Decoupling ---

// NoOpTUIProgram provides a default null implementation.
type NoOpTUIProgram struct{}

// Send implements TUIProgram.
func (n *NoOpTUIProgram) Send(msg tea.Msg) {}

// --- Constructor ---

// NewCLIHooks creates a new CLIHooks instance. Pass nil for tuiProg or progBar
// if not applicable.
func NewCLIHooks(logger *slog.Logger, tuiEnabled, verboseEnabled bool, tuiProg TUIProgram, progBar ProgressBar) *CLIHooks {
	if tuiProg == nil {
		tuiProg = &NoOpTUIProgram{}
	}
	return &CLIHooks{
		logger:         logger.With(slog.String("component", "hooks")),
		tuiEnabled:     tuiEnabled,
		verboseEnabled: verboseEnabled,
		tuiProgram:     tuiProg,
		progressBar:    progBar,
		out:            os.Stderr,
		startTime:      time.Now(),
	}
}

// Handle presents a single event. It is safe for concurrent use.
func (h *CLIHooks) Handle(ev dirhash.WorkStatus) {
	switch e := ev.(type) {
	case dirhash.Started:
		h.onStarted(e)
	case dirhash.Progress:
		h.onProgress(e)
	case dirhash.Result:
		h.onFinished(len(e.Hashes), nil)
	case dirhash.Error:
		h.onFinished(0, e.Cause)
	}
}

// Cancelled closes the display after a run that ended without a terminal event.
func (h *CLIHooks) Cancelled() {
	h.onFinished(0, dirhash.ErrCancelled)
}

func (h *CLIHooks) onStarted(e dirhash.Started) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.total = e.TotalFiles
	h.startTime = time.Now()

	if h.tuiEnabled {
		h.tuiProgram.Send(StartedMsg{TotalFiles: e.TotalFiles})
		return
	}
	if h.progressBar != nil && !h.verboseEnabled {
		h.progressBar.ChangeMax(e.TotalFiles)
		h.progressBar.Describe("Hashing")
		return
	}
	h.logger.Info("Hashing started", slog.Int("files", e.TotalFiles))
}

func (h *CLIHooks) onProgress(e dirhash.Progress) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.tuiEnabled {
		h.tuiProgram.Send(ProgressMsg{Path: e.CurrentFile, Hashed: e.TotalHashedFiles, Total: h.total})
		return
	}
	if h.verboseEnabled {
		h.logger.Debug("File hashed",
			slog.String("path", e.CurrentFile),
			slog.Int("hashed", e.TotalHashedFiles),
			slog.Int("total", h.total),
		)
		return
	}
	if h.progressBar != nil {
		_ = h.progressBar.Add(1)
	}
}

func (h *CLIHooks) onFinished(count int, cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	elapsed := time.Since(h.startTime)

	if h.tuiEnabled {
		h.tuiProgram.Send(FinishedMsg{FileCount: count, Err: cause, Duration: elapsed})
		return
	}

	if h.progressBar != nil && !h.verboseEnabled {
		if cause == nil {
			_ = h.progressBar.Finish()
		}
		_ = h.progressBar.Close()
		// Keep the shell prompt off the bar's line.
		_, _ = fmt.Fprintln(h.out)
	}

	switch {
	case cause == nil:
		h.logger.Info("Hashing complete", slog.Int("files", count), slog.Duration("duration", elapsed.Round(time.Millisecond)))
	case errors.Is(cause, dirhash.ErrCancelled):
		h.logger.Warn("Hashing cancelled", slog.Duration("duration", elapsed.Round(time.Millisecond)))
	default:
		h.logger.Error("Hashing failed", slog.String("error", cause.Error()))
	}
}

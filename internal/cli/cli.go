package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/stackvity/dirhash/internal/cli/config"
	"github.com/stackvity/dirhash/internal/cli/hooks"
	"github.com/stackvity/dirhash/internal/cli/output"
	"github.com/stackvity/dirhash/internal/cli/ui"
	"github.com/stackvity/dirhash/pkg/dirhash"
)

// DisplayMode is how progress is shown while hashing.
type DisplayMode int

const (
	DisplayLog DisplayMode = iota
	DisplayProgressBar
	DisplayTUI
)

func (d DisplayMode) String() string {
	switch d {
	case DisplayTUI:
		return "tui"
	case DisplayProgressBar:
		return "progressbar"
	default:
		return "log"
	}
}

// isTerminal reports whether stderr is attached to a terminal. Tests replace it.
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// SelectDisplayMode picks the TUI for interactive, non-verbose runs, a plain
// progress bar when the TUI is disabled, and log lines otherwise.
func SelectDisplayMode(s config.Settings, tty bool) DisplayMode {
	switch {
	case !tty || s.Verbose:
		return DisplayLog
	case s.TuiEnabled:
		return DisplayTUI
	default:
		return DisplayProgressBar
	}
}

// Run hashes s.RootPath, presents progress, and writes the result to out.
// The cause of a terminal Error event is returned as is.
func Run(ctx context.Context, s config.Settings, logger *slog.Logger, out io.Writer) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	engine, err := dirhash.NewEngine(s.Options)
	if err != nil {
		logger.Error("Invalid hashing options", slog.String("error", err.Error()))
		return err
	}

	mode := SelectDisplayMode(s, isTerminal())
	logger.Debug("Display mode selected", slog.String("mode", mode.String()))

	var (
		tuiProgram  *tea.Program
		programDone chan error
		bar         hooks.ProgressBar
		h           *hooks.CLIHooks
	)
	switch mode {
	case DisplayTUI:
		model := ui.NewModel(s.AppVersion, cancelRun)
		tuiProgram = tea.NewProgram(&model, tea.WithOutput(os.Stderr), tea.WithContext(ctx))
		programDone = make(chan error, 1)
		go func() {
			_, runErr := tuiProgram.Run()
			programDone <- runErr
		}()
		h = hooks.NewCLIHooks(logger, true, false, tuiProgram, nil)
	case DisplayProgressBar:
		bar = newProgressBar(os.Stderr)
		h = hooks.NewCLIHooks(logger, false, false, nil, bar)
	default:
		h = hooks.NewCLIHooks(logger, false, s.Verbose, nil, nil)
	}

	var (
		hashes   map[string]string
		runErr   error
		terminal bool
	)
	for ev := range engine.Stream(runCtx) {
		h.Handle(ev)
		switch e := ev.(type) {
		case dirhash.Result:
			hashes, terminal = e.Hashes, true
		case dirhash.Error:
			runErr, terminal = e.Cause, true
		}
	}
	if !terminal {
		h.Cancelled()
		runErr = dirhash.ErrCancelled
		if ctxErr := runCtx.Err(); ctxErr != nil {
			runErr = fmt.Errorf("%w: %w", dirhash.ErrCancelled, ctxErr)
		}
	}

	if programDone != nil {
		if tuiErr := <-programDone; tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
			logger.Warn("Terminal UI exited with error", slog.String("error", tuiErr.Error()))
		}
	}

	if runErr != nil {
		return runErr
	}

	manifest := output.NewManifest(engine.RootPath(), string(engine.Algorithm()), hashes)
	if err := output.Write(out, s.OutputFormat, manifest); err != nil {
		logger.Error("Failed to write result", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func newProgressBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Scanning"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

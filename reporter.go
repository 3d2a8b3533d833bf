package unpackr

/* User-facing event stream. The library narrates its work through this
   interface; the console implementation renders colored lines with a
   spinner for long attempts, the default swallows everything. Operational
   detail goes through Logger instead. */

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// Reporter receives extraction lifecycle events. The orchestrator fires
// events from a single goroutine.
type Reporter interface {
	// Classified fires once per input file after type detection.
	Classified(cls *Classification)
	// Uncloaked fires when a disguised archive was renamed to its real name.
	Uncloaked(oldPath, newPath string)
	// GroupsReady fires after grouping, before any extraction starts.
	GroupsReady(groups []Group)
	// AttemptStarted fires per password attempt with the password masked.
	AttemptStarted(archive, maskedPassword string, attempt int)
	// AttemptDone fires with the classified outcome of an attempt.
	AttemptDone(archive string, outcome Outcome, attempt int)
	// ArchiveExtracted fires after a successful extraction.
	ArchiveExtracted(archive, outputDir string, fileCount int)
	// ArchiveFailed fires when an archive is given up on.
	ArchiveFailed(archive string, err error)
	// CleanedUp fires after consumed archives were trashed or deleted.
	CleanedUp(paths []string)
	// Warn carries non-fatal trouble worth showing.
	Warn(format string, v ...any)
	// PauseInput suspends live rendering while a prompt owns the terminal.
	PauseInput()
	// ResumeInput restarts live rendering after a prompt returns.
	ResumeInput()
}

// NopReporter gives you a Reporter that discards every event.
func NopReporter() Reporter { return &antiReporter{} }

type antiReporter struct{}

func (*antiReporter) Classified(*Classification)           {}
func (*antiReporter) Uncloaked(string, string)             {}
func (*antiReporter) GroupsReady([]Group)                  {}
func (*antiReporter) AttemptStarted(string, string, int)   {}
func (*antiReporter) AttemptDone(string, Outcome, int)     {}
func (*antiReporter) ArchiveExtracted(string, string, int) {}
func (*antiReporter) ArchiveFailed(string, error)          {}
func (*antiReporter) CleanedUp([]string)                   {}
func (*antiReporter) Warn(string, ...any)                  {}
func (*antiReporter) PauseInput()                          {}
func (*antiReporter) ResumeInput()                         {}

// MaskPassword renders a password safe for logs and console output. Short
// passwords mask entirely; longer ones keep the first and last rune.
func MaskPassword(password string) string {
	const revealAbove = 4

	runes := []rune(password)

	switch {
	case len(runes) == 0:
		return "(none)"
	case len(runes) <= revealAbove:
		return strings.Repeat("*", len(runes))
	default:
		return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
	}
}

// ConsoleReporter renders events as colored terminal lines, spinning while
// an attempt runs.
type ConsoleReporter struct {
	// Out receives all rendered output. Defaults to os.Stdout.
	Out io.Writer
	// Quiet drops everything except failures and warnings.
	Quiet bool

	mu          sync.Mutex
	spinner     *progressbar.ProgressBar
	spinnerStop chan struct{}
	paused      bool
}

var _ Reporter = (*ConsoleReporter)(nil)

// Console colors, one per event family.
//
//nolint:gochecknoglobals
var (
	colorFile    = color.New(color.FgCyan)
	colorOK      = color.New(color.FgGreen)
	colorFail    = color.New(color.FgRed)
	colorWarn    = color.New(color.FgYellow)
	colorDim     = color.New(color.Faint)
	colorAttempt = color.New(color.FgMagenta)
)

// NewConsoleReporter returns a reporter writing to out, or os.Stdout when
// out is nil.
func NewConsoleReporter(out io.Writer, quiet bool) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}

	return &ConsoleReporter{Out: out, Quiet: quiet}
}

func (c *ConsoleReporter) Classified(cls *Classification) {
	if c.Quiet || cls == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kind := cls.Type
	if kind == "" {
		kind = "unknown"
	}

	c.println(colorDim.Sprintf("  %s: %s (%s)", kind, cls.Path, cls.Method))
}

func (c *ConsoleReporter) Uncloaked(oldPath, newPath string) {
	if c.Quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.println(colorFile.Sprintf("Uncloaked: %s -> %s", oldPath, newPath))
}

func (c *ConsoleReporter) GroupsReady(groups []Group) {
	if c.Quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, group := range groups {
		label := ""

		switch {
		case group.Multipart && group.PossiblyIncomplete:
			label = " [multi-part, possibly incomplete]"
		case group.Multipart:
			label = " [multi-part]"
		}

		c.println(colorFile.Sprintf("Group %s: %d file(s)%s", group.Key, len(group.Files), label))
	}
}

func (c *ConsoleReporter) AttemptStarted(archive, maskedPassword string, attempt int) {
	if c.Quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopSpinner()

	if c.paused {
		return
	}

	c.spinner = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(c.Out),
		progressbar.OptionSetDescription(
			colorAttempt.Sprintf("Extracting %s (attempt %d, password %s)",
				shortPath(archive), attempt, maskedPassword)),
		progressbar.OptionSpinnerType(14), //nolint:mnd
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
	c.spinnerStop = make(chan struct{})

	go c.spin(c.spinner, c.spinnerStop)
}

// spin advances one spinner until its stop channel closes.
func (c *ConsoleReporter) spin(spinner *progressbar.ProgressBar, stop chan struct{}) {
	const tick = 120 * time.Millisecond

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.spinner == spinner && !c.paused {
				_ = spinner.Add(1)
			}
			c.mu.Unlock()
		}
	}
}

func (c *ConsoleReporter) AttemptDone(archive string, outcome Outcome, attempt int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopSpinner()

	if c.Quiet || outcome == OutcomeSuccess {
		return // success renders through ArchiveExtracted.
	}

	c.println(colorDim.Sprintf("  attempt %d on %s: %s", attempt, shortPath(archive), outcome))
}

func (c *ConsoleReporter) ArchiveExtracted(archive, outputDir string, fileCount int) {
	if c.Quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopSpinner()
	c.println(colorOK.Sprintf("Extracted %s -> %s (%d files)", shortPath(archive), outputDir, fileCount))
}

func (c *ConsoleReporter) ArchiveFailed(archive string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopSpinner()
	c.println(colorFail.Sprintf("Failed %s: %v", shortPath(archive), err))
}

func (c *ConsoleReporter) CleanedUp(paths []string) {
	if c.Quiet || len(paths) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.println(colorDim.Sprintf("Cleaned up %d consumed archive(s)", len(paths)))
}

func (c *ConsoleReporter) Warn(format string, v ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopSpinner()
	c.println(colorWarn.Sprintf("Warning: "+format, v...))
}

// PauseInput stops the spinner so a prompt can own the terminal.
func (c *ConsoleReporter) PauseInput() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopSpinner()
	c.paused = true
}

// ResumeInput lets rendering start again after a prompt.
func (c *ConsoleReporter) ResumeInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// println writes one rendered line. Callers hold the mutex.
func (c *ConsoleReporter) println(line string) {
	fmt.Fprintln(c.Out, line)
}

// stopSpinner clears any live spinner. Callers hold the mutex.
func (c *ConsoleReporter) stopSpinner() {
	if c.spinnerStop != nil {
		close(c.spinnerStop)
		c.spinnerStop = nil
	}

	if c.spinner != nil {
		_ = c.spinner.Finish()
		c.spinner = nil
	}
}

// shortPath trims long paths down to their last two elements for display.
func shortPath(path string) string {
	const keep = 2

	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	if len(parts) <= keep {
		return path
	}

	return "…/" + strings.Join(parts[len(parts)-keep:], "/")
}

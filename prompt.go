package unpackr

/* Interactive password prompting. The trial engine falls back to a
   Prompter once every known password has failed against an archive that
   looks encrypted. The terminal implementation reads stdin; the default
   never asks and always skips. */

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// PromptAction is what the user decided when asked for a password.
type PromptAction int

const (
	// PromptUse means a password was entered and should be tried.
	PromptUse PromptAction = iota
	// PromptSkip means give up on this archive and move on.
	PromptSkip
	// PromptSkipAll means stop asking for the rest of the run.
	PromptSkipAll
)

func (p PromptAction) String() string {
	switch p {
	case PromptUse:
		return "use"
	case PromptSkip:
		return "skip"
	case PromptSkipAll:
		return "skip-all"
	}

	return "unknown"
}

// Prompter supplies passwords the registry does not have. Implementations
// block until the user answers, so callers should not hold locks.
type Prompter interface {
	// AskPassword requests a password for archive. The action tells the
	// caller whether to try the returned password, skip the archive, or
	// stop prompting for the rest of the run.
	AskPassword(archive string) (string, PromptAction, error)
	// ConfirmRetry asks whether to ask again after an entered password
	// also failed.
	ConfirmRetry(archive string) bool
}

// NopPrompter gives you a Prompter that never asks and always skips.
func NopPrompter() Prompter { return &antiPrompter{} }

type antiPrompter struct{}

func (*antiPrompter) AskPassword(string) (string, PromptAction, error) { return "", PromptSkip, nil }
func (*antiPrompter) ConfirmRetry(string) bool                         { return false }

// TerminalPrompter asks on an interactive terminal. Prompts pause the
// reporter's live output so the question is not overdrawn by a spinner.
type TerminalPrompter struct {
	out      io.Writer
	reader   *bufio.Reader
	reporter Reporter
}

var _ Prompter = (*TerminalPrompter)(nil)

// NewTerminalPrompter returns a Prompter reading from in and writing to
// out. Nil in or out default to os.Stdin and os.Stderr. A nil reporter is
// replaced with a no-op one.
func NewTerminalPrompter(in io.Reader, out io.Writer, reporter Reporter) *TerminalPrompter {
	if in == nil {
		in = os.Stdin
	}

	if out == nil {
		out = os.Stderr
	}

	if reporter == nil {
		reporter = NopReporter()
	}

	return &TerminalPrompter{out: out, reader: bufio.NewReader(in), reporter: reporter}
}

// AskPassword prompts for a password. A blank line skips the archive and
// a lone "!" stops all further prompting.
func (t *TerminalPrompter) AskPassword(archive string) (string, PromptAction, error) {
	t.reporter.PauseInput()
	defer t.reporter.ResumeInput()

	fmt.Fprintf(t.out, "Password needed for %s\n", archive)
	fmt.Fprint(t.out, "Enter password (blank = skip, ! = skip all): ")

	line, err := t.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", PromptSkip, fmt.Errorf("reading password: %w", err)
	}

	line = strings.TrimRight(line, "\r\n")

	switch line {
	case "":
		return "", PromptSkip, nil
	case "!":
		return "", PromptSkipAll, nil
	}

	return line, PromptUse, nil
}

// ConfirmRetry asks whether to prompt again after an entered password
// failed too. Anything but y or yes declines.
func (t *TerminalPrompter) ConfirmRetry(archive string) bool {
	t.reporter.PauseInput()
	defer t.reporter.ResumeInput()

	fmt.Fprintf(t.out, "Password rejected for %s. Try another? [y/N]: ", archive)

	line, err := t.reader.ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	line = strings.ToLower(strings.TrimSpace(line))

	return line == "y" || line == "yes"
}

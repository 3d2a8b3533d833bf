package unpackr

/* Password trials: drive one archive through empty-password, known
   passwords and an optional interactive prompt, classifying every backend
   outcome on the way. Structural failures stop the machine early since no
   password fixes a damaged archive. */

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// TrialState is where the password machine currently is for one archive.
type TrialState int

const (
	// StateNoPassword tries the archive without any password first.
	StateNoPassword TrialState = iota
	// StateTryKnownPasswords walks the registry in order.
	StateTryKnownPasswords
	// StateMaybePromptUser asks the user, when the evidence warrants it.
	StateMaybePromptUser
	// StateDone ends the machine.
	StateDone
)

func (s TrialState) String() string {
	switch s {
	case StateNoPassword:
		return "no-password"
	case StateTryKnownPasswords:
		return "known-passwords"
	case StateMaybePromptUser:
		return "prompt-user"
	case StateDone:
		return "done"
	}

	return "unknown"
}

// TrialResult is the final verdict for one archive.
type TrialResult struct {
	// Outcome of the last meaningful attempt.
	Outcome Outcome
	// Password that worked. Empty when none did or none was needed.
	Password string
	// UserProvided is true when the working password came from a prompt.
	UserProvided bool
	// Attempts counts backend invocations, including sanitized retries.
	Attempts int
	// Message is a short human-readable summary of how the trial ended.
	Message string
	// SanitizedFallback is true when extraction went through a scratch dir
	// because the real output path was rejected.
	SanitizedFallback bool
}

// TrialConfig wires a TrialEngine. Backend is required; everything else
// has a working default.
type TrialConfig struct {
	Backend  Backend
	Registry *PasswordRegistry
	Prompter Prompter
	Reporter Reporter
	Logger   Logger
	// Timeout bounds each attempt. Zero means no per-attempt bound.
	Timeout time.Duration
	// Overwrite lets extraction replace existing files.
	Overwrite bool
	FileMode  os.FileMode
	DirMode   os.FileMode
}

// TrialEngine runs password trials for one archive at a time. The engine
// remembers a "skip all prompts" answer across archives.
type TrialEngine struct {
	backend  Backend
	registry *PasswordRegistry
	prompter Prompter
	reporter Reporter
	log      Logger
	timeout  time.Duration
	over     bool
	fileMode os.FileMode
	dirMode  os.FileMode
	skipAll  bool
}

// NewTrialEngine returns a TrialEngine for the given config.
func NewTrialEngine(config TrialConfig) *TrialEngine {
	engine := &TrialEngine{
		backend:  config.Backend,
		registry: config.Registry,
		prompter: config.Prompter,
		reporter: config.Reporter,
		log:      config.Logger,
		timeout:  config.Timeout,
		over:     config.Overwrite,
		fileMode: config.FileMode,
		dirMode:  config.DirMode,
	}

	if engine.registry == nil {
		engine.registry = NewPasswordRegistry()
	}

	if engine.prompter == nil {
		engine.prompter = NopPrompter()
	}

	if engine.reporter == nil {
		engine.reporter = NopReporter()
	}

	if engine.log == nil {
		engine.log = NoLogger()
	}

	if engine.fileMode == 0 {
		engine.fileMode = DefaultFileMode
	}

	if engine.dirMode == 0 {
		engine.dirMode = DefaultDirMode
	}

	return engine
}

// trial is the per-archive state of one Run.
type trial struct {
	archive     string
	realOut     string
	scratchOut  string
	password    string
	userGave    bool
	attempts    int
	sawPassword bool
	lastOutcome Outcome
	lastMessage string
}

// outDir is where attempts extract to: the scratch dir once the sanitized
// fallback is active, the real output dir before that.
func (tr *trial) outDir() string {
	if tr.scratchOut != "" {
		return tr.scratchOut
	}

	return tr.realOut
}

// Run drives the machine for one archive. With N known passwords, none
// correct and prompting declined, the backend is invoked exactly N+1
// times: once empty, once per registry entry.
func (e *TrialEngine) Run(ctx context.Context, archive, outDir string) TrialResult {
	tr := &trial{archive: archive, realOut: outDir}

	if err := ctx.Err(); err != nil {
		return TrialResult{Outcome: OutcomeGeneric, Message: err.Error()}
	}

	for state := StateNoPassword; state != StateDone; {
		if ctx.Err() != nil {
			break
		}

		switch state {
		case StateNoPassword:
			state = e.tryEmpty(ctx, tr)
		case StateTryKnownPasswords:
			state = e.tryKnown(ctx, tr)
		case StateMaybePromptUser:
			state = e.promptUser(ctx, tr)
		case StateDone:
		}
	}

	return e.finish(tr)
}

// tryEmpty is the NoPassword state: one attempt with no password at all.
// The registry never holds the empty password, so it is not retried later.
func (e *TrialEngine) tryEmpty(ctx context.Context, tr *trial) TrialState {
	outcome, timedOut := e.attempt(ctx, tr, "")

	switch {
	case timedOut:
		return StateTryKnownPasswords
	case outcome == OutcomeSuccess:
		return StateDone
	case outcome == OutcomeWrongPassword:
		tr.sawPassword = true
		return StateTryKnownPasswords
	default:
		return StateDone
	}
}

// tryKnown walks the registry in insertion order. Wrong passwords and
// timeouts move on to the next entry; anything structural stops the walk.
func (e *TrialEngine) tryKnown(ctx context.Context, tr *trial) TrialState {
	for _, password := range e.registry.List() {
		if ctx.Err() != nil {
			return StateDone
		}

		outcome, timedOut := e.attempt(ctx, tr, password)

		switch {
		case timedOut:
			continue
		case outcome == OutcomeSuccess:
			tr.password = password
			return StateDone
		case outcome == OutcomeWrongPassword:
			tr.sawPassword = true
			continue
		default:
			return StateDone
		}
	}

	return StateMaybePromptUser
}

// promptUser asks for passwords until one works, the user gives up, or
// the user silences prompting for the rest of the run. Prompting only
// happens when some attempt actually complained about a password.
func (e *TrialEngine) promptUser(ctx context.Context, tr *trial) TrialState {
	if e.skipAll || !tr.sawPassword {
		return StateDone
	}

	for {
		if ctx.Err() != nil {
			return StateDone
		}

		password, action, err := e.prompter.AskPassword(tr.archive)
		if err != nil {
			e.log.Printf("Error: password prompt: %v", err)
			return StateDone
		}

		switch action {
		case PromptSkipAll:
			e.skipAll = true
			return StateDone
		case PromptSkip:
			return StateDone
		case PromptUse:
		}

		outcome, timedOut := e.attempt(ctx, tr, password)

		switch {
		case outcome == OutcomeSuccess:
			tr.password = password
			tr.userGave = true
			e.registry.Add(password)

			return StateDone
		case timedOut, outcome == OutcomeWrongPassword:
			tr.sawPassword = true

			if !e.prompter.ConfirmRetry(tr.archive) {
				return StateDone
			}
		default:
			return StateDone
		}
	}
}

// attempt runs one backend extraction and classifies it. Path errors
// switch the trial onto a sanitized scratch dir and redo the same
// password there. The bool reports a per-attempt timeout; the parent
// context ending is not a timeout.
func (e *TrialEngine) attempt(ctx context.Context, tr *trial, password string) (Outcome, bool) {
	tr.attempts++
	e.reporter.AttemptStarted(tr.archive, MaskPassword(password), tr.attempts)

	attemptCtx, cancel := ctx, func() {}
	if e.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}

	res, err := e.backend.Extract(attemptCtx, ExtractRequest{
		Archive:   tr.archive,
		OutputDir: tr.outDir(),
		Password:  password,
		Overwrite: e.over,
	})

	timedOut := attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil

	cancel()

	if timedOut {
		tr.lastOutcome = OutcomeGeneric
		tr.lastMessage = fmt.Sprintf("attempt %d killed after %s", tr.attempts, e.timeout)
		e.log.Printf("Extraction attempt %d on %s timed out after %s", tr.attempts, tr.archive, e.timeout)
		e.reporter.AttemptDone(tr.archive, OutcomeGeneric, tr.attempts)
		e.reporter.Warn("%s: attempt %d timed out after %s", tr.archive, tr.attempts, e.timeout)

		return OutcomeGeneric, true
	}

	outcome := ClassifyResult(res, err)
	tr.lastOutcome = outcome
	tr.lastMessage = resultMessage(res, err, outcome)
	e.log.Debugf("Attempt %d on %s via %s: %s", tr.attempts, tr.archive, e.backend.Name(), outcome)
	e.reporter.AttemptDone(tr.archive, outcome, tr.attempts)

	if outcome == OutcomePathError && tr.scratchOut == "" {
		if e.enableScratch(tr) {
			return e.attempt(ctx, tr, password)
		}
	}

	return outcome, false
}

// enableScratch activates the sanitized fallback: later attempts extract
// into a short temp dir and a final move repairs the names.
func (e *TrialEngine) enableScratch(tr *trial) bool {
	scratch, err := os.MkdirTemp("", "unpackr")
	if err != nil {
		e.log.Printf("Error: creating scratch dir for %s: %v", tr.archive, err)
		return false
	}

	tr.scratchOut = scratch
	e.log.Printf("Output path rejected for %s, retrying through %s with sanitized names", tr.archive, scratch)

	return true
}

// finish turns the trial state into a TrialResult, draining the scratch
// dir into the real output when the fallback was used.
func (e *TrialEngine) finish(tr *trial) TrialResult {
	result := TrialResult{
		Outcome:           tr.lastOutcome,
		Password:          tr.password,
		UserProvided:      tr.userGave,
		Attempts:          tr.attempts,
		Message:           tr.lastMessage,
		SanitizedFallback: tr.scratchOut != "",
	}

	if tr.scratchOut == "" {
		return result
	}

	if result.Outcome != OutcomeSuccess {
		_ = os.RemoveAll(tr.scratchOut)
		return result
	}

	moved, err := moveSanitized(tr.scratchOut, tr.realOut, e.over, e.fileMode, e.dirMode)

	switch {
	case err != nil && len(moved) == 0:
		result.Outcome = OutcomePathError
		result.Message = fmt.Sprintf("sanitized move failed: %v", err)
		e.reporter.Warn("%s: %s", tr.archive, result.Message)
	case err != nil:
		// Partial move: the extraction stands, the leftovers stay in the
		// scratch dir for the user to pick over.
		result.Message = fmt.Sprintf("moved %d file(s), some stayed in %s: %v", len(moved), tr.scratchOut, err)
		e.reporter.Warn("%s: %s", tr.archive, result.Message)
	}

	return result
}

// resultMessage distills one attempt into a single line for the result.
func resultMessage(res *Result, err error, outcome Outcome) string {
	if outcome == OutcomeSuccess {
		return ""
	}

	if res != nil {
		if msg := firstLine(res.Stderr); msg != "" {
			return msg
		}

		if msg := firstLine(res.Stdout); msg != "" {
			return msg
		}
	}

	if err != nil {
		return firstLine(err.Error())
	}

	return outcome.String()
}

// firstLine returns the first non-empty trimmed line of text.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}

	return ""
}

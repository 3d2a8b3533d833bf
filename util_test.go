package unpackr_test

// Shared fakes and fixture helpers used by the other test files.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	unpackr "github.com/rozx/Complex-unzip-tool-v2-sub000"
)

type testLogger struct{ t *testing.T }

func (l *testLogger) Debugf(msg string, v ...any) {
	l.t.Helper()
	l.t.Logf("[DEBUG] "+msg, v...)
}

func (l *testLogger) Printf(msg string, v ...any) {
	l.t.Helper()
	l.t.Logf("[INFO] "+msg, v...)
}

// fakeBackend plays extraction backend with scripted contents. Archives
// are keyed by base name, so they resolve no matter where the
// orchestrator finds or moves them.
type fakeBackend struct {
	// archives maps an archive base name to the files inside it,
	// member path -> content. A key with no entry is not an archive.
	archives map[string]map[string]string
	// passwords maps an archive base name to the password it demands.
	passwords map[string]string
	// extracts counts Extract calls per archive base name.
	extracts map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		archives:  map[string]map[string]string{},
		passwords: map[string]string{},
		extracts:  map[string]int{},
	}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Extract(ctx context.Context, req unpackr.ExtractRequest) (*unpackr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := filepath.Base(req.Archive)
	f.extracts[name]++

	contents, ok := f.archives[name]
	if !ok {
		return &unpackr.Result{ExitCode: 2, Stderr: "ERROR: cannot open the file as archive"}, nil
	}

	if need := f.passwords[name]; need != "" && req.Password != need {
		return &unpackr.Result{ExitCode: 2, Stderr: "ERROR: Wrong password?"}, nil
	}

	for rel, data := range contents {
		path := filepath.Join(req.OutputDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("fake extract: %w", err)
		}

		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			return nil, fmt.Errorf("fake extract: %w", err)
		}
	}

	return &unpackr.Result{Stdout: fmt.Sprintf("Extracted %d files", len(contents))}, nil
}

func (f *fakeBackend) List(ctx context.Context, archive, password string) ([]unpackr.Entry, *unpackr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	contents, ok := f.archives[filepath.Base(archive)]
	if !ok {
		return nil, &unpackr.Result{ExitCode: 2, Stderr: "ERROR: cannot open the file as archive"}, nil
	}

	if need := f.passwords[filepath.Base(archive)]; need != "" && password != need {
		return nil, &unpackr.Result{ExitCode: 2, Stderr: "ERROR: Wrong password?"}, nil
	}

	entries := make([]unpackr.Entry, 0, len(contents))
	for rel, data := range contents {
		entries = append(entries, unpackr.Entry{Path: rel, Size: int64(len(data))})
	}

	return entries, &unpackr.Result{}, nil
}

// scriptPrompter replays queued prompt answers and counts questions.
type scriptPrompter struct {
	answers []promptAnswer
	asked   int
	retries int
	retry   bool
}

type promptAnswer struct {
	password string
	action   unpackr.PromptAction
}

func (p *scriptPrompter) AskPassword(string) (string, unpackr.PromptAction, error) {
	if p.asked >= len(p.answers) {
		p.asked++
		return "", unpackr.PromptSkip, nil
	}

	answer := p.answers[p.asked]
	p.asked++

	return answer.password, answer.action, nil
}

func (p *scriptPrompter) ConfirmRetry(string) bool {
	p.retries++
	return p.retry
}

// mustWriteFile creates a file with its parent folders.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

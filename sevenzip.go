package unpackr

/* External 7-Zip backend: shells out to 7zz/7z/7za and reads the console
   surface back. Passwords are passed with -p so the binary never prompts;
   stdin is wired to EOF as a second line of defense. */

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// defaultKillGrace is how long a cancelled 7-Zip run may keep going after
// SIGTERM before it is killed outright.
const defaultKillGrace = 5 * time.Second

// sevenZipNames are the binary names probed on PATH, preferred first.
//
//nolint:gochecknoglobals
var sevenZipNames = []string{"7zz", "7z", "7za"}

// FindSevenZip locates a 7-Zip binary on PATH.
func FindSevenZip() (string, error) {
	for _, name := range sevenZipNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: no 7-Zip binary on PATH (tried %s)",
		ErrNoBackend, strings.Join(sevenZipNames, ", "))
}

// SevenZipCLI drives an external 7-Zip binary.
type SevenZipCLI struct {
	// Path is the binary to run.
	Path string
	// Grace bounds how long a cancelled run survives the polite signal.
	Grace time.Duration

	log Logger
}

var _ Backend = (*SevenZipCLI)(nil)

// NewSevenZipCLI returns a backend around the given binary. An empty
// binPath probes PATH for the usual names.
func NewSevenZipCLI(binPath string, log Logger) (*SevenZipCLI, error) {
	if log == nil {
		log = NoLogger()
	}

	if binPath == "" {
		found, err := FindSevenZip()
		if err != nil {
			return nil, err
		}

		binPath = found
	} else if _, err := exec.LookPath(binPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoBackend, binPath, err)
	}

	log.Debugf("Using 7-Zip binary: %s", binPath)

	return &SevenZipCLI{Path: binPath, Grace: defaultKillGrace, log: log}, nil
}

// Name implements Backend.
func (s *SevenZipCLI) Name() string { return "7z" }

// Extract implements Backend. The output directory is created by the
// binary itself via -o.
func (s *SevenZipCLI) Extract(ctx context.Context, req ExtractRequest) (*Result, error) {
	args := []string{"x", "-y", "-bd", "-p" + req.Password}

	if req.Overwrite {
		args = append(args, "-aoa")
	} else {
		args = append(args, "-aos")
	}

	args = append(args, "-o"+req.OutputDir, "--", req.Archive)
	args = append(args, req.Files...)

	return s.run(ctx, args)
}

// List implements Backend using `l -slt` key=value output.
func (s *SevenZipCLI) List(ctx context.Context, archive, password string) ([]Entry, *Result, error) {
	args := []string{"l", "-slt", "-y", "-bd", "-p" + password, "--", archive}

	res, err := s.run(ctx, args)
	if err != nil {
		return nil, res, err
	}

	if res.ExitCode != 0 {
		return nil, res, nil // the caller classifies the Result.
	}

	return parseSLT(res.Stdout), res, nil
}

// run executes the binary and folds its exit status into the Result.
// Only failures to run at all, and context cancellation, come back as
// errors.
func (s *SevenZipCLI) run(ctx context.Context, args []string) (*Result, error) {
	cmd := exec.CommandContext(ctx, s.Path, args...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = strings.NewReader("")

	// Ask politely on cancellation; WaitDelay covers a binary that
	// ignores the signal (or a platform without SIGTERM delivery).
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}

	cmd.WaitDelay = s.Grace
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = defaultKillGrace
	}

	s.log.Debugf("Running: %s %s", s.Path, strings.Join(maskArgs(args), " "))

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError

	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		err = nil // the Result carries the failure text for classification.
	default:
		return res, fmt.Errorf("running %s: %w", s.Path, err)
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	return res, nil
}

// maskArgs hides password values in debug output.
func maskArgs(args []string) []string {
	masked := make([]string, len(args))

	for i, arg := range args {
		if strings.HasPrefix(arg, "-p") && len(arg) > 2 {
			masked[i] = "-p" + MaskPassword(arg[2:])
		} else {
			masked[i] = arg
		}
	}

	return masked
}

// sltTimeLayout matches 7-Zip's Modified field. Newer binaries append
// fractional seconds, which get truncated before parsing.
const sltTimeLayout = "2006-01-02 15:04:05"

// parseSLT parses `7z l -slt` output: "Key = Value" blocks after the
// ---------- separator line, one blank line between entries.
func parseSLT(stdout string) []Entry {
	var (
		entries []Entry
		current map[string]string
		inBody  bool
	)

	flush := func() {
		if path, ok := current["Path"]; ok && path != "" {
			entries = append(entries, entryFromSLT(path, current))
		}

		current = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if !inBody {
			inBody = strings.HasPrefix(line, "----------")
			continue
		}

		if line == "" {
			flush()
			continue
		}

		key, value, found := strings.Cut(line, " = ")
		if !found {
			continue
		}

		if current == nil {
			current = map[string]string{}
		}

		current[key] = value
	}

	flush()

	return entries
}

func entryFromSLT(path string, kv map[string]string) Entry {
	entry := Entry{
		Path:       path,
		CRC:        kv["CRC"],
		Attributes: kv["Attributes"],
		Encrypted:  kv["Encrypted"] == "+",
		Dir:        kv["Folder"] == "+" || strings.HasPrefix(kv["Attributes"], "D"),
	}

	entry.Size, _ = strconv.ParseInt(kv["Size"], 10, 64)
	entry.Packed, _ = strconv.ParseInt(kv["Packed Size"], 10, 64)

	if modified := kv["Modified"]; modified != "" {
		if len(modified) > len(sltTimeLayout) {
			modified = modified[:len(sltTimeLayout)]
		}

		if t, err := time.Parse(sltTimeLayout, modified); err == nil {
			entry.Modified = t
		}
	}

	return entry
}

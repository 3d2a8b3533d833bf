package unpackr

/* Backend contract: extraction engines are black boxes that surface an
   exit code and console text. Orchestration reads outcomes from that
   surface alone, never from engine internals, so external binaries and
   in-process extractors classify identically. */

import (
	"context"
	"strings"
	"time"
)

// Backend runs extractions and listings. Implementations are called
// sequentially; one archive is never in flight on two goroutines.
type Backend interface {
	// Extract unpacks an archive into the request's output directory.
	// Archive-level failures should be reported through the Result so
	// they classify; err is for failures to run the backend at all.
	Extract(ctx context.Context, req ExtractRequest) (*Result, error)
	// List enumerates archive entries without extracting.
	List(ctx context.Context, archive, password string) ([]Entry, *Result, error)
	// Name identifies the backend in logs and errors.
	Name() string
}

// ExtractRequest carries one extraction attempt.
type ExtractRequest struct {
	Archive   string
	OutputDir string
	Password  string
	Overwrite bool
	// Files optionally restricts extraction to these archive members.
	Files []string
}

// Result is the observable surface of one backend run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Entry describes one archive member from List.
type Entry struct {
	Path       string
	Size       int64
	Packed     int64
	Modified   time.Time
	Encrypted  bool
	CRC        string
	Attributes string
	Dir        bool
}

// Outcome classifies one backend run.
type Outcome int

// Outcomes in classification precedence order, success aside.
const (
	OutcomeSuccess Outcome = iota
	OutcomeNotFound
	OutcomeWrongPassword
	OutcomeCorrupted
	OutcomeUnsupported
	OutcomePathError
	OutcomeGeneric
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "archive not found"
	case OutcomeWrongPassword:
		return "wrong password"
	case OutcomeCorrupted:
		return "corrupted archive"
	case OutcomeUnsupported:
		return "unsupported archive"
	case OutcomePathError:
		return "path error"
	default:
		return "extraction failed"
	}
}

// Structural reports whether the outcome cannot be changed by trying
// another password.
func (o Outcome) Structural() bool {
	switch o {
	case OutcomeNotFound, OutcomeCorrupted, OutcomeUnsupported, OutcomePathError, OutcomeGeneric:
		return true
	default:
		return false
	}
}

// Err maps the outcome to its package sentinel, nil for success.
func (o Outcome) Err() error {
	switch o {
	case OutcomeSuccess:
		return nil
	case OutcomeNotFound:
		return ErrNotFound
	case OutcomeWrongPassword:
		return ErrWrongPassword
	case OutcomeCorrupted:
		return ErrCorrupted
	case OutcomeUnsupported:
		return ErrUnsupported
	case OutcomePathError:
		return ErrPathError
	default:
		return ErrBackend
	}
}

/* Classification keyword tables. Engines surface plain console text, so
   outcome detection is case-insensitive substring matching in fixed
   precedence: not-found, wrong password, corrupted, unsupported, path
   error, then generic. Readers that cannot tell damage from a bad key
   annotate their errors with password wording before they land here. */

//nolint:gochecknoglobals
var (
	notFoundKeywords = []string{
		"no such file or directory",
		"cannot find archive",
		"archive not found",
		"the system cannot find",
		"does not exist",
	}

	passwordKeywords = []string{
		"wrong password",
		"bad password",
		"incorrect password",
		"password is incorrect",
		"password required",
		"invalid password",
		"cannot open encrypted",
		"authentication failed",
		"decryption error",
	}

	corruptedKeywords = []string{
		"crc failed",
		"crc error",
		"data error",
		"checksum error",
		"checksum failed",
		"headers error",
		"unexpected end",
		"unexpected eof",
		"truncated",
		"corrupt",
	}

	unsupportedKeywords = []string{
		"cannot open the file as archive",
		"cannot open the file as [",
		"unsupported method",
		"unsupported compression",
		"unsupported archive",
		"unknown archive",
		"not implemented",
	}

	pathErrorKeywords = []string{
		"file name too long",
		"name too long",
		"volume label syntax is incorrect",
		"cannot create folder",
		"cannot create file",
		"access denied",
		"permission denied",
	}
)

// ClassifyResult distills a backend run into an Outcome. A nil error with
// a zero exit code is success; anything else is matched against the
// keyword tables over the combined error text, stderr and stdout.
func ClassifyResult(res *Result, err error) Outcome {
	exitCode := 0
	if res != nil {
		exitCode = res.ExitCode
	}

	if err == nil && exitCode == 0 {
		return OutcomeSuccess
	}

	var text strings.Builder

	if err != nil {
		text.WriteString(err.Error())
		text.WriteByte('\n')
	}

	if res != nil {
		text.WriteString(res.Stderr)
		text.WriteByte('\n')
		text.WriteString(res.Stdout)
	}

	haystack := strings.ToLower(text.String())

	switch {
	case containsAny(haystack, notFoundKeywords):
		return OutcomeNotFound
	case containsAny(haystack, passwordKeywords):
		return OutcomeWrongPassword
	case containsAny(haystack, corruptedKeywords):
		return OutcomeCorrupted
	case containsAny(haystack, unsupportedKeywords):
		return OutcomeUnsupported
	case containsAny(haystack, pathErrorKeywords):
		return OutcomePathError
	default:
		return OutcomeGeneric
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}

	return false
}

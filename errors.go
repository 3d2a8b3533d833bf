package unpackr

import (
	"errors"
	"strings"
	"syscall"
)

// Package-level errors for classification, password trials and extraction.
var (
	// Backend outcome sentinels. ClassifyResult maps backend output onto these.

	ErrNotFound      = errors.New("archive not found")
	ErrWrongPassword = errors.New("wrong password or archive requires a password")
	ErrCorrupted     = errors.New("archive is corrupted or incomplete")
	ErrUnsupported   = errors.New("unsupported archive format")
	ErrPathError     = errors.New("output path rejected by the filesystem")
	ErrBackend       = errors.New("backend extraction failed")
	ErrParsing       = errors.New("cannot parse backend output")

	// Orchestration / setup.

	ErrNoBackend          = errors.New("no extraction backend available")
	ErrNoArchives         = errors.New("no archive files found")
	ErrUnknownArchiveType = errors.New("unknown archive file type")
	ErrInvalidPath        = errors.New("archived file contains invalid path")
	ErrInvalidHead        = errors.New("archived file contains invalid header file")
	ErrNameTooLong        = errors.New("could not find available truncated path after 999 attempts")
	ErrDirCollision       = errors.New("could not find available output folder after 999 attempts")

	// Cloak rule store.

	ErrBadRuleFile = errors.New("cloak rule file is invalid")
)

// ExtractError is a rich error type that carries everything learned while
// failing to extract one archive. Consumers can use errors.As to retrieve it.
type ExtractError struct {
	// Errs holds all errors encountered during extraction attempts.
	Errs []error
	// Warnings holds non-fatal messages such as skipped renames or truncated names.
	Warnings []string
	// Archive is the path to the archive that failed to extract.
	Archive string
	// OutputDir is the directory where extraction was attempted.
	OutputDir string
	// Outcome is the final classified backend outcome.
	Outcome Outcome
	// Attempts is the number of password attempts made against the archive.
	Attempts int
	// ArchiveType is the detected archive type (e.g. "zip", "tar", "7z").
	ArchiveType string
}

// NewExtractError wraps a single error as an ExtractError with context.
// Pass empty strings for unknown fields.
func NewExtractError(err error, archive, outputDir, archiveType string) *ExtractError {
	if err == nil {
		return nil
	}

	return &ExtractError{
		Errs:        []error{err},
		Archive:     archive,
		OutputDir:   outputDir,
		ArchiveType: archiveType,
	}
}

// Error satisfies the error interface. It returns a combined message from all errors.
func (e *ExtractError) Error() string {
	msgs := strings.Builder{}
	for _, err := range e.Errs {
		if msgs.Len() > 0 {
			msgs.WriteString("; ")
		}

		msgs.WriteString(err.Error())
	}

	msg := "extraction failed: " + msgs.String()
	if e.Archive != "" {
		msg += " (file: " + e.Archive + ")"
	}

	return msg
}

// Unwrap returns the list of wrapped errors for use with errors.Is and errors.As.
func (e *ExtractError) Unwrap() []error {
	return e.Errs
}

// HasWarnings returns true if any non-fatal warnings were collected.
func (e *ExtractError) HasWarnings() bool {
	return len(e.Warnings) > 0
}

// IsErrNameTooLong reports whether err indicates a "file name too long" condition.
// On Unix this corresponds to syscall.ENAMETOOLONG; it also matches the
// "file name too long" error message so it works on all platforms (e.g. Windows).
func IsErrNameTooLong(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.ENAMETOOLONG) {
		return true
	}

	return strings.Contains(err.Error(), "file name too long")
}

package unpackr

/* In-process extraction backend built on the Go archive stack. It needs no
   external binary; password support is limited to the formats whose readers
   accept one (zip, rar, 7z). Failures surface through the same console-text
   Result the CLI backend produces, so outcome classification is shared. */

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Default permissions for extracted content.
const (
	DefaultFileMode = os.FileMode(0o644)
	DefaultDirMode  = os.FileMode(0o755)
)

// Embedded is the in-process Backend.
type Embedded struct {
	// FileMode and DirMode are applied to extracted content.
	FileMode os.FileMode
	DirMode  os.FileMode

	log Logger
}

var _ Backend = (*Embedded)(nil)

// NewEmbedded returns the in-process backend with default modes.
func NewEmbedded(log Logger) *Embedded {
	if log == nil {
		log = NoLogger()
	}

	return &Embedded{FileMode: DefaultFileMode, DirMode: DefaultDirMode, log: log}
}

// Name implements Backend.
func (e *Embedded) Name() string { return "embedded" }

// Extract implements Backend. Archive-level failures come back inside the
// Result so the caller can classify them; a non-nil error means the backend
// could not run (or the context ended).
func (e *Embedded) Extract(ctx context.Context, req ExtractRequest) (*Result, error) {
	if _, err := os.Stat(req.Archive); err != nil {
		return failResult(err), nil
	}

	family := resolveFamily(req.Archive)
	if family == "" {
		return failResult(fmt.Errorf("%w: %s", ErrUnknownArchiveType, req.Archive)), nil
	}

	if err := os.MkdirAll(req.OutputDir, e.DirMode); err != nil {
		return nil, fmt.Errorf("creating output folder: %w", err)
	}

	t := &task{
		ctx:       ctx,
		Archive:   req.Archive,
		OutputDir: req.OutputDir,
		Password:  req.Password,
		Overwrite: req.Overwrite,
		FileMode:  e.FileMode,
		DirMode:   e.DirMode,
		log:       e.log,
	}
	t.restrict(req.Files)

	size, files, err := t.extract(family)
	if err != nil {
		if ctx.Err() != nil {
			return failResult(err), ctx.Err()
		}

		return failResult(err), nil
	}

	return &Result{
		Stdout: fmt.Sprintf("Extracted %d files (%d bytes) from %s", len(files), size, req.Archive),
	}, nil
}

// List implements Backend. Formats without member tables (single-stream
// codecs, disk images) list as one logical entry.
func (e *Embedded) List(ctx context.Context, archive, password string) ([]Entry, *Result, error) {
	if _, err := os.Stat(archive); err != nil {
		return nil, failResult(err), nil
	}

	var (
		entries []Entry
		err     error
	)

	switch family := resolveFamily(archive); family {
	case TypeZip:
		entries, err = listZip(archive)
	case TypeSevenZip:
		entries, err = list7z(archive, password)
	case TypeRar:
		entries, err = listRar(archive, password)
	case TypeTar:
		entries, err = listTar(archive)
	case "":
		err = fmt.Errorf("%w: %s", ErrUnknownArchiveType, archive)
	default:
		entries, err = listStat(archive)
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, failResult(err), ctx.Err()
		}

		return nil, failResult(err), nil
	}

	return entries, &Result{Stdout: fmt.Sprintf("%d entries in %s", len(entries), archive)}, nil
}

// failResult folds an in-process failure into the console surface the
// outcome classifier reads. Exit code 2 mirrors 7-Zip's fatal-error code.
func failResult(err error) *Result {
	return &Result{ExitCode: 2, Stderr: err.Error()}
}

// resolveFamily picks the extractor family for a file: trust a canonical
// name first, sniff content second.
func resolveFamily(path string) string {
	if cls, ok := classifyName(filepath.Base(path)); ok && cls.Archive && cls.Type != "" {
		return cls.Type
	}

	if typ, err := DetectType(path); err == nil {
		return typ
	}

	return ""
}

// listStat is the one-entry listing for formats without a member table.
func listStat(archive string) ([]Entry, error) {
	info, err := os.Stat(archive)
	if err != nil {
		return nil, fmt.Errorf("os.Stat: %w", err)
	}

	return []Entry{{
		Path:     StripSuffixes(filepath.Base(archive)),
		Packed:   info.Size(),
		Modified: info.ModTime(),
	}}, nil
}

// task carries one in-process extraction.
type task struct {
	ctx       context.Context
	Archive   string
	OutputDir string
	Password  string
	Overwrite bool
	FileMode  os.FileMode
	DirMode   os.FileMode
	log       Logger

	only map[string]bool
}

// extract dispatches to the family's extractor.
func (t *task) extract(family string) (int64, []string, error) {
	switch family {
	case TypeZip:
		return t.extractZip()
	case TypeSevenZip:
		return t.extract7z()
	case TypeRar:
		return t.extractRar()
	case TypeTar:
		return t.extractTar()
	case TypeISO:
		return t.extractISO()
	case TypeRPM:
		return t.extractRPM()
	case TypeDeb:
		return t.extractAr()
	case TypeAr:
		return t.extractAr()
	case TypeCpio:
		return t.extractCpio()
	case TypeSFX:
		return t.extractSFX()
	case TypeGzip, TypeBzip2, TypeXZ, TypeZstd, TypeLZ4, TypeLZMA,
		TypeBrotli, TypeLZW, TypeZlib, TypeSnappy, TypeS2:
		return t.decompress(family)
	default:
		return 0, nil, fmt.Errorf("%w: %s", ErrUnsupported, family)
	}
}

// extractSFX unpacks the payload of a self-extracting executable. Only
// payloads whose readers tolerate a leading stub work in-process.
func (t *task) extractSFX() (int64, []string, error) {
	switch inner := SFXContains(t.Archive); inner {
	case TypeZip:
		return t.extractZip()
	case TypeRar:
		return t.extractRar()
	default:
		return 0, nil, fmt.Errorf("%w: self-extracting executable with %q payload",
			ErrUnsupported, inner)
	}
}

// restrict limits extraction to the given archive members.
func (t *task) restrict(files []string) {
	if len(files) == 0 {
		return
	}

	t.only = map[string]bool{}
	for _, name := range files {
		t.only[filepath.ToSlash(name)] = true
	}
}

// wants reports whether an archive member should be extracted.
func (t *task) wants(name string) bool {
	return t.only == nil || t.only[filepath.ToSlash(name)]
}

// clean joins an archive member name under the output folder, rejecting
// names that try to escape it.
func (t *task) clean(name string, trim ...string) (string, error) {
	return cleanJoin(t.OutputDir, name, trim...)
}

// write streams one member to disk after a cancellation check. Existing
// files are skipped unless the task overwrites.
func (t *task) write(f *file) (int64, error) {
	if err := t.ctx.Err(); err != nil {
		return 0, err
	}

	if f.FileMode == 0 {
		f.FileMode = t.FileMode
	}

	if f.DirMode == 0 {
		f.DirMode = t.DirMode
	}

	if !t.Overwrite {
		if _, err := os.Stat(f.Path); err == nil {
			t.log.Debugf("Skipping existing file: %s", f.Path)
			return 0, nil
		}
	}

	return f.Write()
}

// mkDir creates one directory inside the output folder.
func (t *task) mkDir(path string) error {
	if err := os.MkdirAll(path, t.DirMode); err != nil {
		return fmt.Errorf("os.MkdirAll: %w", err)
	}

	return nil
}

// passwordHint annotates read failures when a password was in play. The
// pure-Go readers report bad decryption as generic read errors, so the
// annotation is what lets outcome classification see the password angle.
func (t *task) passwordHint(err error) error {
	if err == nil || t.Password == "" {
		return err
	}

	return fmt.Errorf("%w (wrong password?)", err)
}

// needPasswordHint annotates failures of a passwordless open: an archive
// that will not open may be header-encrypted rather than damaged.
func (t *task) needPasswordHint(err error) error {
	if err == nil || t.Password != "" {
		return err
	}

	return fmt.Errorf("%w (possibly encrypted: password required?)", err)
}

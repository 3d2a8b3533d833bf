package unpackr

/* The top-level loop: extract an archive, look at what came out, queue
   any archives found inside, repeat until the branch bottoms out. Failed
   extractions never destroy anything; successful ones consume their
   source archive unless told otherwise. */

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TrashDirName is where consumed archives are moved unless permanent
// deletion is configured.
const TrashDirName = ".unpackr-trash"

// ExtractionResult is the summary of one orchestrated run. It is not
// mutated once returned.
type ExtractionResult struct {
	// Success means no errors were recorded and something was produced.
	// Unextracted notes alone never fail a run.
	Success bool
	// ExtractedArchives lists every archive that extracted, in order.
	ExtractedArchives []string
	// FinalFiles lists produced files that were not extracted further.
	FinalFiles []string
	// Errors holds one line per failure. Failures never stop the run.
	Errors []string
	// Unextracted holds one line per archive that could not be opened
	// for an expected reason: every password exhausted, a multi-part
	// set missing its first part, or the depth bound leaving a nested
	// archive in place. These are outcomes, not faults.
	Unextracted []string
	// PasswordUsed maps each extracted archive to the password that
	// opened it. The empty string means none was needed.
	PasswordUsed map[string]string
	// UserProvidedPasswords lists passwords learned from prompts.
	UserProvidedPasswords []string
}

func newExtractionResult() *ExtractionResult {
	return &ExtractionResult{PasswordUsed: map[string]string{}}
}

// addError records one failure line.
func (r *ExtractionResult) addError(format string, v ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, v...))
}

// addNote records one could-not-extract line.
func (r *ExtractionResult) addNote(format string, v ...any) {
	r.Unextracted = append(r.Unextracted, fmt.Sprintf(format, v...))
}

// workItem is one queued archive. Depth counts extraction levels below
// the root input.
type workItem struct {
	archive string
	outDir  string
	depth   int
}

// Run extracts the archive at root into outputDir, recursively, and
// returns what happened. The root input file is never deleted.
func (u *Unpackr) Run(ctx context.Context, root, outputDir string) *ExtractionResult {
	result := newExtractionResult()

	u.run(ctx, root, outputDir, result, map[string]bool{})
	u.finishRun(result, outputDir)

	return result
}

// run drives the work queue for one root archive. The processed set is
// shared by the caller so one file is never extracted twice per run.
func (u *Unpackr) run(ctx context.Context, root, outputDir string, result *ExtractionResult, processed map[string]bool) {
	if _, err := os.Stat(root); err != nil {
		result.addError("%s: %v", root, ErrNotFound)
		u.reporter.ArchiveFailed(root, ErrNotFound)

		return
	}

	queue := []workItem{{archive: root, outDir: outputDir, depth: 0}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			result.addError("run canceled: %v", err)
			return
		}

		item := queue[0]
		queue = queue[1:]

		canonical := canonicalPath(item.archive)
		if processed[canonical] {
			continue
		}

		processed[canonical] = true

		queue = append(queue, u.extractOne(ctx, item, result)...)
	}
}

// extractOne processes a single queued archive and returns the work items
// found inside it.
func (u *Unpackr) extractOne(ctx context.Context, item workItem, result *ExtractionResult) []workItem {
	// An earlier branch of the run may have consumed or renamed a queued
	// file before its turn came up.
	if _, err := os.Stat(item.archive); err != nil {
		u.log.Debugf("Skipping vanished archive: %s", item.archive)
		return nil
	}

	// Continuation parts are consumed through their first part.
	if cls, ok := classifyName(filepath.Base(item.archive)); ok && cls.Continuation() {
		if item.depth == 0 {
			result.addError("%s: continuation part, extract its first part instead", item.archive)
			u.reporter.Warn("%s is a continuation part; point at the first part of the set", item.archive)
		} else {
			u.log.Debugf("Skipping continuation part: %s", item.archive)
		}

		return nil
	}

	if !u.probe(ctx, item.archive) {
		if item.depth == 0 {
			result.addError("%s: %v", item.archive, ErrUnknownArchiveType)
			u.reporter.ArchiveFailed(item.archive, ErrUnknownArchiveType)
		} else {
			// It looked like an archive by name, but the backend disagrees.
			result.FinalFiles = appendOnce(result.FinalFiles, item.archive)
		}

		return nil
	}

	subDir, err := uniqueDir(filepath.Join(item.outDir, StripSuffixes(filepath.Base(item.archive))))
	if err != nil {
		result.addError("%s: %v", item.archive, err)
		u.reporter.ArchiveFailed(item.archive, err)

		return nil
	}

	trial := u.trials.Run(ctx, item.archive, subDir)
	if trial.Outcome != OutcomeSuccess {
		u.failArchive(item, trial, result, subDir)
		return nil
	}

	if u.config.RepairEncoding {
		if renamed := RepairNames(subDir, u.log); renamed > 0 {
			u.log.Printf("Repaired %d file name(s) under %s", renamed, subDir)
		}
	}

	// The subdir was created fresh for this archive, so everything in it
	// is new output.
	newFiles, err := ListTree(subDir)
	if err != nil || len(newFiles) == 0 {
		result.addError("%s: extracted no files", item.archive)
		u.reporter.ArchiveFailed(item.archive, fmt.Errorf("%w: extracted no files", ErrBackend))
		_ = os.RemoveAll(subDir)

		return nil
	}

	result.ExtractedArchives = append(result.ExtractedArchives, item.archive)
	result.PasswordUsed[item.archive] = trial.Password

	if trial.UserProvided {
		result.UserProvidedPasswords = appendOnce(result.UserProvidedPasswords, trial.Password)
	}

	u.reporter.ArchiveExtracted(item.archive, subDir, len(newFiles))
	u.log.Printf("Extracted: %s -> %s (%d files, %d attempts)",
		item.archive, subDir, len(newFiles), trial.Attempts)

	next := u.sortNewFiles(newFiles, item, result)

	u.cleanupConsumed(item)

	return next
}

// failArchive records a failed trial. Exhausted passwords are an expected
// outcome and land in Unextracted; structural failures are errors. Our own
// partial output is scrubbed; the input archive and everything else stay
// untouched.
func (u *Unpackr) failArchive(item workItem, trial TrialResult, result *ExtractionResult, subDir string) {
	extractErr := &ExtractError{
		Errs:      []error{trial.Outcome.Err()},
		Archive:   item.archive,
		OutputDir: subDir,
		Outcome:   trial.Outcome,
		Attempts:  trial.Attempts,
	}

	if trial.Message != "" {
		extractErr.Errs = append(extractErr.Errs, errors.New(trial.Message))
	}

	if trial.Outcome == OutcomeWrongPassword {
		result.addNote("%s", extractErr.Error())
	} else {
		result.addError("%s", extractErr.Error())
	}

	u.reporter.ArchiveFailed(item.archive, extractErr)
	_ = os.RemoveAll(subDir)
}

// sortNewFiles classifies the files one extraction produced: archives
// within the depth bound become work items, everything else is final.
func (u *Unpackr) sortNewFiles(newFiles []string, item workItem, result *ExtractionResult) []workItem {
	var next []workItem

	for _, path := range newFiles {
		cls := u.classifier.Classify(path)
		u.reporter.Classified(&cls)

		if cls.Renamed != "" && cls.Renamed != path {
			u.reporter.Uncloaked(path, cls.Renamed)
			path = cls.Renamed
		}

		switch {
		case cls.Continuation():
			// Consumed through its first part, which is queued separately.
		case !cls.Archive:
			result.FinalFiles = appendOnce(result.FinalFiles, path)
		case item.depth+1 > u.config.MaxDepth:
			u.log.Debugf("Depth limit reached, keeping archive as-is: %s", path)
			result.addNote("%s: nested %d level(s) deep, kept unextracted", path, item.depth+1)
			result.FinalFiles = appendOnce(result.FinalFiles, path)
		default:
			next = append(next, workItem{archive: path, outDir: filepath.Dir(path), depth: item.depth + 1})
		}
	}

	return next
}

// cleanupConsumed removes a successfully extracted archive and its
// continuation siblings. The root input is kept; only its siblings go.
func (u *Unpackr) cleanupConsumed(item workItem) {
	if u.config.KeepArchives {
		return
	}

	var consumed []string
	if item.depth > 0 {
		consumed = append(consumed, item.archive)
	}

	consumed = append(consumed, partSiblings(item.archive)...)

	removed := u.discard(consumed)
	if len(removed) > 0 {
		u.reporter.CleanedUp(removed)
	}
}

// discard trashes or deletes the given files, best-effort. Only regular
// files are touched, so a symlink can never drag outside content along.
func (u *Unpackr) discard(paths []string) []string {
	var removed []string

	for _, path := range paths {
		info, err := os.Lstat(path)
		if err != nil {
			continue
		}

		if !info.Mode().IsRegular() {
			u.log.Debugf("Not discarding %s: not a regular file", path)
			continue
		}

		if u.config.PermanentDelete {
			if err := os.Remove(path); err != nil {
				u.log.Printf("Error: deleting consumed archive %s: %v", path, err)
				continue
			}

			u.log.Debugf("Deleted consumed archive: %s", path)
			removed = append(removed, path)

			continue
		}

		if err := u.trash(path, info.Mode()); err != nil {
			u.log.Printf("Error: trashing consumed archive %s: %v", path, err)
			continue
		}

		removed = append(removed, path)
	}

	return removed
}

// trash moves one file into the trash folder next to it.
func (u *Unpackr) trash(path string, mode os.FileMode) error {
	trashDir := filepath.Join(filepath.Dir(path), TrashDirName)
	if err := os.MkdirAll(trashDir, u.config.DirMode); err != nil {
		return fmt.Errorf("os.MkdirAll: %w", err)
	}

	target, err := uniquePath(filepath.Join(trashDir, filepath.Base(path)))
	if err != nil {
		return err
	}

	if err := rename(path, target, mode); err != nil {
		return err
	}

	u.log.Debugf("Trashed consumed archive: %s -> %s", path, target)

	return nil
}

// probe asks the backend whether the file is a readable archive. A
// wrong-password listing still proves a valid archive.
func (u *Unpackr) probe(ctx context.Context, archive string) bool {
	probeCtx, cancel := ctx, func() {}
	if u.config.Timeout > 0 {
		probeCtx, cancel = context.WithTimeout(ctx, u.config.Timeout)
	}

	_, res, err := u.config.Backend.List(probeCtx, archive, "")

	cancel()

	switch ClassifyResult(res, err) {
	case OutcomeSuccess, OutcomeWrongPassword:
		return true
	default:
		return false
	}
}

// finishRun sweeps empty folders and settles the Success verdict. Only
// fatal errors count against it; could-not-extract notes do not.
func (u *Unpackr) finishRun(result *ExtractionResult, outputDir string) {
	if removed := RemoveEmptyDirs(outputDir); removed > 0 {
		u.log.Debugf("Removed %d empty folder(s) under %s", removed, outputDir)
	}

	result.Success = len(result.Errors) == 0 &&
		(len(result.ExtractedArchives) > 0 || len(result.FinalFiles) > 0)
}

// ProcessDirectory runs the full drop-folder pipeline: classify and
// uncloak everything, group the files, then extract each group's archives
// into outputDir. One failed group never stops the others.
func (u *Unpackr) ProcessDirectory(ctx context.Context, dir, outputDir string) *ExtractionResult {
	result := newExtractionResult()

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		result.addError("%s: not a readable folder", dir)
		return result
	}

	if merged := u.registry.LoadContext(dir); merged > 0 {
		u.log.Printf("Loaded %d password(s) from %s", merged, filepath.Join(dir, ContextPasswordFile))
	}

	u.uncloakTree(dir)

	groups, err := u.grouper.GroupFiles(dir)
	if err != nil {
		result.addError("grouping %s: %v", dir, err)
		return result
	}

	if len(groups) == 0 {
		result.addError("%s: %v", dir, ErrNoArchives)
		return result
	}

	u.reporter.GroupsReady(groups)

	processed := map[string]bool{}

	for i := range groups {
		if ctx.Err() != nil {
			result.addError("run canceled: %v", ctx.Err())
			break
		}

		u.processGroup(ctx, &groups[i], outputDir, result, processed)
	}

	u.finishRun(result, outputDir)

	return result
}

// uncloakTree classifies every file under dir so cloaked names get
// repaired before grouping reads them.
func (u *Unpackr) uncloakTree(dir string) {
	paths, err := ListTree(dir)
	if err != nil {
		u.log.Printf("Error: scanning drop folder %s: %v", dir, err)
		return
	}

	for _, path := range paths {
		cls := u.classifier.Classify(path)
		u.reporter.Classified(&cls)

		if cls.Renamed != "" && cls.Renamed != path {
			u.reporter.Uncloaked(path, cls.Renamed)
		}
	}
}

// processGroup extracts one group: candidate containers first when parts
// are missing, then the main archive, then clustered extras.
func (u *Unpackr) processGroup(ctx context.Context, group *Group, outputDir string, result *ExtractionResult, processed map[string]bool) {
	mainPath := group.Main

	if group.Multipart {
		// Containers that might hold the missing parts extract into the
		// drop locality, so recovered parts land next to their set.
		for _, candidate := range group.Candidates {
			u.run(ctx, candidate, filepath.Dir(candidate), result, processed)
		}

		if len(group.Candidates) > 0 {
			mainPath = refreshMain(group)
		}

		if mainPath == "" {
			result.addNote("%s: multi-part set is missing its first part", group.Key)
			u.reporter.Warn("%s: missing the first part, cannot extract", group.Key)

			return
		}

		u.run(ctx, mainPath, outputDir, result, processed)

		return
	}

	for _, archive := range group.ExtractionList() {
		u.run(ctx, archive, outputDir, result, processed)
	}
}

// refreshMain re-analyzes a multi-part group's folder after candidate
// extraction, in case the missing entry part was recovered.
func refreshMain(group *Group) string {
	dir := ""

	switch {
	case group.Main != "":
		dir = filepath.Dir(group.Main)
	case len(group.Files) > 0:
		dir = filepath.Dir(group.Files[0])
	default:
		return group.Main
	}

	sets, _, err := AnalyzeDir(dir)
	if err != nil {
		return group.Main
	}

	// Subfolder groups carry a folder prefix on the key; the set base
	// is only its last segment.
	base := group.Key
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}

	for _, set := range sets {
		if strings.EqualFold(set.Base, base) && set.First != "" {
			return set.First
		}
	}

	return group.Main
}

// partSiblings returns the other members of the multi-part set that
// archive belongs to, or nothing for a standalone archive.
func partSiblings(archive string) []string {
	sets, _, err := AnalyzeDir(filepath.Dir(archive))
	if err != nil {
		return nil
	}

	for _, set := range sets {
		var member bool

		for _, part := range set.Parts {
			if part.Path == archive {
				member = true
				break
			}
		}

		if !member {
			continue
		}

		var siblings []string

		for _, part := range set.Parts {
			if part.Path != archive {
				siblings = append(siblings, part.Path)
			}
		}

		return siblings
	}

	return nil
}

// canonicalPath normalizes a path for the processed set.
func canonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return filepath.Clean(abs)
	}

	return filepath.Clean(path)
}

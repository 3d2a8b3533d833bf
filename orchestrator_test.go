package unpackr_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	unpackr "github.com/rozx/Complex-unzip-tool-v2-sub000"
)

func newUnpackr(t *testing.T, config *unpackr.Config) *unpackr.Unpackr {
	t.Helper()

	if config.Logger == nil {
		config.Logger = &testLogger{t: t}
	}

	unp, err := unpackr.New(config)
	require.NoError(t, err)

	return unp
}

func TestRunNestedArchives(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["bundle.zip"] = map[string]string{
		"docs/readme.txt": "hello",
		"inner.7z":        "inner-archive-bytes",
	}
	backend.archives["inner.7z"] = map[string]string{"payload.bin": "data"}

	drop := t.TempDir()
	out := t.TempDir()
	root := filepath.Join(drop, "bundle.zip")
	mustWriteFile(t, root, "bundle-bytes")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend})

	result := unp.Run(context.Background(), root, out)

	require.Empty(t, result.Errors)
	assert.True(t, result.Success)

	innerPath := filepath.Join(out, "bundle", "inner.7z")
	assert.Equal(t, []string{root, innerPath}, result.ExtractedArchives)
	assert.ElementsMatch(t, []string{
		filepath.Join(out, "bundle", "docs", "readme.txt"),
		filepath.Join(out, "bundle", "inner", "payload.bin"),
	}, result.FinalFiles)

	data, err := os.ReadFile(filepath.Join(out, "bundle", "inner", "payload.bin"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	// The root input is never consumed; the nested archive is.
	assert.FileExists(t, root)
	assert.NoFileExists(t, innerPath)
	assert.FileExists(t, filepath.Join(out, "bundle", unpackr.TrashDirName, "inner.7z"))

	assert.Equal(t, "", result.PasswordUsed[root])
	assert.Equal(t, 1, backend.extracts["bundle.zip"])
	assert.Equal(t, 1, backend.extracts["inner.7z"])
}

func TestRunPasswordListThenNestedArchive(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["outer.zip"] = map[string]string{"inner.7z": "inner-archive-bytes"}
	backend.passwords["outer.zip"] = "correct"
	backend.archives["inner.7z"] = map[string]string{"note.txt": "hello"}

	drop := t.TempDir()
	out := t.TempDir()
	root := filepath.Join(drop, "outer.zip")
	mustWriteFile(t, root, "outer-bytes")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend, Passwords: []string{"wrong1", "correct"}})

	result := unp.Run(context.Background(), root, out)

	require.Empty(t, result.Errors)
	assert.True(t, result.Success)

	// Empty password, then "wrong1", then "correct" against the outer zip;
	// the nested 7z opens on its first, passwordless attempt.
	assert.Equal(t, 3, backend.extracts["outer.zip"])
	assert.Equal(t, 1, backend.extracts["inner.7z"])

	innerPath := filepath.Join(out, "outer", "inner.7z")
	assert.Equal(t, []string{root, innerPath}, result.ExtractedArchives)
	assert.Equal(t, []string{filepath.Join(out, "outer", "inner", "note.txt")}, result.FinalFiles)
	assert.Equal(t, "correct", result.PasswordUsed[root])
	assert.Equal(t, "", result.PasswordUsed[innerPath])
	assert.Empty(t, result.UserProvidedPasswords, "list passwords are not user-provided")
}

func TestRunDepthBoundIsBranchLocal(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["bundle.zip"] = map[string]string{
		"level1.zip": "l1",
		"side.zip":   "s",
	}
	backend.archives["level1.zip"] = map[string]string{"level2.zip": "l2"}
	backend.archives["level2.zip"] = map[string]string{"level3.zip": "l3"}
	backend.archives["level3.zip"] = map[string]string{"deep.txt": "deep"}
	backend.archives["side.zip"] = map[string]string{"shallow.txt": "shallow"}

	drop := t.TempDir()
	out := t.TempDir()
	root := filepath.Join(drop, "bundle.zip")
	mustWriteFile(t, root, "bundle-bytes")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend, MaxDepth: 2})

	result := unp.Run(context.Background(), root, out)

	require.Empty(t, result.Errors)
	assert.True(t, result.Success)

	// Depths 1 and 2 extract; level3 sits at depth 3 and is kept as-is.
	// The shallow sibling branch finishes normally.
	assert.Zero(t, backend.extracts["level3.zip"])
	assert.Equal(t, 1, backend.extracts["level2.zip"])
	assert.Equal(t, 1, backend.extracts["side.zip"])

	level3 := filepath.Join(out, "bundle", "level1", "level2", "level3.zip")
	assert.Contains(t, result.FinalFiles, level3)
	assert.FileExists(t, level3)
	assert.Contains(t, result.FinalFiles, filepath.Join(out, "bundle", "side", "shallow.txt"))

	require.Len(t, result.Unextracted, 1)
	assert.Contains(t, result.Unextracted[0], level3)
}

func TestRunDepthLimitKeepsInnerArchive(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["bundle.zip"] = map[string]string{"inner.7z": "inner-archive-bytes"}
	backend.archives["inner.7z"] = map[string]string{"payload.bin": "data"}

	drop := t.TempDir()
	out := t.TempDir()
	root := filepath.Join(drop, "bundle.zip")
	mustWriteFile(t, root, "bundle-bytes")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend, MaxDepth: -1})

	result := unp.Run(context.Background(), root, out)

	require.Empty(t, result.Errors)
	assert.Equal(t, []string{root}, result.ExtractedArchives)

	innerPath := filepath.Join(out, "bundle", "inner.7z")
	assert.Equal(t, []string{innerPath}, result.FinalFiles, "past the depth bound archives stay as-is")
	assert.FileExists(t, innerPath)
	assert.Zero(t, backend.extracts["inner.7z"])

	require.Len(t, result.Unextracted, 1, "the stopped branch leaves a note")
	assert.Contains(t, result.Unextracted[0], innerPath)
	assert.True(t, result.Success, "a depth stop is not a failure")
}

func TestRunKeepArchives(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["bundle.zip"] = map[string]string{"inner.7z": "inner-archive-bytes"}
	backend.archives["inner.7z"] = map[string]string{"payload.bin": "data"}

	drop := t.TempDir()
	out := t.TempDir()
	root := filepath.Join(drop, "bundle.zip")
	mustWriteFile(t, root, "bundle-bytes")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend, KeepArchives: true})

	result := unp.Run(context.Background(), root, out)

	require.Empty(t, result.Errors)
	assert.FileExists(t, filepath.Join(out, "bundle", "inner.7z"), "keep mode leaves consumed archives")
	assert.NoDirExists(t, filepath.Join(out, "bundle", unpackr.TrashDirName))
}

func TestRunPermanentDelete(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["bundle.zip"] = map[string]string{"inner.7z": "inner-archive-bytes"}
	backend.archives["inner.7z"] = map[string]string{"payload.bin": "data"}

	drop := t.TempDir()
	out := t.TempDir()
	root := filepath.Join(drop, "bundle.zip")
	mustWriteFile(t, root, "bundle-bytes")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend, PermanentDelete: true})

	result := unp.Run(context.Background(), root, out)

	require.Empty(t, result.Errors)
	assert.NoFileExists(t, filepath.Join(out, "bundle", "inner.7z"))
	assert.NoDirExists(t, filepath.Join(out, "bundle", unpackr.TrashDirName), "no trash in delete mode")
}

func TestRunWithSeededPassword(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["vault.zip"] = map[string]string{"data.txt": "ok"}
	backend.passwords["vault.zip"] = "secret"

	drop := t.TempDir()
	out := t.TempDir()
	root := filepath.Join(drop, "vault.zip")
	mustWriteFile(t, root, "vault-bytes")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend, Passwords: []string{"secret"}})

	result := unp.Run(context.Background(), root, out)

	require.Empty(t, result.Errors)
	assert.Equal(t, "secret", result.PasswordUsed[root])
	assert.FileExists(t, filepath.Join(out, "vault", "data.txt"))
}

func TestRunWrongPasswordIsNonDestructive(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["vault.zip"] = map[string]string{"data.txt": "ok"}
	backend.passwords["vault.zip"] = "secret"

	drop := t.TempDir()
	out := t.TempDir()
	root := filepath.Join(drop, "vault.zip")
	mustWriteFile(t, root, "vault-bytes")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend})

	result := unp.Run(context.Background(), root, out)

	assert.False(t, result.Success, "nothing got produced")
	require.Empty(t, result.Errors, "running out of passwords is not a fault")
	require.Len(t, result.Unextracted, 1)
	assert.Contains(t, result.Unextracted[0], "wrong password")
	assert.Empty(t, result.ExtractedArchives)
	assert.FileExists(t, root, "failure must not consume the input")
	assert.NoDirExists(t, filepath.Join(out, "vault"), "partial output is scrubbed")
}

func TestRunZeroFilesExtractedIsAFailure(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["empty.zip"] = map[string]string{}

	drop := t.TempDir()
	out := t.TempDir()
	root := filepath.Join(drop, "empty.zip")
	mustWriteFile(t, root, "empty-bytes")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend})

	result := unp.Run(context.Background(), root, out)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "extracted no files")
	assert.FileExists(t, root)
	assert.NoDirExists(t, filepath.Join(out, "empty"))
}

func TestRunMissingInput(t *testing.T) {
	t.Parallel()

	unp := newUnpackr(t, &unpackr.Config{Backend: newFakeBackend()})

	result := unp.Run(context.Background(), filepath.Join(t.TempDir(), "ghost.zip"), t.TempDir())

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "archive not found")
}

func TestRunContinuationPartAtRoot(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()

	drop := t.TempDir()
	root := filepath.Join(drop, "show.part2.rar")
	mustWriteFile(t, root, "part-bytes")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend})

	result := unp.Run(context.Background(), root, t.TempDir())

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "extract its first part instead")
	assert.Empty(t, backend.extracts)
}

func TestRunUnknownTypeAtRoot(t *testing.T) {
	t.Parallel()

	drop := t.TempDir()
	root := filepath.Join(drop, "notes.bin")
	mustWriteFile(t, root, "just text")

	unp := newUnpackr(t, &unpackr.Config{Backend: newFakeBackend()})

	result := unp.Run(context.Background(), root, t.TempDir())

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unknown archive file type")
	assert.FileExists(t, root)
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["bundle.zip"] = map[string]string{"a.txt": "a"}

	drop := t.TempDir()
	root := filepath.Join(drop, "bundle.zip")
	mustWriteFile(t, root, "bundle-bytes")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	unp := newUnpackr(t, &unpackr.Config{Backend: backend})

	result := unp.Run(ctx, root, t.TempDir())

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "run canceled")
	assert.Empty(t, backend.extracts)
}

// snatchBackend extracts like fakeBackend and then deletes a scripted
// file, standing in for an earlier branch consuming a queued sibling.
type snatchBackend struct {
	*fakeBackend
	// after maps an archive base name to a file removed once that
	// archive has been extracted.
	after map[string]string
}

func (b *snatchBackend) Extract(ctx context.Context, req unpackr.ExtractRequest) (*unpackr.Result, error) {
	res, err := b.fakeBackend.Extract(ctx, req)
	if victim := b.after[filepath.Base(req.Archive)]; victim != "" {
		_ = os.Remove(victim)
	}

	return res, err
}

func TestRunVanishedQueuedArchive(t *testing.T) {
	t.Parallel()

	fake := newFakeBackend()
	fake.archives["bundle.zip"] = map[string]string{
		"first.zip":  "f",
		"second.zip": "s",
	}
	fake.archives["first.zip"] = map[string]string{"a.txt": "a"}
	fake.archives["second.zip"] = map[string]string{"b.txt": "b"}

	drop := t.TempDir()
	out := t.TempDir()
	root := filepath.Join(drop, "bundle.zip")
	mustWriteFile(t, root, "bundle-bytes")

	// second.zip disappears while first.zip is being worked on.
	second := filepath.Join(out, "bundle", "second.zip")
	backend := &snatchBackend{fakeBackend: fake, after: map[string]string{"first.zip": second}}

	unp := newUnpackr(t, &unpackr.Config{Backend: backend})

	result := unp.Run(context.Background(), root, out)

	assert.True(t, result.Success)
	require.Empty(t, result.Errors)
	assert.Empty(t, result.Unextracted)
	assert.Zero(t, fake.extracts["second.zip"], "a vanished file is never handed to the backend")
	assert.NotContains(t, result.FinalFiles, second)
	assert.FileExists(t, filepath.Join(out, "bundle", "first", "a.txt"))
}

func TestProcessDirectory(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["show.part1.rar"] = map[string]string{"episode.mkv": "video"}
	backend.archives["other.zip"] = map[string]string{"bonus.txt": "bonus"}
	backend.passwords["other.zip"] = "letmein"

	drop := t.TempDir()
	out := t.TempDir()
	mustWriteFile(t, filepath.Join(drop, "show.part1.rar"), "p1")
	mustWriteFile(t, filepath.Join(drop, "show.part2.rar"), "p2")
	mustWriteFile(t, filepath.Join(drop, "other.zip"), "z")
	mustWriteFile(t, filepath.Join(drop, "readme.txt"), "notes")
	mustWriteFile(t, filepath.Join(drop, unpackr.ContextPasswordFile), "letmein\n")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend})

	result := unp.ProcessDirectory(context.Background(), drop, out)

	require.Empty(t, result.Errors)
	assert.True(t, result.Success)

	assert.Equal(t, []string{
		filepath.Join(drop, "show.part1.rar"),
		filepath.Join(drop, "other.zip"),
	}, result.ExtractedArchives)

	assert.FileExists(t, filepath.Join(out, "show", "episode.mkv"))
	assert.FileExists(t, filepath.Join(out, "other", "bonus.txt"))
	assert.Equal(t, "letmein", result.PasswordUsed[filepath.Join(drop, "other.zip")],
		"the drop folder's password file feeds the trials")

	// Depth-zero inputs stay; their continuation siblings are consumed.
	assert.FileExists(t, filepath.Join(drop, "show.part1.rar"))
	assert.NoFileExists(t, filepath.Join(drop, "show.part2.rar"))
	assert.FileExists(t, filepath.Join(drop, unpackr.TrashDirName, "show.part2.rar"))
	assert.FileExists(t, filepath.Join(drop, "readme.txt"))
}

func TestProcessDirectoryPartialSuccess(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["good.zip"] = map[string]string{"a.txt": "a"}
	backend.archives["locked.zip"] = map[string]string{"b.txt": "b"}
	backend.passwords["locked.zip"] = "secret"

	drop := t.TempDir()
	out := t.TempDir()
	mustWriteFile(t, filepath.Join(drop, "good.zip"), "g")
	mustWriteFile(t, filepath.Join(drop, "locked.zip"), "l")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend})

	result := unp.ProcessDirectory(context.Background(), drop, out)

	assert.True(t, result.Success, "one locked group must not sink the whole run")
	require.Empty(t, result.Errors)
	require.Len(t, result.Unextracted, 1)
	assert.Contains(t, result.Unextracted[0], "wrong password")

	assert.Equal(t, []string{filepath.Join(drop, "good.zip")}, result.ExtractedArchives)
	assert.FileExists(t, filepath.Join(out, "good", "a.txt"))
	assert.FileExists(t, filepath.Join(drop, "locked.zip"), "the locked input stays put")
	assert.NoDirExists(t, filepath.Join(out, "locked"))
}

func TestProcessDirectoryUncloaksFirst(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.archives["secret.zip"] = map[string]string{"x.txt": "x"}

	drop := t.TempDir()
	out := t.TempDir()

	cloaked := filepath.Join(drop, "secret.zip.bak")
	require.NoError(t, os.WriteFile(cloaked, makeZipBytes(t, map[string]string{"x.txt": "x"}), 0o600))

	unp := newUnpackr(t, &unpackr.Config{Backend: backend})

	result := unp.ProcessDirectory(context.Background(), drop, out)

	require.Empty(t, result.Errors)
	assert.Equal(t, []string{filepath.Join(drop, "secret.zip")}, result.ExtractedArchives)
	assert.NoFileExists(t, cloaked, "the cloaked name is repaired on disk before grouping")
	assert.FileExists(t, filepath.Join(drop, "secret.zip"))
	assert.FileExists(t, filepath.Join(out, "secret", "x.txt"))
}

func TestProcessDirectoryMissingFirstPart(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()

	drop := t.TempDir()
	mustWriteFile(t, filepath.Join(drop, "show.part2.rar"), "p2")
	mustWriteFile(t, filepath.Join(drop, "show.part3.rar"), "p3")

	unp := newUnpackr(t, &unpackr.Config{Backend: backend})

	result := unp.ProcessDirectory(context.Background(), drop, t.TempDir())

	assert.False(t, result.Success)
	require.Empty(t, result.Errors)
	require.Len(t, result.Unextracted, 1)
	assert.Contains(t, result.Unextracted[0], "missing its first part")
	assert.Empty(t, backend.extracts)
	assert.FileExists(t, filepath.Join(drop, "show.part2.rar"))
	assert.FileExists(t, filepath.Join(drop, "show.part3.rar"))
}

func TestProcessDirectoryNoArchives(t *testing.T) {
	t.Parallel()

	drop := t.TempDir()
	mustWriteFile(t, filepath.Join(drop, "readme.txt"), "nothing to do")

	unp := newUnpackr(t, &unpackr.Config{Backend: newFakeBackend()})

	result := unp.ProcessDirectory(context.Background(), drop, t.TempDir())

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "no archive files found")
}

func TestProcessDirectoryNotAFolder(t *testing.T) {
	t.Parallel()

	drop := t.TempDir()
	file := filepath.Join(drop, "file.zip")
	mustWriteFile(t, file, "z")

	unp := newUnpackr(t, &unpackr.Config{Backend: newFakeBackend()})

	result := unp.ProcessDirectory(context.Background(), file, t.TempDir())

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "not a readable folder")
}

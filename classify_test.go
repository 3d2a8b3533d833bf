package unpackr_test

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	unpackr "github.com/rozx/Complex-unzip-tool-v2-sub000"
)

func TestIsArchiveFile(t *testing.T) {
	t.Parallel()

	archives := []string{
		"show.zip", "show.ZIP", "show.rar", "show.7z", "show.tar.gz",
		"show.tgz", "show.iso", "show.gz", "show.bz2", "show.zst",
		"show.part1.rar", "show.r00", "show.z01", "show.7z.001", "show.001",
	}
	for _, name := range archives {
		assert.True(t, unpackr.IsArchiveFile(name), name)
	}

	plain := []string{"show.txt", "show.nfo", "readme", "show.zip.txt.doc", "notes.md"}
	for _, name := range plain {
		assert.False(t, unpackr.IsArchiveFile(name), name)
	}
}

func TestStripSuffixes(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"show.zip":        "show",
		"show.tar.gz":     "show",
		"show.7z.001":     "show",
		"show.part2.rar":  "show",
		"show.z01":        "show",
		"backup.tgz":      "backup",
		"data.001":        "data",
		"plain.txt":       "plain.txt",
		"archive.zip.zip": "archive",
	}

	for name, want := range cases {
		assert.Equal(t, want, unpackr.StripSuffixes(name), name)
	}
}

func TestClassifyBySuffix(t *testing.T) {
	t.Parallel()

	classifier := unpackr.NewClassifier(nil, &testLogger{t: t})

	cls := classifier.Classify("/drop/holiday.tar.gz")
	assert.True(t, cls.Archive)
	assert.Equal(t, unpackr.TypeTar, cls.Type)
	assert.Equal(t, unpackr.MethodSuffix, cls.Method)
	assert.Equal(t, "holiday", cls.BaseName)
	assert.True(t, cls.FirstPart)
	assert.False(t, cls.Multipart)
}

func TestClassifyMultipart(t *testing.T) {
	t.Parallel()

	classifier := unpackr.NewClassifier(nil, &testLogger{t: t})

	t.Run("part1_is_the_entry", func(t *testing.T) {
		t.Parallel()

		cls := classifier.Classify("/drop/game.part1.rar")
		assert.True(t, cls.Archive)
		assert.True(t, cls.Multipart)
		assert.True(t, cls.FirstPart)
		assert.Equal(t, 1, cls.PartNumber)
		assert.Equal(t, unpackr.TypeRar, cls.Type)
		assert.False(t, cls.Continuation())
	})

	t.Run("part2_is_a_continuation", func(t *testing.T) {
		t.Parallel()

		cls := classifier.Classify("/drop/game.part2.rar")
		assert.True(t, cls.Multipart)
		assert.False(t, cls.FirstPart)
		assert.True(t, cls.Continuation())
	})

	t.Run("z_volume_needs_its_zip", func(t *testing.T) {
		t.Parallel()

		// A zNN volume is never the entry point; game.zip is.
		cls := classifier.Classify("/drop/game.z01")
		assert.True(t, cls.Multipart)
		assert.False(t, cls.FirstPart)
		assert.True(t, cls.Continuation())
	})

	t.Run("r00_shifts_behind_the_rar", func(t *testing.T) {
		t.Parallel()

		// rNN volumes shift by one so the .rar entry can sit at 0.
		cls := classifier.Classify("/drop/game.r00")
		assert.True(t, cls.Multipart)
		assert.Equal(t, 1, cls.PartNumber)
		assert.False(t, cls.FirstPart, "only the set analyzer may promote a headless r00")
	})
}

func TestClassifyBySignature(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "download.bin")
	require.NoError(t, os.WriteFile(path, makeZipBytes(t, map[string]string{"a.txt": "hi"}), 0o600))

	classifier := unpackr.NewClassifier(nil, &testLogger{t: t})

	cls := classifier.Classify(path)
	assert.True(t, cls.Archive)
	assert.Equal(t, unpackr.TypeZip, cls.Type)
	assert.Equal(t, unpackr.MethodSignature, cls.Method)
	assert.Empty(t, cls.Renamed, "nil rules must never rename")
}

func TestClassifyUncloaksJunkExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cloaked := filepath.Join(dir, "secret.zip.bak")
	require.NoError(t, os.WriteFile(cloaked, makeZipBytes(t, map[string]string{"a.txt": "hi"}), 0o600))

	classifier := unpackr.NewClassifier(unpackr.DefaultCloakRules(), &testLogger{t: t})

	cls := classifier.Classify(cloaked)
	assert.Equal(t, unpackr.MethodUncloak, cls.Method)
	assert.Equal(t, unpackr.TypeZip, cls.Type)

	fixed := filepath.Join(dir, "secret.zip")
	assert.Equal(t, fixed, cls.Path)
	assert.Equal(t, fixed, cls.Renamed)

	assert.FileExists(t, fixed)
	assert.NoFileExists(t, cloaked)
}

func TestClassifyUncloakNeverOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cloaked := filepath.Join(dir, "secret.zip.bak")
	require.NoError(t, os.WriteFile(cloaked, makeZipBytes(t, map[string]string{"a.txt": "hi"}), 0o600))
	mustWriteFile(t, filepath.Join(dir, "secret.zip"), "already here")

	classifier := unpackr.NewClassifier(unpackr.DefaultCloakRules(), &testLogger{t: t})

	cls := classifier.Classify(cloaked)
	assert.Equal(t, cloaked, cls.Path, "the file stays where it is")
	assert.Empty(t, cls.Renamed)
	assert.FileExists(t, cloaked)

	data, err := os.ReadFile(filepath.Join(dir, "secret.zip"))
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data))
}

func TestClassifyUncloaksContinuationPart(t *testing.T) {
	t.Parallel()

	// Middle volumes of a split archive carry no magic bytes, so the
	// name is all there is to go on.
	dir := t.TempDir()
	cloaked := filepath.Join(dir, "movie.7z@.002")
	mustWriteFile(t, cloaked, "raw split payload, no signature")

	classifier := unpackr.NewClassifier(unpackr.DefaultCloakRules(), &testLogger{t: t})

	cls := classifier.Classify(cloaked)
	assert.Equal(t, unpackr.MethodUncloak, cls.Method)
	assert.Equal(t, unpackr.TypeSevenZip, cls.Type)
	assert.True(t, cls.Multipart)
	assert.True(t, cls.Continuation())

	fixed := filepath.Join(dir, "movie.7z.002")
	assert.Equal(t, fixed, cls.Path)
	assert.Equal(t, fixed, cls.Renamed)
	assert.FileExists(t, fixed)
	assert.NoFileExists(t, cloaked)
}

func TestClassifyPlainFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	mustWriteFile(t, path, "just some text")

	classifier := unpackr.NewClassifier(unpackr.DefaultCloakRules(), &testLogger{t: t})

	cls := classifier.Classify(path)
	assert.False(t, cls.Archive)
	assert.Empty(t, cls.Type)
}

func TestClassifyAllKeepsOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "one.zip"),
		filepath.Join(dir, "two.txt"),
		filepath.Join(dir, "three.rar"),
	}
	for _, path := range paths {
		mustWriteFile(t, path, "x")
	}

	classifier := unpackr.NewClassifier(nil, &testLogger{t: t})

	all := classifier.ClassifyAll(paths)
	require.Len(t, all, 3)
	assert.Equal(t, paths[0], all[0].Path)
	assert.Equal(t, paths[1], all[1].Path)
	assert.Equal(t, paths[2], all[2].Path)
	assert.True(t, all[0].Archive)
	assert.False(t, all[1].Archive)
	assert.True(t, all[2].Archive)
}

// makeZipBytes builds a real zip archive in memory.
func makeZipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer

	writer := zip.NewWriter(&buf)

	for name, content := range files {
		fw, err := writer.Create(name)
		require.NoError(t, err)

		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	return buf.Bytes()
}

package unpackr_test

import (
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	unpackr "github.com/rozx/Complex-unzip-tool-v2-sub000"
)

// gbkName returns the GBK byte form of a UTF-8 name, the way a legacy
// Windows zip tool would have written it.
func gbkName(t *testing.T, name string) string {
	t.Helper()

	raw, err := simplifiedchinese.GBK.NewEncoder().String(name)
	require.NoError(t, err)
	require.False(t, utf8.ValidString(raw), "fixture must not be valid UTF-8")

	return raw
}

func TestDecodeName(t *testing.T) {
	t.Parallel()

	t.Run("utf8_passthrough", func(t *testing.T) {
		t.Parallel()

		got, changed := unpackr.DecodeName("已经是中文.txt")
		assert.False(t, changed)
		assert.Equal(t, "已经是中文.txt", got)
	})

	t.Run("ascii_passthrough", func(t *testing.T) {
		t.Parallel()

		got, changed := unpackr.DecodeName("report.txt")
		assert.False(t, changed)
		assert.Equal(t, "report.txt", got)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		got, changed := unpackr.DecodeName("")
		assert.False(t, changed)
		assert.Empty(t, got)
	})

	t.Run("gbk_mojibake_repaired", func(t *testing.T) {
		t.Parallel()

		want := "年度财务数据统计分析报告资料.txt"
		raw := gbkName(t, want)

		got, changed := unpackr.DecodeName(raw)
		assert.True(t, changed)
		assert.Equal(t, want, got)
	})

	t.Run("unmapped_charset_untouched", func(t *testing.T) {
		t.Parallel()

		// A UTF-16LE BOM detects with full confidence, but nothing in a
		// drop folder writes UTF-16 names, so there is no decoder for it.
		raw := "\xff\xfedata.txt"

		got, changed := unpackr.DecodeName(raw)
		assert.False(t, changed)
		assert.Equal(t, raw, got)
	})
}

func TestRepairNames(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	dirRaw := gbkName(t, "年度财务数据统计分析资料")
	fileRaw := gbkName(t, "项目整体计划安排时间表.txt")

	mustWriteFile(t, filepath.Join(root, dirRaw, fileRaw), "content")
	mustWriteFile(t, filepath.Join(root, "plain.txt"), "plain")

	renamed := unpackr.RepairNames(root, &testLogger{t: t})

	assert.Equal(t, 2, renamed, "the folder and the file inside it")
	assert.NoDirExists(t, filepath.Join(root, dirRaw))

	repaired := filepath.Join(root, "年度财务数据统计分析资料", "项目整体计划安排时间表.txt")
	require.FileExists(t, repaired, "children rename before their folder")

	data, err := os.ReadFile(repaired)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	assert.FileExists(t, filepath.Join(root, "plain.txt"))
}

func TestRepairNamesKeepsExistingTarget(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	raw := gbkName(t, "重要文件备份数据资料整理.txt")

	mustWriteFile(t, filepath.Join(root, raw), "mojibake")
	mustWriteFile(t, filepath.Join(root, "重要文件备份数据资料整理.txt"), "already here")

	renamed := unpackr.RepairNames(root, &testLogger{t: t})

	assert.Zero(t, renamed)
	assert.FileExists(t, filepath.Join(root, raw), "never clobber an existing file")

	data, err := os.ReadFile(filepath.Join(root, "重要文件备份数据资料整理.txt"))
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data))
}

func TestRepairNamesNothingToDo(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "fine.txt"), "a")
	mustWriteFile(t, filepath.Join(root, "正常名称.txt"), "b")

	assert.Zero(t, unpackr.RepairNames(root, &testLogger{t: t}))
}

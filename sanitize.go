package unpackr

/* Path sanitation: make archive member names safe for the local
   filesystem. Illegal characters, reserved device names and over-long
   components are repaired per path element. The sanitized-move helper
   relocates a whole extraction out of a short scratch dir into its real
   output folder under the repaired names. */

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxNameBytes is the largest file name component most filesystems accept.
const maxNameBytes = 255

// UnnamedFile replaces names that sanitize away to nothing.
const UnnamedFile = "unnamed_file"

//nolint:gochecknoglobals
var (
	// illegalNameChars are bytes no portable file name can carry.
	illegalNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

	// fullwidthPunct folds fullwidth punctuation to its ASCII twin before
	// the illegal-character pass, so a fullwidth slash dies like a real one.
	fullwidthPunct = strings.NewReplacer(
		"＜", "<", "＞", ">", "：", ":", "＂", `"`, "／", "/",
		"＼", `\`, "｜", "|", "？", "?", "＊", "*",
		"，", ",", "。", ".", "．", ".", "；", ";", "！", "!",
		"（", "(", "）", ")", "［", "[", "］", "]", "｛", "{", "｝", "}",
		"\u3000", " ",
	)

	// reservedNames are device names Windows refuses, with or without an
	// extension.
	reservedNames = map[string]bool{
		"con": true, "prn": true, "aux": true, "nul": true,
		"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
		"com6": true, "com7": true, "com8": true, "com9": true,
		"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
		"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	}
)

// SanitizeName repairs one path component: fullwidth punctuation is
// folded, illegal characters become underscores, trailing dots and spaces
// go away, reserved device names get a prefix, and the result is capped
// at 255 bytes keeping the extension and whole runes. An empty result
// comes back as "unnamed_file".
func SanitizeName(name string) string {
	name = fullwidthPunct.Replace(name)
	name = illegalNameChars.ReplaceAllString(name, "_")
	name = strings.TrimRight(name, " .")

	if name == "" {
		return UnnamedFile
	}

	stem := name
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		stem = name[:idx]
	}

	// CON.txt is as unusable as CON.
	if reservedNames[strings.ToLower(stem)] {
		name = "_" + name
	}

	if len(name) > maxNameBytes {
		name = capName(name)
	}

	return name
}

// capName shortens a component to maxNameBytes, preferring to keep the
// extension whole.
func capName(name string) string {
	ext := filepath.Ext(name)
	if len(ext) >= maxNameBytes {
		return truncateRunes(name, maxNameBytes)
	}

	stem := truncateRunes(strings.TrimSuffix(name, ext), maxNameBytes-len(ext))
	if stem == "" {
		return truncateRunes(name, maxNameBytes)
	}

	return stem + ext
}

// truncateRunes cuts s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}

	for idx := max; idx > 0; idx-- {
		if utf8.RuneStart(s[idx]) {
			return s[:idx]
		}
	}

	return ""
}

// SanitizePath applies SanitizeName to every component of path, keeping
// the separators. Empty components (doubled or leading separators) pass
// through untouched.
func SanitizePath(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, part := range parts {
		if part == "" {
			continue
		}

		parts[i] = SanitizeName(part)
	}

	return filepath.FromSlash(strings.Join(parts, "/"))
}

// moveSanitized relocates every file under fromPath into toPath with
// sanitized relative names, then removes fromPath. Name collisions
// deduplicate with numeric suffixes instead of clobbering, unless
// overwrite allows replacement. Like moveTree, a per-file failure keeps
// going and the last error is returned with whatever did move.
func moveSanitized(fromPath, toPath string, overwrite bool, fileMode, dirMode os.FileMode) ([]string, error) {
	if fileMode == 0 {
		fileMode = DefaultFileMode
	}

	if dirMode == 0 {
		dirMode = DefaultDirMode
	}

	if err := os.MkdirAll(toPath, dirMode); err != nil {
		return nil, fmt.Errorf("os.MkdirAll: %w", err)
	}

	files, err := ListTree(fromPath)
	if err != nil {
		return nil, err
	}

	var (
		moved   []string
		keepErr error
	)

	for _, fpath := range files {
		rel, err := filepath.Rel(fromPath, fpath)
		if err != nil {
			keepErr = fmt.Errorf("filepath.Rel: %w", err)
			continue
		}

		newFile := filepath.Join(toPath, SanitizePath(rel))

		if _, err := os.Stat(newFile); err == nil && !overwrite {
			if newFile, err = uniquePath(newFile); err != nil {
				keepErr = err
				continue
			}
		}

		if err := os.MkdirAll(filepath.Dir(newFile), dirMode); err != nil {
			keepErr = fmt.Errorf("os.MkdirAll: %w", err)
			continue
		}

		if err := rename(fpath, newFile, fileMode); err != nil {
			keepErr = err
			continue
		}

		moved = append(moved, newFile)
	}

	if keepErr == nil {
		_ = os.RemoveAll(fromPath)
	}

	return moved, keepErr
}

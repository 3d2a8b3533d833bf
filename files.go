package unpackr

/* Code to find, write, move and delete files. */

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// file describes one output file while it is being written to disk.
type file struct {
	Path     string
	Data     io.Reader
	FileMode os.FileMode
	DirMode  os.FileMode
	Mtime    time.Time
}

// Write writes the file to disk, creating parent directories as needed,
// and restores the modification time when one was provided.
func (f *file) Write() (int64, error) {
	size, err := writeFile(f.Path, f.Data, f.FileMode, f.DirMode)
	if err != nil {
		return size, err
	}

	if !f.Mtime.IsZero() {
		if err := os.Chtimes(f.Path, time.Now(), f.Mtime); err != nil {
			return size, fmt.Errorf("os.Chtimes: %w", err)
		}
	}

	return size, nil
}

// writeFile writes a file from an io reader, making sure all parent directories exist.
func writeFile(fpath string, fdata io.Reader, fMode, dMode os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(fpath), dMode); err != nil {
		return 0, fmt.Errorf("os.MkdirAll: %w", err)
	}

	fout, err := os.Create(fpath)
	if err != nil {
		return 0, fmt.Errorf("os.Create: %w", err)
	}
	defer fout.Close()

	if runtime.GOOS != "windows" && fMode != 0 {
		if err = fout.Chmod(fMode); err != nil {
			return 0, fmt.Errorf("chmod: %w", err)
		}
	}

	s, err := io.Copy(fout, fdata)
	if err != nil {
		return s, fmt.Errorf("copying io: %w", err)
	}

	return s, nil
}

// openStatFile opens a file and returns its stat info along with the handle.
func openStatFile(path string) (*os.File, os.FileInfo, error) {
	fileOpen, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("os.Open: %w", err)
	}

	stat, err := fileOpen.Stat()
	if err != nil {
		fileOpen.Close()
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}

	return fileOpen, stat, nil
}

// ListDir returns all the entries in a path, non-recursive, sorted.
// Only entries _in_ the base path are returned, directories included.
func ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadDir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		files = append(files, filepath.Join(path, entry.Name()))
	}

	sort.Strings(files)

	return files, nil
}

// ListTree returns all regular files under a path, recursive, sorted.
func ListTree(path string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(path, func(fpath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.IsDir() {
			files = append(files, fpath)
		}

		return nil
	})
	if err != nil {
		return files, fmt.Errorf("walking %s: %w", path, err)
	}

	sort.Strings(files)

	return files, nil
}

// Difference returns all the strings that are in slice2 but not in slice1.
// Used to find new files in a file list from a path. ie. those we extracted.
func Difference(slice1 []string, slice2 []string) (diff []string) {
	for _, s2p := range slice2 {
		var found bool

		for _, s1 := range slice1 {
			if s1 == s2p {
				found = true

				break
			}
		}

		if !found { // String not found, so it's a new string, add it to the diff.
			diff = append(diff, s2p)
		}
	}

	return diff
}

// cleanJoin returns an absolute path for name inside dir, rejecting entries
// that try to escape the output folder. If trim suffixes are provided, the
// name is reduced to its base and the suffixes are removed first.
func cleanJoin(dir, name string, trim ...string) (string, error) {
	if len(trim) != 0 {
		name = filepath.Base(name)
		for _, suffix := range trim {
			name = strings.TrimSuffix(name, suffix)
		}
	}

	joined := filepath.Clean(filepath.Join(dir, name))
	if joined != filepath.Clean(dir) && !strings.HasPrefix(joined, filepath.Clean(dir)+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s (from: %s)", ErrInvalidPath, joined, name)
	}

	return joined, nil
}

// rename moves a file, falling back to copy+remove for cross-device moves.
func rename(oldpath, newpath string, fileMode os.FileMode) error {
	if err := os.Rename(oldpath, newpath); err == nil {
		return nil
	}

	/* Rename failed, try copy. */

	oldFile, err := os.Open(oldpath) // do not forget to close this!
	if err != nil {
		return fmt.Errorf("os.Open(): %w", err)
	}

	newFile, err := os.OpenFile(newpath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		oldFile.Close()
		return fmt.Errorf("os.OpenFile(): %w", err)
	}
	defer newFile.Close()

	_, err = io.Copy(newFile, oldFile)
	oldFile.Close()

	if err != nil {
		return fmt.Errorf("io.Copy(): %w", err)
	}

	// The copy was successful, so now delete the original file.
	_ = os.Remove(oldpath)

	return nil
}

// uniqueDir returns path if it does not exist, or the first "path.N" that
// does not exist. Mirrors the temp-folder naming used for output subdirs.
func uniqueDir(path string) (string, error) {
	const tryNames = 999

	if _, err := os.Stat(path); err != nil {
		return path, nil //nolint:nilerr // not existing is the goal.
	}

	for i := range tryNames {
		loopName := path + fmt.Sprint(".", i)
		if _, err := os.Stat(loopName); err != nil {
			return loopName, nil //nolint:nilerr
		}
	}

	return "", fmt.Errorf("%w: %s", ErrDirCollision, path)
}

// uniquePath returns path if it is free, or inserts "_N" before the
// extension until a free name is found.
func uniquePath(path string) (string, error) {
	const tryNames = 999

	if _, err := os.Stat(path); err != nil {
		return path, nil //nolint:nilerr
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	for i := 1; i <= tryNames; i++ {
		loopName := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Stat(loopName); err != nil {
			return loopName, nil //nolint:nilerr
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNameTooLong, path)
}

// moveTree relocates every entry inside fromPath into toPath, keeping the
// relative layout, then removes fromPath. Existing files are only replaced
// when overwrite is set; otherwise the source entry stays where it is and
// an error is returned after all other entries were tried.
func moveTree(fromPath, toPath string, overwrite bool, fileMode, dirMode os.FileMode) ([]string, error) {
	var (
		newFiles []string
		keepErr  error
	)

	if err := os.MkdirAll(toPath, dirMode); err != nil {
		return nil, fmt.Errorf("os.MkdirAll: %w", err)
	}

	files, err := ListTree(fromPath)
	if err != nil {
		return nil, err
	}

	for _, fpath := range files {
		rel, err := filepath.Rel(fromPath, fpath)
		if err != nil {
			keepErr = fmt.Errorf("filepath.Rel: %w", err)
			continue
		}

		newFile := filepath.Join(toPath, rel)

		if _, err := os.Stat(newFile); err == nil && !overwrite {
			keepErr = fmt.Errorf("%w: refusing to overwrite %s", os.ErrExist, newFile)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(newFile), dirMode); err != nil {
			keepErr = fmt.Errorf("os.MkdirAll: %w", err)
			continue
		}

		if err := rename(fpath, newFile, fileMode); err != nil {
			keepErr = err
			continue
		}

		newFiles = append(newFiles, newFile)
	}

	if keepErr == nil {
		_ = os.RemoveAll(fromPath)
	}

	return newFiles, keepErr
}

// RemoveEmptyDirs deletes empty directories under root, deepest first.
// The root itself is never removed. Returns how many were deleted.
func RemoveEmptyDirs(root string) int {
	var dirs []string

	_ = filepath.WalkDir(root, func(fpath string, entry fs.DirEntry, err error) error {
		if err == nil && entry.IsDir() && fpath != root {
			dirs = append(dirs, fpath)
		}

		return nil
	})

	// Deepest paths first so nested empties collapse upward.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	removed := 0

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}

		if err := os.Remove(dir); err == nil {
			removed++
		}
	}

	return removed
}

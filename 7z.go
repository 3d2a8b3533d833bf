package unpackr

/* How to extract a 7-Zip archive in-process. */

import (
	"fmt"

	"github.com/bodgit/sevenzip"
)

// extract7z extracts a 7z archive. Solid blocks decompress front to back,
// so members are written in archive order.
func (t *task) extract7z() (int64, []string, error) {
	sevenZip, err := t.open7z()
	if err != nil {
		return 0, nil, fmt.Errorf("sevenzip.OpenReader: %w", t.hint7z(err))
	}
	defer sevenZip.Close()

	files := []string{}
	size := int64(0)

	for _, zf := range sevenZip.File {
		if !t.wants(zf.Name) {
			continue
		}

		wfile, err := t.clean(zf.Name)
		if err != nil {
			return size, files, fmt.Errorf("%w (from: %s)", err, zf.Name)
		}

		if zf.FileInfo().IsDir() {
			if err := t.mkDir(wfile); err != nil {
				return size, files, err
			}

			continue
		}

		fSize, err := t.un7zipFile(zf, wfile)
		if err != nil {
			return size, files, err
		}

		files = append(files, wfile)
		size += fSize
	}

	return size, files, nil
}

func (t *task) un7zipFile(zf *sevenzip.File, wfile string) (int64, error) {
	zFile, err := zf.Open()
	if err != nil {
		return 0, fmt.Errorf("7zFile.Open: %w", t.hint7z(err))
	}
	defer zFile.Close()

	fSize, err := t.write(&file{
		Path:     wfile,
		Data:     zFile,
		FileMode: zf.FileInfo().Mode(),
		Mtime:    zf.Modified,
	})
	if err != nil {
		return fSize, fmt.Errorf("%s: %w", zf.Name, t.hint7z(err))
	}

	return fSize, nil
}

// open7z opens the archive with the task's password when one is set. A
// name ending in .001 opens the whole volume chain.
func (t *task) open7z() (*sevenzip.ReadCloser, error) {
	if t.Password != "" {
		return sevenzip.OpenReaderWithPassword(t.Archive, t.Password)
	}

	return sevenzip.OpenReader(t.Archive)
}

// hint7z annotates 7z read failures. The reader cannot tell damage from a
// bad or missing key (encrypted headers fail to parse, encrypted content
// fails its checksum), so the password angle rides along for outcome
// classification.
func (t *task) hint7z(err error) error {
	return t.passwordHint(t.needPasswordHint(err))
}

// list7z reads the member table without extracting anything.
func list7z(archive, password string) ([]Entry, error) {
	t := &task{Archive: archive, Password: password}

	sevenZip, err := t.open7z()
	if err != nil {
		return nil, fmt.Errorf("sevenzip.OpenReader: %w", t.hint7z(err))
	}
	defer sevenZip.Close()

	entries := make([]Entry, 0, len(sevenZip.File))

	for _, zf := range sevenZip.File {
		entries = append(entries, Entry{
			Path:     zf.Name,
			Size:     int64(zf.UncompressedSize),
			Modified: zf.Modified,
			CRC:      fmt.Sprintf("%08X", zf.CRC32),
			Dir:      zf.FileInfo().IsDir(),
		})
	}

	return entries, nil
}

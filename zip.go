package unpackr

/* How to extract a ZIP file, plain or password-protected. */

import (
	"fmt"
	"strings"

	"github.com/yeka/zip"
)

// extractZip extracts a zip archive to the output folder. The zip fork in
// use reads plain, ZipCrypto and AES archives through one API.
func (t *task) extractZip() (int64, []string, error) {
	// Zip has no header encryption, so a failed open is structural.
	zipReader, err := zip.OpenReader(t.Archive)
	if err != nil {
		return 0, nil, fmt.Errorf("zip.OpenReader: %w", err)
	}
	defer zipReader.Close()

	files := []string{}
	size := int64(0)

	for _, zf := range zipReader.Reader.File {
		if !t.wants(zf.Name) {
			continue
		}

		wfile, fSize, err := t.unzipFile(zf)
		if err != nil {
			return size, files, fmt.Errorf("%s: %w", t.Archive, err)
		}

		if wfile != "" {
			files = append(files, wfile)
		}

		size += fSize
	}

	return size, files, nil
}

// unzipFile writes one zip member to disk. Directories return an empty path.
func (t *task) unzipFile(zf *zip.File) (string, int64, error) {
	wfile, err := t.clean(zf.Name)
	if err != nil {
		return "", 0, fmt.Errorf("%w (from: %s)", err, zf.Name)
	}

	if strings.HasSuffix(zf.Name, "/") || zf.FileInfo().IsDir() {
		if err := t.mkDir(wfile); err != nil {
			return "", 0, err
		}

		return "", 0, nil
	}

	if zf.IsEncrypted() {
		if t.Password == "" {
			return "", 0, fmt.Errorf("%w: %s: password required", ErrWrongPassword, zf.Name)
		}

		zf.SetPassword(t.Password)
	}

	zFile, err := zf.Open()
	if err != nil {
		return "", 0, fmt.Errorf("zipFile.Open: %w", t.passwordHint(err))
	}
	defer zFile.Close()

	// A ZipCrypto member opened with the wrong password does not error here;
	// it inflates garbage and fails inside the copy below.
	fSize, err := t.write(&file{Path: wfile, Data: zFile, Mtime: zf.FileInfo().ModTime()})
	if err != nil {
		return "", fSize, fmt.Errorf("%s: %w", zf.Name, t.passwordHint(err))
	}

	return wfile, fSize, nil
}

// listZip reads the zip central directory without extracting anything.
func listZip(archive string) ([]Entry, error) {
	zipReader, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("zip.OpenReader: %w", err)
	}
	defer zipReader.Close()

	entries := make([]Entry, 0, len(zipReader.Reader.File))

	for _, zf := range zipReader.Reader.File {
		entries = append(entries, Entry{
			Path:      zf.Name,
			Size:      int64(zf.UncompressedSize64),
			Packed:    int64(zf.CompressedSize64),
			Modified:  zf.FileInfo().ModTime(),
			Encrypted: zf.IsEncrypted(),
			CRC:       fmt.Sprintf("%08X", zf.CRC32),
			Dir:       strings.HasSuffix(zf.Name, "/") || zf.FileInfo().IsDir(),
		})
	}

	return entries, nil
}

package unpackr

/* How to extract a RAR archive. */

import (
	"errors"
	"fmt"
	"io"

	"github.com/nwaples/rardecode/v2"
)

// extractRar extracts a rar archive. Multi-volume sets open through their
// first part; the reader pulls sibling volumes in as it goes. The decoder
// names its own password errors, so no extra annotation is needed when the
// archive wants a password it never got.
func (t *task) extractRar() (int64, []string, error) {
	rarReader, err := t.openRar()
	if err != nil {
		return 0, nil, fmt.Errorf("rardecode.OpenReader: %w", t.passwordHint(err))
	}
	defer rarReader.Close()

	files := []string{}
	size := int64(0)

	for {
		header, err := rarReader.Next()

		switch {
		case errors.Is(err, io.EOF):
			return size, files, nil
		case err != nil:
			return size, files, fmt.Errorf("rarReader.Next: %w", t.passwordHint(err))
		case header == nil:
			return size, files, fmt.Errorf("%w: %s", ErrInvalidHead, t.Archive)
		}

		if !t.wants(header.Name) {
			continue
		}

		wfile, err := t.clean(header.Name)
		if err != nil {
			return size, files, fmt.Errorf("%w (from: %s)", err, header.Name)
		}

		if header.IsDir {
			if err := t.mkDir(wfile); err != nil {
				return size, files, err
			}

			continue
		}

		fSize, err := t.write(&file{
			Path:     wfile,
			Data:     rarReader,
			FileMode: header.Mode(),
			Mtime:    header.ModificationTime,
		})
		if err != nil {
			return size, files, fmt.Errorf("%s: %w", header.Name, t.passwordHint(err))
		}

		files = append(files, wfile)
		size += fSize
	}
}

// openRar opens the archive with the task's password when one is set.
func (t *task) openRar() (*rardecode.ReadCloser, error) {
	if t.Password != "" {
		return rardecode.OpenReader(t.Archive, rardecode.Password(t.Password))
	}

	return rardecode.OpenReader(t.Archive)
}

// listRar walks the volume headers without unpacking file data.
func listRar(archive, password string) ([]Entry, error) {
	t := &task{Archive: archive, Password: password}

	rarReader, err := t.openRar()
	if err != nil {
		return nil, fmt.Errorf("rardecode.OpenReader: %w", t.passwordHint(err))
	}
	defer rarReader.Close()

	entries := []Entry{}

	for {
		header, err := rarReader.Next()

		switch {
		case errors.Is(err, io.EOF):
			return entries, nil
		case err != nil:
			return nil, fmt.Errorf("rarReader.Next: %w", t.passwordHint(err))
		case header == nil:
			return nil, fmt.Errorf("%w: %s", ErrInvalidHead, archive)
		}

		entries = append(entries, Entry{
			Path:     header.Name,
			Size:     header.UnPackedSize,
			Packed:   header.PackedSize,
			Modified: header.ModificationTime,
			Dir:      header.IsDir,
		})
	}
}

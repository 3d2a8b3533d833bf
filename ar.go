package unpackr

/* How to extract an ar archive. Debian packages (.deb) are ar archives. */

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterebden/ar"
)

// extractAr extracts an ar archive to the output folder.
func (t *task) extractAr() (int64, []string, error) {
	arFile, err := os.Open(t.Archive)
	if err != nil {
		return 0, nil, fmt.Errorf("os.Open: %w", err)
	}
	defer arFile.Close()

	return t.unAr(arFile)
}

// unAr writes the archive's members. The ar format stores no directories,
// just a flat list of files.
func (t *task) unAr(stream io.Reader) (int64, []string, error) {
	arReader := ar.NewReader(stream)
	files := []string{}
	size := int64(0)

	for {
		header, err := arReader.Next()

		switch {
		case errors.Is(err, io.EOF):
			return size, files, nil
		case err != nil:
			return size, files, fmt.Errorf("arReader.Next: %w", err)
		case header == nil:
			return size, files, fmt.Errorf("%w: %s", ErrInvalidHead, t.Archive)
		}

		// GNU ar pads member names with a trailing slash.
		name := strings.TrimSuffix(strings.TrimSpace(header.Name), "/")
		if name == "" || !t.wants(name) {
			continue
		}

		wfile, err := t.clean(name)
		if err != nil {
			return size, files, fmt.Errorf("%w (from: %s)", err, header.Name)
		}

		//nolint:gosec // file modes do not overflow an integer conversion.
		fSize, err := t.write(&file{
			Path:     wfile,
			Data:     arReader,
			FileMode: os.FileMode(header.Mode),
			Mtime:    header.ModTime,
		})
		if err != nil {
			return size, files, fmt.Errorf("%s: %w", name, err)
		}

		files = append(files, wfile)
		size += fSize
	}
}

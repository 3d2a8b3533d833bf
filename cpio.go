package unpackr

/* How to extract a cpio archive, bare or gzip-wrapped (cpgz). */

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cavaliergopher/cpio"
	"github.com/klauspost/compress/gzip"
)

// extractCpio extracts a cpio archive. macOS ships pre-gzipped ones as
// .cpgz, so the wrapper is unwound first when the name says so.
func (t *task) extractCpio() (int64, []string, error) {
	cpioFile, err := os.Open(t.Archive)
	if err != nil {
		return 0, nil, fmt.Errorf("os.Open: %w", err)
	}
	defer cpioFile.Close()

	if strings.HasSuffix(strings.ToLower(t.Archive), ".cpgz") {
		zipStream, err := gzip.NewReader(cpioFile)
		if err != nil {
			return 0, nil, fmt.Errorf("gzip.NewReader: %w", err)
		}
		defer zipStream.Close()

		return t.uncpio(zipStream)
	}

	return t.uncpio(cpioFile)
}

// uncpio writes every directory and regular file in the stream. Links are
// skipped so an archive cannot plant a pointer outside the output folder.
func (t *task) uncpio(stream io.Reader) (int64, []string, error) {
	cpioReader := cpio.NewReader(stream)
	files := []string{}
	size := int64(0)

	for {
		header, err := cpioReader.Next()

		switch {
		case errors.Is(err, io.EOF):
			return size, files, nil
		case err != nil:
			return size, files, fmt.Errorf("cpioReader.Next: %w", err)
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

		switch {
		case header.Mode.IsDir() || header.FileInfo().IsDir():
			if err := t.mkDir(wfile); err != nil {
				return size, files, err
			}
		case header.Linkname != "" || !header.FileInfo().Mode().IsRegular():
			t.log.Debugf("Skipping cpio entry %s (link or special file)", header.Name)
		default:
			fSize, err := t.write(&file{
				Path:     wfile,
				Data:     cpioReader,
				FileMode: header.FileInfo().Mode(),
				Mtime:    header.ModTime,
			})
			if err != nil {
				return size, files, fmt.Errorf("%s: %w", header.Name, err)
			}

			files = append(files, wfile)
			size += fSize
			t.log.Debugf("Wrote archived file: %s (%d bytes)", wfile, fSize)
		}
	}
}

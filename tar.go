package unpackr

/* How to extract a tar archive and its compressed variants. */

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// extractTar extracts a tar archive, unwrapping any compression layer
// around the stream first.
func (t *task) extractTar() (int64, []string, error) {
	tarFile, err := os.Open(t.Archive)
	if err != nil {
		return 0, nil, fmt.Errorf("os.Open: %w", err)
	}
	defer tarFile.Close()

	stream, closeCodec, err := tarStream(tarFile, t.Archive)
	if err != nil {
		return 0, nil, err
	}

	if closeCodec != nil {
		defer closeCodec()
	}

	return t.untar(stream)
}

// tarStream unwraps the compression layer around a tar stream. The layer
// is sniffed from leading magic bytes; the file name is the fallback for
// brotli, which has no magic. A bare tar passes through untouched.
func tarStream(raw io.Reader, name string) (io.Reader, func(), error) {
	buffered := bufio.NewReader(raw)

	head, err := buffered.Peek(16) //nolint:mnd // longest offset-zero magic plus slack.
	if err != nil && len(head) == 0 {
		return nil, nil, fmt.Errorf("reading archive head: %w", err)
	}

	family := matchSignature(head)
	if family == "" && strings.HasSuffix(strings.ToLower(name), ".br") {
		family = TypeBrotli
	}

	switch family {
	case "", TypeTar:
		return buffered, nil, nil
	default:
		return codecStream(buffered, family)
	}
}

// untar writes every directory and regular file in the stream. Links and
// special files are skipped; an archive is no place for device nodes.
func (t *task) untar(stream io.Reader) (int64, []string, error) {
	tarReader := tar.NewReader(stream)
	files := []string{}
	size := int64(0)

	for {
		header, err := tarReader.Next()

		switch {
		case errors.Is(err, io.EOF):
			return size, files, nil
		case err != nil:
			return size, files, fmt.Errorf("tarReader.Next: %w", err)
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
		case header.Typeflag == tar.TypeDir:
			if err := t.mkDir(wfile); err != nil {
				return size, files, err
			}
		case header.FileInfo().Mode().IsRegular():
			fSize, err := t.write(&file{
				Path:     wfile,
				Data:     tarReader,
				FileMode: header.FileInfo().Mode(),
				Mtime:    header.ModTime,
			})
			if err != nil {
				return size, files, fmt.Errorf("%s: %w", header.Name, err)
			}

			files = append(files, wfile)
			size += fSize
			t.log.Debugf("Wrote archived file: %s (%d bytes)", wfile, fSize)
		default:
			t.log.Debugf("Skipping tar entry %s (type %d)", header.Name, header.Typeflag)
		}
	}
}

// listTar walks the member headers without unpacking file data.
func listTar(archive string) ([]Entry, error) {
	tarFile, err := os.Open(archive)
	if err != nil {
		return nil, fmt.Errorf("os.Open: %w", err)
	}
	defer tarFile.Close()

	stream, closeCodec, err := tarStream(tarFile, archive)
	if err != nil {
		return nil, err
	}

	if closeCodec != nil {
		defer closeCodec()
	}

	tarReader := tar.NewReader(stream)
	entries := []Entry{}

	for {
		header, err := tarReader.Next()

		switch {
		case errors.Is(err, io.EOF):
			return entries, nil
		case err != nil:
			return nil, fmt.Errorf("tarReader.Next: %w", err)
		case header == nil:
			return nil, fmt.Errorf("%w: %s", ErrInvalidHead, archive)
		}

		entries = append(entries, Entry{
			Path:     header.Name,
			Size:     header.Size,
			Modified: header.ModTime,
			Dir:      header.Typeflag == tar.TypeDir,
		})
	}
}

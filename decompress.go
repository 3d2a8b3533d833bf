package unpackr

/* How to decompress single-file codec streams: gzip, bzip2, xz, lzma,
   zstd, lz4, brotli, zlib, snappy, s2 and unix compress. Compressed tar
   variants reuse the same codec table through tarStream. */

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	lzw "github.com/sshaman1101/dcompress"
	"github.com/therootcompany/xz"
	"github.com/ulikunitz/xz/lzma"
)

// decompress extracts one codec-compressed file. The output name is the
// archive name with its codec suffix removed.
func (t *task) decompress(family string) (int64, []string, error) {
	compressedFile, err := os.Open(t.Archive)
	if err != nil {
		return 0, nil, fmt.Errorf("os.Open: %w", err)
	}
	defer compressedFile.Close()

	stream, closeCodec, err := codecStream(compressedFile, family)
	if err != nil {
		return 0, nil, err
	}

	if closeCodec != nil {
		defer closeCodec()
	}

	name := filepath.Base(t.Archive)
	if _, stem, ok := suffixFamily(name); ok && stem != "" {
		name = stem
	}

	wfile, err := t.clean(name)
	if err != nil {
		return 0, nil, err
	}

	outFile := &file{Path: wfile, Data: stream}
	if zipReader, ok := stream.(*gzip.Reader); ok {
		outFile.Mtime = zipReader.ModTime
	}

	size, err := t.write(outFile)
	if err != nil {
		return size, nil, err
	}

	return size, []string{wfile}, nil
}

// codecStream wraps a raw stream with the decoder for a codec family. The
// returned close func releases decoder resources and may be nil.
//
//nolint:cyclop
func codecStream(raw io.Reader, family string) (io.Reader, func(), error) {
	switch family {
	case TypeGzip:
		zipReader, err := gzip.NewReader(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip.NewReader: %w", err)
		}

		return zipReader, func() { zipReader.Close() }, nil
	case TypeBzip2:
		zipReader, err := bzip2.NewReader(raw, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("bzip2.NewReader: %w", err)
		}

		return zipReader, func() { zipReader.Close() }, nil
	case TypeXZ:
		zipReader, err := xz.NewReader(raw, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("xz.NewReader: %w", err)
		}

		return zipReader, nil, nil
	case TypeLZMA:
		zipReader, err := lzma.NewReader(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("lzma.NewReader: %w", err)
		}

		return zipReader, nil, nil
	case TypeZstd:
		zipReader, err := zstd.NewReader(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd.NewReader: %w", err)
		}

		return zipReader, zipReader.Close, nil
	case TypeLZW:
		zipReader, err := lzw.NewReader(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("lzw.NewReader: %w", err)
		}

		return zipReader, nil, nil
	case TypeZlib:
		zipReader, err := zlib.NewReader(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("zlib.NewReader: %w", err)
		}

		return zipReader, func() { zipReader.Close() }, nil
	case TypeLZ4:
		return lz4.NewReader(raw), nil, nil
	case TypeBrotli:
		return brotli.NewReader(raw), nil, nil
	case TypeSnappy:
		return snappy.NewReader(raw), nil, nil
	case TypeS2:
		return s2.NewReader(raw), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: no decoder for %q", ErrUnsupported, family)
	}
}

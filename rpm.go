package unpackr

/* How to extract a RedHat package (rpm). */

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cavaliergopher/rpm"
	"github.com/ulikunitz/xz/lzma"
)

// extractRPM unwraps an rpm package down to its payload archive and
// extracts that. The payload is usually xz- or zstd-compressed cpio.
func (t *task) extractRPM() (int64, []string, error) {
	rpmFile, err := os.Open(t.Archive)
	if err != nil {
		return 0, nil, fmt.Errorf("os.Open: %w", err)
	}
	defer rpmFile.Close()

	// Reading the package headers leaves the reader at the payload.
	pkg, err := rpm.Read(rpmFile)
	if err != nil {
		return 0, nil, fmt.Errorf("rpm.Read: %w", err)
	}

	stream, closeCodec, err := rpmPayloadStream(rpmFile, pkg.PayloadCompression())
	if err != nil {
		return 0, nil, err
	}

	if closeCodec != nil {
		defer closeCodec()
	}

	switch format := pkg.PayloadFormat(); format {
	case "cpio":
		return t.uncpio(stream)
	case "tar":
		return t.untar(stream)
	case "ar":
		return t.unAr(stream)
	default:
		return 0, nil, fmt.Errorf("%w: rpm payload format %q", ErrUnsupported, format)
	}
}

// rpmPayloadStream maps the package's declared compression onto a decoder.
func rpmPayloadStream(raw io.Reader, compression string) (io.Reader, func(), error) {
	switch strings.ToLower(compression) {
	case "xz":
		return codecStream(raw, TypeXZ)
	case "gz", "gzip":
		return codecStream(raw, TypeGzip)
	case "bz2", "bzip2":
		return codecStream(raw, TypeBzip2)
	case "zst", "zstd", "zstandard":
		return codecStream(raw, TypeZstd)
	case "lzma":
		return codecStream(raw, TypeLZMA)
	case "lzma2":
		zipReader, err := lzma.NewReader2(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("lzma.NewReader2: %w", err)
		}

		return zipReader, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: rpm payload compression %q", ErrUnsupported, compression)
	}
}

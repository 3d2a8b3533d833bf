package unpackr

/* Code to detect archive types by file signatures (magic numbers). */

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Archive family names used throughout the package. These are the values
// found in Classification.Type and on multi-part groups.
const (
	TypeSevenZip = "7z"
	TypeZip      = "zip"
	TypeRar      = "rar"
	TypeTar      = "tar"
	TypeGzip     = "gzip"
	TypeBzip2    = "bzip2"
	TypeXZ       = "xz"
	TypeZstd     = "zstd"
	TypeLZ4      = "lz4"
	TypeLZMA     = "lzma"
	TypeBrotli   = "brotli"
	TypeLZW      = "compress"
	TypeZlib     = "zlib"
	TypeSnappy   = "snappy"
	TypeS2       = "s2"
	TypeISO      = "iso"
	TypeRPM      = "rpm"
	TypeAr       = "ar"
	TypeDeb      = "deb"
	TypeCpio     = "cpio"
	TypeSFX      = "exe-sfx"
)

// signature maps a byte pattern at a specific offset to an archive family.
type signature struct {
	// Offset is the byte offset where the magic bytes are expected.
	Offset int
	// Magic is the byte sequence to match at Offset.
	Magic []byte
	// Type is the archive family this signature identifies.
	Type string
}

// maxSignatureRead is the maximum number of bytes to read for signature detection.
// This is enough for ISO9660 detection at offset 0x9001 + 5 bytes for "CD001".
const maxSignatureRead = 0x9006

// sfxScanWindow bounds how much of a Windows executable is scanned for an
// embedded archive signature (self-extracting archives).
const sfxScanWindow = 1 << 20 // 1MiB

// Named signatures reused by the SFX scanner.
var (
	magicRar5 = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}
	magicRar4 = []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00}
	magic7z   = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
	magicZip  = []byte{0x50, 0x4B, 0x03, 0x04}
	// ZIP central directory and end-of-central-directory markers, used to
	// corroborate a PK\x03\x04 hit inside an executable.
	magicZipCentral = []byte{0x50, 0x4B, 0x01, 0x02}
	magicZipEOCD    = []byte{0x50, 0x4B, 0x05, 0x06}
	magicExe        = []byte{0x4D, 0x5A} // "MZ"
)

// signatureTable maps file signatures (magic numbers) to archive families.
//
//nolint:gochecknoglobals
var signatureTable = []signature{
	// RAR v5 (longer match first).
	{Offset: 0, Magic: magicRar5, Type: TypeRar},
	// RAR v4.
	{Offset: 0, Magic: magicRar4, Type: TypeRar},
	// 7-Zip.
	{Offset: 0, Magic: magic7z, Type: TypeSevenZip},
	// ZIP (PK\x03\x04), empty (PK\x05\x06) and spanned (PK\x07\x08).
	{Offset: 0, Magic: magicZip, Type: TypeZip},
	{Offset: 0, Magic: magicZipEOCD, Type: TypeZip},
	{Offset: 0, Magic: []byte{0x50, 0x4B, 0x07, 0x08}, Type: TypeZip},
	// Gzip.
	{Offset: 0, Magic: []byte{0x1F, 0x8B}, Type: TypeGzip},
	// Compress (.Z).
	{Offset: 0, Magic: []byte{0x1F, 0x9D}, Type: TypeLZW},
	// Bzip2 (BZh).
	{Offset: 0, Magic: []byte{0x42, 0x5A, 0x68}, Type: TypeBzip2},
	// XZ.
	{Offset: 0, Magic: []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}, Type: TypeXZ},
	// Zstandard.
	{Offset: 0, Magic: []byte{0x28, 0xB5, 0x2F, 0xFD}, Type: TypeZstd},
	// LZ4.
	{Offset: 0, Magic: []byte{0x04, 0x22, 0x4D, 0x18}, Type: TypeLZ4},
	// Snappy framed stream.
	{Offset: 0, Magic: []byte{0xFF, 0x06, 0x00, 0x00, 0x73, 0x4E, 0x61, 0x50, 0x70, 0x59}, Type: TypeSnappy},
	// LZMA.
	{Offset: 0, Magic: []byte{0x5D, 0x00, 0x00}, Type: TypeLZMA},
	// Brotli.
	{Offset: 0, Magic: []byte{0xCE, 0xB2, 0xCF, 0x81}, Type: TypeBrotli},
	// AR / DEB ("!<arch>\n").
	{Offset: 0, Magic: []byte{0x21, 0x3C, 0x61, 0x72, 0x63, 0x68, 0x3E, 0x0A}, Type: TypeAr},
	// RPM.
	{Offset: 0, Magic: []byte{0xED, 0xAB, 0xEE, 0xDB}, Type: TypeRPM},
	// CPIO (newc, crc and odc ASCII headers).
	{Offset: 0, Magic: []byte("070701"), Type: TypeCpio},
	{Offset: 0, Magic: []byte("070702"), Type: TypeCpio},
	{Offset: 0, Magic: []byte("070707"), Type: TypeCpio},
	// Tar (ustar at the magic offset; v7 tar has no magic and is not sniffable).
	{Offset: 0x101, Magic: []byte("ustar"), Type: TypeTar},
	// ISO9660 at offset 0x8001.
	{Offset: 0x8001, Magic: []byte{0x43, 0x44, 0x30, 0x30, 0x31}, Type: TypeISO}, //nolint:mnd
	// ISO9660 at offset 0x8801.
	{Offset: 0x8801, Magic: []byte{0x43, 0x44, 0x30, 0x30, 0x31}, Type: TypeISO}, //nolint:mnd
	// ISO9660 at offset 0x9001.
	{Offset: 0x9001, Magic: []byte{0x43, 0x44, 0x30, 0x30, 0x31}, Type: TypeISO}, //nolint:mnd
}

// DetectType reads the first bytes of a file and attempts to match a known
// file signature (magic number) to determine the archive family. Windows
// executables are additionally scanned for embedded archive signatures and
// reported as TypeSFX when one is found.
func DetectType(filePath string) (string, error) {
	fileOpen, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening file for signature detection: %w", err)
	}
	defer fileOpen.Close()

	stat, err := fileOpen.Stat()
	if err != nil {
		return "", fmt.Errorf("stat file for signature detection: %w", err)
	}

	readSize := min(stat.Size(), int64(maxSignatureRead))
	buf := make([]byte, readSize)

	n, err := io.ReadFull(fileOpen, buf)
	if err != nil && n == 0 {
		return "", fmt.Errorf("reading file for signature detection: %w", err)
	}

	buf = buf[:n]

	if typ := matchSignature(buf); typ != "" {
		return typ, nil
	}

	if bytes.HasPrefix(buf, magicExe) {
		if embedded := scanSFX(fileOpen, stat.Size()); embedded != "" {
			return TypeSFX, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrUnknownArchiveType, filePath)
}

func matchSignature(buf []byte) string {
	for _, sig := range signatureTable {
		end := sig.Offset + len(sig.Magic)
		if end > len(buf) {
			continue
		}

		if bytes.Equal(buf[sig.Offset:end], sig.Magic) {
			return sig.Type
		}
	}

	return ""
}

// scanSFX looks for an archive signature embedded in an executable. When
// several families appear, the most frequently seen one wins. A ZIP
// local-file marker only counts when a central-directory or
// end-of-central-directory marker corroborates it; executables embed
// PK\x03\x04 byte runs too easily.
func scanSFX(readerAt io.ReaderAt, fileSize int64) string {
	window := min(fileSize, int64(sfxScanWindow))
	buf := make([]byte, window)

	n, err := io.ReadFull(io.NewSectionReader(readerAt, 0, window), buf)
	if err != nil && n == 0 {
		return ""
	}

	buf = buf[:n]

	zips := bytes.Count(buf, magicZip)
	if zips > 0 &&
		!bytes.Contains(buf, magicZipCentral) &&
		!bytes.Contains(buf, magicZipEOCD) &&
		!hasZipEOCDTail(readerAt, fileSize) {
		zips = 0
	}

	hits := []struct {
		family string
		count  int
	}{
		{TypeSevenZip, bytes.Count(buf, magic7z)},
		{TypeRar, bytes.Count(buf, magicRar4)}, // rar5 starts with the rar4 bytes.
		{TypeZip, zips},
	}

	best, most := "", 0
	for _, hit := range hits {
		if hit.count > most {
			best, most = hit.family, hit.count
		}
	}

	return best
}

// hasZipEOCDTail checks the end of the file for a ZIP end-of-central-directory
// marker. The EOCD lives in the last 64KiB + 22 bytes of any valid zip.
func hasZipEOCDTail(readerAt io.ReaderAt, fileSize int64) bool {
	const maxEOCD = 65557 // 22-byte EOCD + 65535-byte comment.

	tail := min(fileSize, int64(maxEOCD))
	buf := make([]byte, tail)

	n, err := io.ReadFull(io.NewSectionReader(readerAt, fileSize-tail, tail), buf)
	if err != nil && n == 0 {
		return false
	}

	return bytes.Contains(buf[:n], magicZipEOCD)
}

// SFXContains reports the archive family embedded in a self-extracting
// executable, or empty when the file is not one.
func SFXContains(filePath string) string {
	fileOpen, stat, err := openStatFile(filePath)
	if err != nil {
		return ""
	}
	defer fileOpen.Close()

	head := make([]byte, len(magicExe))
	if _, err := io.ReadFull(fileOpen, head); err != nil || !bytes.Equal(head, magicExe) {
		return ""
	}

	return scanSFX(fileOpen, stat.Size())
}

// IsArchiveFileByContent returns true if the provided file path contains
// a recognized archive file signature. Unlike IsArchiveFile, this reads
// the actual file content rather than relying on the file extension.
func IsArchiveFileByContent(path string) bool {
	typ, err := DetectType(path)
	return err == nil && typ != ""
}

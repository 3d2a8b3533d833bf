package unpackr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sfxBlob(chunks ...[]byte) *bytes.Reader {
	var blob bytes.Buffer

	blob.Write(magicExe)

	for _, chunk := range chunks {
		blob.Write(bytes.Repeat([]byte{0}, 32))
		blob.Write(chunk)
	}

	return bytes.NewReader(blob.Bytes())
}

func TestScanSFXPicksDominantFamily(t *testing.T) {
	t.Parallel()

	// One 7z marker against three rar markers: the family seen most
	// often wins, not the one checked first.
	reader := sfxBlob(magic7z, magicRar4, magicRar4, magicRar4)
	assert.Equal(t, TypeRar, scanSFX(reader, reader.Size()))

	reader = sfxBlob(magicRar4, magic7z, magic7z)
	assert.Equal(t, TypeSevenZip, scanSFX(reader, reader.Size()))
}

func TestScanSFXZipNeedsCorroboration(t *testing.T) {
	t.Parallel()

	// Stray PK runs without a central directory never outvote a real
	// signature, however many there are.
	reader := sfxBlob(magicZip, magicZip, magicZip, magic7z)
	assert.Equal(t, TypeSevenZip, scanSFX(reader, reader.Size()))

	reader = sfxBlob(magicZip, magicZip, magicZipCentral, magic7z)
	assert.Equal(t, TypeZip, scanSFX(reader, reader.Size()))
}

func TestScanSFXNoSignature(t *testing.T) {
	t.Parallel()

	reader := sfxBlob([]byte("nothing embedded here"))
	assert.Empty(t, scanSFX(reader, reader.Size()))
}

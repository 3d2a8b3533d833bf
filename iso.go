package unpackr

/* How to extract ISO9660 and UDF disc images. */

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kdomanski/iso9660"
	"golift.io/udf"
)

// extractISO writes a disc image's contents under the output folder. An
// image that fails to parse as ISO9660 but looks like UDF is retried with
// the UDF reader.
func (t *task) extractISO() (int64, []string, error) {
	openISO, err := os.Open(t.Archive)
	if err != nil {
		return 0, nil, fmt.Errorf("os.Open: %w", err)
	}
	defer openISO.Close()

	iso, err := iso9660.OpenImage(openISO)
	if err != nil {
		if isUDFCandidate(err) {
			return t.extractUDF(openISO)
		}

		return 0, nil, fmt.Errorf("opening iso image: %w", err)
	}

	root, err := iso.RootDir()
	if err != nil {
		if isUDFCandidate(err) {
			return t.extractUDF(openISO)
		}

		return 0, nil, fmt.Errorf("opening iso root: %w", err)
	}

	return t.uniso(root, "")
}

func (t *task) uniso(isoFile *iso9660.File, parent string) (int64, []string, error) {
	itemName := filepath.Join(parent, isoFile.Name())
	if isoFile.Name() == string([]byte{0}) { // the root directory has a NUL name.
		itemName = parent
	}

	if !isoFile.IsDir() {
		return t.unisoFile(isoFile, itemName)
	}

	if itemName != "" {
		wdir, err := t.clean(itemName)
		if err != nil {
			return 0, nil, fmt.Errorf("%w (from: %s)", err, isoFile.Name())
		}

		if err := t.mkDir(wdir); err != nil {
			return 0, nil, err
		}
	}

	children, err := isoFile.GetChildren()
	if err != nil {
		return 0, nil, fmt.Errorf("getting children of %s: %w", isoFile.Name(), err)
	}

	files := []string{}
	size := int64(0)

	for _, child := range children {
		childSize, childFiles, err := t.uniso(child, itemName)
		size += childSize
		files = append(files, childFiles...)

		if err != nil {
			return size, files, err
		}
	}

	return size, files, nil
}

func (t *task) unisoFile(isoFile *iso9660.File, itemName string) (int64, []string, error) {
	if !t.wants(itemName) {
		return 0, nil, nil
	}

	wfile, err := t.clean(itemName)
	if err != nil {
		return 0, nil, fmt.Errorf("%w (from: %s)", err, isoFile.Name())
	}

	t.log.Debugf("Writing archived file: %s (%d bytes)", wfile, isoFile.Size())

	size, err := t.write(&file{
		Path:     wfile,
		Data:     isoFile.Reader(),
		FileMode: isoFile.Mode(),
		Mtime:    isoFile.ModTime(),
	})
	if err != nil {
		return size, nil, fmt.Errorf("%s: %w", isoFile.Name(), err)
	}

	return size, []string{wfile}, nil
}

// isUDFCandidate returns true for errors that suggest the image might be UDF.
func isUDFCandidate(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	return strings.Contains(msg, "BEA01") || strings.Contains(msg, "UDF")
}

// extractUDF extracts a UDF volume image.
func (t *task) extractUDF(readerAt io.ReaderAt) (int64, []string, error) {
	udfImage, err := udf.NewUdfFromReader(readerAt)
	if err != nil {
		return 0, nil, fmt.Errorf("opening UDF image: %w", err)
	}

	return t.unUDF(udfImage, nil, "")
}

// unUDF extracts one UDF directory level. A nil file entry means the root.
func (t *task) unUDF(udfImage *udf.Udf, fe *udf.FileEntry, parent string) (int64, []string, error) {
	entries, err := udfImage.ReadDir(fe)
	if err != nil {
		return 0, nil, fmt.Errorf("reading UDF directory: %w", err)
	}

	files := []string{}
	size := int64(0)

	for i := range entries {
		entrySize, entryFiles, err := t.unUDFEntry(udfImage, &entries[i], parent)
		size += entrySize
		files = append(files, entryFiles...)

		if err != nil {
			return size, files, err
		}
	}

	return size, files, nil
}

func (t *task) unUDFEntry(udfImage *udf.Udf, entry *udf.File, parent string) (int64, []string, error) {
	itemName := filepath.Join(parent, entry.Name())

	if !entry.IsDir() {
		return t.unUDFFile(entry, itemName)
	}

	wdir, err := t.clean(itemName)
	if err != nil {
		return 0, nil, fmt.Errorf("%w (from: %s)", err, entry.Name())
	}

	if err := t.mkDir(wdir); err != nil {
		return 0, nil, err
	}

	entryFE, err := entry.FileEntry()
	if err != nil {
		return 0, nil, fmt.Errorf("reading UDF file entry for %s: %w", entry.Name(), err)
	}

	return t.unUDF(udfImage, entryFE, itemName)
}

func (t *task) unUDFFile(entry *udf.File, itemName string) (int64, []string, error) {
	if !t.wants(itemName) {
		return 0, nil, nil
	}

	wfile, err := t.clean(itemName)
	if err != nil {
		return 0, nil, fmt.Errorf("%w (from: %s)", err, entry.Name())
	}

	reader, err := entry.NewReader()
	if err != nil {
		return 0, nil, fmt.Errorf("creating reader for UDF file %s: %w", entry.Name(), err)
	}

	t.log.Debugf("Writing UDF file: %s (%d bytes)", wfile, entry.Size())

	size, err := t.write(&file{
		Path:     wfile,
		Data:     reader,
		FileMode: entry.Mode(),
		Mtime:    entry.ModTime(),
	})
	if err != nil {
		return size, nil, fmt.Errorf("%s: %w", entry.Name(), err)
	}

	return size, []string{wfile}, nil
}

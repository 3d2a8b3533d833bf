package unpackr

/* Filename encoding repair. Legacy zip and rar tools wrote member names
   in regional codepages, so extracted files can land on disk as mojibake.
   Detection is best-effort: a name that cannot be confidently repaired
   stays exactly as it is. */

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// minCharsetConfidence gates detector verdicts; weaker guesses are not
// worth a rename.
const minCharsetConfidence = 70

// decoderFor maps a detected charset name onto a decoder. Charsets the
// drop-folder world does not produce return nil.
func decoderFor(charset string) *encoding.Decoder {
	switch strings.ToUpper(charset) {
	case "GB2312", "GBK", "GB18030", "GB-18030":
		return simplifiedchinese.GBK.NewDecoder()
	case "BIG5":
		return traditionalchinese.Big5.NewDecoder()
	case "SHIFT_JIS", "SJIS":
		return japanese.ShiftJIS.NewDecoder()
	case "EUC-KR":
		return korean.EUCKR.NewDecoder()
	case "ISO-8859-1", "WINDOWS-1252":
		return charmap.Windows1252.NewDecoder()
	default:
		return nil
	}
}

// DecodeName repairs one file name that is not valid UTF-8. The bool
// reports whether the returned name actually changed.
func DecodeName(name string) (string, bool) {
	if name == "" || utf8.ValidString(name) {
		return name, false
	}

	result, err := chardet.NewTextDetector().DetectBest([]byte(name))
	if err != nil || result.Confidence < minCharsetConfidence {
		return name, false
	}

	decoder := decoderFor(result.Charset)
	if decoder == nil {
		return name, false
	}

	fixed, err := decoder.String(name)
	if err != nil || fixed == "" || !utf8.ValidString(fixed) || fixed == name {
		return name, false
	}

	return fixed, true
}

// RepairNames walks root and renames entries whose names decode into
// readable UTF-8. Renames apply deepest-first so a repaired folder name
// does not orphan its children. A name whose repaired form already exists
// is left alone. Returns how many entries were renamed; never errors.
func RepairNames(root string, log Logger) int {
	if log == nil {
		log = NoLogger()
	}

	type renameOp struct {
		from, to string
	}

	var ops []renameOp

	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || path == root {
			return nil //nolint:nilerr // unreadable subtrees are skipped, not fatal.
		}

		fixed, changed := DecodeName(entry.Name())
		if !changed {
			return nil
		}

		// The decoded name may carry characters the filesystem rejects.
		fixed = SanitizeName(fixed)
		if fixed == entry.Name() {
			return nil
		}

		ops = append(ops, renameOp{from: path, to: filepath.Join(filepath.Dir(path), fixed)})

		return nil
	})

	// Children first, so renaming a folder cannot invalidate the recorded
	// paths of anything inside it.
	sort.Slice(ops, func(i, j int) bool { return len(ops[i].from) > len(ops[j].from) })

	renamed := 0

	for _, op := range ops {
		if _, err := os.Stat(op.to); err == nil {
			log.Debugf("Not repairing name, target exists: %s -> %s", op.from, op.to)
			continue
		}

		if err := os.Rename(op.from, op.to); err != nil {
			log.Printf("Error: repairing file name %s: %v", op.from, err)
			continue
		}

		log.Debugf("Repaired file name: %s -> %s", op.from, op.to)
		renamed++
	}

	return renamed
}

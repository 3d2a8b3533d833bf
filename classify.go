package unpackr

/* Decide what a file is: structural name patterns, then content sniffing,
   then cloaked-name repair. */

import (
	"os"
	"path/filepath"
	"strings"
)

// Classification methods, recorded on every result.
const (
	MethodSuffix    = "suffix"
	MethodSignature = "signature"
	MethodUncloak   = "uncloak"
)

// Classification is the verdict for one file.
type Classification struct {
	// Path to the file. After a successful uncloak rename this is the new path.
	Path string
	// Type is the archive family, empty when the file is not an archive.
	Type string
	// Archive is true when the file is (part of) an extractable archive.
	Archive bool
	// Multipart is true when the name matches a multi-part convention.
	Multipart bool
	// PartNumber is the normalized part number, 0 when not applicable.
	PartNumber int
	// FirstPart is true for single archives and for the entry part of a set.
	FirstPart bool
	// BaseName is the file name with archive and part suffixes stripped.
	BaseName string
	// Renamed holds the new path when uncloaking renamed the file on disk.
	Renamed string
	// Method records which stage produced the verdict.
	Method string
}

// Continuation reports whether this file is a non-entry part of a
// multi-part set. Continuation parts are consumed through their first
// part and never extracted directly.
func (c Classification) Continuation() bool {
	return c.Multipart && !c.FirstPart
}

// archiveSuffix maps a canonical file suffix to an archive family.
// Ordered longest-first so ".tar.gz" wins over ".gz".
type archiveSuffix struct {
	suffix string
	family string
}

//nolint:gochecknoglobals
var archiveSuffixes = []archiveSuffix{
	{".tar.gz", TypeTar}, {".tar.bz2", TypeTar}, {".tar.bz", TypeTar},
	{".tar.xz", TypeTar}, {".tar.zst", TypeTar}, {".tar.lz4", TypeTar},
	{".tar.br", TypeTar}, {".tar.lzma", TypeTar}, {".tar.z", TypeTar},
	{".tgz", TypeTar}, {".tbz2", TypeTar}, {".tbz", TypeTar},
	{".txz", TypeTar}, {".tzst", TypeTar},
	{".cpgz", TypeCpio}, {".cpio", TypeCpio},
	// ".gzip" before ".zip": the latter is a suffix of the former.
	{".tar", TypeTar}, {".gzip", TypeGzip}, {".zip", TypeZip},
	{".rar", TypeRar}, {".7z", TypeSevenZip},
	{".iso", TypeISO}, {".img", TypeISO},
	{".rpm", TypeRPM}, {".deb", TypeDeb},
	{".gz", TypeGzip}, {".bz2", TypeBzip2}, {".bz", TypeBzip2},
	{".xz", TypeXZ}, {".zst", TypeZstd}, {".zstd", TypeZstd},
	{".lz4", TypeLZ4}, {".lzma", TypeLZMA},
	{".brotli", TypeBrotli}, {".br", TypeBrotli},
	{".zz", TypeZlib}, {".zlib", TypeZlib},
	{".snappy", TypeSnappy}, {".sz", TypeSnappy}, {".s2", TypeS2},
	{".z", TypeLZW},
}

// suffixFamily returns the archive family for a canonical suffix match.
func suffixFamily(name string) (string, string, bool) {
	lower := strings.ToLower(name)
	for _, entry := range archiveSuffixes {
		if strings.HasSuffix(lower, entry.suffix) {
			return entry.family, name[:len(name)-len(entry.suffix)], true
		}
	}

	return "", "", false
}

// IsArchiveFile returns true if the file name carries a recognized archive
// or multi-part suffix. It does not open the file; see IsArchiveFileByContent.
func IsArchiveFile(name string) bool {
	cls, ok := classifyName(filepath.Base(name))
	return ok && (cls.Archive || cls.Multipart)
}

// classifyName runs the structural stage against a bare file name.
// The bool reports whether any pattern matched at all.
func classifyName(name string) (Classification, bool) {
	if conv, base, num, ok := matchPartName(name); ok {
		cls := Classification{
			Type:       conv.family,
			Multipart:  true,
			PartNumber: num,
			BaseName:   stripArchiveSuffix(base),
			Method:     MethodSuffix,
		}

		// Entry detection for zNN/rNN needs sibling context; the analyzer
		// promotes .r00 when no .rar exists. Here only unambiguous firsts.
		cls.FirstPart = conv.entryExt == "" && num == conv.firstNum
		cls.Archive = conv.family != "" // generic numbered splits need sniffing.

		return cls, true
	}

	if family, base, ok := suffixFamily(name); ok {
		return Classification{
			Type:      family,
			Archive:   true,
			FirstPart: true,
			BaseName:  stripArchiveSuffix(base),
			Method:    MethodSuffix,
		}, true
	}

	return Classification{BaseName: name}, false
}

// stripArchiveSuffix removes one trailing archive suffix, if present.
func stripArchiveSuffix(name string) string {
	if _, base, ok := suffixFamily(name); ok {
		return base
	}

	return name
}

// StripSuffixes reduces an archive file name to a clean base for naming the
// output folder: part suffixes go first, then up to two archive suffixes
// (so "show.tar.gz" and "show.7z.001" both become "show").
func StripSuffixes(name string) string {
	if _, base, _, ok := matchPartName(name); ok {
		name = base
	}

	name = stripArchiveSuffix(stripArchiveSuffix(name))
	if name == "" {
		return "extracted"
	}

	return name
}

// Classifier decides what each file is, repairing cloaked names on the way.
type Classifier struct {
	rules *CloakRuleSet
	log   Logger
}

// NewClassifier returns a Classifier. A nil rule set disables uncloaking;
// pass DefaultCloakRules() for the built-in rules.
func NewClassifier(rules *CloakRuleSet, log Logger) *Classifier {
	if log == nil {
		log = NoLogger()
	}

	return &Classifier{rules: rules, log: log}
}

// Classify runs all three stages against one file on disk.
//
// Stage 1 trusts canonical names. Stage 2 sniffs content when the name says
// nothing. Stage 3 repairs cloaked names: when the content is an archive but
// the name pattern disagrees, the cloak rules try to reconstruct the real
// name and the file is renamed in place. A rename never overwrites: when the
// repaired name already exists the file is classified where it is.
//
// Unreadable files classify as not-an-archive; this never returns an error.
func (c *Classifier) Classify(path string) Classification {
	name := filepath.Base(path)

	if cls, ok := classifyName(name); ok {
		cls.Path = path

		// Generic numbered parts carry no family. First parts resolve by
		// content; when the content says nothing either, the cloak rules
		// get a name-only pass, since a cloaked extension can hide in
		// front of the numeric suffix.
		if cls.Multipart && cls.Type == "" {
			typ, err := DetectType(path)

			switch {
			case err == nil && cls.FirstPart:
				cls.Type = typ
				cls.Archive = true
				cls.Method = MethodSignature
			case err != nil && c.rules != nil:
				if ncls, ok := c.uncloak(path, name, ""); ok {
					return ncls
				}
			}
		}

		return cls
	}

	typ, err := DetectType(path)
	if err != nil {
		// No readable signature either. Continuation volumes carry no
		// magic bytes, so the cloak rules get a name-only pass with the
		// family left open; a repaired name re-enters the structural
		// stage.
		if c.rules != nil {
			if ncls, ok := c.uncloak(path, name, ""); ok {
				return ncls
			}
		}

		return Classification{Path: path, BaseName: StripSuffixes(name)}
	}

	cls := Classification{
		Path:      path,
		Type:      typ,
		Archive:   true,
		FirstPart: true,
		BaseName:  StripSuffixes(name),
		Method:    MethodSignature,
	}

	// Executables stay executables; a self-extractor's name is not cloaked.
	if typ == TypeSFX || c.rules == nil {
		return cls
	}

	if ncls, ok := c.uncloak(path, name, typ); ok {
		return ncls
	}

	return cls
}

// uncloak applies the repair rules and renames the file when safe. The
// second return is false when no rule produced a placeable name.
func (c *Classifier) uncloak(path, name, family string) (Classification, bool) {
	fixed, ok := c.rules.Repair(name, family)
	if !ok || fixed == name {
		return Classification{}, false
	}

	ncls, ok := classifyName(fixed)
	if !ok {
		return Classification{}, false // the rule produced a name we still cannot place.
	}

	ncls.Method = MethodUncloak

	target := filepath.Join(filepath.Dir(path), fixed)
	if _, err := os.Stat(target); err == nil {
		c.log.Printf("Not renaming cloaked file, target exists: %s -> %s", path, fixed)
		ncls.Path = path

		return ncls, true
	}

	if err := os.Rename(path, target); err != nil {
		c.log.Printf("Error: renaming cloaked file %s: %v", path, err)
		ncls.Path = path

		return ncls, true
	}

	c.log.Debugf("Uncloaked: %s -> %s", path, target)
	ncls.Path = target
	ncls.Renamed = target

	return ncls, true
}

// ClassifyAll classifies every path and returns the results in input order.
func (c *Classifier) ClassifyAll(paths []string) []Classification {
	out := make([]Classification, 0, len(paths))
	for _, path := range paths {
		out = append(out, c.Classify(path))
	}

	return out
}

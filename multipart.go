package unpackr

/* Multi-part archive analysis: naming conventions, completeness, order. */

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Part is one member file of a multi-part archive.
type Part struct {
	// Path to the part on disk.
	Path string
	// Number is the normalized part number. 0 is reserved for entry files
	// (x.zip of a zNN set, x.rar of an rNN set); data volumes start at 1
	// for those conventions.
	Number int
}

// MultiPart describes one inferred multi-part archive group.
type MultiPart struct {
	// Base is the shared display base name, without part suffixes.
	Base string
	// Type is the archive family, empty for generic numbered splits.
	Type string
	// Dir is the directory holding all parts.
	Dir string
	// Parts, sorted by Number.
	Parts []Part
	// First is the path to extract first: the entry file or lowest part.
	// Empty when the entry point is missing.
	First string
	// Missing lists absent part numbers within the inferred range.
	Missing []int
	// Complete is true when no parts are missing and the entry point exists.
	Complete bool
	// PossiblyIncomplete marks groups too small to trust: with one or two
	// members the convention match may be coincidence, and the set may
	// continue on media we have not seen.
	PossiblyIncomplete bool
}

// partConvention describes one multi-part naming scheme.
type partConvention struct {
	id     string
	family string
	// re captures (base)(number).
	re *regexp.Regexp
	// firstNum is the lowest expected part number for the scheme.
	firstNum int
	// entryExt names a sibling file that is the real entry point of the
	// set (".zip" for zNN volumes, ".rar" for rNN volumes).
	entryExt string
	// shift is added to the parsed number, so entry files can live at 0.
	shift int
	// headless allows the lowest data volume to act as the entry point
	// when the entry file is absent (.r00 sets without a .rar).
	headless bool
}

// Ordered most-specific first; the generic numbered scheme must stay last.
//
//nolint:gochecknoglobals
var partConventions = []*partConvention{
	{id: "7z-numeric", family: TypeSevenZip, re: regexp.MustCompile(`(?i)^(.+)\.7z\.(\d{1,4})$`), firstNum: 1},
	{id: "7z-part", family: TypeSevenZip, re: regexp.MustCompile(`(?i)^(.+)\.part(\d{1,4})\.7z$`), firstNum: 1},
	{id: "zip-numeric", family: TypeZip, re: regexp.MustCompile(`(?i)^(.+)\.zip\.(\d{1,4})$`), firstNum: 1},
	{id: "zip-z", family: TypeZip, re: regexp.MustCompile(`(?i)^(.+)\.z(\d{2,3})$`), firstNum: 0, entryExt: ".zip"},
	{id: "rar-part", family: TypeRar, re: regexp.MustCompile(`(?i)^(.+)\.part(\d{1,4})\.rar$`), firstNum: 1},
	{id: "rar-r", family: TypeRar, re: regexp.MustCompile(`(?i)^(.+)\.r(\d{2,3})$`), firstNum: 0, entryExt: ".rar", shift: 1, headless: true},
	{id: "numeric", family: "", re: regexp.MustCompile(`^(.+?)\.(\d{3,4})$`), firstNum: 1},
}

// matchPartName matches a file name against the known multi-part naming
// conventions. Returns the convention, the base name and the normalized
// part number.
func matchPartName(name string) (*partConvention, string, int, bool) {
	for _, conv := range partConventions {
		match := conv.re.FindStringSubmatch(name)
		if match == nil {
			continue
		}

		num, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}

		return conv, match[1], num + conv.shift, true
	}

	return nil, "", 0, false
}

type partBucket struct {
	conv  *partConvention
	base  string
	dir   string
	parts []Part
	entry string
}

// AnalyzeFiles buckets the given paths into multi-part groups. The second
// return value lists the files that belong to no group. Grouping is by
// directory: parts only join siblings from the same folder.
func AnalyzeFiles(paths []string) ([]MultiPart, []string) {
	var (
		buckets = map[string]*partBucket{}
		order   []string
		singles []string
	)

	for _, path := range paths {
		conv, base, num, ok := matchPartName(filepath.Base(path))
		if !ok {
			singles = append(singles, path)
			continue
		}

		dir := filepath.Dir(path)
		key := dir + "\x00" + conv.id + "\x00" + strings.ToLower(base)

		bucket, exists := buckets[key]
		if !exists {
			bucket = &partBucket{conv: conv, base: base, dir: dir}
			buckets[key] = bucket
			order = append(order, key)
		}

		bucket.parts = append(bucket.parts, Part{Path: path, Number: num})
	}

	// Attach entry files (x.zip, x.rar) to their volume sets. An entry that
	// joins a set leaves the singles pool.
	singles = claimEntries(buckets, singles)

	sort.Strings(order)

	groups := make([]MultiPart, 0, len(buckets))
	for _, key := range order {
		groups = append(groups, buckets[key].finish())
	}

	return groups, singles
}

// AnalyzeDir runs AnalyzeFiles over the immediate files of a directory.
func AnalyzeDir(dir string) ([]MultiPart, []string, error) {
	paths, err := ListDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var files []string

	for _, path := range paths {
		name := filepath.Base(path)
		if name == "" || name[0] == '.' {
			continue // ignore empty names and dot files/folders.
		}

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			files = append(files, path)
		}
	}

	groups, singles := AnalyzeFiles(files)

	return groups, singles, nil
}

func claimEntries(buckets map[string]*partBucket, singles []string) []string {
	remaining := singles[:0]

	for _, single := range singles {
		name := filepath.Base(single)
		dir := filepath.Dir(single)
		claimed := false

		for _, bucket := range buckets {
			ext := bucket.conv.entryExt
			if ext == "" || bucket.dir != dir || bucket.entry != "" {
				continue
			}

			if strings.EqualFold(name, bucket.base+ext) {
				bucket.entry = single
				bucket.parts = append(bucket.parts, Part{Path: single, Number: 0})
				claimed = true

				break
			}
		}

		if !claimed {
			remaining = append(remaining, single)
		}
	}

	return remaining
}

func (b *partBucket) finish() MultiPart {
	sort.Slice(b.parts, func(i, j int) bool { return b.parts[i].Number < b.parts[j].Number })

	seen := map[int]bool{}
	lowest, highest := -1, -1

	for _, part := range b.parts {
		seen[part.Number] = true

		if lowest == -1 || part.Number < lowest {
			lowest = part.Number
		}

		if part.Number > highest {
			highest = part.Number
		}
	}

	// Completeness is judged on the span actually present. A set that
	// starts at .002 may have shed its head under a name we never saw;
	// the small-set flag below covers the doubt.
	start := b.conv.firstNum
	if lowest >= 0 {
		start = lowest
	}

	mp := MultiPart{
		Base:  b.base,
		Type:  b.conv.family,
		Dir:   b.dir,
		Parts: b.parts,
	}

	for num := start; num <= highest; num++ {
		if !seen[num] {
			mp.Missing = append(mp.Missing, num)
		}
	}

	mp.First = b.firstPath(start)
	mp.Complete = len(mp.Missing) == 0 && mp.First != ""

	// One or two members: the convention match may be coincidence, or the
	// rest of the set may simply not be here. Flag it either way.
	const trustableSize = 3
	if len(b.parts) < trustableSize {
		mp.PossiblyIncomplete = true
	}

	// rNN sets without a .rar entry are extractable from r00 but we cannot
	// know the set was complete.
	if b.conv.entryExt == ".rar" && b.entry == "" {
		mp.PossiblyIncomplete = true
	}

	return mp
}

// firstPath picks the entry point to hand to the extraction backend. Entry
// files win; .r00 may stand in for a missing .rar, but zNN volumes are
// unusable without their .zip.
func (b *partBucket) firstPath(start int) string {
	if b.entry != "" {
		return b.entry
	}

	if b.conv.entryExt != "" && !b.conv.headless {
		return ""
	}

	for _, part := range b.parts {
		if part.Number == start {
			return part.Path
		}
	}

	return ""
}

// partKeywordRe spots names that advertise themselves as one piece of a
// larger set without matching any strict convention.
//
//nolint:gochecknoglobals
var partKeywordRe = regexp.MustCompile(`(?i)(?:part|vol|volume|disk|disc|cd)[ ._-]*\d+`)

// FindMissingParts suggests sibling files that might contain the missing
// parts of mp: archives by name or content, files sharing the group's base
// prefix, and files carrying part/volume keywords. The caller extracts the
// candidates first and re-analyzes; a suggestion is never proof the set can
// be completed.
func FindMissingParts(mp MultiPart, siblings []string) []string {
	if len(mp.Missing) == 0 {
		return nil
	}

	member := map[string]bool{}
	for _, part := range mp.Parts {
		member[part.Path] = true
	}

	var candidates []string

	for _, sibling := range siblings {
		if member[sibling] {
			continue
		}

		name := filepath.Base(sibling)

		// Continuation parts belong to some other set and are consumed
		// through that set's first part.
		if cls, ok := classifyName(name); ok && cls.Continuation() {
			continue
		}

		switch {
		case strings.HasPrefix(strings.ToLower(name), strings.ToLower(mp.Base)):
			candidates = append(candidates, sibling)
		case partKeywordRe.MatchString(name):
			candidates = append(candidates, sibling)
		case IsArchiveFile(name) || IsArchiveFileByContent(sibling):
			candidates = append(candidates, sibling)
		}
	}

	sort.Strings(candidates)

	return candidates
}

// ExtractionOrder returns the paths to extract, highest priority first:
// candidate containers for incomplete groups, then the entry part of every
// group, then the ungrouped files. Continuation parts are never emitted.
func ExtractionOrder(groups []MultiPart, singles []string) []string {
	var order []string

	for _, group := range groups {
		if !group.Complete {
			order = appendOnce(order, FindMissingParts(group, singles)...)
		}
	}

	for _, group := range groups {
		order = appendOnce(order, group.First)
	}

	return appendOnce(order, singles...)
}

// appendOnce appends paths to list, skipping empties and anything already
// present.
func appendOnce(list []string, paths ...string) []string {
	for _, path := range paths {
		if path == "" {
			continue
		}

		var dup bool

		for _, have := range list {
			if have == path {
				dup = true
				break
			}
		}

		if !dup {
			list = append(list, path)
		}
	}

	return list
}

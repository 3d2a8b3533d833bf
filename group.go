package unpackr

/* Drop-folder grouping: partition a pile of downloaded files into
   per-archive work groups. Multi-part sets bind hardest, then leftovers
   cluster to the most similar group by normalized name. */

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// DefaultSimilarity is the minimum name-similarity ratio for a file to
// join an existing group instead of seeding its own.
const DefaultSimilarity = 0.9

// Group is one unit of extraction work inside a drop folder.
type Group struct {
	// Key is the display name for the group: the shared base name,
	// prefixed with the subfolder path for groups found below the root.
	Key string
	// Main is the archive extracted first: the first part of a
	// multi-part set, or the seed of a similarity cluster. Empty when a
	// multi-part set is missing its first part.
	Main string
	// Files lists every member in deterministic order.
	Files []string
	// Candidates are sibling files that might contain missing parts.
	// Only filled for multi-part groups that are not verifiably complete.
	Candidates []string
	// Multipart marks groups built from a part-numbering convention.
	Multipart bool
	// PossiblyIncomplete marks groups that may be missing pieces.
	PossiblyIncomplete bool
}

// ExtractionList returns the group's archives in the order they should
// be attempted: missing-part candidates first, then the main archive,
// then any clustered extras. Continuation parts are never listed.
func (g *Group) ExtractionList() []string {
	var list []string

	if g.Multipart {
		list = appendOnce(list, g.Candidates...)
		if g.Main != "" {
			list = appendOnce(list, g.Main)
		}

		return list
	}

	if g.Main != "" {
		list = appendOnce(list, g.Main)
	}

	return appendOnce(list, g.Files...)
}

// Grouper clusters drop-folder files into Groups.
type Grouper struct {
	// Threshold is the minimum similarity ratio for joining a group.
	Threshold float64

	metric *metrics.SorensenDice
	log    Logger
}

// NewGrouper returns a Grouper using Sorensen-Dice similarity over
// bigrams. A threshold of 0 or less selects DefaultSimilarity.
func NewGrouper(threshold float64, log Logger) *Grouper {
	if threshold <= 0 {
		threshold = DefaultSimilarity
	}

	if log == nil {
		log = NoLogger()
	}

	metric := metrics.NewSorensenDice()
	metric.CaseSensitive = false
	metric.NgramSize = 2

	return &Grouper{Threshold: threshold, metric: metric, log: log}
}

// Similarity returns the normalized-name similarity of two paths.
func (g *Grouper) Similarity(pathA, pathB string) float64 {
	return strutil.Similarity(matchKey(pathA), matchKey(pathB), g.metric)
}

// GroupFiles partitions a drop folder into work groups. Files directly
// in root form one locality; each subfolder is analyzed the same way on
// its own, with its name prefixed onto the resulting group keys, so
// releases dropped in their own folders never cross-group. Output order
// is deterministic for a given tree.
func (g *Grouper) GroupFiles(root string) ([]Group, error) {
	groups, err := g.groupTree(root, "")
	if err != nil {
		return nil, err
	}

	g.log.Debugf("Grouped drop folder %s into %d group(s)", root, len(groups))

	return groups, nil
}

// groupTree groups one folder's own files, then descends into each
// subfolder with that folder's name appended to the key prefix.
func (g *Grouper) groupTree(dir, prefix string) ([]Group, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing drop folder: %w", err)
	}

	var direct, subdirs []string

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		if entry.IsDir() {
			subdirs = append(subdirs, name)
			continue
		}

		direct = append(direct, filepath.Join(dir, name))
	}

	sort.Strings(direct)
	sort.Strings(subdirs)

	groups := g.groupLocality(direct)

	if prefix != "" {
		for i := range groups {
			groups[i].Key = prefix + "/" + groups[i].Key
		}
	}

	for _, sub := range subdirs {
		subPrefix := sub
		if prefix != "" {
			subPrefix = prefix + "/" + sub
		}

		subGroups, err := g.groupTree(filepath.Join(dir, sub), subPrefix)
		if err != nil {
			return nil, err
		}

		groups = append(groups, subGroups...)
	}

	return groups, nil
}

// groupLocality groups the files of one locality. Multi-part sets are
// carved out first; the remaining archives cluster by name similarity in
// sorted order. Non-archive junk joins nothing.
func (g *Grouper) groupLocality(paths []string) []Group {
	if len(paths) == 0 {
		return nil
	}

	sets, singles := AnalyzeFiles(paths)

	var (
		groups []Group
		norms  []string
	)

	for _, set := range sets {
		if !groupableSet(set) {
			continue // junk that only looks numbered, e.g. rotated logs.
		}

		grp := Group{
			Key:                set.Base,
			Main:               set.First,
			Multipart:          true,
			PossiblyIncomplete: set.PossiblyIncomplete || !set.Complete,
		}

		for _, part := range set.Parts {
			grp.Files = append(grp.Files, part.Path)
		}

		if grp.PossiblyIncomplete {
			grp.Candidates = FindMissingParts(set, paths)
		}

		groups = append(groups, grp)
		norms = append(norms, strings.ToLower(set.Base))
	}

	var pool []string

	for _, path := range singles {
		if groupable(path) {
			pool = append(pool, path)
		}
	}

	sort.Strings(pool)

	for _, path := range pool {
		norm := matchKey(path)

		bestIdx, bestScore := -1, 0.0

		for i := range norms {
			if score := strutil.Similarity(norm, norms[i], g.metric); score > bestScore {
				bestIdx, bestScore = i, score
			}
		}

		if bestIdx >= 0 && bestScore >= g.Threshold {
			groups[bestIdx].Files = append(groups[bestIdx].Files, path)
			g.log.Debugf("Grouped %s with %s (similarity %.2f)", path, groups[bestIdx].Key, bestScore)

			continue
		}

		groups = append(groups, Group{
			Key:   StripSuffixes(filepath.Base(path)),
			Main:  path,
			Files: []string{path},
		})
		norms = append(norms, norm)
	}

	return groups
}

// groupable reports whether a lone file belongs in any group: it must
// classify as an archive by name or sniff as one by content.
func groupable(path string) bool {
	if cls, ok := classifyName(filepath.Base(path)); ok && cls.Archive {
		return true
	}

	return IsArchiveFileByContent(path)
}

// groupableSet reports whether a multi-part set is worth a group. Sets
// from a bare numeric convention carry no family, so the first member
// gets sniffed.
func groupableSet(set MultiPart) bool {
	if set.Type != "" {
		return true
	}

	probe := set.First
	if probe == "" && len(set.Parts) > 0 {
		probe = set.Parts[0].Path
	}

	return probe != "" && IsArchiveFileByContent(probe)
}

// matchKey normalizes a path for similarity comparison: base name with
// part and archive suffixes stripped, lowercased.
func matchKey(path string) string {
	return strings.ToLower(StripSuffixes(filepath.Base(path)))
}

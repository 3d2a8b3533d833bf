package unpackr

/* Cloaked-name repair: the declarative rule store and the repair engine.
   Cloaked files are archives hiding behind mangled names, usually to dodge
   upload filters: junk extensions, junk characters wedged into the real
   extension, or both. */

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Match targets for CloakRule.Match.
const (
	MatchName = "name" // pattern runs against the whole file name (default).
	MatchExt  = "ext"  // pattern runs against the extension only.
	MatchBoth = "both" // name first, then extension.
)

// CloakRule reconstructs a canonical archive name from a cloaked one.
type CloakRule struct {
	// Name identifies the rule in logs and load errors.
	Name string `json:"name"`
	// Type is the archive family the rule applies to, or "*" for any.
	Type string `json:"type"`
	// Pattern is a regular expression with named capture groups.
	Pattern string `json:"pattern"`
	// Rebuild is a template expanded with the captured groups, e.g.
	// "$base.7z.$num". It must reference only groups the pattern captures.
	Rebuild string `json:"rebuild"`
	// Match selects what the pattern runs against. Empty means "name".
	Match string `json:"match,omitempty"`

	re *regexp.Regexp
}

// rebuildRefRe extracts $group and ${group} references from templates.
//
//nolint:gochecknoglobals
var rebuildRefRe = regexp.MustCompile(`\$(\w+)|\$\{(\w+)\}`)

// compile validates the rule and caches its compiled pattern.
func (r *CloakRule) compile() error {
	var errs []error

	if r.Name == "" {
		errs = append(errs, errors.New("missing name"))
	}

	if r.Type == "" {
		errs = append(errs, errors.New("missing type"))
	}

	if r.Rebuild == "" {
		errs = append(errs, errors.New("missing rebuild template"))
	}

	switch r.Match {
	case "", MatchName, MatchExt, MatchBoth:
	default:
		errs = append(errs, fmt.Errorf("bad match value %q", r.Match))
	}

	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		errs = append(errs, fmt.Errorf("bad pattern: %w", err))
	} else {
		r.re = re

		groups := map[string]bool{}
		for _, name := range re.SubexpNames() {
			groups[name] = true
		}

		for _, ref := range rebuildRefRe.FindAllStringSubmatch(r.Rebuild, -1) {
			group := ref[1] + ref[2]
			if !groups[group] {
				errs = append(errs, fmt.Errorf("rebuild references uncaptured group %q", group))
			}
		}
	}

	return errors.Join(errs...)
}

// CloakRuleSet is an ordered list of repair rules. First match wins.
type CloakRuleSet struct {
	rules []CloakRule
	// Loose enables the last-resort interleaved-character match.
	Loose bool
}

// DefaultCloakRules returns the built-in rule set. It covers the common
// tricks: a junk extension appended after the real one, and junk characters
// wedged between the archive extension and the volume number.
func DefaultCloakRules() *CloakRuleSet {
	rules := []CloakRule{
		{
			Name:    "numbered volume with junk extension",
			Type:    "*",
			Pattern: `(?i)^(?P<base>.+)\.(?P<fam>7z|zip|rar)\.(?P<num>\d{2,4})\.[a-z0-9_\- ]{1,6}$`,
			Rebuild: "$base.$fam.$num",
		},
		{
			Name:    "junk between family and volume number",
			Type:    "*",
			Pattern: `(?i)^(?P<base>.+)\.(?P<fam>7z|zip|rar)[^a-z0-9.]{1,8}\.?(?P<num>\d{2,4})$`,
			Rebuild: "$base.$fam.$num",
		},
		{
			Name:    "single archive with junk extension",
			Type:    "*",
			Pattern: `(?i)^(?P<base>.+)\.(?P<fam>7z|zip|rar|tgz|tar|gz|bz2|xz|iso)\.[a-z0-9_\- ]{1,6}$`,
			Rebuild: "$base.$fam",
		},
		{
			Name:    "junk appended to family extension",
			Type:    "*",
			Pattern: `(?i)^(?P<base>.+)\.(?P<fam>7z|zip|rar)[^a-z0-9.]{1,8}$`,
			Rebuild: "$base.$fam",
		},
	}

	set := &CloakRuleSet{rules: rules, Loose: true}
	for i := range set.rules {
		if err := set.rules[i].compile(); err != nil {
			panic("built-in cloak rule: " + err.Error())
		}
	}

	return set
}

// LoadCloakRules reads a JSON array of rules from path. Every rule is
// validated; all problems are reported together, not just the first.
// Callers should degrade to no cloak detection when this fails.
func LoadCloakRules(path string) (*CloakRuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cloak rules: %w", err)
	}

	var rules []CloakRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadRuleFile, path, err)
	}

	var errs []error

	for i := range rules {
		if err := rules[i].compile(); err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s): %w", i, rules[i].Name, err))
		}
	}

	if len(errs) != 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadRuleFile, path, errors.Join(errs...))
	}

	return &CloakRuleSet{rules: rules, Loose: true}, nil
}

// Len returns the number of rules in the set.
func (rs *CloakRuleSet) Len() int {
	if rs == nil {
		return 0
	}

	return len(rs.rules)
}

// Repair attempts to reconstruct the canonical archive name for a file
// whose content sniffed as family. Rules run in order; the first rule that
// produces a structurally valid name for the same family wins. The loose
// interleave match runs last. Repair never touches the filesystem.
func (rs *CloakRuleSet) Repair(name, family string) (string, bool) {
	if rs == nil {
		return "", false
	}

	for i := range rs.rules {
		rule := &rs.rules[i]
		if rule.Type != "*" && rule.Type != family {
			continue
		}

		if rebuilt, ok := rule.apply(name); ok && rs.accepts(rebuilt, name, family) {
			return rebuilt, true
		}
	}

	if rs.Loose {
		if rebuilt, ok := looseRepair(name, family); ok && rs.accepts(rebuilt, name, family) {
			return rebuilt, true
		}
	}

	return "", false
}

// accepts verifies a rebuilt name: it must differ, classify structurally,
// and agree with the sniffed family.
func (rs *CloakRuleSet) accepts(rebuilt, name, family string) bool {
	if rebuilt == "" || rebuilt == name {
		return false
	}

	cls, ok := classifyName(rebuilt)
	if !ok {
		return false
	}

	if cls.Type != "" && family != "" && cls.Type != family {
		return false
	}

	return true
}

// apply runs one rule against a name per its Match target.
func (r *CloakRule) apply(name string) (string, bool) {
	try := func(subject string, extMode bool) (string, bool) {
		match := r.re.FindStringSubmatchIndex(subject)
		if match == nil {
			return "", false
		}

		rebuilt := string(r.re.ExpandString(nil, r.Rebuild, subject, match))
		if extMode {
			rebuilt = strings.TrimSuffix(name, subject) + rebuilt
		}

		return rebuilt, rebuilt != ""
	}

	switch r.Match {
	case MatchExt:
		return try(filepath.Ext(name), true)
	case MatchBoth:
		if rebuilt, ok := try(name, false); ok {
			return rebuilt, true
		}

		return try(filepath.Ext(name), true)
	default:
		return try(name, false)
	}
}

// looseGap is the maximum run of junk bytes tolerated between consecutive
// extension characters. Four bytes covers one CJK rune plus a separator.
const looseGap = 4

//nolint:gochecknoglobals
var looseNumRe = regexp.MustCompile(`^[^0-9a-zA-Z]{0,4}(\d{2,4})`)

// looseRepair is the last-resort reconstruction: find the family extension's
// characters in order inside the name, junk interleaved, and rebuild
// "<base><ext>[.<num>]" around them.
func looseRepair(name, family string) (string, bool) {
	ext := canonicalExt(family)
	if ext == "" {
		return "", false
	}

	token := strings.TrimPrefix(ext, ".")
	lower := strings.ToLower(name)

	start, end := looseFind(lower, token)
	if start <= 0 {
		return "", false // a token at index 0 leaves no base name.
	}

	base := strings.TrimRight(name[:start], " ._-")
	if base == "" {
		return "", false
	}

	rebuilt := base + ext
	rest := lower[end:]

	if m := looseNumRe.FindStringSubmatchIndex(rest); m != nil {
		rebuilt += "." + rest[m[2]:m[3]]
		rest = rest[m[1]:]
	}

	// The reassembled extension must end the name. Letters or digits
	// after it mean a junk-suffixed name, which only the listed rules
	// may repair.
	if strings.ContainsFunc(rest, isAlnumRune) {
		return "", false
	}

	return rebuilt, true
}

func isAlnumRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// looseFind returns the byte span of the last in-order occurrence of token
// in s, allowing at most looseGap junk bytes between consecutive token
// characters. Returns (-1, -1) when the token never appears.
func looseFind(s, token string) (int, int) {
	if token == "" {
		return -1, -1
	}

	bestStart, bestEnd := -1, -1

	for i := 0; i < len(s); i++ {
		if s[i] != token[0] {
			continue
		}

		pos, ok := i, true

		for j := 1; j < len(token); j++ {
			limit := min(len(s), pos+2+looseGap)

			next := strings.IndexByte(s[pos+1:limit], token[j])
			if next < 0 {
				ok = false
				break
			}

			pos += 1 + next
		}

		if ok {
			bestStart, bestEnd = i, pos+1
		}
	}

	return bestStart, bestEnd
}

// canonicalExt maps an archive family to its canonical file extension.
func canonicalExt(family string) string {
	switch family {
	case TypeSevenZip:
		return ".7z"
	case TypeZip:
		return ".zip"
	case TypeRar:
		return ".rar"
	case TypeTar:
		return ".tar"
	case TypeGzip:
		return ".gz"
	case TypeBzip2:
		return ".bz2"
	case TypeXZ:
		return ".xz"
	case TypeZstd:
		return ".zst"
	case TypeLZ4:
		return ".lz4"
	case TypeLZMA:
		return ".lzma"
	case TypeBrotli:
		return ".br"
	case TypeLZW:
		return ".z"
	case TypeISO:
		return ".iso"
	case TypeRPM:
		return ".rpm"
	case TypeDeb:
		return ".deb"
	case TypeCpio:
		return ".cpio"
	case TypeZlib:
		return ".zz"
	case TypeSnappy:
		return ".sz"
	case TypeS2:
		return ".s2"
	default:
		return ""
	}
}

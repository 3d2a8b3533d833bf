package unpackr

/* Password registry: the ordered list of known archive passwords and its
   append-only on-disk store. */

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ContextPasswordFile is the per-drop password file discovered next to the
// archives being processed.
const ContextPasswordFile = "passwords.txt"

// storeMode keeps the password store private to the owner.
const storeMode = 0o600

// PasswordRegistry holds known passwords in trial order. The empty
// password is never stored; it is an implicit first trial, not an entry.
type PasswordRegistry struct {
	order []string
	known map[string]bool
	fresh []string
	dirty bool
}

// NewPasswordRegistry returns an empty registry.
func NewPasswordRegistry() *PasswordRegistry {
	return &PasswordRegistry{known: map[string]bool{}}
}

// LoadFile merges the store at path into the registry, one password per
// line, first occurrence wins. A missing file loads nothing and is not an
// error. Returns how many new passwords were merged.
func (r *PasswordRegistry) LoadFile(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("opening password file: %w", err)
	}
	defer file.Close()

	var count int

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		pw := strings.TrimRight(scanner.Text(), "\r\n")
		if pw == "" {
			continue
		}

		if r.add(pw, false) {
			count++
		}
	}

	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("reading password file: %w", err)
	}

	return count, nil
}

// LoadContext merges the drop folder's own password file, when present.
// Never errors; an unreadable or missing file merges nothing.
func (r *PasswordRegistry) LoadContext(dir string) int {
	count, err := r.LoadFile(filepath.Join(dir, ContextPasswordFile))
	if err != nil {
		return 0
	}

	return count
}

// Add appends a newly learned password. Empty or already-known passwords
// are not stored. Returns whether the password was added.
func (r *PasswordRegistry) Add(pw string) bool {
	return r.add(pw, true)
}

func (r *PasswordRegistry) add(pw string, fresh bool) bool {
	if pw == "" || r.known[pw] {
		return false
	}

	r.known[pw] = true
	r.order = append(r.order, pw)

	if fresh {
		r.fresh = append(r.fresh, pw)
		r.dirty = true
	}

	return true
}

// Contains reports whether pw is already known.
func (r *PasswordRegistry) Contains(pw string) bool {
	return r.known[pw]
}

// List returns the passwords in insertion order. The slice is a copy.
func (r *PasswordRegistry) List() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)

	return out
}

// Len returns how many passwords the registry holds.
func (r *PasswordRegistry) Len() int {
	return len(r.order)
}

// Flush appends the passwords learned since load to the store at path,
// creating it when absent. Existing store content is never rewritten or
// reordered. No-op when nothing new was learned.
func (r *PasswordRegistry) Flush(path string) error {
	if !r.dirty {
		return nil
	}

	return r.ForceFlush(path)
}

// ForceFlush writes the learned passwords even when the registry is not
// marked dirty.
func (r *PasswordRegistry) ForceFlush(path string) error {
	if len(r.fresh) == 0 {
		r.dirty = false
		return nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, storeMode)
	if err != nil {
		return fmt.Errorf("opening password store: %w", err)
	}

	// A hand-edited store may lack a trailing newline; appending straight
	// after it would corrupt the last password.
	if info, err := file.Stat(); err == nil && info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := file.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			if _, err := file.WriteString("\n"); err != nil {
				file.Close()
				return fmt.Errorf("writing password store: %w", err)
			}
		}
	}

	for _, pw := range r.fresh {
		if _, err := fmt.Fprintln(file, pw); err != nil {
			file.Close()
			return fmt.Errorf("writing password store: %w", err)
		}
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("closing password store: %w", err)
	}

	r.fresh = nil
	r.dirty = false

	return nil
}

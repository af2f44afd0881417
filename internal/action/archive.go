// internal/action/archive.go
package action

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ArchiveMode is what happens to files matched by an ArchiveRule.
type ArchiveMode string

const (
	ArchiveCopy   ArchiveMode = "copy"
	ArchiveMove   ArchiveMode = "move"
	ArchiveDelete ArchiveMode = "delete"
)

// ArchiveRule matches files of an attempt's work directory by glob before the
// next attempt runs.
type ArchiveRule struct {
	Mode    ArchiveMode `yaml:"mode" json:"mode"`
	Pattern string      `yaml:"pattern" json:"pattern"`
}

func (r ArchiveRule) Validate() error {
	switch ArchiveMode(strings.ToLower(string(r.Mode))) {
	case ArchiveCopy, ArchiveMove, ArchiveDelete:
	default:
		return fmt.Errorf("unknown archive mode %q", r.Mode)
	}
	if r.Pattern == "" {
		return fmt.Errorf("empty archive pattern")
	}
	if filepath.IsAbs(r.Pattern) || strings.Contains(filepath.ToSlash(r.Pattern), "..") {
		return fmt.Errorf("archive pattern %q must stay inside the work directory", r.Pattern)
	}
	if _, err := filepath.Match(r.Pattern, ""); err != nil {
		return fmt.Errorf("bad archive pattern %q: %w", r.Pattern, err)
	}
	return nil
}

// ArchiveResult lists the files touched, relative to the work directory.
type ArchiveResult struct {
	Copied  []string `json:"copied,omitempty"`
	Moved   []string `json:"moved,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
}

// Archive applies rules to the regular files directly matched in dir. Moved
// and copied files land in dest, which is created on demand. A file matched
// by move is not also copied, and a file matched by copy or move is never
// deleted.
func Archive(dir, dest string, rules []ArchiveRule) (ArchiveResult, error) {
	var res ArchiveResult
	if len(rules) == 0 {
		return res, nil
	}

	sets := map[ArchiveMode]map[string]bool{
		ArchiveCopy:   {},
		ArchiveMove:   {},
		ArchiveDelete: {},
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return res, err
		}
		matches, err := filepath.Glob(filepath.Join(dir, r.Pattern))
		if err != nil {
			return res, fmt.Errorf("failed to match %q: %w", r.Pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			rel, err := filepath.Rel(dir, m)
			if err != nil {
				continue
			}
			sets[ArchiveMode(strings.ToLower(string(r.Mode)))][rel] = true
		}
	}

	for rel := range sets[ArchiveMove] {
		delete(sets[ArchiveCopy], rel)
		delete(sets[ArchiveDelete], rel)
	}
	for rel := range sets[ArchiveCopy] {
		delete(sets[ArchiveDelete], rel)
	}

	if len(sets[ArchiveCopy])+len(sets[ArchiveMove]) > 0 {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return res, fmt.Errorf("failed to create archive directory %s: %w", dest, err)
		}
	}

	for _, rel := range sorted(sets[ArchiveCopy]) {
		if err := copyFile(filepath.Join(dir, rel), filepath.Join(dest, filepath.Base(rel))); err != nil {
			return res, err
		}
		res.Copied = append(res.Copied, rel)
	}
	for _, rel := range sorted(sets[ArchiveMove]) {
		src, dst := filepath.Join(dir, rel), filepath.Join(dest, filepath.Base(rel))
		if err := os.Rename(src, dst); err != nil {
			// Cross-device moves fall back to copy and remove.
			if err := copyFile(src, dst); err != nil {
				return res, err
			}
			if err := os.Remove(src); err != nil {
				return res, fmt.Errorf("failed to remove %s after copy: %w", src, err)
			}
		}
		res.Moved = append(res.Moved, rel)
	}
	for _, rel := range sorted(sets[ArchiveDelete]) {
		if err := os.Remove(filepath.Join(dir, rel)); err != nil && !os.IsNotExist(err) {
			return res, fmt.Errorf("failed to delete %s: %w", rel, err)
		}
		res.Deleted = append(res.Deleted, rel)
	}
	return res, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

func sorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

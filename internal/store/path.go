package store

import (
	"fmt"
	"strings"
)

// Split breaks a path into its segments, ignoring empty ones
func Split(path string) []string {
	raw := strings.Split(path, "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// Join builds a path from segments
func Join(segs ...string) string {
	var parts []string
	for _, s := range segs {
		parts = append(parts, Split(s)...)
	}
	return strings.Join(parts, "/")
}

// Related reports whether a change at one path can alter the value at the
// other, i.e. one is an ancestor of (or equal to) the other
func Related(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValidateKey rejects path segments that cannot be stored
func ValidateKey(seg string) error {
	if seg == "" || strings.ContainsAny(seg, ".#$[]") {
		return fmt.Errorf("%w: segment %q", ErrInvalidPath, seg)
	}
	return nil
}

// ValidatePath checks every segment of a path
func ValidatePath(segs []string) error {
	for _, s := range segs {
		if err := ValidateKey(s); err != nil {
			return err
		}
	}
	return nil
}

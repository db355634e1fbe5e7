// Package security guards the places where request input turns into
// filesystem paths: backup names and export destinations.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateExportPath accepts a destination only under the temp directory or
// the current working directory. Handlers call this before writing any file
// whose name came from a request.
func ValidateExportPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	for _, dir := range []string{os.TempDir(), cwd} {
		if withinDir(path, dir) {
			return nil
		}
	}
	return fmt.Errorf("path %s must be under the temp or working directory", path)
}

// withinDir reports whether path resolves inside dir after symlinks. A path
// that does not exist yet is resolved against its nearest existing ancestor,
// so a symlinked parent cannot smuggle the write elsewhere.
func withinDir(path, dir string) bool {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return false
	}
	canonicalDir, err := canonicalizeDir(dir)
	if err != nil {
		return false
	}
	canonicalPath := canonicalize(absPath)

	rel, err := filepath.Rel(canonicalDir, canonicalPath)
	if err != nil {
		return false
	}
	return rel != ".." &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator)) &&
		!filepath.IsAbs(rel)
}

func canonicalizeDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// canonicalize resolves symlinks in path. When path does not exist, it walks
// up to the nearest existing ancestor, resolves that, and rejoins the rest.
func canonicalize(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	for cur := absPath; ; {
		parent := filepath.Dir(cur)
		if parent == cur {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, absPath)
			return filepath.Join(resolved, rel)
		}
		cur = parent
	}
}

// SanitizeFilename reduces an arbitrary identifier to a filename-safe form:
// ASCII letters, digits, dot, underscore, and dash survive; runs of anything
// else collapse to a single underscore. The result is capped at 128 bytes and
// never empty.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	squashed := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			squashed = false
		default:
			if !squashed {
				b.WriteByte('_')
				squashed = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// Package validation guards file paths supplied through tool arguments before
// they reach the filesystem.
package validation

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// ErrUnsafePath flags a path that tried to escape its base directory.
var ErrUnsafePath = errors.New("unsafe path")

// safeComponent matches path components that cannot alter directory
// structure.
var safeComponent = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// driveLetter matches Windows-style absolute prefixes such as C:.
var driveLetter = regexp.MustCompile(`^[a-zA-Z]:`)

// SanitizeRelPath validates a user-supplied path meant to resolve under a
// server-owned directory. The path must be relative, free of traversal, and
// built from safe components. The cleaned slash-separated form is returned.
func SanitizeRelPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}

	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrUnsafePath, p)
	}
	if driveLetter.MatchString(p) {
		return "", fmt.Errorf("%w: absolute path %q", ErrUnsafePath, p)
	}
	if strings.Contains(p, "..") {
		return "", fmt.Errorf("%w: path traversal in %q", ErrUnsafePath, p)
	}

	clean := path.Clean(p)
	for _, part := range strings.Split(clean, "/") {
		if !safeComponent.MatchString(part) {
			return "", fmt.Errorf("%w: unsafe component %q", ErrUnsafePath, part)
		}
	}
	return clean, nil
}

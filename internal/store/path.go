package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/workcrew/internal/errors"
)

// ResolveLocation validates a user-supplied storage location and returns
// the absolute document path. Relative locations are joined to root;
// absolute ones must already lie inside it. Traversal segments and NUL bytes
// are rejected outright, and symlinks are resolved before the containment
// check.
func ResolveLocation(root, location string) (string, error) {
	if strings.TrimSpace(location) == "" {
		return "", errors.NewValidationError("storage location is required").WithField("location")
	}
	if strings.ContainsRune(location, 0) || strings.ContainsRune(root, 0) {
		return "", errors.NewValidationError("storage location contains a NUL byte").WithField("location")
	}
	for _, seg := range strings.FieldsFunc(location, isSeparator) {
		if seg == ".." {
			return "", outsideRoot(location)
		}
	}
	if strings.TrimSpace(root) == "" {
		return "", errors.NewValidationError("storage root is required").WithField("root")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrap(err, "resolve storage root")
	}
	rootReal := evalExisting(rootAbs)

	candidate := location
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(rootAbs, candidate)
	}
	candidate = filepath.Clean(candidate)
	if candidate == rootAbs || strings.HasSuffix(location, "/") {
		return "", errors.NewValidationError("storage location must name a file").WithField("location").WithValue(location)
	}

	dirReal := evalExisting(filepath.Dir(candidate))
	if !within(rootReal, dirReal) {
		return "", outsideRoot(location)
	}
	return filepath.Join(dirReal, filepath.Base(candidate)), nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func outsideRoot(location string) error {
	return errors.NewValidationError("storage location resolves outside the allowed root").
		WithField("location").WithValue(location).WithCause(errors.ErrPathOutsideRoot)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// evalExisting resolves symlinks in the longest existing prefix of p.
func evalExisting(p string) string {
	if real, err := filepath.EvalSymlinks(p); err == nil {
		return real
	}
	parent := filepath.Dir(p)
	if parent == p {
		return p
	}
	if _, err := os.Lstat(p); err == nil {
		return p
	}
	return filepath.Join(evalExisting(parent), filepath.Base(p))
}

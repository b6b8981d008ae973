package utils

import (
	"path/filepath"
	"strings"

	cerrors "github.com/objectfs/extractcache/pkg/errors"
)

const component = "pathvalidate"

// ValidateFilePath resolves path to an absolute path and checks it against
// the cache's two security rules: the original (unresolved) textual
// representation must not contain "..", and — when allowedPaths is
// non-empty — the resolved path must fall under one of those prefixes.
//
// The ".." check runs against the raw path, not the filepath.Clean'd one:
// this mirrors the reference implementation's _validate_file_path, which
// checks ".." in str(file_path) before calling .resolve(). Checking the
// cleaned path instead (as a naive port would) silently defeats the check,
// since Clean collapses "a/../../etc/passwd" traversal segments away before
// the traversal is ever flagged.
func ValidateFilePath(path string, allowedPaths []string) (string, error) {
	if path == "" {
		return "", cerrors.Permission(component, "validate", path, "path must not be empty")
	}
	if strings.Contains(path, "..") {
		return "", cerrors.Permission(component, "validate", path, "path contains directory traversal")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", cerrors.Permission(component, "validate", path, "path could not be resolved")
	}

	if len(allowedPaths) == 0 {
		return abs, nil
	}

	for _, allowed := range allowedPaths {
		allowedAbs, err := filepath.Abs(allowed)
		if err != nil {
			continue
		}
		if abs == allowedAbs || strings.HasPrefix(abs, allowedAbs+string(filepath.Separator)) {
			return abs, nil
		}
	}

	return "", cerrors.Permission(component, "validate", path, "path is outside allowed_paths")
}

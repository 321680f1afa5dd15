package errors

import (
	"strings"
	"unicode"
)

// MaxNameLength bounds a single path segment.
const MaxNameLength = 128

// ValidateName validates a single node name (one path segment).
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No dots (dots separate path segments)
//   - No control characters or whitespace
//   - No leading underscore (reserved for internal bookkeeping nodes)
//   - Maximum length of 128 characters
func ValidateName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidName, "node name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return New(ErrCodeInvalidName, "node name too long (max %d characters)", MaxNameLength)
	}

	if strings.HasPrefix(name, "_") {
		return New(ErrCodeInvalidName, "node name cannot start with an underscore: %q", name)
	}

	for _, r := range name {
		if r == '.' {
			return New(ErrCodeInvalidName, "node name cannot contain dots: %q", name)
		}
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidName, "node name contains invalid characters: %q", name)
		}
		if r == '/' || r == '\\' || r == '\x00' {
			return New(ErrCodeInvalidName, "node name contains invalid characters: %q", name)
		}
	}

	return nil
}

// ValidatePath validates a dot-separated node path.
//
// A path may contain empty segments (shortcut notation) and the wildcard
// segment "$", but every literal segment must pass ValidateName.
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 1024
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, seg := range strings.Split(path, ".") {
		if seg == "" || seg == "$" {
			continue
		}
		if err := ValidateName(seg); err != nil {
			return Wrap(ErrCodeInvalidPath, err, "invalid path %q", path)
		}
	}

	return nil
}

// Package collections files photos into one collection per person.
package collections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidName is returned when a person name is not safe to use as a
// collection name.
var ErrInvalidName = errors.New("invalid name")

// MaxNameLength is the longest accepted name, in bytes.
const MaxNameLength = 255

// Store files photos into named collections.
type Store interface {
	// File copies the file at srcPath into collection under fileName,
	// replacing any earlier copy of the same name.
	File(ctx context.Context, collection, fileName, srcPath string) error
	// List returns every collection and the files it holds, sorted.
	List(ctx context.Context) (map[string][]string, error)
}

// ValidateName checks that name can be used as a single path segment:
// non-empty, no separators or control characters, not "." or "..", not
// hidden, and at most MaxNameLength bytes.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidName, len(name), MaxNameLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidName)
	}
	if name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		if r == '/' || r == '\\' || r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains a forbidden character", ErrInvalidName, name)
		}
	}
	return nil
}

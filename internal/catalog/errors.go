package catalog

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNotFound is returned when a lookup by id/slug/source-ref finds nothing.
var ErrNotFound = errors.New("catalog: not found")

// ErrDuplicate is returned when an insert would violate the
// (source, source_ref) partial-unique constraint.
var ErrDuplicate = errors.New("catalog: duplicate source_ref")

var nonSlug = regexp.MustCompile(`[^0-9a-z]+`)

// Slugify normalizes a display name into the slug used as the unique key
// for categories and tags.
func Slugify(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	return strings.Trim(nonSlug.ReplaceAllString(lowered, "-"), "-")
}

// Package ids handles the two id namespaces used by bundle files.
//
// Primary keys are written bare. Foreign keys carry a one-character sigil:
// "&" for absolute ids that already exist in the target system (user ids),
// "_" for relative ids that are local to the bundle and must be remapped on
// import (card ids). Relative ids normally reuse the values from the source
// system for readability, but nothing correlates them with the target.
package ids

import "strings"

const (
	absoluteSigil = "&"
	relativeSigil = "_"
)

// TagAbsolute marks id as already valid in the target system.
func TagAbsolute(id string) string {
	return absoluteSigil + id
}

// TagRelative marks id as local to the bundle.
func TagRelative(id string) string {
	return relativeSigil + id
}

// IsAbsolute reports whether tagged carries the absolute sigil.
func IsAbsolute(tagged string) bool {
	return strings.HasPrefix(tagged, absoluteSigil)
}

// IsRelative reports whether tagged carries the relative sigil.
func IsRelative(tagged string) bool {
	return strings.HasPrefix(tagged, relativeSigil)
}

// Untag strips the sigil from a value already known to satisfy IsAbsolute
// or IsRelative. Calling it on an untagged value is a caller bug; the input
// is returned unchanged.
func Untag(tagged string) string {
	if IsAbsolute(tagged) || IsRelative(tagged) {
		return tagged[1:]
	}
	return tagged
}

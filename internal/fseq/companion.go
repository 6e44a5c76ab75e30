// ABOUTME: Companion file lookup for the currently playing item
// ABOUTME: Tries an ordered list of filename derivations until one exists
package fseq

import (
	"os"
	"path/filepath"
	"strings"
)

// A Deriver maps a playing item's base identifier to a candidate companion
// filename. Derivers are pure so the lookup order stays testable on its own.
type Deriver func(base string) string

// DefaultDerivers is the candidate order: exact suffix, lowercase suffix
// variant, bare basename. First existing file wins.
var DefaultDerivers = []Deriver{
	func(base string) string { return base + ".audio.fseq" },
	func(base string) string { return strings.ToLower(base) + ".audio.fseq" },
	func(base string) string { return base + ".fseq" },
}

// Locate finds the companion frame file for item under dir. The item name's
// own extension is stripped first ("show.fseq" and "show.mp3" share a base).
// A missing companion returns ok=false with no error: callers fall back to
// non-frame-locked behavior.
func Locate(dir, item string, derivers []Deriver) (path string, ok bool) {
	if item == "" {
		return "", false
	}
	if derivers == nil {
		derivers = DefaultDerivers
	}

	base := strings.TrimSuffix(item, filepath.Ext(item))
	for _, derive := range derivers {
		candidate := filepath.Join(dir, derive(base))
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// Package slug derives URL-safe identifiers from human-written titles.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
	valid    = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// Make lower-cases s, strips combining marks after NFD decomposition and
// collapses every run of characters outside [a-z0-9] into a single hyphen.
func Make(s string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	decomposed, _, err := transform.String(stripMarks, strings.ToLower(s))
	if err != nil {
		decomposed = strings.ToLower(s)
	}
	return strings.Trim(nonAlnum.ReplaceAllString(decomposed, "-"), "-")
}

// Valid reports whether s is already in canonical slug form.
func Valid(s string) bool {
	return valid.MatchString(s)
}

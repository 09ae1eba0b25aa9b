package media

import (
	"path"
	"strconv"
	"strings"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/slug"
)

const fallbackBase = "file"

// SplitFilename turns an uploaded filename into a storage-safe base name and
// a lower-case extension without the leading dot.
func SplitFilename(filename string) (base, ext string) {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" {
		name = ""
	}
	rawExt := path.Ext(name)
	base = slug.Make(strings.TrimSuffix(name, rawExt))
	if base == "" {
		base = fallbackBase
	}
	ext = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, strings.ToLower(strings.TrimPrefix(rawExt, ".")))
	return base, ext
}

// JoinFilename is the inverse of SplitFilename.
func JoinFilename(base, ext string) string {
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// Disambiguate returns the first name among base.ext, base-1.ext, base-2.ext
// and so on that is not in taken.
func Disambiguate(base, ext string, taken map[string]struct{}) string {
	candidate := JoinFilename(base, ext)
	for n := 1; ; n++ {
		if _, exists := taken[candidate]; !exists {
			return candidate
		}
		candidate = JoinFilename(base+"-"+strconv.Itoa(n), ext)
	}
}

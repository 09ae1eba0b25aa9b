package richtext

import (
	"iter"
	"sort"
	"strings"
)

// mediaKinds is the closed set of node types whose attrs.src holds a media
// reference. Every other type contributes no references.
var mediaKinds = map[string]struct{}{
	"image": {},
	"video": {},
}

// IsMedia reports whether nodeType carries a media reference.
func IsMedia(nodeType string) bool {
	_, ok := mediaKinds[nodeType]
	return ok
}

// ExtractReferences yields the src of every media node, depth-first in
// document order. Repeated references are yielded once per occurrence.
func ExtractReferences(tree *Node) iter.Seq[string] {
	return func(yield func(string) bool) {
		walkReferences(tree, yield)
	}
}

func walkReferences(n *Node, yield func(string) bool) bool {
	if n == nil {
		return true
	}
	if ref, ok := mediaSource(n); ok {
		if !yield(ref) {
			return false
		}
	}
	for _, child := range n.Content {
		if !walkReferences(child, yield) {
			return false
		}
	}
	return true
}

func mediaSource(n *Node) (string, bool) {
	if n == nil || !IsMedia(n.Type) || n.Attrs == nil {
		return "", false
	}
	src, ok := n.Attrs["src"].(string)
	if !ok || src == "" {
		return "", false
	}
	return src, true
}

// RewriteReferences returns a deep copy of tree in which every media src found
// in mapping is replaced. The input tree is left untouched.
func RewriteReferences(tree *Node, mapping map[string]string) *Node {
	out := tree.Clone()
	rewriteInPlace(out, mapping)
	return out
}

func rewriteInPlace(n *Node, mapping map[string]string) {
	if n == nil {
		return
	}
	if src, ok := mediaSource(n); ok {
		if replacement, found := mapping[src]; found {
			n.Attrs["src"] = replacement
		}
	}
	for _, child := range n.Content {
		rewriteInPlace(child, mapping)
	}
}

// RewriteMarkup substitutes every literal occurrence of each mapping key in
// markup. Longer keys are applied first so a key that prefixes another cannot
// clobber it.
func RewriteMarkup(markup string, mapping map[string]string) string {
	if len(mapping) == 0 || markup == "" {
		return markup
	}
	keys := make([]string, 0, len(mapping))
	for key := range mapping {
		if key != "" {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, key := range keys {
		markup = strings.ReplaceAll(markup, key, mapping[key])
	}
	return markup
}

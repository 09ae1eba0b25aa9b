// Package richtext models the editor's structured document tree and the pure
// transforms the save pipeline runs over it.
package richtext

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Node is one element of a ProseMirror-style document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*Node        `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is inline formatting attached to a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Document pairs a tree with its serialized markup twin.
type Document struct {
	Tree   *Node  `json:"doc"`
	Markup string `json:"html"`
}

// NewDoc returns an empty root node.
func NewDoc() *Node {
	return &Node{Type: "doc"}
}

// Decode parses stored JSON into a tree. Empty input and JSON null decode to
// a nil tree.
func Decode(raw json.RawMessage) (*Node, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var node Node
	if err := json.Unmarshal(trimmed, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// UnmarshalJSON decodes leniently: a content field that is not an array makes
// the node a leaf, children that are not objects are dropped and non-object
// attrs are discarded. Objects without a type are kept as unknown nodes so
// media nested beneath them survives. Documents come from storage that never
// enforced a shape.
func (n *Node) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*n = Node{}
	_ = json.Unmarshal(raw["type"], &n.Type)
	_ = json.Unmarshal(raw["text"], &n.Text)

	if attrs, ok := raw["attrs"]; ok {
		var decoded map[string]any
		if err := json.Unmarshal(attrs, &decoded); err == nil {
			n.Attrs = decoded
		}
	}

	if content, ok := raw["content"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(content, &items); err == nil {
			for _, item := range items {
				var child Node
				if err := json.Unmarshal(item, &child); err != nil {
					continue
				}
				n.Content = append(n.Content, &child)
			}
		}
	}

	if marks, ok := raw["marks"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(marks, &items); err == nil {
			for _, item := range items {
				var mark Mark
				if err := json.Unmarshal(item, &mark); err != nil || mark.Type == "" {
					continue
				}
				n.Marks = append(n.Marks, mark)
			}
		}
	}
	return nil
}

// Clone returns a deep copy that shares no maps or slices with n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Type:  n.Type,
		Attrs: cloneMap(n.Attrs),
		Text:  n.Text,
	}
	if n.Content != nil {
		out.Content = make([]*Node, len(n.Content))
		for i, child := range n.Content {
			out.Content[i] = child.Clone()
		}
	}
	if n.Marks != nil {
		out.Marks = make([]Mark, len(n.Marks))
		for i, mark := range n.Marks {
			out.Marks[i] = Mark{Type: mark.Type, Attrs: cloneMap(mark.Attrs)}
		}
	}
	return out
}

// InsertAt inserts child among n's direct children. Positions outside the
// valid range, including -1, append.
func (n *Node) InsertAt(position int, child *Node) {
	if position < 0 || position >= len(n.Content) {
		n.Content = append(n.Content, child)
		return
	}
	n.Content = append(n.Content, nil)
	copy(n.Content[position+1:], n.Content[position:])
	n.Content[position] = child
}

// IsEmpty reports whether the tree holds neither visible text nor media.
func (n *Node) IsEmpty() bool {
	if n == nil {
		return true
	}
	if strings.TrimSpace(n.Text) != "" {
		return false
	}
	if _, ok := mediaSource(n); ok {
		return false
	}
	for _, child := range n.Content {
		if !child.IsEmpty() {
			return false
		}
	}
	return true
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

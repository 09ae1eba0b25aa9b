package richtext

import (
	"fmt"
	"html"
	"strings"
)

// RenderHTML serializes a tree to HTML. The output depends only on the tree,
// so the markup twin of a document can always be rebuilt from it.
func RenderHTML(tree *Node) string {
	if tree == nil {
		return ""
	}
	var b strings.Builder
	renderNode(&b, tree)
	return b.String()
}

func renderNode(b *strings.Builder, n *Node) {
	switch n.Type {
	case "doc":
		renderContent(b, n)
	case "paragraph":
		wrap(b, n, "<p>", "</p>\n")
	case "heading":
		level := headingLevel(n)
		wrap(b, n, fmt.Sprintf("<h%d>", level), fmt.Sprintf("</h%d>\n", level))
	case "bulletList":
		wrap(b, n, "<ul>\n", "</ul>\n")
	case "orderedList":
		wrap(b, n, "<ol>\n", "</ol>\n")
	case "listItem":
		wrap(b, n, "<li>", "</li>\n")
	case "blockquote":
		wrap(b, n, "<blockquote>\n", "</blockquote>\n")
	case "codeBlock":
		var inner strings.Builder
		for _, child := range n.Content {
			inner.WriteString(child.Text)
		}
		b.WriteString("<pre><code>")
		b.WriteString(html.EscapeString(inner.String()))
		b.WriteString("</code></pre>\n")
	case "text":
		b.WriteString(renderTextWithMarks(n.Text, n.Marks))
	case "hardBreak":
		b.WriteString("<br>")
	case "horizontalRule":
		b.WriteString("<hr>\n")
	case "table":
		wrap(b, n, "<table>\n", "</table>\n")
	case "tableRow":
		wrap(b, n, "<tr>\n", "</tr>\n")
	case "tableCell":
		wrap(b, n, "<td>", "</td>\n")
	case "tableHeader":
		wrap(b, n, "<th>", "</th>\n")
	case "image":
		src, ok := mediaSource(n)
		if !ok {
			return
		}
		b.WriteString(`<img src="`)
		b.WriteString(html.EscapeString(src))
		b.WriteString(`"`)
		writeAttr(b, n, "alt")
		writeAttr(b, n, "title")
		b.WriteString(">\n")
	case "video":
		src, ok := mediaSource(n)
		if !ok {
			return
		}
		b.WriteString(`<video src="`)
		b.WriteString(html.EscapeString(src))
		b.WriteString(`" controls></video>`)
		b.WriteString("\n")
	default:
		// Unknown node type - render content if any
		renderContent(b, n)
	}
}

func wrap(b *strings.Builder, n *Node, open, close string) {
	b.WriteString(open)
	renderContent(b, n)
	b.WriteString(close)
}

func renderContent(b *strings.Builder, n *Node) {
	for _, child := range n.Content {
		renderNode(b, child)
	}
}

func headingLevel(n *Node) int {
	level := 1
	if n.Attrs != nil {
		switch v := n.Attrs["level"].(type) {
		case float64:
			level = int(v)
		case int:
			level = v
		}
	}
	if level < 1 || level > 6 {
		level = 1
	}
	return level
}

func writeAttr(b *strings.Builder, n *Node, key string) {
	value, ok := n.Attrs[key].(string)
	if !ok || value == "" {
		return
	}
	fmt.Fprintf(b, ` %s="%s"`, key, html.EscapeString(value))
}

// renderTextWithMarks renders text with formatting marks, outermost mark first.
func renderTextWithMarks(text string, marks []Mark) string {
	if text == "" {
		return ""
	}
	out := html.EscapeString(text)
	for i := len(marks) - 1; i >= 0; i-- {
		mark := marks[i]
		switch mark.Type {
		case "bold":
			out = "<strong>" + out + "</strong>"
		case "italic":
			out = "<em>" + out + "</em>"
		case "code":
			out = "<code>" + out + "</code>"
		case "link":
			href, _ := mark.Attrs["href"].(string)
			out = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), out)
		case "strike":
			out = "<s>" + out + "</s>"
		case "underline":
			out = "<u>" + out + "</u>"
		}
	}
	return out
}

// Package outline builds a table of contents from rendered document markup.
package outline

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/slug"
)

const ignoreMarker = "toc-ignore"

type Item struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Level int    `json:"level"`
}

type Result struct {
	HTML  string `json:"html"`
	Items []Item `json:"items"`
}

// Extract lists h2 and h3 headings in document order and returns the markup
// with an id on every listed heading.
func Extract(markup string) (Result, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return Result{}, fmt.Errorf("parse markup: %w", err)
	}

	used := make(map[string]int)
	items := []Item{}
	for _, n := range nodes {
		collectHeadings(n, used, &items)
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return Result{}, fmt.Errorf("render markup: %w", err)
		}
	}
	return Result{HTML: buf.String(), Items: items}, nil
}

func collectHeadings(n *html.Node, used map[string]int, items *[]Item) {
	if n.Type == html.ElementNode && (n.DataAtom == atom.H2 || n.DataAtom == atom.H3) {
		if ignored(n) {
			return
		}
		text := strings.Join(strings.Fields(textContent(n)), " ")
		if text == "" {
			return
		}
		id := attr(n, "id")
		if id == "" {
			id = uniqueID(slug.Make(text), used)
			setAttr(n, "id", id)
		} else {
			used[id]++
		}
		*items = append(*items, Item{ID: id, Text: text, Level: int(n.Data[1] - '0')})
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectHeadings(c, used, items)
	}
}

func uniqueID(base string, used map[string]int) string {
	if base == "" {
		base = "section"
	}
	used[base]++
	if used[base] == 1 {
		return base
	}
	for n := used[base]; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if used[candidate] == 0 {
			used[candidate] = 1
			return candidate
		}
	}
}

func ignored(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "data-"+ignoreMarker {
			return true
		}
		if a.Key == "class" {
			for _, class := range strings.Fields(a.Val) {
				if class == ignoreMarker {
					return true
				}
			}
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
		b.WriteString(" ")
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

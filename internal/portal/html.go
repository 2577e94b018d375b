package portal

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// parseHTML parses a buffered page body. The html package never fails on
// malformed markup, only on reader errors, so parsing buffered bytes is
// effectively infallible; errors still propagate for form's sake.
func parseHTML(body []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(body))
}

// hiddenInputValue walks the document for <input name="..."> and returns its
// value attribute. ok is false when no such input exists.
func hiddenInputValue(doc *html.Node, name string) (string, bool) {
	node := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "input" && attr(n, "name") == name
	})
	if node == nil {
		return "", false
	}
	return attr(node, "value"), true
}

// elementTextByID returns the trimmed text content of the element with the
// given id, or "" when absent.
func elementTextByID(doc *html.Node, id string) string {
	node := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	})
	if node == nil {
		return ""
	}
	return strings.TrimSpace(nodeText(node))
}

// elementTextByClass returns the trimmed text content of the first element
// carrying the given class, or "" when absent.
func elementTextByClass(doc *html.Node, class string) string {
	node := findNode(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	})
	if node == nil {
		return ""
	}
	return strings.TrimSpace(nodeText(node))
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

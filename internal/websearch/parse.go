package websearch

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ParseResults extracts organic results from a search results page. Each
// result is an <li class="b_algo"> block: the first anchor's href, the
// first <h2> text, and the first <p> text. Blocks missing any of the three
// are dropped.
func ParseResults(r io.Reader) ([]SearchResult, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, block := range findResultBlocks(root) {
		result := SearchResult{
			URL:         firstAnchorHref(block),
			Title:       textOfFirst(block, "h2"),
			Description: textOfFirst(block, "p"),
		}
		if result.URL == "" || result.Title == "" || result.Description == "" {
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func findResultBlocks(root *html.Node) []*html.Node {
	var blocks []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "li" && hasClass(n, "b_algo") {
			blocks = append(blocks, n)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return blocks
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func firstAnchorHref(n *html.Node) string {
	anchor := findFirst(n, "a")
	if anchor == nil {
		return ""
	}
	for _, attr := range anchor.Attr {
		if attr.Key == "href" {
			return attr.Val
		}
	}
	return ""
}

func textOfFirst(n *html.Node, element string) string {
	node := findFirst(n, element)
	if node == nil {
		return ""
	}
	var sb strings.Builder
	collectText(node, &sb)
	return strings.TrimSpace(sb.String())
}

func findFirst(n *html.Node, element string) *html.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == element {
			return child
		}
		if found := findFirst(child, element); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
}

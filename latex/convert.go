package latex

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// htmlPolicy strips everything an email HTML body may carry down to the
// small tag set the converter understands. Unknown structural tags are
// removed but their text content survives, matching the converter's
// pass-through rule.
var htmlPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "p", "br", "ul", "ol", "li")
	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	return p
}()

// ConvertHTML turns an HTML body into LaTeX. The input is sanitized first,
// then parsed into a tree and converted bottom-up. The result is already
// LaTeX and must never be passed through Escape again.
func ConvertHTML(src string) (string, error) {
	sanitized := htmlPolicy.Sanitize(src)

	root, err := html.Parse(strings.NewReader(sanitized))
	if err != nil {
		return "", fmt.Errorf("parse html body: %w", err)
	}

	body := findBody(root)
	if body == nil {
		return "", nil
	}

	var b strings.Builder
	for child := body.FirstChild; child != nil; child = child.NextSibling {
		convertNode(&b, child)
	}
	return strings.TrimSpace(b.String()), nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if body := findBody(child); body != nil {
			return body
		}
	}
	return nil
}

// convertNode renders one node. Children are always converted first in
// document order; the element then wraps their combined output.
func convertNode(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(Escape(n.Data))
		return
	case html.ElementNode:
		// handled below
	default:
		return
	}

	switch n.DataAtom {
	case atom.B, atom.Strong:
		b.WriteString(`\textbf{`)
		convertChildren(b, n)
		b.WriteString(`}`)
	case atom.I, atom.Em:
		b.WriteString(`\textit{`)
		convertChildren(b, n)
		b.WriteString(`}`)
	case atom.U:
		b.WriteString(`\underline{`)
		convertChildren(b, n)
		b.WriteString(`}`)
	case atom.A:
		b.WriteString(`\href{`)
		b.WriteString(Escape(attr(n, "href")))
		b.WriteString(`}{`)
		convertChildren(b, n)
		b.WriteString(`}`)
	case atom.Br:
		b.WriteString(lineBreak)
	case atom.Ul:
		convertList(b, n, "itemize")
	case atom.Ol:
		convertList(b, n, "enumerate")
	case atom.P:
		convertChildren(b, n)
		b.WriteString("\n\n")
	case atom.Li:
		// A stray list item outside ul/ol; the parent list normally
		// wraps these in \item.
		convertChildren(b, n)
	default:
		// Unrecognized tags never lose their text content.
		convertChildren(b, n)
	}
}

func convertChildren(b *strings.Builder, n *html.Node) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		convertNode(b, child)
	}
}

func convertList(b *strings.Builder, n *html.Node, env string) {
	b.WriteString("\\begin{" + env + "}\n")
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode || child.DataAtom != atom.Li {
			continue
		}
		var item strings.Builder
		convertChildren(&item, child)
		b.WriteString("\\item " + strings.TrimSpace(item.String()) + "\n")
	}
	b.WriteString("\\end{" + env + "}\n")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

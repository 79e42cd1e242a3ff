package onefichier

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

const maxPageSize = 2 << 20

// page is what we care about on a hosting landing page.
type page struct {
	form     *form
	link     string
	linkName string
	fileName string
	mustWait bool
}

type form struct {
	action      string
	fields      url.Values
	hasPassword bool
}

func parsePage(r io.Reader) (*page, error) {
	doc, err := html.Parse(io.LimitReader(r, maxPageSize))
	if err != nil {
		return nil, err
	}

	p := &page{}
	p.walk(doc, nil)
	return p, nil
}

func (p *page) walk(n *html.Node, current *form) {
	switch n.Type {
	case html.TextNode:
		if strings.Contains(strings.ToLower(n.Data), "you must wait") {
			p.mustWait = true
		}

	case html.ElementNode:
		switch n.Data {
		case "form":
			if p.form == nil {
				p.form = &form{action: attr(n, "action"), fields: url.Values{}}
				current = p.form
			}
		case "input":
			if current != nil {
				addInput(current, n)
			}
		case "a":
			if p.link == "" && isDownloadAnchor(n) {
				p.link = attr(n, "href")
				p.linkName = strings.TrimSpace(attr(n, "download"))
			}
		case "td":
			if p.fileName == "" && hasClass(n, "normal") {
				p.fileName = strings.Join(strings.Fields(textOf(n)), " ")
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, current)
	}
}

func addInput(f *form, n *html.Node) {
	name := attr(n, "name")
	if name == "" {
		return
	}
	if name == "pass" {
		f.hasPassword = true
		return
	}
	switch strings.ToLower(attr(n, "type")) {
	case "submit", "button", "image", "reset":
		return
	case "checkbox", "radio":
		if !hasAttr(n, "checked") {
			return
		}
	}
	f.fields.Set(name, attr(n, "value"))
}

func isDownloadAnchor(n *html.Node) bool {
	if attr(n, "href") == "" {
		return false
	}
	return hasAttr(n, "download") || hasClass(n, "ok") || hasClass(n, "btn-general")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}

package indexhtml

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ModuleEntries returns the local src of every module script in the document,
// in document order and without duplicates. These are the bundler entry points.
func ModuleEntries(doc string) []string {
	seen := map[string]bool{}
	var entries []string

	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return entries
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.Data != "script" {
			continue
		}
		var src, typ string
		for _, a := range tok.Attr {
			switch a.Key {
			case "src":
				src = a.Val
			case "type":
				typ = a.Val
			}
		}
		if typ != "module" || !IsLocal(src) || seen[src] {
			continue
		}
		seen[src] = true
		entries = append(entries, src)
	}
}

// RewriteEntries points module scripts at their emitted files and links the
// given stylesheets. outputs maps an entry src (as returned by ModuleEntries)
// to the public path of its output chunk.
func RewriteEntries(doc string, outputs map[string]string, styles []string) string {
	doc = rewriteScripts(doc, func(script *html.Node) bool {
		if typ, _ := attr(script, "type"); typ != "module" {
			return false
		}
		src, _ := attr(script, "src")
		out, ok := outputs[src]
		if !ok || out == src {
			return false
		}
		setAttr(script, "src", out)
		return true
	})

	if len(styles) == 0 {
		return doc
	}

	var links strings.Builder
	for _, href := range styles {
		fmt.Fprintf(&links, "<link rel=\"stylesheet\" href=\"%s\">\n", html.EscapeString(href))
	}
	injection := links.String()

	if idx := strings.Index(doc, "</head>"); idx >= 0 {
		return doc[:idx] + injection + doc[idx:]
	} else if idx := strings.Index(doc, "<body"); idx >= 0 {
		return doc[:idx] + injection + doc[idx:]
	}
	return injection + doc
}

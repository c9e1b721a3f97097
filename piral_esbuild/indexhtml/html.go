// Package indexhtml rewrites the entry index.html of a Piral instance.
//
// Script blocks are located by scanning the raw markup, and only the matched
// blocks are re-rendered; everything else in the document is kept byte for byte.
package indexhtml

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Matches one <script ...>...</script> block, across lines.
var scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)

// IsLocal reports whether a script src points into the local source tree.
// Remote, protocol-relative and data URIs are not local.
func IsLocal(src string) bool {
	if src == "" {
		return false
	}
	for _, prefix := range []string{":", "http:", "https:", "data:"} {
		if strings.HasPrefix(src, prefix) {
			return false
		}
	}
	return true
}

// Transform marks every local script without an explicit type as an ES module.
// Applying it to its own output yields the same document.
func Transform(doc string) string {
	return rewriteScripts(doc, func(script *html.Node) bool {
		src, ok := attr(script, "src")
		if !ok || !IsLocal(src) {
			return false
		}
		if _, typed := attr(script, "type"); typed {
			return false
		}
		setAttr(script, "type", "module")
		return true
	})
}

// rewriteScripts runs mutate over every script element found in the document's
// script blocks. Blocks are collected first and substituted afterwards so the
// scan never sees its own edits. Replacements are keyed by the block text; the
// last rendering of a block wins.
func rewriteScripts(doc string, mutate func(*html.Node) bool) string {
	var spans [][2]int
	replacements := make(map[string]string)

	for offset := 0; offset < len(doc); {
		loc := scriptBlockRe.FindStringIndex(doc[offset:])
		if loc == nil || loc[1] == 0 {
			break
		}
		start, end := offset+loc[0], offset+loc[1]
		text := doc[start:end]
		spans = append(spans, [2]int{start, end})
		if out, ok := rewriteBlock(text, mutate); ok {
			replacements[text] = out
		}
		offset = end
	}

	if len(replacements) == 0 {
		return doc
	}

	var b strings.Builder
	b.Grow(len(doc) + 16*len(replacements))
	last := 0
	for _, span := range spans {
		repl, ok := replacements[doc[span[0]:span[1]]]
		if !ok {
			continue
		}
		b.WriteString(doc[last:span[0]])
		b.WriteString(repl)
		last = span[1]
	}
	b.WriteString(doc[last:])
	return b.String()
}

// rewriteBlock parses one script block as a fragment and returns its rendering
// if mutate changed any script in it. Blocks that fail to parse or render are
// left alone.
func rewriteBlock(text string, mutate func(*html.Node) bool) (string, bool) {
	nodes, err := html.ParseFragment(strings.NewReader(text), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", false
	}

	changed := false
	for _, n := range nodes {
		walk(n, func(el *html.Node) {
			if el.Type == html.ElementNode && el.DataAtom == atom.Script && mutate(el) {
				changed = true
			}
		})
	}
	if !changed {
		return "", false
	}

	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			return "", false
		}
	}
	return b.String(), true
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

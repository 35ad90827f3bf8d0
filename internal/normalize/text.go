// Package normalize turns cleaned listing HTML into LLM-ready text.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MinParagraphLen is the shortest paragraph, in runes, that is kept.
// Shorter ones are mostly buttons, labels and cookie notices.
const MinParagraphLen = 20

var skipTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Head:     true,
	atom.Button:   true,
	atom.Form:     true,
}

var (
	spaceRun     = regexp.MustCompile(`\s+`)
	blankLineRun = regexp.MustCompile(`\n{4,}`)
)

// StructuredText renders headings as "#" markers, list items as "- " or
// "N. " and paragraphs as plain lines, keeping the document order.
// Output depends only on the input.
func StructuredText(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	w := &textWriter{}
	w.walk(root, 0)
	return CollapseBlankLines(w.b.String())
}

// CollapseBlankLines trims trailing spaces and limits runs of blank lines
// to two.
func CollapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	s = blankLineRun.ReplaceAllString(s, "\n\n\n")
	return strings.TrimSpace(s)
}

type textWriter struct {
	b strings.Builder
}

func (w *textWriter) walk(n *html.Node, depth int) {
	if n.Type == html.ElementNode {
		if skipTags[n.DataAtom] {
			return
		}
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			if text := inlineText(n); text != "" {
				level := int(n.Data[1] - '0')
				w.b.WriteString("\n\n" + strings.Repeat("#", level) + " " + text + "\n\n")
			}
			return
		case atom.P:
			if text := inlineText(n); utf8.RuneCountInString(text) > MinParagraphLen {
				w.b.WriteString(text + "\n\n")
			}
			return
		case atom.Ul, atom.Ol:
			w.list(n, depth)
			return
		case atom.Tr:
			w.row(n)
			return
		case atom.Br:
			w.b.WriteString("\n")
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, depth)
	}
}

func (w *textWriter) list(n *html.Node, depth int) {
	ordered := n.DataAtom == atom.Ol
	indent := strings.Repeat("  ", depth)
	idx := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		idx++
		text := inlineTextExcluding(c, atom.Ul, atom.Ol)
		if text != "" {
			prefix := "- "
			if ordered {
				prefix = strconv.Itoa(idx) + ". "
			}
			w.b.WriteString(indent + prefix + text + "\n")
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			if gc.Type == html.ElementNode && (gc.DataAtom == atom.Ul || gc.DataAtom == atom.Ol) {
				w.list(gc, depth+1)
			}
		}
	}
	if depth == 0 {
		w.b.WriteString("\n")
	}
}

func (w *textWriter) row(tr *html.Node) {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			if t := inlineText(c); t != "" {
				cells = append(cells, t)
			}
		}
	}
	if len(cells) > 0 {
		w.b.WriteString("- " + strings.Join(cells, " | ") + "\n")
	}
}

func inlineText(n *html.Node) string {
	return inlineTextExcluding(n)
}

// inlineTextExcluding concatenates descendant text with whitespace
// collapsed, skipping subtrees rooted at any of the excluded tags.
func inlineTextExcluding(n *html.Node, exclude ...atom.Atom) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteString(" ")
			return
		case html.ElementNode:
			if skipTags[n.DataAtom] {
				return
			}
			for _, a := range exclude {
				if n.DataAtom == a {
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c)
	}
	return strings.TrimSpace(spaceRun.ReplaceAllString(b.String(), " "))
}

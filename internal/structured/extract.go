// Package structured pulls embedded machine-readable data out of listing
// pages: JSON-LD, framework hydration state, meta tags and JSON hidden
// in comments or noscript blocks. It never fails on a page that lacks
// some or all of these.
package structured

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Data aggregates every structured source found on a page. Raw JSON is
// kept as-is so the source key order survives persistence.
type Data struct {
	JSONLD    []json.RawMessage          `json:"json_ld"`
	Hydration map[string]json.RawMessage `json:"hydration"`
	Meta      map[string]string          `json:"meta"`
	Embedded  []json.RawMessage          `json:"embedded"`
}

// Empty reports whether no source produced anything.
func (d *Data) Empty() bool {
	return len(d.JSONLD) == 0 && len(d.Hydration) == 0 && len(d.Meta) == 0 && len(d.Embedded) == 0
}

// HydrationKeys are the global variable names probed for framework
// state, in lookup order.
var HydrationKeys = []string{
	"__NEXT_DATA__",
	"__NUXT_DATA__",
	"__NUXT__",
	"__INITIAL_STATE__",
	"__PRELOADED_STATE__",
	"__APOLLO_STATE__",
	"__REDUX_STATE__",
	"__INITIAL_PROPS__",
	"__remixContext",
	"__DATA__",
}

func newData() *Data {
	return &Data{
		JSONLD:    []json.RawMessage{},
		Hydration: map[string]json.RawMessage{},
		Meta:      map[string]string{},
		Embedded:  []json.RawMessage{},
	}
}

// Extract parses rawHTML and collects all structured sources. An
// unparseable document yields empty collections.
func Extract(rawHTML string) *Data {
	out := newData()
	if strings.TrimSpace(rawHTML) == "" {
		return out
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return out
	}

	extractJSONLD(doc, out)
	extractHydration(doc, out)
	extractMeta(doc, out)
	extractEmbedded(doc, out)

	return out
}

func extractJSONLD(doc *goquery.Document, out *Data) {
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := cleanJSONText(s.Text())
		if raw == "" || !json.Valid([]byte(raw)) {
			return
		}
		// A top-level array holds several independent blocks.
		var list []json.RawMessage
		if strings.HasPrefix(raw, "[") && json.Unmarshal([]byte(raw), &list) == nil {
			out.JSONLD = append(out.JSONLD, list...)
			return
		}
		out.JSONLD = append(out.JSONLD, json.RawMessage(raw))
	})
}

var assignPattern = regexp.MustCompile(`(?:window\.|self\.|var\s+|let\s+|const\s+)?([A-Za-z_$][\w$]*)\s*=\s*`)

func extractHydration(doc *goquery.Document, out *Data) {
	// Script tags whose id names the state, e.g. Next.js.
	for _, key := range HydrationKeys {
		doc.Find(`script[id="` + key + `"]`).Each(func(_ int, s *goquery.Selection) {
			raw := cleanJSONText(s.Text())
			if raw != "" && json.Valid([]byte(raw)) {
				if _, seen := out.Hydration[key]; !seen {
					out.Hydration[key] = json.RawMessage(raw)
				}
			}
		})
	}

	// Inline assignments like window.__INITIAL_STATE__ = {...};
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if t, _ := s.Attr("type"); t == "application/ld+json" {
			return
		}
		text := s.Text()
		for _, key := range HydrationKeys {
			if _, seen := out.Hydration[key]; seen {
				continue
			}
			if !strings.Contains(text, key) {
				continue
			}
			if raw, ok := assignedJSON(text, key); ok {
				out.Hydration[key] = json.RawMessage(raw)
			}
		}
	})
}

// assignedJSON finds "key = <json>" in a script body and returns the
// balanced JSON value when it parses.
func assignedJSON(script, key string) (string, bool) {
	for _, loc := range assignPattern.FindAllStringSubmatchIndex(script, -1) {
		if script[loc[2]:loc[3]] != key {
			continue
		}
		rest := script[loc[1]:]
		// JSON.parse("...") payloads are double encoded.
		if strings.HasPrefix(rest, "JSON.parse(") {
			inner := strings.TrimPrefix(rest, "JSON.parse(")
			if lit, ok := balanced(inner); ok {
				var s string
				if json.Unmarshal([]byte(lit), &s) == nil && json.Valid([]byte(s)) {
					return s, true
				}
			}
			continue
		}
		if raw, ok := balanced(rest); ok && json.Valid([]byte(raw)) {
			return raw, true
		}
	}
	return "", false
}

// balanced returns the leading JSON object, array or string literal of s.
func balanced(s string) (string, bool) {
	s = strings.TrimLeft(s, " \t\r\n")
	if s == "" {
		return "", false
	}
	open := s[0]
	if open == '"' {
		for i := 1; i < len(s); i++ {
			switch s[i] {
			case '\\':
				i++
			case '"':
				return s[:i+1], true
			}
		}
		return "", false
	}
	if open != '{' && open != '[' {
		return "", false
	}

	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

func extractMeta(doc *goquery.Document, out *Data) {
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		for _, attr := range []string{"property", "name", "itemprop"} {
			if key, ok := s.Attr(attr); ok && key != "" {
				key = strings.ToLower(strings.TrimSpace(key))
				if _, seen := out.Meta[key]; !seen {
					out.Meta[key] = content
				}
				return
			}
		}
	})

	if _, ok := out.Meta["title"]; !ok {
		if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
			out.Meta["title"] = title
		}
	}
	if canonical := strings.TrimSpace(doc.Find(`link[rel="canonical"]`).AttrOr("href", "")); canonical != "" {
		if _, ok := out.Meta["canonical"]; !ok {
			out.Meta["canonical"] = canonical
		}
	}
}

func extractEmbedded(doc *goquery.Document, out *Data) {
	for _, n := range doc.Nodes {
		walkComments(n, func(text string) {
			if raw := cleanJSONText(text); looksLikeJSON(raw) {
				out.Embedded = append(out.Embedded, json.RawMessage(raw))
			}
		})
	}
	doc.Find("noscript").Each(func(_ int, s *goquery.Selection) {
		if raw := cleanJSONText(s.Text()); looksLikeJSON(raw) {
			out.Embedded = append(out.Embedded, json.RawMessage(raw))
		}
	})
}

func walkComments(n *html.Node, fn func(string)) {
	if n.Type == html.CommentNode {
		fn(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkComments(c, fn)
	}
}

func looksLikeJSON(s string) bool {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return json.Valid([]byte(s))
}

// cleanJSONText strips whitespace and the CDATA or comment wrappers some
// sites put around inline JSON.
func cleanJSONText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<![CDATA[")
	s = strings.TrimSuffix(s, "]]>")
	s = strings.TrimPrefix(s, "<!--")
	s = strings.TrimSuffix(s, "-->")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

// Marshal encodes d for persistence.
func (d *Data) Marshal() json.RawMessage {
	b, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	return b
}

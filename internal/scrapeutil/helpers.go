package scrapeutil

import (
	"net/url"
	"path"
	"strings"
)

// ToString safely converts an interface value to string.
func ToString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// NormalizeHost lowercases a hostname and strips a leading "www." so
// registries can match with or without it.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}

// HostOf returns the normalized hostname of rawURL, or "" when it
// cannot be parsed.
func HostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return NormalizeHost(u.Hostname())
}

// HostMatches reports whether host equals one of the candidates or is a
// subdomain of one. Both sides are normalized first.
func HostMatches(host string, candidates ...string) bool {
	host = NormalizeHost(host)
	if host == "" {
		return false
	}
	for _, c := range candidates {
		c = NormalizeHost(c)
		if c == "" {
			continue
		}
		if host == c || strings.HasSuffix(host, "."+c) {
			return true
		}
	}
	return false
}

// ResolveURL resolves ref against base and returns an absolute http(s)
// URL without fragment, or "" when ref is unusable.
func ResolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil && !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// HasExtension reports whether the URL path ends with one of exts
// (compared case-insensitively, with leading dots).
func HasExtension(rawURL string, exts ...string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// Dedupe returns values with empty strings and repeats removed,
// preserving first-seen order.
func Dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

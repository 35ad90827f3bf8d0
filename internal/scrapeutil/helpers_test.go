package scrapeutil

import (
	"net/url"
	"reflect"
	"testing"
)

func TestToString(t *testing.T) {
	if got := ToString(nil); got != "" {
		t.Fatalf("ToString(nil) = %q, want empty string", got)
	}
	if got := ToString("hello"); got != "hello" {
		t.Fatalf("ToString(\"hello\") = %q, want \"hello\"", got)
	}
	if got := ToString(123); got != "" {
		t.Fatalf("ToString(123) = %q, want empty string for non-string", got)
	}
}

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"WWW.Zillow.com":   "zillow.com",
		"zillow.com.":      "zillow.com",
		" www.idealista.es": "idealista.es",
		"":                 "",
	}
	for in, want := range cases {
		if got := NormalizeHost(in); got != want {
			t.Fatalf("NormalizeHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHostMatches(t *testing.T) {
	if !HostMatches("www.zillow.com", "zillow.com") {
		t.Fatalf("expected www.zillow.com to match zillow.com")
	}
	if !HostMatches("m.zillow.com", "zillow.com") {
		t.Fatalf("expected subdomain to match")
	}
	if HostMatches("notzillow.com", "zillow.com") {
		t.Fatalf("expected notzillow.com not to match")
	}
	if HostMatches("", "zillow.com") {
		t.Fatalf("expected empty host not to match")
	}
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://example.com/listing/1")

	if got := ResolveURL(base, "/img/a.jpg#x"); got != "https://example.com/img/a.jpg" {
		t.Fatalf("relative resolve = %q", got)
	}
	if got := ResolveURL(base, "//cdn.example.com/b.png"); got != "https://cdn.example.com/b.png" {
		t.Fatalf("protocol-relative resolve = %q", got)
	}
	if got := ResolveURL(base, "data:image/png;base64,AAA"); got != "" {
		t.Fatalf("data URL should be dropped, got %q", got)
	}
	if got := ResolveURL(base, "javascript:void(0)"); got != "" {
		t.Fatalf("non-http scheme should be dropped, got %q", got)
	}
}

func TestHasExtension(t *testing.T) {
	if !HasExtension("https://x.com/a/B.JPG?w=200", ".jpg") {
		t.Fatalf("expected .JPG to match .jpg")
	}
	if HasExtension("https://x.com/a/b.gif", ".jpg", ".png") {
		t.Fatalf("expected .gif not to match")
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"a", "", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Dedupe = %v, want %v", got, want)
	}
}

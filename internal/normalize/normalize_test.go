package normalize

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const listing = `<html><head><title>ignored</title><style>.x{}</style></head><body>
<div class="wrap"><section>
<h1>Charming   cottage
 in the hills</h1>
<p>Short label</p>
<p>A beautifully restored stone cottage with original beams and a large garden.</p>
<script>var tracking = "should not appear";</script>
<h2>Features</h2>
<ul>
  <li>3 bedrooms</li>
  <li>2 bathrooms
    <ul><li>En-suite master</li></ul>
  </li>
</ul>
<h3>Steps to buy</h3>
<ol><li>Book a viewing</li><li>Make an offer</li></ol>
<table><tr><th>Price</th><td>€450,000</td></tr></table>
<noscript>enable js please</noscript>
</section></div>
</body></html>`

func TestStructuredText(t *testing.T) {
	got := StructuredText(listing)

	for _, want := range []string{
		"# Charming cottage in the hills",
		"## Features",
		"### Steps to buy",
		"A beautifully restored stone cottage with original beams and a large garden.",
		"- 3 bedrooms",
		"- 2 bathrooms",
		"  - En-suite master",
		"1. Book a viewing",
		"2. Make an offer",
		"- Price | €450,000",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output:\n%s", want, got)
		}
	}
	for _, unwanted := range []string{"Short label", "should not appear", "enable js", "ignored", ".x{}"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("did not expect %q in output:\n%s", unwanted, got)
		}
	}
	if strings.Contains(got, "\n\n\n\n") {
		t.Errorf("expected at most two consecutive blank lines:\n%q", got)
	}
	if strings.Index(got, "# Charming") > strings.Index(got, "## Features") {
		t.Errorf("expected document order preserved")
	}
}

func TestStructuredText_Empty(t *testing.T) {
	if got := StructuredText(""); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
	if got := StructuredText("<script>x()</script>"); got != "" {
		t.Fatalf("expected empty output for script-only page, got %q", got)
	}
}

func TestCollapseBlankLines(t *testing.T) {
	in := "a  \n\n\n\n\n\nb\n\n\nc\n"
	want := "a\n\n\nb\n\n\nc"
	if got := CollapseBlankLines(in); got != want {
		t.Fatalf("CollapseBlankLines = %q, want %q", got, want)
	}
}

func TestStructuredText_Deterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	fragment := gen.OneConstOf(
		"<h2>Heading</h2>",
		"<p>A paragraph that is long enough to be kept in the output.</p>",
		"<p>tiny</p>",
		"<ul><li>one</li><li>two</li></ul>",
		"<ol><li>first</li></ol>",
		"<div><span>inline</span></div>",
		"<script>ignored()</script>",
		"<br>\n\n\n\n",
	)

	properties.Property("same input yields byte-identical output", prop.ForAll(
		func(parts []string) bool {
			page := "<html><body>" + strings.Join(parts, "") + "</body></html>"
			first := StructuredText(page)
			second := StructuredText(page)
			return first == second && !strings.Contains(first, "\n\n\n\n")
		},
		gen.SliceOf(fragment),
	))

	properties.TestingRun(t)
}

func TestMarkdown(t *testing.T) {
	page := `<html><head><title>Stone cottage for sale</title>
<meta property="og:site_name" content="Example Homes"></head><body>
<nav><a href="/">Home</a> <a href="/buy">Buy</a></nav>
<article>
<h1>Stone cottage for sale</h1>
<p>A beautifully restored stone cottage with original beams, a large garden and views over the valley.
The property has been carefully renovated by the current owners over the past ten years.</p>
<p>The ground floor offers a generous living room with an inglenook fireplace, a farmhouse kitchen
and a utility room. Upstairs there are three double bedrooms and a family bathroom.</p>
<ul><li>Three bedrooms</li><li>Large garden</li></ul>
</article>
<footer>Copyright</footer>
</body></html>`

	art, err := Markdown(page, "https://example.com/listing/123")
	if err != nil {
		t.Fatalf("Markdown returned error: %v", err)
	}
	if !strings.Contains(art.Markdown, "stone cottage") {
		t.Fatalf("expected article body in markdown, got:\n%s", art.Markdown)
	}
	if art.Title == "" {
		t.Fatalf("expected title to be populated")
	}
	if art.Length == 0 {
		t.Fatalf("expected length to be populated")
	}
}

func TestMarkdown_FallsBackToWholeDocument(t *testing.T) {
	art, err := Markdown("<p>tiny</p>", "not a url")
	if err != nil {
		t.Fatalf("Markdown returned error: %v", err)
	}
	if !strings.Contains(art.Markdown, "tiny") {
		t.Fatalf("expected fallback conversion, got %q", art.Markdown)
	}
}

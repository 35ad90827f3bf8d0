package sites

import (
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func TestRegistryLookup(t *testing.T) {
	reg := Default(nil)

	cases := map[string]string{
		"zillow.com":            "zillow",
		"www.zillow.com":        "zillow",
		"WWW.Idealista.com":     "idealista",
		"idealista.pt":          "idealista",
		"www.rightmove.co.uk":   "rightmove",
		"m.rightmove.co.uk":     "rightmove",
		"example.com":           "",
		"":                      "",
		"fakezillow.com":        "",
		"zillow.com.evil.test":  "",
	}
	for host, want := range cases {
		a := reg.Lookup(host)
		got := ""
		if a != nil {
			got = a.Name()
		}
		if got != want {
			t.Errorf("Lookup(%q) = %q, want %q", host, got, want)
		}
	}

	if a := reg.LookupURL("https://www.idealista.com/inmueble/123/"); a == nil || a.Name() != "idealista" {
		t.Fatalf("LookupURL did not resolve idealista")
	}
}

func TestNilAdapterPassesThrough(t *testing.T) {
	reg := Default(nil)
	html := "<html><body><p>anything</p></body></html>"

	if got := reg.Clean(nil, html); got != html {
		t.Fatalf("Clean(nil) changed input")
	}
	if got := reg.ExtractGallery(nil, html, nil); got != nil {
		t.Fatalf("ExtractGallery(nil) = %v, want nil", got)
	}
	v := map[string]any{"a": 1}
	if got := reg.CleanJSON(nil, v); !reflect.DeepEqual(got, v) {
		t.Fatalf("CleanJSON(nil) changed input")
	}
	if GalleryActions(nil) != nil {
		t.Fatalf("expected no gallery actions for nil adapter")
	}

	var nilReg *Registry
	if nilReg.Lookup("zillow.com") != nil {
		t.Fatalf("nil registry must not resolve adapters")
	}
}

type panicAdapter struct{ hostAdapter }

func (panicAdapter) Clean(string) string                       { panic("boom") }
func (panicAdapter) ExtractGallery(string, *url.URL) []string { panic("boom") }
func (panicAdapter) CleanJSON(any) any                         { panic("boom") }

func TestPanickingAdapterIsRecovered(t *testing.T) {
	a := panicAdapter{hostAdapter{name: "broken", hosts: []string{"broken.test"}}}
	reg := NewRegistry(nil, a)

	if got := reg.Clean(a, "<p>x</p>"); got != "<p>x</p>" {
		t.Fatalf("expected passthrough after panic, got %q", got)
	}
	if got := reg.ExtractGallery(a, "<p>x</p>", nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty gallery after panic, got %v", got)
	}
	if got := reg.CleanJSON(a, "v"); got != "v" {
		t.Fatalf("expected passthrough JSON after panic, got %v", got)
	}
}

func TestZillowCleanJSON(t *testing.T) {
	in := map[string]any{
		"zpid":        "123",
		"price":       float64(500000),
		"nearbyHomes": []any{map[string]any{"zpid": "9"}},
		"_internal":   "x",
		"description": "  ",
		"address": map[string]any{
			"streetAddress": "1 Main St",
			"__typename":    "Address",
			"unit":          nil,
		},
		"resoFacts": map[string]any{"bedrooms": float64(3), "empty": []any{}},
		"responsivePhotos": []any{
			map[string]any{"mixedSources": map[string]any{"jpeg": []any{
				map[string]any{"url": "https://photos.zillowstatic.com/a-small.jpg", "width": float64(384)},
				map[string]any{"url": "https://photos.zillowstatic.com/a-big.jpg", "width": float64(1536)},
			}}},
		},
	}

	out, ok := NewZillow().CleanJSON(in).(map[string]any)
	if !ok {
		t.Fatalf("expected object output")
	}
	for _, k := range []string{"nearbyHomes", "_internal", "description", "resoFacts", "responsivePhotos"} {
		if _, present := out[k]; present {
			t.Errorf("expected %q to be removed", k)
		}
	}
	addr := out["address"].(map[string]any)
	if _, ok := addr["__typename"]; ok {
		t.Errorf("expected __typename stripped")
	}
	if _, ok := addr["unit"]; ok {
		t.Errorf("expected null stripped")
	}
	facts := out["facts"].(map[string]any)
	if facts["bedrooms"] != float64(3) {
		t.Errorf("expected facts hoisted, got %v", facts)
	}
	photos := out["photos"].([]string)
	if len(photos) != 1 || photos[0] != "https://photos.zillowstatic.com/a-big.jpg" {
		t.Errorf("expected widest photo, got %v", photos)
	}
}

const idealistaPage = `<html><body>
<header>site header</header>
<main id="main" class="detail-container">
  <h1>Piso en venta en Calle Mayor</h1>
  <div id="main-multimedia">
    <img src="https://img4.idealista.com/blur/WEB_DETAIL/0/id.pro.es.image.master/aa/bb/1.jpg">
    <img data-ondemand-img="https://img4.idealista.com/blur/WEB_DETAIL/0/id.pro.es.image.master/aa/bb/2.webp" src="data:image/gif;base64,xx">
    <img src="https://img4.idealista.com/blur/WEB_THUMB/0/id.pro.es.image.master/aa/bb/1.jpg">
    <img src="/static/logo.svg">
  </div>
  <div class="comment"><p>Luminoso piso reformado con terraza y vistas.</p></div>
  <section><h2>Anuncios similares</h2><p>otro piso</p></section>
  <div class="ad-contact">Llamar</div>
</main>
<footer>footer</footer>
</body></html>`

func TestIdealistaCleanAndGallery(t *testing.T) {
	a := NewIdealista()

	cleaned := a.Clean(idealistaPage)
	if !strings.Contains(cleaned, "Luminoso piso") || !strings.Contains(cleaned, "Calle Mayor") {
		t.Fatalf("expected main content kept, got %s", cleaned)
	}
	for _, noise := range []string{"site header", "footer", "otro piso", "Llamar"} {
		if strings.Contains(cleaned, noise) {
			t.Errorf("expected %q removed, got %s", noise, cleaned)
		}
	}

	u, _ := url.Parse("https://www.idealista.com/inmueble/123/")
	got := a.ExtractGallery(idealistaPage, u)
	want := []string{
		"https://img4.idealista.com/blur/WEB_DETAIL/0/id.pro.es.image.master/aa/bb/1.jpg",
		"https://img4.idealista.com/blur/WEB_DETAIL/0/id.pro.es.image.master/aa/bb/2.webp",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractGallery = %v, want %v", got, want)
	}
	if len(a.GalleryActions()) == 0 || GalleryActions(a) == nil {
		t.Fatalf("expected gallery actions for idealista")
	}
}

func TestRightmoveGalleryFromPageModel(t *testing.T) {
	page := `<html><body><main><h1>3 bedroom house</h1>
<section><h2>Similar properties</h2><p>elsewhere</p></section>
<p>Detached family home.</p></main>
<script>window.PAGE_MODEL = {"propertyData":{"images":[
 {"url":"https:\/\/media.rightmove.co.uk\/dir\/crop\/10:9-16:9\/123k\/1\/99_IMG_00_0000.jpeg"},
 {"url":"https:\/\/media.rightmove.co.uk\/dir\/123k\/1\/99_IMG_01_0000.jpeg"},
 {"url":"https:\/\/media.rightmove.co.uk\/dir\/123k\/1\/99_IMG_01_0000_max_656x437.jpeg"},
 {"url":"https:\/\/media.rightmove.co.uk\/brand\/logo.png"}
]}}</script></body></html>`

	a := NewRightmove()
	got := a.ExtractGallery(page, nil)
	want := []string{
		"https://media.rightmove.co.uk/dir/crop/10:9-16:9/123k/1/99_IMG_00_0000.jpeg",
		"https://media.rightmove.co.uk/dir/123k/1/99_IMG_01_0000.jpeg",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractGallery = %v, want %v", got, want)
	}

	cleaned := a.Clean(page)
	if strings.Contains(cleaned, "elsewhere") || !strings.Contains(cleaned, "Detached family home") {
		t.Fatalf("unexpected cleaned output: %s", cleaned)
	}
}

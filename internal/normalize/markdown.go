package normalize

import (
	"net/url"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	readability "github.com/go-shiori/go-readability"
)

// Article is the readability view of a page rendered as markdown.
type Article struct {
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	Byline   string `json:"byline"`
	Length   int    `json:"length"`
	SiteName string `json:"site_name"`
	Markdown string `json:"markdown"`
}

// Markdown extracts the main content with readability and converts it to
// CommonMark. When readability finds nothing usable the whole document
// is converted instead.
func Markdown(rawHTML, pageURL string) (*Article, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		u = &url.URL{Scheme: "https", Host: "localhost"}
	}

	converter := htmlmd.NewConverter(u.Hostname(), true, nil)

	art := &Article{}
	source := rawHTML

	parsed, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err == nil && strings.TrimSpace(parsed.Content) != "" {
		art.Title = strings.TrimSpace(parsed.Title)
		art.Excerpt = strings.TrimSpace(parsed.Excerpt)
		art.Byline = strings.TrimSpace(parsed.Byline)
		art.Length = parsed.Length
		art.SiteName = strings.TrimSpace(parsed.SiteName)
		source = parsed.Content
	}

	md, err := converter.ConvertString(source)
	if err != nil {
		return nil, err
	}
	art.Markdown = CollapseBlankLines(md)
	if art.Length == 0 {
		art.Length = len([]rune(art.Markdown))
	}
	return art, nil
}

package configgen

import (
	"fmt"
	"strings"
)

const call1System = `You build configuration for a single-property showcase website from a real estate listing.
Respond with one JSON object and nothing else. It must have exactly the keys of the sample config below.

Rules:
- Never invent information. When the listing does not state a value use "" for text, 0 for numbers and [] for lists.
- Detect the language of the listing and write every text field in that one language. Set "language" to its ISO 639-1 code.
- Copy the description verbatim from the listing. Do not summarize, translate or embellish it.
- Infer "currency" as an ISO 4217 code from the price symbol, the country or the city. Do not default to USD.
- "price", "bedrooms", "bathrooms" and "living_area" are plain numbers without units or separators.
- "area_unit" is "m2" or "sqft" as used by the listing.
- "photos" lists absolute image URLs taken from the listing, best first.
- "highlights" has at most 6 entries of {"icon", "label"}; labels are short (2 to 4 words) and icons come from: %s.
- "style" suggests a font family and two hex colors that suit the property.

Sample config:
%s`

const call2System = `You are a real estate copywriter improving a property website.
Respond with one JSON object of the form {"title": "...", "highlights": [{"icon": "...", "label": "..."}]} and nothing else.

Rules:
- Write in the language given in the input. Never switch language.
- The title is a short marketing headline (at most 70 characters) built only from facts in the input.
- Return at most 6 highlights, each with a 2 to 4 word label grounded in the input and an icon from: %s.
- Never invent facts that are not in the input.`

func call1SystemPrompt() string {
	return fmt.Sprintf(call1System, strings.Join(HighlightIcons, ", "), SampleConfig)
}

func call2SystemPrompt() string {
	return fmt.Sprintf(call2System, strings.Join(HighlightIcons, ", "))
}

// call1UserPrompt assembles the listing content sent with Call 1.
func call1UserPrompt(in Call1Input) string {
	var b strings.Builder
	if in.URL != "" {
		fmt.Fprintf(&b, "Listing URL: %s\n\n", in.URL)
	}
	if in.Structured {
		b.WriteString("Listing data:\n")
	} else {
		b.WriteString("Listing page content:\n")
	}
	b.WriteString(in.Text)
	b.WriteString("\n")
	if len(in.Photos) > 0 {
		b.WriteString("\nGallery photos:\n")
		for _, p := range in.Photos {
			b.WriteString("- " + p + "\n")
		}
	}
	return b.String()
}

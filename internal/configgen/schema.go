package configgen

import (
	"encoding/json"
	"fmt"

	"ottie/internal/model"
)

const metadataKey = model.MetadataKey

// MaxHighlights caps the highlight list in every generated config.
const MaxHighlights = 6

// SampleConfig is the reference site config. Its key order is the
// canonical order for persisted configs and it is shown to the model as
// the required shape.
const SampleConfig = `{
  "language": "en",
  "title": "",
  "address": "",
  "city": "",
  "country": "",
  "price": 0,
  "currency": "",
  "bedrooms": 0,
  "bathrooms": 0,
  "living_area": 0,
  "area_unit": "",
  "description": "",
  "photos": [],
  "highlights": [{"icon": "", "label": ""}],
  "amenities": [],
  "agent": {"name": "", "agency": "", "phone": "", "email": "", "photo": ""},
  "style": {"font": "", "primary_color": "", "secondary_color": ""}
}`

var sampleObject = mustSample()

func mustSample() Object {
	obj, err := decodeObject([]byte(SampleConfig))
	if err != nil {
		panic(fmt.Sprintf("configgen: invalid sample config: %v", err))
	}
	return obj
}

// SortKeys rewrites a config so its keys follow SampleConfig order at
// every level. Keys the sample does not know follow in alphabetical
// order; "_metadata" always comes last.
func SortKeys(raw json.RawMessage) (json.RawMessage, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(reorder(obj, sampleObject))
}

// HighlightIcons is the icon vocabulary offered to the model.
var HighlightIcons = []string{
	"bed", "bath", "ruler", "car", "trees", "waves", "sun", "mountain",
	"building", "home", "key", "wifi", "flame", "snowflake", "dumbbell",
	"shield", "map-pin", "sparkles", "utensils", "sofa", "elevator", "paw",
}

// capHighlights trims obj["highlights"] to MaxHighlights entries and
// drops entries without a label.
func capHighlights(obj Object) {
	v, ok := obj.Get("highlights")
	if !ok {
		return
	}
	list, ok := v.([]any)
	if !ok {
		obj.Set("highlights", []any{})
		return
	}
	out := make([]any, 0, MaxHighlights)
	for _, item := range list {
		h, ok := item.(Object)
		if !ok {
			continue
		}
		if label, _ := h.Get("label"); str(label) == "" {
			continue
		}
		out = append(out, h)
		if len(out) == MaxHighlights {
			break
		}
	}
	obj.Set("highlights", out)
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "yes"
		}
		return "no"
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

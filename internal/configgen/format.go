package configgen

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FormatJSON renders decoded JSON as indented "key: value" lines so
// structured scraper output reads like a listing rather than a payload.
// Map keys are sorted; output depends only on the input.
func FormatJSON(v any) string {
	var b strings.Builder
	formatValue(&b, "", v, 0)
	return strings.TrimSpace(b.String())
}

// FormatRawJSON decodes raw and formats it, keeping source key order.
func FormatRawJSON(raw json.RawMessage) (string, error) {
	v, err := decodeOrdered(raw)
	if err != nil {
		return "", err
	}
	return FormatJSON(v), nil
}

func formatValue(b *strings.Builder, key string, v any, depth int) {
	indent := strings.Repeat("  ", depth)
	label := ""
	if key != "" {
		label = humanize(key) + ": "
	}

	switch t := v.(type) {
	case Object:
		if t.Len() == 0 {
			return
		}
		if key != "" {
			b.WriteString(indent + humanize(key) + ":\n")
			depth++
		}
		for p := t.Oldest(); p != nil; p = p.Next() {
			formatValue(b, p.Key, p.Value, depth)
		}
	case map[string]any:
		if len(t) == 0 {
			return
		}
		if key != "" {
			b.WriteString(indent + humanize(key) + ":\n")
			depth++
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			formatValue(b, k, t[k], depth)
		}
	case []any:
		if len(t) == 0 {
			return
		}
		if key != "" {
			b.WriteString(indent + humanize(key) + ":\n")
		}
		itemIndent := strings.Repeat("  ", depth+1)
		if key == "" {
			itemIndent = indent
		}
		for _, item := range t {
			if scalar, ok := scalarString(item); ok {
				if scalar != "" {
					b.WriteString(itemIndent + "- " + scalar + "\n")
				}
				continue
			}
			b.WriteString(itemIndent + "-\n")
			formatValue(b, "", item, depth+2)
		}
	default:
		s, _ := scalarString(t)
		if s == "" {
			return
		}
		b.WriteString(indent + label + s + "\n")
	}
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case Object, map[string]any, []any:
		return "", false
	case string:
		return strings.TrimSpace(t), true
	case float64:
		// Plain decimal keeps prices and ids as written in the source.
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return str(t), true
	}
}

// humanize turns "livingArea" or "living_area" into "Living area".
func humanize(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
		case i > 0 && r >= 'A' && r <= 'Z':
			b.WriteRune(' ')
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	if s == "" {
		return key
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Projection renders the fields Call 2 needs from a Call 1 config as
// plain text.
func Projection(raw json.RawMessage) (string, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return "", err
	}
	get := func(k string) string {
		v, _ := obj.Get(k)
		return strings.TrimSpace(str(v))
	}

	var b strings.Builder
	line := func(label, value string) {
		if value != "" && value != "0" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}

	line("Language", get("language"))
	line("Current title", get("title"))

	var place []string
	for _, k := range []string{"address", "city", "country"} {
		if v := get(k); v != "" {
			place = append(place, v)
		}
	}
	line("Address", strings.Join(place, ", "))

	if price := get("price"); price != "" && price != "0" {
		line("Price", strings.TrimSpace(price+" "+get("currency")))
	}
	line("Bedrooms", get("bedrooms"))
	line("Bathrooms", get("bathrooms"))
	if area := get("living_area"); area != "" && area != "0" {
		line("Living area", strings.TrimSpace(area+" "+get("area_unit")))
	}

	if desc := get("description"); desc != "" {
		b.WriteString("\nDescription:\n" + desc + "\n")
	}

	if v, ok := obj.Get("amenities"); ok {
		if list, ok := v.([]any); ok && len(list) > 0 {
			b.WriteString("\nAmenities:\n")
			for _, a := range list {
				if s := strings.TrimSpace(str(a)); s != "" {
					b.WriteString("- " + s + "\n")
				}
			}
		}
	}

	if v, ok := obj.Get("highlights"); ok {
		if list, ok := v.([]any); ok && len(list) > 0 {
			b.WriteString("\nExisting highlights:\n")
			for _, item := range list {
				h, ok := item.(Object)
				if !ok {
					continue
				}
				icon, _ := h.Get("icon")
				label, _ := h.Get("label")
				if str(label) != "" {
					fmt.Fprintf(&b, "- %s (%s)\n", str(label), str(icon))
				}
			}
		}
	}

	return strings.TrimSpace(b.String()), nil
}

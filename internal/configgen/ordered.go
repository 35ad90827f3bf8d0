package configgen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is a JSON object that remembers key order. Nested objects
// decoded by decodeOrdered are Objects too.
type Object = *orderedmap.OrderedMap[string, any]

func newObject() Object {
	return orderedmap.New[string, any]()
}

// decodeOrdered decodes JSON keeping object key order. Numbers stay
// json.Number so re-encoding is lossless.
func decodeOrdered(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := newObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return tok, nil
	}
}

// decodeObject decodes raw and requires a top-level object.
func decodeObject(raw []byte) (Object, error) {
	v, err := decodeOrdered(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, errors.New("expected a JSON object")
	}
	return obj, nil
}

// reorder returns a copy of obj with keys in sample order, then any
// remaining keys alphabetically. Nested objects and arrays of objects
// are reordered against the matching part of sample.
func reorder(obj Object, sample Object) Object {
	out := newObject()
	if sample != nil {
		for p := sample.Oldest(); p != nil; p = p.Next() {
			if v, ok := obj.Get(p.Key); ok {
				out.Set(p.Key, reorderValue(v, p.Value))
			}
		}
	}

	var rest []string
	for p := obj.Oldest(); p != nil; p = p.Next() {
		if _, done := out.Get(p.Key); !done && p.Key != metadataKey {
			rest = append(rest, p.Key)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		v, _ := obj.Get(k)
		out.Set(k, reorderValue(v, nil))
	}

	if md, ok := obj.Get(metadataKey); ok {
		out.Set(metadataKey, md)
	}
	return out
}

func reorderValue(v any, sample any) any {
	switch t := v.(type) {
	case Object:
		s, _ := sample.(Object)
		return reorder(t, s)
	case []any:
		var elem Object
		if sa, ok := sample.([]any); ok && len(sa) > 0 {
			elem, _ = sa[0].(Object)
		}
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = reorderValue(item, elem)
		}
		return out
	default:
		return v
	}
}

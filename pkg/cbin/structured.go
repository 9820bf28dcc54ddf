package cbin

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToMap converts doc into plain Go values suitable for JSON or YAML.
func (d *Document) ToMap() map[string]any {
	sections := make([]any, 0, len(d.Sections))
	for _, s := range d.Sections {
		keys := make([]any, 0, len(s.Keys))
		for _, k := range s.Keys {
			values := make([]any, 0, len(k.Values))
			for _, v := range k.Values {
				values = append(values, valueToMap(v))
			}
			keys = append(keys, map[string]any{
				"title":  k.Title,
				"index":  int64(k.TitleIndex),
				"values": values,
			})
		}
		sections = append(sections, map[string]any{
			"title": s.Title,
			"index": int64(s.TitleIndex),
			"keys":  keys,
		})
	}

	result := map[string]any{
		"header": map[string]any{
			"magic":              string(d.Header.Magic[:]),
			"token_table_offset": int64(d.Header.TokenTableOffset),
			"opaque_field":       int64(d.Header.OpaqueField),
			"token_count":        int64(d.Header.TokenCount),
			"opaque_trailer":     strings.ToUpper(hex.EncodeToString(d.Header.OpaqueTrailer[:])),
		},
		"success":  d.Success,
		"sections": sections,
	}
	if len(d.Diagnostics) > 0 {
		diags := make([]any, 0, len(d.Diagnostics))
		for _, diag := range d.Diagnostics {
			diags = append(diags, diag.Error())
		}
		result["diagnostics"] = diags
	}
	return result
}

func valueToMap(v Value) map[string]any {
	switch v.Type {
	case TypeInt:
		return map[string]any{"type": "int", "value": int64(v.Raw)}
	case TypeFloat:
		f := float64(v.Float())
		if math.IsNaN(f) || math.IsInf(f, 0) {
			// JSON has no non-finite numbers; bits keeps the exact payload.
			return map[string]any{"type": "float", "value": formatFloat(v.Float()), "bits": int64(uint32(v.Raw))}
		}
		return map[string]any{"type": "float", "value": f}
	case TypeToken:
		return map[string]any{"type": "token", "value": v.Text, "index": int64(v.Raw)}
	default:
		return map[string]any{"type": "int", "tag": int64(v.Type), "value": int64(v.Raw)}
	}
}

// FromMap builds a document from the structure produced by ToMap. Token
// indices in the input are ignored and strings are interned as they are for
// text import. Opaque header fields are kept when present.
func (c *Codec) FromMap(ctx context.Context, m map[string]any) (*Document, error) {
	rawSections, err := listField(m, "sections")
	if err != nil {
		return nil, err
	}

	sections := make([]Section, 0, len(rawSections))
	for i, rs := range rawSections {
		sm, ok := rs.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("section %d: expected object, got %T", i, rs)
		}
		title, err := stringField(sm, "title")
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", i, err)
		}
		rawKeys, err := listField(sm, "keys")
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", title, err)
		}

		sec := Section{Title: title, TitleIndex: -1}
		for j, rk := range rawKeys {
			key, err := keyFromMap(rk)
			if err != nil {
				return nil, fmt.Errorf("section %q key %d: %w", title, j, err)
			}
			sec.Keys = append(sec.Keys, key)
		}
		sec.Count = int32(len(sec.Keys))
		sections = append(sections, sec)
	}

	doc, err := c.build(ctx, sections)
	if err != nil {
		return nil, err
	}
	if hm, ok := m["header"].(map[string]any); ok {
		if err := applyOpaque(&doc.Header, hm); err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
	}
	return doc, nil
}

func keyFromMap(raw any) (Key, error) {
	km, ok := raw.(map[string]any)
	if !ok {
		return Key{}, fmt.Errorf("expected object, got %T", raw)
	}
	title, err := stringField(km, "title")
	if err != nil {
		return Key{}, err
	}
	rawValues, err := listField(km, "values")
	if err != nil {
		return Key{}, err
	}

	key := Key{Title: title, TitleIndex: -1}
	for n, rv := range rawValues {
		v, err := valueFromMap(rv)
		if err != nil {
			return Key{}, fmt.Errorf("value %d: %w", n, err)
		}
		key.Values = append(key.Values, v)
	}
	key.Count = int32(len(key.Values))
	return key, nil
}

func valueFromMap(raw any) (Value, error) {
	vm, ok := raw.(map[string]any)
	if !ok {
		return Value{}, fmt.Errorf("expected object, got %T", raw)
	}
	typ, err := stringField(vm, "type")
	if err != nil {
		return Value{}, err
	}

	switch typ {
	case "int":
		i, err := toInt32(vm["value"])
		if err != nil {
			return Value{}, err
		}
		v := IntValue(i)
		if tag, ok := vm["tag"]; ok {
			t, err := toInt32(tag)
			if err != nil {
				return Value{}, fmt.Errorf("tag: %w", err)
			}
			v.Type = ValueType(t)
		}
		return v, nil
	case "float":
		if raw, ok := vm["bits"]; ok {
			bits, err := toInt64(raw)
			if err != nil || bits < 0 || bits > math.MaxUint32 {
				return Value{}, fmt.Errorf("bits: expected a 32-bit pattern, got %v", raw)
			}
			return Value{Type: TypeFloat, Raw: int32(uint32(bits))}, nil
		}
		f, err := toFloat64(vm["value"])
		if err != nil {
			return Value{}, err
		}
		return FloatValue(float32(f)), nil
	case "token":
		s, err := stringField(vm, "value")
		if err != nil {
			return Value{}, err
		}
		return TokenValue(-1, s), nil
	default:
		return Value{}, fmt.Errorf("unknown value type %q", typ)
	}
}

func applyOpaque(h *Header, hm map[string]any) error {
	if raw, ok := hm["opaque_field"]; ok {
		v, err := toInt32(raw)
		if err != nil {
			return fmt.Errorf("opaque_field: %w", err)
		}
		h.OpaqueField = v
	}
	if raw, ok := hm["opaque_trailer"]; ok {
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("opaque_trailer: expected hex string, got %T", raw)
		}
		b, err := hex.DecodeString(s)
		if err != nil || len(b) != len(h.OpaqueTrailer) {
			return fmt.Errorf("opaque_trailer: expected %d hex bytes, got %q", len(h.OpaqueTrailer), s)
		}
		copy(h.OpaqueTrailer[:], b)
	}
	return nil
}

func listField(m map[string]any, name string) ([]any, error) {
	raw, ok := m[name]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q: expected list, got %T", name, raw)
	}
	return list, nil
}

func stringField(m map[string]any, name string) (string, error) {
	raw, ok := m[name]
	if !ok {
		return "", fmt.Errorf("missing field %q", name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %T", name, raw)
	}
	return s, nil
}

func toInt32(v any) (int32, error) {
	i, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, fmt.Errorf("value %d overflows int32", i)
	}
	return int32(i), nil
}

func toInt64(v any) (int64, error) {
	var i int64
	switch val := v.(type) {
	case int:
		i = int64(val)
	case int32:
		i = int64(val)
	case int64:
		i = val
	case uint64:
		if val > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", val)
		}
		i = int64(val)
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("value %v is not an integer", val)
		}
		if val < math.MinInt64 || val >= math.MaxInt64 {
			return 0, fmt.Errorf("value %v overflows int64", val)
		}
		i = int64(val)
	case json.Number:
		n, err := strconv.ParseInt(val.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value %s is not an integer", val)
		}
		i = n
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
	return i, nil
}

func toFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		return val.Float64()
	case string:
		// non-finite values as rendered by ToMap
		switch val {
		case "NaN", "+Inf", "-Inf":
			return strconv.ParseFloat(val, 64)
		}
		return 0, fmt.Errorf("expected number, got %q", val)
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

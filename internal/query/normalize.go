// Package query turns untyped request parameters into a typed
// types.FilterRequest. HTTP query strings and websocket handshake queries
// go through the same Normalize call.
package query

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/obay/pkg/types"
)

// Control keys. They are never treated as equality filters, even when a
// schema declares a property with the same name.
const (
	KeyID      = "id"
	KeyOrderBy = "orderBy"
	KeyOrder   = "order"
	KeySkip    = "skip"
	KeyLimit   = "limit"
	KeyResult  = "result"
	KeyCount   = "count"
)

var controlKeys = map[string]bool{
	KeyID:      true,
	KeyOrderBy: true,
	KeyOrder:   true,
	KeySkip:    true,
	KeyLimit:   true,
	KeyResult:  true,
	KeyCount:   true,
}

// IsControlKey reports whether key is a reserved control parameter.
func IsControlKey(key string) bool {
	return controlKeys[key]
}

// FromValues flattens url.Values, keeping the first value of each key.
func FromValues(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

// Normalize converts raw parameters into a FilterRequest for a kind whose
// schema declares props.
//
// A non-empty id short-circuits everything else. Otherwise every value is
// coerced (number, then boolean, then string), control keys are extracted,
// and the remaining keys are kept as equality filters only if props declares
// them. Unknown keys are dropped silently.
func Normalize(raw map[string]string, props types.PropertySet) types.FilterRequest {
	if id := raw[KeyID]; id != "" {
		return types.FilterRequest{ID: id, WantResult: true}
	}

	req := types.FilterRequest{
		Filters:    make(map[string]any),
		Order:      types.OrderAsc,
		WantResult: true,
	}

	for key, value := range raw {
		if IsControlKey(key) {
			continue
		}
		if !props.Has(key) {
			continue
		}
		req.Filters[key] = Coerce(value)
	}

	if v, ok := raw[KeyOrderBy]; ok && props.Has(v) {
		req.OrderBy = v
	}
	if v, ok := raw[KeyOrder]; ok && strings.EqualFold(v, string(types.OrderDesc)) {
		req.Order = types.OrderDesc
	}
	if v, ok := raw[KeySkip]; ok {
		if n, ok := asInt(Coerce(v)); ok && n >= 0 {
			req.Skip = n
		}
	}
	if v, ok := raw[KeyLimit]; ok {
		if n, ok := asInt(Coerce(v)); ok && n > 0 {
			req.Limit = n
		}
	}
	if v, ok := raw[KeyResult]; ok {
		req.WantResult = truthy(Coerce(v), true)
	}
	if v, ok := raw[KeyCount]; ok {
		req.WantCount = truthy(Coerce(v), false)
	}
	return req
}

// NormalizeValues is Normalize over url.Values.
func NormalizeValues(v url.Values, props types.PropertySet) types.FilterRequest {
	return Normalize(FromValues(v), props)
}

// Coerce parses s as a number first, then as a boolean literal, and
// otherwise returns it unchanged. Numbers are returned as float64 to match
// encoding/json decoding. NaN, infinities and hex or underscore forms stay
// strings.
func Coerce(s string) any {
	if f, ok := parseNumber(s); ok {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func parseNumber(s string) (float64, bool) {
	if s == "" || strings.TrimSpace(s) != s {
		return 0, false
	}
	if strings.ContainsAny(s, "xX_pP") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func truthy(v any, def bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		if t == "" {
			return def
		}
		return true
	default:
		return def
	}
}

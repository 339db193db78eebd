package types

import "strings"

// Order is a sort direction.
type Order string

// Sort directions.
const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// FilterRequest is the typed form of an untyped request (HTTP query string
// or websocket handshake query). It is never persisted.
type FilterRequest struct {
	// ID, when set, turns the request into a point lookup; every other
	// field is left at its zero value.
	ID string

	// Filters maps declared property names to coerced scalar values.
	Filters map[string]any

	OrderBy string // Declared property to sort by; "" applies no ordering.
	Order   Order  // Defaults to OrderAsc.
	Skip    int    // Rows to skip after ordering; 0 skips nothing.
	Limit   int    // Maximum rows returned; 0 means unlimited.

	WantResult bool // Return matched rows. Defaults to true.
	WantCount  bool // Return a count of all matches before pagination.
}

// Query returns the store-level view of the request.
func (f FilterRequest) Query() Query {
	return Query{
		Filters: f.Filters,
		OrderBy: f.OrderBy,
		Order:   f.Order,
		Skip:    f.Skip,
		Limit:   f.Limit,
	}
}

// Feed returns the subscription view of the request. Only the id, equality
// filters and limit carry over to a live feed.
func (f FilterRequest) Feed() FeedQuery {
	return FeedQuery{ID: f.ID, Filters: f.Filters, Limit: f.Limit}
}

// Query is a filtered, optionally ordered and paginated view over a table.
// Backends apply OrderBy, then Skip, then Limit. Rows with equal sort keys
// keep insertion order so pagination windows are stable.
type Query struct {
	Filters map[string]any
	OrderBy string
	Order   Order
	Skip    int
	Limit   int
}

// FeedQuery selects the records a change subscription follows.
type FeedQuery struct {
	ID      string
	Filters map[string]any
	Limit   int
}

// Matches reports whether rec satisfies the feed's id and equality filters.
func (q FeedQuery) Matches(rec Record) bool {
	if rec == nil {
		return false
	}
	if q.ID != "" && rec.ID() != q.ID {
		return false
	}
	return MatchesFilters(rec, q.Filters)
}

// MatchesFilters reports whether every filter value equals the record's
// property of the same name. Numbers compare by value regardless of their
// Go type.
func MatchesFilters(rec Record, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := rec[k]
		if !ok {
			return false
		}
		if !ScalarEqual(got, want) {
			return false
		}
	}
	return true
}

// ScalarEqual compares two decoded JSON scalars. Numeric values of any Go
// numeric type compare by value; other values compare with ==. Non-scalar
// values never compare equal.
func ScalarEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// CompareValues orders two decoded JSON values for sorting. Missing and null
// values sort first, then booleans (false before true), then numbers, then
// strings; arrays and objects sort last and compare equal to each other.
func CompareValues(a, b any) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch ra {
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case rankNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case rankString:
		return strings.Compare(a.(string), b.(string))
	default:
		return 0
	}
}

const (
	rankNull = iota
	rankBool
	rankNumber
	rankString
	rankOther
)

func valueRank(v any) int {
	if v == nil {
		return rankNull
	}
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	switch v.(type) {
	case bool:
		return rankBool
	case string:
		return rankString
	default:
		return rankOther
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

package store

import (
	"math"
	"sort"
)

// ListProperties is the raw "list-properties" object of a list request.
type ListProperties map[string]any

// Sort orders accepted by the "sort" list property.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListParams are validated pagination parameters.
type ListParams struct {
	// From is the number of leading results to skip.
	From int
	// Count caps the number of results; zero means no cap.
	Count int
	// Filter is a case-insensitive substring filter.
	Filter string
	// Sort is SortAsc, SortDesc or empty for the listing's default order.
	Sort string
}

// ParseListParams validates props and returns the names of every rejected
// property, sorted. Unknown properties are rejected too.
func ParseListParams(props ListProperties) (ListParams, []string) {
	var (
		p       ListParams
		invalid []string
	)
	for key, value := range props {
		switch key {
		case "from":
			n, ok := asInt(value)
			if !ok || n < 0 {
				invalid = append(invalid, key)
				continue
			}
			p.From = n
		case "count":
			n, ok := asInt(value)
			if !ok || n <= 0 {
				invalid = append(invalid, key)
				continue
			}
			p.Count = n
		case "filter":
			s, ok := value.(string)
			if !ok {
				invalid = append(invalid, key)
				continue
			}
			p.Filter = s
		case "sort":
			s, ok := value.(string)
			if !ok || (s != SortAsc && s != SortDesc) {
				invalid = append(invalid, key)
				continue
			}
			p.Sort = s
		default:
			invalid = append(invalid, key)
		}
	}
	sort.Strings(invalid)
	return p, invalid
}

// asInt accepts JSON numbers that carry an integral value.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// order resolves the effective sort order for a listing.
func (p ListParams) order(def string) string {
	if p.Sort == "" {
		return def
	}
	return p.Sort
}

// window applies From/Count to an in-memory result of length n.
func (p ListParams) window(n int) (int, int) {
	start := p.From
	if start > n {
		start = n
	}
	end := n
	if p.Count > 0 && start+p.Count < n {
		end = start + p.Count
	}
	return start, end
}

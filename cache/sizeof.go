package cache

import "encoding/json"

// EstimateSize approximates the in-memory footprint of a cached value.
//
// Strings count two bytes per byte of content (UTF-16 upper bound),
// byte slices count their exact length, and anything else is sized from
// its JSON encoding with the same doubling. This is a deliberate
// approximation for budget accounting, not exact memory measurement.
func EstimateSize(value any) int64 {
	switch v := value.(type) {
	case nil:
		return 0
	case string:
		return int64(len(v)) * 2
	case []byte:
		return int64(len(v))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			// Unencodable values still occupy the budget; charge a
			// nominal amount so accounting stays consistent.
			return 64
		}
		return int64(len(b)) * 2
	}
}

package translate

import "strings"

// SortKey is one field of a (possibly compound) sort spec.
type SortKey struct {
	Path      string
	Direction int // +1 or -1
}

// TranslateSort renders an ORDER BY clause using the "numeric sort
// heuristic": each key casts to numeric with a NULLS LAST fallback to the
// text representation, so strings that look like numbers ("3" < "10")
// sort numerically while non-numeric strings still sort lexicographically.
func TranslateSort(keys []SortKey) string {
	if len(keys) == 0 {
		return ""
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		pathLit := jsonbPathLiteral(k.Path)
		dir := "ASC"
		if k.Direction < 0 {
			dir = "DESC"
		}
		parts[i] = "(jdoc #>> '" + pathLit + "')::numeric " + dir + " NULLS LAST, jdoc #>> '" + pathLit + "' " + dir
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

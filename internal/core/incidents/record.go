// Package incidents holds the normalized crime-incident model and the pure
// queries built on it: normalization, catalogs, filtering and aggregation.
package incidents

import "strings"

// Record is the fact count of one infraction type in one subdivision.
type Record struct {
	Year            int
	SubdivisionCode string
	AreaCode        string
	SubdivisionName string
	InfractionType  string
	FactCount       int
}

// AreaCodeOf returns the part of a subdivision code before its first dot,
// or the whole code when it has none.
func AreaCodeOf(subdivisionCode string) string {
	area, _, _ := strings.Cut(subdivisionCode, ".")

	return area
}

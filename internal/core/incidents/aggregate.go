package incidents

import (
	"cmp"
	"slices"
)

// Default truncation sizes for the ranking queries.
const (
	DefaultTopTypes        = 20
	DefaultTopSubdivisions = 15
)

// SubdivisionTotal is the summed fact count of one subdivision.
type SubdivisionTotal struct {
	Code  string
	Name  string
	Total int
}

// TypeTotal is the summed fact count of one infraction type.
type TypeTotal struct {
	InfractionType string
	Total          int
}

// AreaTotal is the summed fact count of one area.
type AreaTotal struct {
	AreaCode string
	Total    int
}

// GroupTotal is the summed fact count of one (subdivision, type) pair.
type GroupTotal struct {
	Code           string
	Name           string
	InfractionType string
	Total          int
}

// TypeRanking is the answer to TopSubdivisionsForType. Matched is false when
// no record carries the requested type, which is a normal empty answer.
type TypeRanking struct {
	InfractionType string
	Matched        bool
	Rows           []SubdivisionTotal
}

// groupSum sums values per key, keeping the order in which keys first appear.
func groupSum[K comparable](records []Record, key func(Record) K) ([]K, map[K]int) {
	var order []K

	sums := make(map[K]int)

	for _, r := range records {
		k := key(r)
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}

		sums[k] += r.FactCount
	}

	return order, sums
}

// TotalsBySubdivision sums facts per (code, name) in first-seen order.
func TotalsBySubdivision(records []Record) []SubdivisionTotal {
	order, sums := groupSum(records, func(r Record) Subdivision {
		return Subdivision{Code: r.SubdivisionCode, Name: r.SubdivisionName}
	})

	out := make([]SubdivisionTotal, 0, len(order))
	for _, k := range order {
		out = append(out, SubdivisionTotal{Code: k.Code, Name: k.Name, Total: sums[k]})
	}

	return out
}

// TotalsByType sums facts per infraction type in first-seen order.
func TotalsByType(records []Record) []TypeTotal {
	order, sums := groupSum(records, func(r Record) string { return r.InfractionType })

	out := make([]TypeTotal, 0, len(order))
	for _, k := range order {
		out = append(out, TypeTotal{InfractionType: k, Total: sums[k]})
	}

	return out
}

// TopInfractionTypes returns the n types with the highest totals, highest
// first. Ties keep first-seen order. n <= 0 means DefaultTopTypes.
func TopInfractionTypes(records []Record, n int) []TypeTotal {
	if n <= 0 {
		n = DefaultTopTypes
	}

	totals := TotalsByType(records)
	slices.SortStableFunc(totals, func(a, b TypeTotal) int {
		return cmp.Compare(b.Total, a.Total)
	})

	return truncate(totals, n)
}

// TopSubdivisionsForType ranks subdivisions by their total for one exact
// infraction type. n <= 0 means DefaultTopSubdivisions.
func TopSubdivisionsForType(records []Record, infractionType string, n int) TypeRanking {
	if n <= 0 {
		n = DefaultTopSubdivisions
	}

	ranking := TypeRanking{InfractionType: infractionType, Rows: []SubdivisionTotal{}}

	matching := Filter(records, Criteria{InfractionType: Some(infractionType)})
	if len(matching) == 0 {
		return ranking
	}

	totals := TotalsBySubdivision(matching)
	slices.SortStableFunc(totals, func(a, b SubdivisionTotal) int {
		return cmp.Compare(b.Total, a.Total)
	})

	ranking.Matched = true
	ranking.Rows = truncate(totals, n)

	return ranking
}

// AreaTotals sums facts per area code in first-seen order.
func AreaTotals(records []Record) []AreaTotal {
	order, sums := groupSum(records, func(r Record) string { return r.AreaCode })

	out := make([]AreaTotal, 0, len(order))
	for _, k := range order {
		out = append(out, AreaTotal{AreaCode: k, Total: sums[k]})
	}

	return out
}

// GroupBySubdivisionAndType sums facts per (code, name, type), sorted by
// code, name and then type.
func GroupBySubdivisionAndType(records []Record) []GroupTotal {
	type key struct{ code, name, kind string }

	order, sums := groupSum(records, func(r Record) key {
		return key{r.SubdivisionCode, r.SubdivisionName, r.InfractionType}
	})

	out := make([]GroupTotal, 0, len(order))
	for _, k := range order {
		out = append(out, GroupTotal{Code: k.code, Name: k.name, InfractionType: k.kind, Total: sums[k]})
	}

	slices.SortFunc(out, func(a, b GroupTotal) int {
		return cmp.Or(
			cmp.Compare(a.Code, b.Code),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.InfractionType, b.InfractionType),
		)
	})

	return out
}

func truncate[T any](rows []T, n int) []T {
	if len(rows) > n {
		return rows[:n]
	}

	return rows
}

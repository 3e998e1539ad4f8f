package incidents

import (
	"cmp"
	"slices"
)

// Subdivision is a (code, display name) pair.
type Subdivision struct {
	Code string
	Name string
}

// InfractionTypes returns the distinct infraction types in ascending order.
func InfractionTypes(records []Record) []string {
	seen := make(map[string]struct{})
	types := []string{}

	for _, r := range records {
		if _, ok := seen[r.InfractionType]; ok {
			continue
		}

		seen[r.InfractionType] = struct{}{}
		types = append(types, r.InfractionType)
	}

	slices.Sort(types)

	return types
}

// Subdivisions returns the distinct (code, name) pairs sorted by code.
// A code seen with two names yields two pairs.
func Subdivisions(records []Record) []Subdivision {
	seen := make(map[Subdivision]struct{})
	subs := []Subdivision{}

	for _, r := range records {
		s := Subdivision{Code: r.SubdivisionCode, Name: r.SubdivisionName}
		if _, ok := seen[s]; ok {
			continue
		}

		seen[s] = struct{}{}
		subs = append(subs, s)
	}

	slices.SortFunc(subs, func(a, b Subdivision) int {
		if c := cmp.Compare(a.Code, b.Code); c != 0 {
			return c
		}

		return cmp.Compare(a.Name, b.Name)
	})

	return subs
}

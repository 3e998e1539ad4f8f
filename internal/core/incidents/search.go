package incidents

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldText lowercases s and strips diacritics so "Ain" matches "AÏN".
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	return cases.Fold().String(strings.TrimSpace(stripped))
}

// SearchSubdivisions returns the subdivisions whose code or name contains
// query, ignoring case and accents. An empty query returns all of them.
func SearchSubdivisions(subdivisions []Subdivision, query string) []Subdivision {
	q := foldText(query)
	out := make([]Subdivision, 0, len(subdivisions))

	for _, s := range subdivisions {
		if q == "" || strings.Contains(foldText(s.Code), q) || strings.Contains(foldText(s.Name), q) {
			out = append(out, s)
		}
	}

	return out
}

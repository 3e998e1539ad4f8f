package assistant

import (
	"fmt"
	"strings"

	"github.com/safecity/dashboard/internal/core/incidents"
)

// DefaultContextLines caps the grouped lines sent with a summary request.
const DefaultContextLines = 120

// ContextText renders one line per (subdivision, infraction type) group, in
// group order, keeping at most limit lines. limit <= 0 means no cap.
func ContextText(records []incidents.Record, limit int) string {
	groups := incidents.GroupBySubdivisionAndType(records)
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}

	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		lines = append(lines, fmt.Sprintf("- %s (%s), %s: %d faits", g.Name, g.Code, g.InfractionType, g.Total))
	}

	return strings.Join(lines, "\n")
}

// ContextHint describes the filtered scope for the chat contract.
func ContextHint(year, filteredRows int) string {
	return fmt.Sprintf("Année couverte : %d. Nombre de lignes filtrées : %d.", year, filteredRows)
}

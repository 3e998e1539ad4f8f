package dashboard

import (
	"net/url"
	"slices"
	"strings"

	"github.com/safecity/dashboard/internal/core/incidents"
)

// AllTypes is the type selector entry meaning no constraint.
const AllTypes = "(Tous)"

// Tabs of the dashboard page.
const (
	TabSubdivisions = "subdivisions"
	TabTypes        = "types"
	TabTop          = "top"
	TabAssistant    = "assistant"
)

var tabs = []string{TabSubdivisions, TabTypes, TabTop, TabAssistant}

// Query parameter names.
const (
	paramType    = "type"
	paramSub     = "sub"
	paramTopType = "top"
	paramTab     = "tab"
)

// FilterForm is the sidebar state carried in the query string.
type FilterForm struct {
	Type         string
	Subdivisions []string
	TopType      string
	Tab          string
}

// parseFilterForm reads the form from query or post values. An empty tick
// list means every subdivision, as in the sidebar where all are ticked by
// default.
func parseFilterForm(values url.Values) FilterForm {
	f := FilterForm{
		Type:    strings.TrimSpace(values.Get(paramType)),
		TopType: strings.TrimSpace(values.Get(paramTopType)),
		Tab:     values.Get(paramTab),
	}

	if f.Type == AllTypes {
		f.Type = ""
	}

	for _, code := range values[paramSub] {
		if code = strings.TrimSpace(code); code != "" && !slices.Contains(f.Subdivisions, code) {
			f.Subdivisions = append(f.Subdivisions, code)
		}
	}

	if !slices.Contains(tabs, f.Tab) {
		f.Tab = TabSubdivisions
	}

	return f
}

// Criteria converts the sidebar state into filter criteria.
func (f FilterForm) Criteria() incidents.Criteria {
	var c incidents.Criteria

	if f.Type != "" {
		c.InfractionType = incidents.Some(f.Type)
	}

	if len(f.Subdivisions) > 0 {
		c.Subdivisions = incidents.Some(incidents.NewCodeSet(f.Subdivisions...))
	}

	return c
}

// TopCriteria is the criteria of the top-subdivisions tab: the chosen type
// combined with the sidebar subdivisions.
func (f FilterForm) TopCriteria(topType string) incidents.Criteria {
	c := f.Criteria()
	c.InfractionType = incidents.Some(topType)

	return c
}

// ResolveTopType picks the type ranked on the top tab: the explicit choice,
// else the sidebar type, else the first known type.
func (f FilterForm) ResolveTopType(types []string) string {
	for _, candidate := range []string{f.TopType, f.Type} {
		if candidate != "" && slices.Contains(types, candidate) {
			return candidate
		}
	}

	if len(types) > 0 {
		return types[0]
	}

	return ""
}

// Values encodes the form back into query values.
func (f FilterForm) Values() url.Values {
	v := url.Values{}

	if f.Type != "" {
		v.Set(paramType, f.Type)
	}

	for _, code := range f.Subdivisions {
		v.Add(paramSub, code)
	}

	if f.TopType != "" {
		v.Set(paramTopType, f.TopType)
	}

	if f.Tab != "" && f.Tab != TabSubdivisions {
		v.Set(paramTab, f.Tab)
	}

	return v
}

// Selected reports whether code is ticked. With no explicit ticks every
// subdivision is.
func (f FilterForm) Selected(code string) bool {
	return len(f.Subdivisions) == 0 || slices.Contains(f.Subdivisions, code)
}

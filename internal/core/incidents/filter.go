package incidents

// CodeSet is a set of subdivision codes.
type CodeSet map[string]struct{}

// NewCodeSet builds a set from codes. NewCodeSet() is the empty set.
func NewCodeSet(codes ...string) CodeSet {
	s := make(CodeSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}

	return s
}

// Has reports membership.
func (s CodeSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Criteria constrains a filter. An absent field places no constraint; a
// present but empty subdivision set matches nothing.
type Criteria struct {
	InfractionType Optional[string]
	Subdivisions   Optional[CodeSet]
}

// Matches reports whether r satisfies every present constraint.
func (c Criteria) Matches(r Record) bool {
	if t, ok := c.InfractionType.Get(); ok && r.InfractionType != t {
		return false
	}

	if codes, ok := c.Subdivisions.Get(); ok && !codes.Has(r.SubdivisionCode) {
		return false
	}

	return true
}

// Filter returns a new slice with the records matching c, in input order.
func Filter(records []Record, c Criteria) []Record {
	out := make([]Record, 0, len(records))

	for _, r := range records {
		if c.Matches(r) {
			out = append(out, r)
		}
	}

	return out
}

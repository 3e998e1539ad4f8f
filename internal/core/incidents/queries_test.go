package incidents

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(code, name, kind string, count int) Record {
	return Record{
		Year:            2021,
		SubdivisionCode: code,
		AreaCode:        AreaCodeOf(code),
		SubdivisionName: name,
		InfractionType:  kind,
		FactCount:       count,
	}
}

func sampleRecords() []Record {
	return []Record{
		rec("01", "CGD BELLEY", "Vols", 10),
		rec("01", "CGD BELLEY", "Cambriolages", 4),
		rec("2A.1", "CGD AJACCIO", "Vols", 3),
		rec("2A.2", "CGD PORTO-VECCHIO", "Vols", 6),
		rec("2A.2", "CGD PORTO-VECCHIO", "Escroqueries", 6),
		rec("69", "CGD LYON", "Cambriolages", 9),
	}
}

func TestInfractionTypes(t *testing.T) {
	assert.Equal(t, []string{"Cambriolages", "Escroqueries", "Vols"}, InfractionTypes(sampleRecords()))
	assert.Empty(t, InfractionTypes(nil))
	assert.NotNil(t, InfractionTypes(nil))
}

func TestSubdivisions(t *testing.T) {
	records := append(sampleRecords(), rec("01", "CGD BOURG", "Vols", 1))

	want := []Subdivision{
		{Code: "01", Name: "CGD BELLEY"},
		{Code: "01", Name: "CGD BOURG"},
		{Code: "2A.1", Name: "CGD AJACCIO"},
		{Code: "2A.2", Name: "CGD PORTO-VECCHIO"},
		{Code: "69", Name: "CGD LYON"},
	}

	if diff := cmp.Diff(want, Subdivisions(records)); diff != "" {
		t.Errorf("subdivisions mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, Subdivisions(nil))
}

func TestFilter(t *testing.T) {
	records := sampleRecords()

	tests := []struct {
		name     string
		criteria Criteria
		want     int
	}{
		{name: "no constraint", criteria: Criteria{}, want: len(records)},
		{name: "type only", criteria: Criteria{InfractionType: Some("Vols")}, want: 3},
		{name: "subdivisions only", criteria: Criteria{Subdivisions: Some(NewCodeSet("01", "69"))}, want: 3},
		{
			name: "type and subdivisions",
			criteria: Criteria{
				InfractionType: Some("Vols"),
				Subdivisions:   Some(NewCodeSet("01", "69")),
			},
			want: 1,
		},
		{name: "empty set matches nothing", criteria: Criteria{Subdivisions: Some(NewCodeSet())}, want: 0},
		{name: "nil set matches nothing", criteria: Criteria{Subdivisions: Some[CodeSet](nil)}, want: 0},
		{name: "unknown type", criteria: Criteria{InfractionType: Some("Inconnu")}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(records, tt.criteria)
			require.NotNil(t, got)
			assert.Len(t, got, tt.want)

			for _, r := range got {
				assert.True(t, tt.criteria.Matches(r))
			}
		})
	}
}

func TestFilter_NoConstraintReturnsEqualCopy(t *testing.T) {
	records := sampleRecords()
	got := Filter(records, Criteria{})

	if diff := cmp.Diff(records, got); diff != "" {
		t.Fatalf("unfiltered mismatch (-want +got):\n%s", diff)
	}

	got[0].FactCount = 1000
	assert.Equal(t, 10, records[0].FactCount)
}

func TestTotalsBySubdivision(t *testing.T) {
	want := []SubdivisionTotal{
		{Code: "01", Name: "CGD BELLEY", Total: 14},
		{Code: "2A.1", Name: "CGD AJACCIO", Total: 3},
		{Code: "2A.2", Name: "CGD PORTO-VECCHIO", Total: 12},
		{Code: "69", Name: "CGD LYON", Total: 9},
	}

	if diff := cmp.Diff(want, TotalsBySubdivision(sampleRecords())); diff != "" {
		t.Errorf("totals mismatch (-want +got):\n%s", diff)
	}
}

func TestTotalsByType_ConservesFacts(t *testing.T) {
	records := sampleRecords()

	var raw int
	for _, r := range records {
		raw += r.FactCount
	}

	var summed int
	for _, tt := range TopInfractionTypes(records, len(records)) {
		summed += tt.Total
	}

	assert.Equal(t, raw, summed)
}

func TestTopInfractionTypes_Truncation(t *testing.T) {
	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, rec("01", "CGD", fmt.Sprintf("type-%02d", i), (i*7)%10+1))
	}

	top := TopInfractionTypes(records, 3)
	require.Len(t, top, 3)

	all := TotalsByType(records)
	kept := make(map[string]bool)

	for i, tt := range top {
		kept[tt.InfractionType] = true

		if i > 0 {
			assert.GreaterOrEqual(t, top[i-1].Total, tt.Total)
		}
	}

	for _, tt := range all {
		if kept[tt.InfractionType] {
			continue
		}

		assert.GreaterOrEqual(t, top[len(top)-1].Total, tt.Total)
	}
}

func TestTopInfractionTypes_StableTies(t *testing.T) {
	records := []Record{
		rec("01", "A", "b", 5),
		rec("01", "A", "a", 5),
		rec("01", "A", "c", 9),
	}

	want := []TypeTotal{
		{InfractionType: "c", Total: 9},
		{InfractionType: "b", Total: 5},
		{InfractionType: "a", Total: 5},
	}

	assert.Equal(t, want, TopInfractionTypes(records, 0))
}

func TestTopInfractionTypes_Default(t *testing.T) {
	var records []Record
	for i := 0; i < 25; i++ {
		records = append(records, rec("01", "CGD", fmt.Sprintf("t%d", i), i))
	}

	assert.Len(t, TopInfractionTypes(records, 0), DefaultTopTypes)
}

func TestTopSubdivisionsForType(t *testing.T) {
	ranking := TopSubdivisionsForType(sampleRecords(), "Vols", 2)

	assert.True(t, ranking.Matched)
	assert.Equal(t, []SubdivisionTotal{
		{Code: "01", Name: "CGD BELLEY", Total: 10},
		{Code: "2A.2", Name: "CGD PORTO-VECCHIO", Total: 6},
	}, ranking.Rows)
}

func TestTopSubdivisionsForType_NoMatch(t *testing.T) {
	ranking := TopSubdivisionsForType(sampleRecords(), "Cambriolage", 0)

	assert.False(t, ranking.Matched)
	assert.Equal(t, "Cambriolage", ranking.InfractionType)
	assert.NotNil(t, ranking.Rows)
	assert.Empty(t, ranking.Rows)
}

func TestAreaTotals(t *testing.T) {
	want := []AreaTotal{
		{AreaCode: "01", Total: 14},
		{AreaCode: "2A", Total: 15},
		{AreaCode: "69", Total: 9},
	}

	assert.Equal(t, want, AreaTotals(sampleRecords()))
	assert.Empty(t, AreaTotals(nil))
}

func TestGroupBySubdivisionAndType(t *testing.T) {
	records := append(sampleRecords(), rec("01", "CGD BELLEY", "Vols", 1))
	groups := GroupBySubdivisionAndType(records)

	require.Len(t, groups, 6)
	assert.Equal(t, GroupTotal{Code: "01", Name: "CGD BELLEY", InfractionType: "Cambriolages", Total: 4}, groups[0])
	assert.Equal(t, GroupTotal{Code: "01", Name: "CGD BELLEY", InfractionType: "Vols", Total: 11}, groups[1])
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRecords())

	assert.Equal(t, 6, s.Records)
	assert.Equal(t, 38, s.Facts)
	assert.Equal(t, 4, s.Subdivisions)
	assert.Equal(t, 3, s.Types)
	assert.InDelta(t, 9.5, s.MeanPerSubdivision, 1e-9)
	assert.InDelta(t, 10.5, s.MedianPerSubdivision, 1e-9)
	assert.InDelta(t, 14, s.MaxPerSubdivision, 1e-9)

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestSearchSubdivisions(t *testing.T) {
	subs := []Subdivision{
		{Code: "01", Name: "CGD BELLEY"},
		{Code: "2A.1", Name: "CGD AJACCIO"},
		{Code: "74", Name: "CGD ANNECY-LE-VIEUX"},
		{Code: "07", Name: "CGD PRIVAS ARDÈCHE"},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{query: "", want: []string{"01", "2A.1", "74", "07"}},
		{query: "ajaccio", want: []string{"2A.1"}},
		{query: "ardeche", want: []string{"07"}},
		{query: "2a", want: []string{"2A.1"}},
		{query: "zzz", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := []string{}
			for _, s := range SearchSubdivisions(subs, tt.query) {
				got = append(got, s.Code)
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

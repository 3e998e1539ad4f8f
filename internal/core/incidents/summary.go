package incidents

import "github.com/montanaflynn/stats"

const summaryPercentile = 90

// Summary holds headline figures of a record collection.
type Summary struct {
	Records      int
	Facts        int
	Subdivisions int
	Types        int
	// Distribution of per-subdivision totals.
	MeanPerSubdivision   float64
	MedianPerSubdivision float64
	P90PerSubdivision    float64
	MaxPerSubdivision    float64
}

// Summarize computes the headline figures. An empty collection yields the
// zero Summary.
func Summarize(records []Record) Summary {
	s := Summary{Records: len(records)}
	if len(records) == 0 {
		return s
	}

	types := make(map[string]struct{})
	for _, r := range records {
		s.Facts += r.FactCount
		types[r.InfractionType] = struct{}{}
	}

	s.Types = len(types)

	perSub := TotalsBySubdivision(records)
	s.Subdivisions = len(perSub)

	data := make(stats.Float64Data, 0, len(perSub))
	for _, t := range perSub {
		data = append(data, float64(t.Total))
	}

	// Errors only occur on empty input, excluded above.
	s.MeanPerSubdivision, _ = data.Mean()
	s.MedianPerSubdivision, _ = data.Median()
	s.P90PerSubdivision, _ = data.Percentile(summaryPercentile)
	s.MaxPerSubdivision, _ = data.Max()

	return s
}

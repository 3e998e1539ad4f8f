// Package geo joins area totals onto a GeoJSON boundary document.
package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/montanaflynn/stats"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/core/incidents"
)

// Feature properties written by the join.
const (
	PropertyFactCount = "fact_count"
	PropertyFill      = "fill"
)

// DefaultJoinProperty is the feature property matched against area codes.
const DefaultJoinProperty = "code"

// Map view defaults.
var (
	DefaultCenter = [2]float64{46.5, 2.5}
	DefaultZoom   = 5
)

const noDataColor = "#d9d9d9"

// palette runs from the lowest class to the highest.
var palette = []string{"#ffffb2", "#fed976", "#feb24c", "#fd8d3c", "#f03b20", "#bd0026"}

// Boundaries is a parsed boundary document.
type Boundaries struct {
	joinProperty string
	features     []*geojson.Feature
	codes        map[string]struct{}
}

// ParseBoundaries decodes a FeatureCollection. Features without the join
// property are kept but never receive a total.
func ParseBoundaries(data []byte, joinProperty string) (*Boundaries, error) {
	if joinProperty == "" {
		joinProperty = DefaultJoinProperty
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decoding boundary collection: %w: %w", coreerrors.ErrUnsupportedFormat, err)
	}

	b := &Boundaries{
		joinProperty: joinProperty,
		features:     fc.Features,
		codes:        make(map[string]struct{}, len(fc.Features)),
	}

	for _, f := range fc.Features {
		if code, ok := b.codeOf(f); ok {
			b.codes[code] = struct{}{}
		}
	}

	return b, nil
}

// Len returns the number of features.
func (b *Boundaries) Len() int { return len(b.features) }

// codeOf reads the join property as text. Numbers are printed without a
// fraction so that 1 matches "1".
func (b *Boundaries) codeOf(f *geojson.Feature) (string, bool) {
	v, ok := f.Properties[b.joinProperty]
	if !ok || v == nil {
		return "", false
	}

	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return fmt.Sprint(t), true
	}
}

// Choropleth is a boundary document with totals attached.
type Choropleth struct {
	Collection *geojson.FeatureCollection
	// Unmatched lists area codes that have a total but no geometry.
	Unmatched []string
	// Breaks are the lower bounds of palette classes above the first.
	Breaks  []float64
	Palette []string
	Legend  string
}

// MarshalJSON encodes the feature collection only.
func (c *Choropleth) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Collection)
}

// Join attaches each area total to the features whose join property equals
// its code. Features are copied; b is left untouched.
func (b *Boundaries) Join(totals []incidents.AreaTotal, year int) *Choropleth {
	byCode := make(map[string]int, len(totals))
	values := make([]float64, 0, len(totals))

	var unmatched []string

	for _, t := range totals {
		byCode[t.AreaCode] += t.Total

		if _, ok := b.codes[t.AreaCode]; ok {
			values = append(values, float64(t.Total))
		} else {
			unmatched = append(unmatched, t.AreaCode)
		}
	}

	slices.Sort(unmatched)
	unmatched = slices.Compact(unmatched)

	breaks := classBreaks(values, len(palette))
	bounds := geom.NewBounds(geom.XY)
	out := make([]*geojson.Feature, 0, len(b.features))

	for _, f := range b.features {
		props := make(map[string]interface{}, len(f.Properties)+2)
		for k, v := range f.Properties {
			props[k] = v
		}

		props[PropertyFactCount] = nil
		props[PropertyFill] = noDataColor

		if code, ok := b.codeOf(f); ok {
			if total, ok := byCode[code]; ok {
				props[PropertyFactCount] = total
				props[PropertyFill] = colorFor(float64(total), breaks)
			}
		}

		if f.Geometry != nil {
			bounds.Extend(f.Geometry)
		}

		out = append(out, &geojson.Feature{ID: f.ID, Geometry: f.Geometry, Properties: props})
	}

	fc := &geojson.FeatureCollection{Features: out}
	if len(out) > 0 && !bounds.IsEmpty() {
		fc.BBox = bounds
	}

	return &Choropleth{
		Collection: fc,
		Unmatched:  unmatched,
		Breaks:     breaks,
		Palette:    palette,
		Legend:     fmt.Sprintf("Nombre de faits (%d)", year),
	}
}

// classBreaks splits values into n quantile classes and returns the n-1
// inner thresholds, deduplicated.
func classBreaks(values []float64, n int) []float64 {
	if len(values) == 0 || n < 2 {
		return nil
	}

	breaks := make([]float64, 0, n-1)

	for i := 1; i < n; i++ {
		p, err := stats.Percentile(values, float64(i)*100/float64(n))
		if err != nil {
			continue
		}

		p = math.Round(p)
		if len(breaks) == 0 || p > breaks[len(breaks)-1] {
			breaks = append(breaks, p)
		}
	}

	return breaks
}

func colorFor(v float64, breaks []float64) string {
	class := 0
	for class < len(breaks) && v >= breaks[class] {
		class++
	}

	if class >= len(palette) {
		class = len(palette) - 1
	}

	return palette[class]
}

// Package charts draws the dashboard bar charts as SVG.
package charts

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/safecity/dashboard/internal/core/incidents"
)

// Placeholder titles.
const (
	TitleNoData     = "Aucune donnée à afficher"
	titleNoDataType = "Aucune donnée pour le type : %s"
)

const (
	axisFacts      = "Nombre de faits"
	maxLabelRunes  = 32
	defaultWidth   = 12 * vg.Inch
	defaultHeight  = 7 * vg.Inch
	barWidthPoints = 14
)

var barColor = color.RGBA{R: 0x63, G: 0x6e, B: 0xfa, A: 0xff}

// Renderer writes charts of a fixed size.
type Renderer struct {
	Width  vg.Length
	Height vg.Length
}

// NewRenderer returns a Renderer with the default canvas size.
func NewRenderer() Renderer {
	return Renderer{Width: defaultWidth, Height: defaultHeight}
}

// bar is one labelled value.
type bar struct {
	label string
	value float64
}

// SubdivisionTotals draws one bar per subdivision, labelled by name.
func (r Renderer) SubdivisionTotals(w io.Writer, totals []incidents.SubdivisionTotal, year int) error {
	if len(totals) == 0 {
		return r.Placeholder(w, TitleNoData)
	}

	bars := make([]bar, 0, len(totals))
	for _, t := range totals {
		bars = append(bars, bar{label: t.Name, value: float64(t.Total)})
	}

	return r.barChart(w, fmt.Sprintf("Nombre de faits par compagnie de gendarmerie (%d)", year), "Compagnie de gendarmerie", bars)
}

// TopTypes draws the ranked infraction types. n is the ranking size shown
// in the title.
func (r Renderer) TopTypes(w io.Writer, totals []incidents.TypeTotal, n, year int) error {
	if len(totals) == 0 {
		return r.Placeholder(w, TitleNoData)
	}

	bars := make([]bar, 0, len(totals))
	for _, t := range totals {
		bars = append(bars, bar{label: t.InfractionType, value: float64(t.Total)})
	}

	return r.barChart(w, fmt.Sprintf("Top %d types d'infractions (%d)", n, year), "Type d'infraction", bars)
}

// TopSubdivisions draws a ranking for one type. An unmatched type gets its
// own placeholder.
func (r Renderer) TopSubdivisions(w io.Writer, ranking incidents.TypeRanking, n int) error {
	if !ranking.Matched {
		return r.Placeholder(w, fmt.Sprintf(titleNoDataType, ranking.InfractionType))
	}

	bars := make([]bar, 0, len(ranking.Rows))
	for _, t := range ranking.Rows {
		bars = append(bars, bar{label: t.Name, value: float64(t.Total)})
	}

	return r.barChart(w, fmt.Sprintf("Top %d compagnies pour : %s", n, ranking.InfractionType), "Compagnie", bars)
}

// Placeholder draws an empty chart carrying only a title.
func (r Renderer) Placeholder(w io.Writer, title string) error {
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()

	return r.write(w, p)
}

func (r Renderer) barChart(w io.Writer, title, xLabel string, bars []bar) error {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.Text = xLabel
	p.Y.Label.Text = axisFacts

	values := make(plotter.Values, len(bars))
	labels := make([]string, len(bars))

	for i, b := range bars {
		values[i] = b.value
		labels[i] = shorten(b.label)
	}

	chart, err := plotter.NewBarChart(values, vg.Points(barWidthPoints))
	if err != nil {
		return fmt.Errorf("building bar chart: %w", err)
	}

	chart.Color = barColor
	chart.LineStyle.Width = vg.Length(0)

	p.Add(chart)
	p.Add(plotter.NewGrid())
	p.NominalX(labels...)
	p.Y.Min = 0

	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	return r.write(w, p)
}

func (r Renderer) write(w io.Writer, p *plot.Plot) error {
	width, height := r.Width, r.Height
	if width == 0 || height == 0 {
		width, height = defaultWidth, defaultHeight
	}

	wt, err := p.WriterTo(width, height, "svg")
	if err != nil {
		return fmt.Errorf("preparing svg canvas: %w", err)
	}

	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing svg: %w", err)
	}

	return nil
}

func shorten(label string) string {
	runes := []rune(label)
	if len(runes) <= maxLabelRunes {
		return label
	}

	return string(runes[:maxLabelRunes-1]) + "…"
}

package dashboard

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/safecity/dashboard/internal/core/incidents"
)

//go:embed templates/*.html
var templateFS embed.FS

var frenchPrinter = message.NewPrinter(language.French)

// Template function helpers.
var templateFuncs = template.FuncMap{
	"num": func(v int) string {
		return frenchPrinter.Sprintf("%d", v)
	},
	"dec": func(v float64) string {
		return frenchPrinter.Sprintf("%.1f", v)
	},
	"markdown": renderMarkdown,
}

// renderMarkdown converts an assistant answer to HTML. Raw HTML in the
// answer is dropped.
func renderMarkdown(md string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.SkipHTML | mdhtml.Safelink | mdhtml.NofollowLinks | mdhtml.HrefTargetBlank,
	})

	//nolint:gosec // raw HTML is skipped by the renderer
	return template.HTML(bytes.TrimSpace(markdown.ToHTML([]byte(md), p, r)))
}

// Renderer handles HTML template rendering.
type Renderer struct {
	dashboardTmpl *template.Template
	errorTmpl     *template.Template
}

// NewRenderer creates a new template renderer.
func NewRenderer() (*Renderer, error) {
	dashboardTmpl, err := template.New("dashboard.html").
		Funcs(templateFuncs).
		ParseFS(templateFS, "templates/dashboard.html")
	if err != nil {
		return nil, fmt.Errorf("parse dashboard template: %w", err)
	}

	errorTmpl, err := template.New("error.html").
		ParseFS(templateFS, "templates/error.html")
	if err != nil {
		return nil, fmt.Errorf("parse error template: %w", err)
	}

	return &Renderer{
		dashboardTmpl: dashboardTmpl,
		errorTmpl:     errorTmpl,
	}, nil
}

// TabLink is one entry of the tab bar.
type TabLink struct {
	ID     string
	Label  string
	URL    string
	Active bool
}

// SubdivisionOption is one entry of the subdivision picker.
type SubdivisionOption struct {
	Code     string
	Name     string
	Selected bool
}

// HiddenField carries sidebar state through the assistant forms.
type HiddenField struct {
	Name  string
	Value string
}

// PageData contains all data for rendering the dashboard.
type PageData struct {
	Year         int
	Tab          string
	Tabs         []TabLink
	Form         FilterForm
	Types        []string
	Subdivisions []SubdivisionOption
	Hidden       []HiddenField

	Filtered int
	Empty    bool
	Preview  []incidents.Record
	Summary  incidents.Summary

	ChartSubdivisionsURL string
	ChartTypesURL        string
	ChartTopURL          string
	MapDataURL           string
	ExportURL            string

	TopType          string
	TopEmpty         bool
	TopTypesN        int
	TopSubdivisionsN int

	MapCenter [2]float64
	MapZoom   int
	MapLegend string

	SummaryAnswer          *Answer
	ChatAnswer             *Answer
	DefaultSummaryQuestion string
	DefaultChatQuestion    string

	GeneratedAt time.Time
}

// ErrorData contains data for rendering error pages.
type ErrorData struct {
	Code    int
	Title   string
	Message string
}

// RenderDashboard renders the dashboard page.
func (r *Renderer) RenderDashboard(w io.Writer, data *PageData) error {
	if err := r.dashboardTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("execute dashboard template: %w", err)
	}

	return nil
}

// RenderError renders an error page.
func (r *Renderer) RenderError(w io.Writer, data *ErrorData) error {
	if err := r.errorTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("execute error template: %w", err)
	}

	return nil
}

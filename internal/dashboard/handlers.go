package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/safecity/dashboard/internal/assistant"
	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/core/incidents"
	"github.com/safecity/dashboard/internal/render/geo"
)

const (
	contentTypeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	previewRows      = 5
	maxSearchResults = 50
	maxQuestionRunes = 2000
)

var tabLabels = map[string]string{
	TabSubdivisions: "Par compagnie",
	TabTypes:        "Par type d'infraction",
	TabTop:          "Top compagnies",
	TabAssistant:    "Assistant IA",
}

// view is the filtered state of one request.
type view struct {
	scope    *Scope
	form     FilterForm
	records  []incidents.Record
	filtered []incidents.Record
	year     int
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request, values url.Values) view {
	s := h.scope(w, r)
	form := parseFilterForm(values)
	records := s.Dataset.Records()

	return view{
		scope:    s,
		form:     form,
		records:  records,
		filtered: incidents.Filter(records, form.Criteria()),
		year:     s.Dataset.Year(),
	}
}

func (h *Handler) topTypesN() int {
	if h.cfg.TopTypesN > 0 {
		return h.cfg.TopTypesN
	}

	return incidents.DefaultTopTypes
}

func (h *Handler) topSubdivisionsN() int {
	if h.cfg.TopSubdivisionsN > 0 {
		return h.cfg.TopSubdivisionsN
	}

	return incidents.DefaultTopSubdivisions
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	v := h.view(w, r, r.URL.Query())
	types := incidents.InfractionTypes(v.records)
	topType := v.form.ResolveTopType(types)

	data := &PageData{
		Year:         v.year,
		Tab:          v.form.Tab,
		Form:         v.form,
		Types:        types,
		Filtered:     len(v.filtered),
		Empty:        len(v.filtered) == 0,
		Summary:      incidents.Summarize(v.filtered),
		TopType:      topType,
		TopTypesN:    h.topTypesN(),
		MapCenter:    geo.DefaultCenter,
		MapZoom:      geo.DefaultZoom,
		MapLegend:    "Nombre de faits (" + strconv.Itoa(v.year) + ")",
		GeneratedAt:  time.Now(),
		Hidden:       hiddenFields(v.form),
		ExportURL:    "/export.xlsx" + encodeQuery(v.form.Values()),
		MapDataURL:   "/map/areas.geojson" + encodeQuery(v.form.Values()),
		Preview:      v.filtered[:min(previewRows, len(v.filtered))],
		Subdivisions: subdivisionOptions(v.records, v.form),

		TopSubdivisionsN:       h.topSubdivisionsN(),
		DefaultSummaryQuestion: assistant.DefaultSummaryQuestion,
		DefaultChatQuestion:    assistant.DefaultChatQuestion,
	}

	data.SummaryAnswer, data.ChatAnswer = v.scope.Answers()

	chartForm := v.form
	chartForm.Tab = ""
	chartForm.TopType = topType
	chartQuery := encodeQuery(chartForm.Values())

	data.ChartSubdivisionsURL = "/charts/subdivisions.svg" + chartQuery
	data.ChartTypesURL = "/charts/types.svg" + chartQuery
	data.ChartTopURL = "/charts/top.svg" + chartQuery

	if topType != "" {
		data.TopEmpty = len(incidents.Filter(v.records, v.form.TopCriteria(topType))) == 0
	}

	for _, id := range tabs {
		linkForm := v.form
		linkForm.Tab = id
		data.Tabs = append(data.Tabs, TabLink{
			ID:     id,
			Label:  tabLabels[id],
			URL:    "/" + encodeQuery(linkForm.Values()),
			Active: id == v.form.Tab,
		})
	}

	var buf bytes.Buffer
	if err := h.renderer.RenderDashboard(&buf, data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to render dashboard")
		ErrorsTotal.WithLabelValues(ErrorTypeRender).Inc()
		h.renderError(w, http.StatusInternalServerError, "Erreur", "Impossible d'afficher le tableau de bord.")

		return
	}

	w.Header().Set(headerContentType, contentTypeHTML)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) writeSVG(w http.ResponseWriter, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		h.logger.Error().Err(err).Msg("Failed to render chart")
		ErrorsTotal.WithLabelValues(ErrorTypeRender).Inc()
		http.Error(w, "chart rendering failed", http.StatusInternalServerError)

		return
	}

	w.Header().Set(headerContentType, "image/svg+xml")
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handleChartSubdivisions(w http.ResponseWriter, r *http.Request) {
	v := h.view(w, r, r.URL.Query())

	h.writeSVG(w, func(buf *bytes.Buffer) error {
		return h.charts.SubdivisionTotals(buf, incidents.TotalsBySubdivision(v.filtered), v.year)
	})
}

func (h *Handler) handleChartTypes(w http.ResponseWriter, r *http.Request) {
	v := h.view(w, r, r.URL.Query())
	n := h.topTypesN()

	h.writeSVG(w, func(buf *bytes.Buffer) error {
		return h.charts.TopTypes(buf, incidents.TopInfractionTypes(v.filtered, n), n, v.year)
	})
}

func (h *Handler) handleChartTop(w http.ResponseWriter, r *http.Request) {
	v := h.view(w, r, r.URL.Query())
	n := h.topSubdivisionsN()

	h.writeSVG(w, func(buf *bytes.Buffer) error {
		topType := v.form.ResolveTopType(incidents.InfractionTypes(v.records))
		if topType == "" {
			return h.charts.Placeholder(buf, "Aucun type d'infraction détecté")
		}

		scoped := v.form.Criteria()
		scoped.InfractionType = incidents.None[string]()
		records := incidents.Filter(v.records, scoped)

		return h.charts.TopSubdivisions(buf, incidents.TopSubdivisionsForType(records, topType, n), n)
	})
}

func (h *Handler) handleMapData(w http.ResponseWriter, r *http.Request) {
	v := h.view(w, r, r.URL.Query())

	c, err := h.deps.Map.Choropleth(r.Context(), v.filtered, v.year)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build choropleth")
		ErrorsTotal.WithLabelValues(ErrorTypeMap).Inc()

		status := http.StatusInternalServerError
		if errors.Is(err, coreerrors.ErrNotFound) {
			status = http.StatusNotFound
		}

		http.Error(w, err.Error(), status)

		return
	}

	data, err := json.Marshal(c)
	if err != nil {
		ErrorsTotal.WithLabelValues(ErrorTypeMap).Inc()
		http.Error(w, "encoding failed", http.StatusInternalServerError)

		return
	}

	w.Header().Set(headerContentType, "application/geo+json")
	_, _ = w.Write(data)
}

// searchResult is one entry of the subdivision search API.
type searchResult struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	s := h.scope(w, r)
	found := incidents.SearchSubdivisions(incidents.Subdivisions(s.Dataset.Records()), r.URL.Query().Get("q"))

	out := make([]searchResult, 0, min(len(found), maxSearchResults))
	for _, sub := range found[:min(len(found), maxSearchResults)] {
		out = append(out, searchResult{Code: sub.Code, Name: sub.Name, Label: sub.Code + " - " + sub.Name})
	}

	w.Header().Set(headerContentType, "application/json")

	if err := json.NewEncoder(w).Encode(out); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode search results")
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	v := h.view(w, r, r.URL.Query())

	var buf bytes.Buffer
	if err := h.deps.Export(&buf, v.filtered, v.year); err != nil {
		h.logger.Error().Err(err).Msg("Failed to export workbook")
		ErrorsTotal.WithLabelValues(ErrorTypeExport).Inc()
		http.Error(w, "export failed", http.StatusInternalServerError)

		return
	}

	w.Header().Set(headerContentType, contentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="safecity-%d.xlsx"`, v.year))
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handleAssistantSummary(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, http.StatusBadRequest, "Requête invalide", "Le formulaire n'a pas pu être lu.")
		return
	}

	v := h.view(w, r, r.PostForm)
	question := truncateRunes(strings.TrimSpace(r.PostForm.Get("question")), maxQuestionRunes)
	answer := Answer{Prompt: question, At: time.Now()}

	if len(v.filtered) == 0 {
		answer.Err = "Aucune donnée pour ces filtres."
	} else {
		text, err := h.deps.Assistant.Summarize(r.Context(), v.filtered, question)
		if err != nil {
			answer.Err = "Erreur lors de l'appel à l'IA : " + err.Error()
		}

		answer.Text = text
	}

	v.scope.SetSummary(answer)
	h.redirectToAssistant(w, r, v.form)
}

func (h *Handler) handleAssistantChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, http.StatusBadRequest, "Requête invalide", "Le formulaire n'a pas pu être lu.")
		return
	}

	v := h.view(w, r, r.PostForm)
	message := truncateRunes(strings.TrimSpace(r.PostForm.Get("message")), maxQuestionRunes)
	answer := Answer{Prompt: message, At: time.Now()}

	text, err := h.deps.Assistant.Chat(r.Context(), message, assistant.ContextHint(v.year, len(v.filtered)))
	if err != nil {
		answer.Err = "Erreur lors de l'appel au chatbot IA : " + err.Error()
	}

	answer.Text = text

	v.scope.SetChat(answer)
	h.redirectToAssistant(w, r, v.form)
}

func (h *Handler) redirectToAssistant(w http.ResponseWriter, r *http.Request, form FilterForm) {
	form.Tab = TabAssistant
	http.Redirect(w, r, "/"+encodeQuery(form.Values()), http.StatusSeeOther)
}

func subdivisionOptions(records []incidents.Record, form FilterForm) []SubdivisionOption {
	subs := incidents.Subdivisions(records)
	out := make([]SubdivisionOption, 0, len(subs))

	for _, s := range subs {
		out = append(out, SubdivisionOption{Code: s.Code, Name: s.Name, Selected: form.Selected(s.Code)})
	}

	return out
}

func hiddenFields(form FilterForm) []HiddenField {
	var out []HiddenField

	values := form.Values()
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if name == paramTab {
			continue
		}

		for _, v := range values[name] {
			out = append(out, HiddenField{Name: name, Value: v})
		}
	}

	out = append(out, HiddenField{Name: paramTab, Value: form.Tab})

	return out
}

func encodeQuery(v url.Values) string {
	if len(v) == 0 {
		return ""
	}

	return "?" + v.Encode()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}

package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/core/incidents"
	"github.com/safecity/dashboard/internal/platform/config"
	"github.com/safecity/dashboard/internal/render/geo"
)

const testBoundaries = `{"type":"FeatureCollection","features":[
  {"type":"Feature","properties":{"code":"75"},"geometry":{"type":"Point","coordinates":[2.35,48.85]}},
  {"type":"Feature","properties":{"code":"13"},"geometry":{"type":"Point","coordinates":[5.37,43.3]}}]}`

type staticMap struct {
	boundaries *geo.Boundaries
	err        error
}

func (m staticMap) Choropleth(_ context.Context, records []incidents.Record, year int) (*geo.Choropleth, error) {
	if m.err != nil {
		return nil, m.err
	}

	return m.boundaries.Join(incidents.AreaTotals(records), year), nil
}

type fakeAssistant struct {
	mu        sync.Mutex
	reply     string
	err       error
	summaries [][]incidents.Record
	questions []string
	hints     []string
}

func (a *fakeAssistant) Summarize(_ context.Context, records []incidents.Record, question string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.summaries = append(a.summaries, records)
	a.questions = append(a.questions, question)

	return a.reply, a.err
}

func (a *fakeAssistant) Chat(_ context.Context, message, hint string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.questions = append(a.questions, message)
	a.hints = append(a.hints, hint)

	return a.reply, a.err
}

type testEnv struct {
	handler   *Handler
	sessions  *Sessions
	assistant *fakeAssistant
	exported  [][]incidents.Record
}

func newTestEnv(t *testing.T, mapLayer MapLayer) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	env := &testEnv{
		sessions:  NewSessions(staticSource{testDataset()}, time.Hour, 100),
		assistant: &fakeAssistant{reply: "Les **vols** dominent."},
	}

	if mapLayer == nil {
		b, err := geo.ParseBoundaries([]byte(testBoundaries), "code")
		require.NoError(t, err)

		mapLayer = staticMap{boundaries: b}
	}

	handler, err := NewHandler(&config.Config{TopTypesN: 20, TopSubdivisionsN: 15}, Deps{
		Sessions:  env.sessions,
		Tokens:    NewTokenService("test-secret", time.Hour),
		Map:       mapLayer,
		Assistant: env.assistant,
		Export: func(w io.Writer, records []incidents.Record, _ int) error {
			env.exported = append(env.exported, records)
			_, err := w.Write([]byte("xlsx"))

			return err
		},
	}, &logger)
	require.NoError(t, err)

	env.handler = handler

	return env
}

// client keeps the session cookie between requests.
type client struct {
	t      *testing.T
	env    *testEnv
	cookie *http.Cookie
	ip     string
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()

	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	if c.ip != "" {
		req.RemoteAddr = c.ip
	}

	rec := httptest.NewRecorder()
	c.env.handler.ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.Name == sessionCookie {
			c.cookie = ck
		}
	}

	return rec
}

func (c *client) get(target string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (c *client) post(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

func TestHandler_IndexOpensSession(t *testing.T) {
	env := newTestEnv(t, nil)
	c := &client{t: t, env: env}

	rec := c.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeHTML, rec.Header().Get("Content-Type"))
	require.NotNil(t, c.cookie)
	assert.True(t, c.cookie.HttpOnly)

	body := rec.Body.String()
	assert.Contains(t, body, "SafeCity — Délinquance gendarmerie (2021)")
	assert.Contains(t, body, "75.1 - Paris")
	assert.Contains(t, body, "/charts/subdivisions.svg")

	first := c.cookie.Value
	rec = c.get("/?tab=types")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "existing session is reused")
	assert.Equal(t, first, c.cookie.Value)
	assert.Equal(t, 1, env.sessions.Len())
}

func TestHandler_InvalidCookieStartsNewSession(t *testing.T) {
	env := newTestEnv(t, nil)
	c := &client{t: t, env: env, cookie: &http.Cookie{Name: sessionCookie, Value: "forged"}}

	rec := c.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, "forged", c.cookie.Value)
	assert.Equal(t, 1, env.sessions.Len())
}

func TestHandler_SecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := (&client{t: t, env: env}).get("/")

	headers := map[string]string{
		"X-Robots-Tag":           "noindex, nofollow",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "private, no-store",
		"X-Content-Type-Options": "nosniff",
	}

	for header, expected := range headers {
		assert.Equal(t, expected, rec.Header().Get(header), header)
	}
}

func TestHandler_IndexFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	c := &client{t: t, env: env}

	tests := []struct {
		name         string
		target       string
		wantContains []string
	}{
		{
			name:         "type and subdivision",
			target:       "/?type=Vols&sub=13.1",
			wantContains: []string{"Nombre de lignes : 1"},
		},
		{
			name:         "no match shows the warning",
			target:       "/?type=Cambriolages&sub=75.1",
			wantContains: []string{"Nombre de lignes : 0", "Aucune donnée à afficher pour ces filtres."},
		},
		{
			name:         "top tab defaults to sidebar type",
			target:       "/?tab=top&type=Fraudes",
			wantContains: []string{`<option value="Fraudes" selected>`, "/charts/top.svg?"},
		},
		{
			name:         "top tab with no data for the chosen subdivisions",
			target:       "/?tab=top&top=Cambriolages&sub=75.1",
			wantContains: []string{"Aucune donnée pour ce type et ces compagnies."},
		},
		{
			name:         "assistant tab shows default questions",
			target:       "/?tab=assistant",
			wantContains: []string{"Quelles sont les principales différences", "Que peut-on dire de la répartition"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.get(tt.target)
			require.Equal(t, http.StatusOK, rec.Code)

			for _, s := range tt.wantContains {
				assert.Contains(t, rec.Body.String(), s)
			}
		})
	}
}

func TestHandler_Charts(t *testing.T) {
	env := newTestEnv(t, nil)
	c := &client{t: t, env: env}

	for _, target := range []string{
		"/charts/subdivisions.svg",
		"/charts/types.svg?type=Vols",
		"/charts/top.svg?top=Vols",
		"/charts/top.svg?top=Vols&sub=2A.1",
	} {
		t.Run(target, func(t *testing.T) {
			rec := c.get(target)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), "<svg")
		})
	}
}

func TestHandler_MapData(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := (&client{t: t, env: env}).get("/map/areas.geojson?type=Vols")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var fc struct {
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	require.Len(t, fc.Features, 2)
	assert.EqualValues(t, 10, fc.Features[0].Properties[geo.PropertyFactCount])
	assert.EqualValues(t, 4, fc.Features[1].Properties[geo.PropertyFactCount])
}

func TestHandler_MapDataMissingBoundaries(t *testing.T) {
	env := newTestEnv(t, staticMap{err: &coreerrors.NotFoundError{Path: "data/processed/departements.geojson"}})
	rec := (&client{t: t, env: env}).get("/map/areas.geojson")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "departements.geojson")
}

func TestHandler_Search(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := (&client{t: t, env: env}).get("/api/subdivisions?q=MARSÉILLE")

	require.Equal(t, http.StatusOK, rec.Code)

	var got []searchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []searchResult{{Code: "13.1", Name: "Marseille", Label: "13.1 - Marseille"}}, got)
}

func TestHandler_Export(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := (&client{t: t, env: env}).get("/export.xlsx?sub=75.1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "safecity-2021.xlsx")
	require.Len(t, env.exported, 1)
	assert.Len(t, env.exported[0], 2)
}

func TestHandler_AssistantSummary(t *testing.T) {
	env := newTestEnv(t, nil)
	c := &client{t: t, env: env}

	rec := c.post("/assistant/summary", url.Values{"question": {"Pourquoi ?"}, "type": {"Vols"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	location := rec.Header().Get("Location")
	assert.Contains(t, location, "tab=assistant")
	assert.Contains(t, location, "type=Vols")

	require.Len(t, env.assistant.summaries, 1)
	assert.Len(t, env.assistant.summaries[0], 2)
	assert.Equal(t, []string{"Pourquoi ?"}, env.assistant.questions)

	page := c.get(location)
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "<strong>vols</strong>")
	assert.Contains(t, page.Body.String(), `value="Pourquoi ?"`)
}

func TestHandler_AssistantSummaryEmptySelection(t *testing.T) {
	env := newTestEnv(t, nil)
	c := &client{t: t, env: env}

	rec := c.post("/assistant/summary", url.Values{"type": {"Vols"}, "sub": {"2A.1"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, env.assistant.summaries, "no model call for an empty selection")

	page := c.get(rec.Header().Get("Location"))
	assert.Contains(t, page.Body.String(), "Aucune donnée pour ces filtres.")
}

func TestHandler_AssistantChat(t *testing.T) {
	env := newTestEnv(t, nil)
	env.assistant.err = errors.New("assistant transport error: timeout")
	c := &client{t: t, env: env}

	rec := c.post("/assistant/chat", url.Values{"message": {"Bonjour"}, "sub": {"75.1"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	assert.Equal(t, []string{"Année couverte : 2021. Nombre de lignes filtrées : 2."}, env.assistant.hints)

	page := c.get(rec.Header().Get("Location"))
	assert.Contains(t, page.Body.String(), "Erreur lors de l&#39;appel au chatbot IA : assistant transport error: timeout")
}

func TestHandler_AssistantRateLimited(t *testing.T) {
	env := newTestEnv(t, nil)
	c := &client{t: t, env: env, ip: "192.168.1.1:12345"}

	limited := false

	for range 50 {
		if c.post("/assistant/chat", url.Values{"message": {"q"}}).Code == http.StatusTooManyRequests {
			limited = true

			break
		}
	}

	assert.True(t, limited, "expected rate limiting to kick in after many requests")

	other := &client{t: t, env: env, ip: "10.0.0.1:1"}
	assert.Equal(t, http.StatusOK, other.get("/").Code, "page views are not limited")
}

func TestHandler_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := (&client{t: t, env: env}).get("/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page introuvable")
}

func TestRenderMarkdown_DropsRawHTML(t *testing.T) {
	got := string(renderMarkdown("**gras** <script>alert(1)</script>"))

	assert.Contains(t, got, "<strong>gras</strong>")
	assert.NotContains(t, got, "<script>")
}

func TestHandler_ClientIP(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:5"
	req.Header.Set("X-Real-IP", "5.6.7.8")
	req.Header.Set("X-Forwarded-For", " 9.9.9.9 , 10.0.0.1")
	assert.Equal(t, "1.2.3.4", env.handler.clientIP(req), "forwarding headers ignored by default")

	env.handler.cfg.TrustProxyHeaders = true
	assert.Equal(t, "9.9.9.9", env.handler.clientIP(req))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "5.6.7.8", env.handler.clientIP(req))

	req.RemoteAddr = "not-a-host-port"
	req.Header.Del("X-Real-IP")
	assert.Equal(t, "not-a-host-port", env.handler.clientIP(req))
}

func TestHandler_RateLimitIgnoresClientPort(t *testing.T) {
	env := newTestEnv(t, nil)

	denied := 0

	for i := range 50 {
		c := &client{t: t, env: env, ip: fmt.Sprintf("203.0.113.7:%d", 40000+i)}
		if c.post("/assistant/chat", url.Values{"message": {"q"}}).Code == http.StatusTooManyRequests {
			denied++
		}
	}

	assert.Positive(t, denied, "connections from one host share a limiter")
	assert.Len(t, env.handler.limiters, 1)
}

func TestHandler_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, nil)

	denied := 0

	for i := range 50 {
		req := httptest.NewRequest(http.MethodGet, "/export.xlsx", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))

		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		if rec.Code == http.StatusTooManyRequests {
			denied++
		}
	}

	assert.Positive(t, denied)
}

func TestHandler_PruneLimiters(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)
	env.handler.now = func() time.Time { return now }

	env.handler.allowRequest("198.51.100.1")

	now = now.Add(5 * time.Minute)
	env.handler.allowRequest("198.51.100.2")

	now = now.Add(6 * time.Minute)
	env.handler.PruneLimiters(LimiterIdle)

	assert.Len(t, env.handler.limiters, 1)
	assert.Contains(t, env.handler.limiters, "198.51.100.2")
}

// Package dashboard serves the SafeCity web UI: the filter sidebar, the
// four tabs and the chart, map, export and assistant endpoints behind them.
package dashboard

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/safecity/dashboard/internal/core/incidents"
	"github.com/safecity/dashboard/internal/platform/config"
	"github.com/safecity/dashboard/internal/render/charts"
	"github.com/safecity/dashboard/internal/render/geo"
)

// Rate limiting constants for the assistant and export routes.
const (
	rateLimitRequests = 10
	rateLimitBurst    = 5
	rateLimitWindow   = time.Minute

	// LimiterIdle is how long an unused client limiter is kept; by then its
	// bucket has refilled.
	LimiterIdle = 10 * time.Minute
)

const (
	sessionCookie     = "safecity_session"
	headerContentType = "Content-Type"
	contentTypeHTML   = "text/html; charset=utf-8"
	compressLevel     = 5
)

// MapLayer builds choropleths for the map tab.
type MapLayer interface {
	Choropleth(ctx context.Context, records []incidents.Record, year int) (*geo.Choropleth, error)
}

// Assistant answers the two assistant forms.
type Assistant interface {
	Summarize(ctx context.Context, records []incidents.Record, question string) (string, error)
	Chat(ctx context.Context, message, hint string) (string, error)
}

// Exporter writes a workbook of the filtered records.
type Exporter func(w io.Writer, records []incidents.Record, year int) error

// Deps are the collaborators of the Handler.
type Deps struct {
	Sessions  *Sessions
	Tokens    *TokenService
	Map       MapLayer
	Assistant Assistant
	Export    Exporter
}

// Handler serves the dashboard.
type Handler struct {
	cfg      *config.Config
	deps     Deps
	charts   charts.Renderer
	renderer *Renderer
	logger   *zerolog.Logger
	router   chi.Router

	// IP-based rate limiting
	limiters   map[string]*clientLimiter
	limitersMu sync.Mutex
	now        func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewHandler creates the dashboard handler and its routes.
func NewHandler(cfg *config.Config, deps Deps, logger *zerolog.Logger) (*Handler, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		cfg:      cfg,
		deps:     deps,
		charts:   charts.NewRenderer(),
		renderer: renderer,
		logger:   logger,
		limiters: make(map[string]*clientLimiter),
		now:      time.Now,
	}

	h.router = h.routes()

	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(compressLevel, "text/html", "image/svg+xml", "application/json", "application/geo+json"))
	r.Use(securityHeaders)

	r.Get("/", h.instrument(RouteIndex, h.handleIndex))
	r.Get("/charts/subdivisions.svg", h.instrument(RouteChart, h.handleChartSubdivisions))
	r.Get("/charts/types.svg", h.instrument(RouteChart, h.handleChartTypes))
	r.Get("/charts/top.svg", h.instrument(RouteChart, h.handleChartTop))
	r.Get("/map/areas.geojson", h.instrument(RouteMap, h.handleMapData))
	r.Get("/api/subdivisions", h.instrument(RouteSearch, h.handleSearch))

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Get("/export.xlsx", h.instrument(RouteExport, h.handleExport))
		r.Post("/assistant/summary", h.instrument(RouteAssistant, h.handleAssistantSummary))
		r.Post("/assistant/chat", h.instrument(RouteAssistant, h.handleAssistantChat))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		h.renderError(w, http.StatusNotFound, "Page introuvable", "Cette page n'existe pas.")
	})

	return r
}

// statusRecorder keeps the status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		LatencyHistogram.WithLabelValues(route).Observe(time.Since(start).Seconds())
		HitsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Robots-Tag", "noindex, nofollow")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "private, no-store")

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.allowRequest(h.clientIP(r)) {
			DeniedTotal.WithLabelValues(ReasonRateLimited).Inc()
			h.renderError(w, http.StatusTooManyRequests, "Trop de requêtes", "Merci de patienter avant de réessayer.")

			return
		}

		next.ServeHTTP(w, r)
	})
}

// scope returns the caller's session scope, opening a new one and setting
// the cookie when the request carries none or an invalid one.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request) *Scope {
	if c, err := r.Cookie(sessionCookie); err == nil {
		id, err := h.deps.Tokens.Verify(c.Value)
		if err == nil {
			if s, ok := h.deps.Sessions.Get(id); ok {
				return s
			}
		} else if !errors.Is(err, ErrTokenExpired) {
			DeniedTotal.WithLabelValues(ReasonBadSession).Inc()
		}
	}

	s := h.deps.Sessions.Create()
	token, expiresAt := h.deps.Tokens.Generate(s.ID)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})

	return s
}

func (h *Handler) renderError(w http.ResponseWriter, code int, title, message string) {
	w.Header().Set(headerContentType, contentTypeHTML)
	w.WriteHeader(code)

	if err := h.renderer.RenderError(w, &ErrorData{
		Code:    code,
		Title:   title,
		Message: message,
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to render error page")
	}
}

func (h *Handler) allowRequest(ip string) bool {
	h.limitersMu.Lock()

	entry, ok := h.limiters[ip]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(rate.Every(rateLimitWindow/rateLimitRequests), rateLimitBurst)}
		h.limiters[ip] = entry
	}

	entry.lastSeen = h.now()

	h.limitersMu.Unlock()

	return entry.limiter.Allow()
}

// PruneLimiters drops the limiters of clients idle for longer than idle.
func (h *Handler) PruneLimiters(idle time.Duration) {
	h.limitersMu.Lock()
	defer h.limitersMu.Unlock()

	now := h.now()
	for ip, entry := range h.limiters {
		if now.Sub(entry.lastSeen) > idle {
			delete(h.limiters, ip)
		}
	}
}

// clientIP keys the rate limiter. Forwarding headers are honoured only
// behind a trusted proxy; otherwise the peer address is used without port.
func (h *Handler) clientIP(r *http.Request) string {
	if h.cfg.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

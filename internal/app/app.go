// Package app wires the SafeCity dependencies together and exposes the
// operations behind the command line: serving the dashboard and the
// one-shot summary, ask and export commands.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/safecity/dashboard/internal/assistant"
	"github.com/safecity/dashboard/internal/core/incidents"
	"github.com/safecity/dashboard/internal/core/llm"
	"github.com/safecity/dashboard/internal/core/source"
	"github.com/safecity/dashboard/internal/dashboard"
	"github.com/safecity/dashboard/internal/export"
	"github.com/safecity/dashboard/internal/platform/blob"
	"github.com/safecity/dashboard/internal/platform/config"
	"github.com/safecity/dashboard/internal/platform/observability"
	"github.com/safecity/dashboard/internal/platform/worker"
	"github.com/safecity/dashboard/internal/render/geo"
)

const sessionSecretBytes = 32

// ErrDatasetNotLoaded is returned by Ready before the first successful load.
var ErrDatasetNotLoaded = errors.New("dataset not loaded")

// App holds the application dependencies.
type App struct {
	cfg    *config.Config
	logger *zerolog.Logger
	store  blob.Store
	loader *source.Loader

	dataset  atomic.Pointer[incidents.Dataset]
	onReload []func()
}

// New opens the blob store. The dataset is not read until Reload.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	store, err := blob.Open(ctx, blob.Config{
		Driver:            blob.Driver(cfg.BlobDriver),
		FSRoot:            cfg.DataDir,
		S3Bucket:          cfg.BlobS3Bucket,
		S3Region:          cfg.BlobS3Region,
		S3Endpoint:        cfg.BlobS3Endpoint,
		S3PathStyle:       cfg.BlobS3PathStyle,
		S3AccessKeyID:     cfg.BlobS3AccessKeyID,
		S3SecretAccessKey: cfg.BlobS3SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	return NewWithStore(cfg, store, logger), nil
}

// NewWithStore creates an App over an already opened store.
func NewWithStore(cfg *config.Config, store blob.Store, logger *zerolog.Logger) *App {
	normalizer := incidents.Normalizer{
		IndexColumn:    cfg.SourceIndexColumn,
		LabelColumn:    cfg.SourceLabelColumn,
		IgnoredColumns: cfg.SourceIgnoredColumns,
		Year:           cfg.DatasetYear,
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		loader: source.NewLoader(store, normalizer, logger),
	}
}

// Dataset returns the loaded dataset, or nil before the first load.
func (a *App) Dataset() *incidents.Dataset {
	return a.dataset.Load()
}

// Ready reports whether a dataset is loaded.
func (a *App) Ready(context.Context) error {
	if a.dataset.Load() == nil {
		return ErrDatasetNotLoaded
	}

	return nil
}

// Reload reads the source document again. On failure the previous dataset
// stays in place.
func (a *App) Reload(ctx context.Context) error {
	ds, _, err := a.loader.Load(ctx, a.cfg.SourceKey)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	a.dataset.Store(ds)

	for _, fn := range a.onReload {
		fn()
	}

	return nil
}

// Serve loads the dataset and runs the HTTP server until ctx is canceled.
// SIGHUP reloads the dataset.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Reload(ctx); err != nil {
		return err
	}

	secret := a.cfg.SessionSecret
	if secret == "" {
		var err error

		secret, err = randomSecret()
		if err != nil {
			return err
		}

		a.logger.Warn().Msg("SESSION_SECRET is not set, sessions will not survive a restart")
	}

	registry := llm.New(ctx, a.cfg, a.logger)
	a.logProviders(registry)

	sessions := dashboard.NewSessions(a, a.cfg.SessionTTL, a.cfg.SessionMax)
	a.onReload = append(a.onReload, sessions.Reset)

	handler, err := dashboard.NewHandler(a.cfg, dashboard.Deps{
		Sessions:  sessions,
		Tokens:    dashboard.NewTokenService(secret, a.cfg.SessionTTL),
		Map:       geo.NewLayer(a.store, a.cfg.BoundariesKey, a.cfg.BoundariesJoinProperty, a.logger),
		Assistant: a.newAssistant(registry),
		Export: func(w io.Writer, records []incidents.Record, year int) error {
			return export.Write(w, records, export.Options{Year: year, TopTypes: a.cfg.TopTypesN})
		},
	}, a.logger)
	if err != nil {
		return fmt.Errorf("dashboard handler init: %w", err)
	}

	server := observability.NewServer(a.cfg.HTTPPort, a.Ready, handler, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(ctx)
	})

	g.Go(func() error {
		return a.watchReloadSignal(ctx)
	})

	g.Go(func() error {
		err := worker.Loop(ctx, worker.Config{
			Name: "maintenance",
			Tasks: []worker.Task{
				{Name: "session_sweep", Interval: a.cfg.SessionSweep, Run: func(context.Context) error {
					sessions.Sweep()
					handler.PruneLimiters(dashboard.LimiterIdle)

					return nil
				}},
				{Name: "dataset_reload", Interval: a.cfg.DatasetReloadInterval, Run: a.Reload},
			},
			Logger: a.logger,
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}

func (a *App) watchReloadSignal(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := a.Reload(ctx); err != nil {
				a.logger.Error().Err(err).Msg("dataset reload failed, keeping the previous one")
				continue
			}

			a.logger.Info().Msg("dataset reloaded")
		}
	}
}

// Query selects records for the one-shot commands.
type Query struct {
	InfractionType string
	Subdivisions   []string
}

// Criteria converts the query. Empty fields do not constrain.
func (q Query) Criteria() incidents.Criteria {
	c := incidents.Criteria{
		InfractionType: incidents.None[string](),
		Subdivisions:   incidents.None[incidents.CodeSet](),
	}

	if q.InfractionType != "" {
		c.InfractionType = incidents.Some(q.InfractionType)
	}

	if len(q.Subdivisions) > 0 {
		c.Subdivisions = incidents.Some(incidents.NewCodeSet(q.Subdivisions...))
	}

	return c
}

func (a *App) selection(ctx context.Context, q Query) ([]incidents.Record, int, error) {
	if a.Dataset() == nil {
		if err := a.Reload(ctx); err != nil {
			return nil, 0, err
		}
	}

	ds := a.Dataset()

	return incidents.Filter(ds.Records(), q.Criteria()), ds.Year(), nil
}

// Summary asks the assistant to explain the selected records.
func (a *App) Summary(ctx context.Context, q Query, question string) (string, error) {
	records, _, err := a.selection(ctx, q)
	if err != nil {
		return "", err
	}

	return a.newAssistant(llm.New(ctx, a.cfg, a.logger)).Summarize(ctx, records, question)
}

// Ask sends a free question to the chat assistant.
func (a *App) Ask(ctx context.Context, q Query, message string) (string, error) {
	records, year, err := a.selection(ctx, q)
	if err != nil {
		return "", err
	}

	return a.newAssistant(llm.New(ctx, a.cfg, a.logger)).Chat(ctx, message, assistant.ContextHint(year, len(records)))
}

// ExportTo writes the workbook of the selected records to w.
func (a *App) ExportTo(ctx context.Context, q Query, w io.Writer) error {
	records, year, err := a.selection(ctx, q)
	if err != nil {
		return err
	}

	return export.Write(w, records, export.Options{Year: year, TopTypes: a.cfg.TopTypesN})
}

// ExportToStore saves the workbook under the export prefix of the blob store.
func (a *App) ExportToStore(ctx context.Context, q Query) (blob.Info, error) {
	records, year, err := a.selection(ctx, q)
	if err != nil {
		return blob.Info{}, err
	}

	exporter := export.NewExporter(a.store, a.cfg.ExportPrefix, a.logger)

	return exporter.Save(ctx, records, export.Options{Year: year, TopTypes: a.cfg.TopTypesN})
}

func (a *App) newAssistant(client llm.Client) *assistant.Service {
	return assistant.New(client, assistant.Config{
		PrimaryModel:   a.cfg.PrimaryModel,
		SecondaryModel: a.cfg.SecondaryModel,
		Timeout:        a.cfg.LLMTimeout,
		ContextLines:   a.cfg.AssistantContextLines,
	}, a.logger)
}

// logProviders reports the LLM fallback chain in the order it is tried.
func (a *App) logProviders(registry *llm.Registry) {
	statuses := registry.ProviderStatuses()
	if len(statuses) == 0 {
		a.logger.Warn().Msg("no LLM providers registered, the assistant is disabled")

		return
	}

	for _, st := range statuses {
		a.logger.Info().
			Str("provider", string(st.Name)).
			Int("priority", st.Priority).
			Bool("available", st.Available).
			Bool("circuit_ok", st.CircuitBreakerOK).
			Msg("LLM provider ready")
	}
}

func randomSecret() (string, error) {
	b := make([]byte, sessionSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}

	return hex.EncodeToString(b), nil
}

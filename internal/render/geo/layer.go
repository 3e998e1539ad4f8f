package geo

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/safecity/dashboard/internal/core/incidents"
	"github.com/safecity/dashboard/internal/platform/blob"
	"github.com/safecity/dashboard/internal/platform/observability"
)

// Layer loads the boundary document on first use and serves choropleths
// built from it. Concurrent first requests share one read.
type Layer struct {
	store        blob.Store
	key          string
	joinProperty string
	logger       *zerolog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	loaded *Boundaries
}

// NewLayer creates a Layer reading key from store.
func NewLayer(store blob.Store, key, joinProperty string, logger *zerolog.Logger) *Layer {
	return &Layer{store: store, key: key, joinProperty: joinProperty, logger: logger}
}

// Boundaries returns the parsed document. Failures are not cached.
func (l *Layer) Boundaries(ctx context.Context) (*Boundaries, error) {
	l.mu.RLock()
	b := l.loaded
	l.mu.RUnlock()

	if b != nil {
		return b, nil
	}

	loadCtx := context.WithoutCancel(ctx)

	v, err, _ := l.group.Do(l.key, func() (interface{}, error) {
		data, info, err := blob.ReadAll(loadCtx, l.store, l.key)
		if err != nil {
			return nil, fmt.Errorf("reading boundaries: %w", err)
		}

		parsed, err := ParseBoundaries(data, l.joinProperty)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", info.Location, err)
		}

		l.mu.Lock()
		l.loaded = parsed
		l.mu.Unlock()

		l.logger.Info().
			Str("location", info.Location).
			Int("features", parsed.Len()).
			Msg("boundaries loaded")

		return parsed, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Boundaries), nil
}

// Choropleth joins the area totals of records onto the boundaries.
func (l *Layer) Choropleth(ctx context.Context, records []incidents.Record, year int) (*Choropleth, error) {
	b, err := l.Boundaries(ctx)
	if err != nil {
		return nil, err
	}

	c := b.Join(incidents.AreaTotals(records), year)

	observability.BoundaryUnmatchedAreas.Set(float64(len(c.Unmatched)))

	if len(c.Unmatched) > 0 {
		l.logger.Debug().Strs("areas", c.Unmatched).Msg("area totals without geometry")
	}

	return c, nil
}

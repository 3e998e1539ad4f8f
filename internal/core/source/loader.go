package source

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/core/incidents"
	"github.com/safecity/dashboard/internal/platform/blob"
	"github.com/safecity/dashboard/internal/platform/observability"
)

// Loader reads the source document from a blob store and normalizes it.
type Loader struct {
	store      blob.Store
	normalizer incidents.Normalizer
	logger     *zerolog.Logger
}

// NewLoader creates a loader.
func NewLoader(store blob.Store, normalizer incidents.Normalizer, logger *zerolog.Logger) *Loader {
	return &Loader{store: store, normalizer: normalizer, logger: logger}
}

// Load reads key and returns the normalized dataset. A missing document
// fails with *errors.NotFoundError, an undecodable one or a table lacking
// the special columns with *errors.SchemaError; both name the location.
func (l *Loader) Load(ctx context.Context, key string) (*incidents.Dataset, incidents.Report, error) {
	start := time.Now()

	ds, report, err := l.load(ctx, key)

	observability.DatasetLoadDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		observability.DatasetLoads.WithLabelValues(observability.StatusError).Inc()
		return nil, report, err
	}

	observability.DatasetLoads.WithLabelValues(observability.StatusSuccess).Inc()
	observability.DatasetRecords.Set(float64(ds.Len()))
	observability.DatasetDroppedCells.WithLabelValues("null").Add(float64(report.DroppedNull))
	observability.DatasetDroppedCells.WithLabelValues("unparseable").Add(float64(report.DroppedUnparseable))

	l.logger.Info().
		Str("key", key).
		Int("records", report.Emitted).
		Int("data_rows", report.DataRows).
		Int("subdivisions", report.SubdivisionColumns).
		Dur("duration", time.Since(start)).
		Msg("dataset loaded")

	if report.Dropped() > 0 {
		l.logger.Debug().
			Int("dropped_null", report.DroppedNull).
			Int("dropped_unparseable", report.DroppedUnparseable).
			Msg("source cells dropped during normalization")
	}

	return ds, report, nil
}

func (l *Loader) load(ctx context.Context, key string) (*incidents.Dataset, incidents.Report, error) {
	data, info, err := blob.ReadAll(ctx, l.store, key)
	if err != nil {
		return nil, incidents.Report{}, fmt.Errorf("read source: %w", err)
	}

	table, err := Decode(key, data)
	if err != nil {
		return nil, incidents.Report{}, &coreerrors.SchemaError{Path: info.Location, Reason: err.Error()}
	}

	ds, report, err := l.normalizer.Normalize(table)
	if err != nil {
		var schemaErr *coreerrors.SchemaError
		if errors.As(err, &schemaErr) {
			schemaErr.Path = info.Location
		}

		return nil, report, fmt.Errorf("normalize source: %w", err)
	}

	return ds, report, nil
}

// Decode picks the decoder from the key extension: .xlsx workbooks, JSON
// otherwise.
func Decode(key string, data []byte) (*incidents.RawTable, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".xlsx":
		return DecodeXLSX(data)
	case ".json", "":
		return DecodeJSON(data)
	default:
		return nil, fmt.Errorf("%s: %w", path.Ext(key), coreerrors.ErrUnsupportedFormat)
	}
}

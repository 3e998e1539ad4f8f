// Package export writes the aggregate views of a filtered selection to an
// XLSX workbook.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/safecity/dashboard/internal/core/incidents"
	"github.com/safecity/dashboard/internal/platform/blob"
)

// Sheet names, in workbook order.
const (
	SheetSummary      = "Synthèse"
	SheetSubdivisions = "Par compagnie"
	SheetTypes        = "Par type"
	SheetAreas        = "Par département"
	SheetRecords      = "Données filtrées"
)

// ContentType is the media type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Options tunes the ranking sheet.
type Options struct {
	Year     int
	TopTypes int
}

// Build lays out the workbook for records.
func Build(records []incidents.Record, opts Options) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("naming summary sheet: %w", err)
	}

	sheets := []struct {
		name string
		rows [][]interface{}
	}{
		{SheetSummary, summaryRows(records, opts.Year)},
		{SheetSubdivisions, subdivisionRows(records)},
		{SheetTypes, typeRows(records, opts.TopTypes)},
		{SheetAreas, areaRows(records)},
		{SheetRecords, recordRows(records)},
	}

	for i, s := range sheets {
		if i > 0 {
			if _, err := f.NewSheet(s.name); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("creating sheet %s: %w", s.name, err)
			}
		}

		if err := writeRows(f, s.name, s.rows); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	f.SetActiveSheet(0)

	return f, nil
}

// Write builds the workbook and writes it to w.
func Write(w io.Writer, records []incidents.Record, opts Options) error {
	f, err := Build(records, opts)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}

	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}

		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}

	if len(rows) > 0 {
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("freezing header of %s: %w", sheet, err)
		}
	}

	return nil
}

func summaryRows(records []incidents.Record, year int) [][]interface{} {
	s := incidents.Summarize(records)

	return [][]interface{}{
		{"Indicateur", "Valeur"},
		{"Année", year},
		{"Lignes", s.Records},
		{"Faits", s.Facts},
		{"Compagnies", s.Subdivisions},
		{"Types d'infraction", s.Types},
		{"Moyenne par compagnie", s.MeanPerSubdivision},
		{"Médiane par compagnie", s.MedianPerSubdivision},
		{"90e centile par compagnie", s.P90PerSubdivision},
		{"Maximum par compagnie", s.MaxPerSubdivision},
	}
}

func subdivisionRows(records []incidents.Record) [][]interface{} {
	rows := [][]interface{}{{"Code", "Compagnie", "Nombre de faits"}}
	for _, t := range incidents.TotalsBySubdivision(records) {
		rows = append(rows, []interface{}{t.Code, t.Name, t.Total})
	}

	return rows
}

func typeRows(records []incidents.Record, n int) [][]interface{} {
	rows := [][]interface{}{{"Rang", "Type d'infraction", "Nombre de faits"}}
	for i, t := range incidents.TopInfractionTypes(records, n) {
		rows = append(rows, []interface{}{i + 1, t.InfractionType, t.Total})
	}

	return rows
}

func areaRows(records []incidents.Record) [][]interface{} {
	rows := [][]interface{}{{"Département", "Nombre de faits"}}
	for _, t := range incidents.AreaTotals(records) {
		rows = append(rows, []interface{}{t.AreaCode, t.Total})
	}

	return rows
}

func recordRows(records []incidents.Record) [][]interface{} {
	rows := make([][]interface{}, 0, len(records)+1)
	rows = append(rows, []interface{}{"Année", "Code compagnie", "Département", "Compagnie", "Type d'infraction", "Nombre de faits"})

	for _, r := range records {
		rows = append(rows, []interface{}{r.Year, r.SubdivisionCode, r.AreaCode, r.SubdivisionName, r.InfractionType, r.FactCount})
	}

	return rows
}

// Exporter stores workbooks in a blob store.
type Exporter struct {
	store  blob.Store
	prefix string
	now    func() time.Time
	logger *zerolog.Logger
}

// NewExporter creates an Exporter writing under prefix.
func NewExporter(store blob.Store, prefix string, logger *zerolog.Logger) *Exporter {
	return &Exporter{store: store, prefix: prefix, now: time.Now, logger: logger}
}

// Save writes a workbook for records and returns where it went.
func (e *Exporter) Save(ctx context.Context, records []incidents.Record, opts Options) (blob.Info, error) {
	var buf bytes.Buffer
	if err := Write(&buf, records, opts); err != nil {
		return blob.Info{}, err
	}

	key := fmt.Sprintf("%ssafecity-%d-%s-%s.xlsx", e.prefix, opts.Year, e.now().UTC().Format("20060102T150405"), uuid.NewString()[:8])

	info, err := e.store.Put(ctx, key, &buf, ContentType)
	if err != nil {
		return blob.Info{}, fmt.Errorf("storing workbook: %w", err)
	}

	e.logger.Info().
		Str("location", info.Location).
		Int64("size", info.Size).
		Int("records", len(records)).
		Msg("workbook exported")

	return info, nil
}

package incidents

import (
	"math"
	"strconv"
	"strings"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
)

// DefaultYear is the dataset year used when none is configured.
const DefaultYear = 2021

// Normalizer reshapes a wide source table into incident records.
//
// The table carries two special columns (an index column and a label column
// naming the infraction type of each data row). Every other column, except
// the ignored ones, is a subdivision code. Row 0 holds the display name of
// each subdivision; later rows hold fact counts.
type Normalizer struct {
	IndexColumn    string
	LabelColumn    string
	IgnoredColumns []string
	Year           int
}

// Report describes what a normalization pass kept and dropped.
type Report struct {
	DataRows           int
	SubdivisionColumns int
	Emitted            int
	DroppedNull        int
	DroppedUnparseable int
}

// Dropped is the number of count cells that produced no record.
func (r Report) Dropped() int {
	return r.DroppedNull + r.DroppedUnparseable
}

type subdivisionColumn struct {
	index int
	code  string
}

// Normalize builds the dataset. Missing special columns fail with a
// *errors.SchemaError. Null and non-integer cells are skipped and counted
// in the report.
func (n Normalizer) Normalize(table *RawTable) (*Dataset, Report, error) {
	var report Report

	labelIdx, columns, err := n.resolveColumns(table)
	if err != nil {
		return nil, report, err
	}

	report.SubdivisionColumns = len(columns)

	names := extractHeaderNames(table, columns)

	year := n.Year
	if year == 0 {
		year = DefaultYear
	}

	var records []Record

	for row := 1; row < len(table.Rows); row++ {
		report.DataRows++

		// The label is an exact-match key; a null label yields "".
		infractionType := table.Cell(row, labelIdx).Raw()

		for _, col := range columns {
			cell := table.Cell(row, col.index)
			if cell.IsNull() {
				report.DroppedNull++
				continue
			}

			count, ok := tryParseInt(cell)
			if !ok {
				report.DroppedUnparseable++
				continue
			}

			records = append(records, Record{
				Year:            year,
				SubdivisionCode: col.code,
				AreaCode:        AreaCodeOf(col.code),
				SubdivisionName: names[col.code],
				InfractionType:  infractionType,
				FactCount:       count,
			})
		}
	}

	report.Emitted = len(records)

	return newDataset(year, records), report, nil
}

func (n Normalizer) resolveColumns(table *RawTable) (int, []subdivisionColumn, error) {
	if table == nil {
		return 0, nil, &coreerrors.SchemaError{Missing: []string{n.IndexColumn, n.LabelColumn}}
	}

	var missing []string

	if _, ok := table.ColumnIndex(n.IndexColumn); !ok {
		missing = append(missing, n.IndexColumn)
	}

	labelIdx, ok := table.ColumnIndex(n.LabelColumn)
	if !ok {
		missing = append(missing, n.LabelColumn)
	}

	if len(missing) > 0 {
		return 0, nil, &coreerrors.SchemaError{
			Missing: missing,
			Found:   append([]string(nil), table.Columns...),
		}
	}

	skip := make(map[string]struct{}, len(n.IgnoredColumns)+2)
	skip[n.IndexColumn] = struct{}{}
	skip[n.LabelColumn] = struct{}{}

	for _, c := range n.IgnoredColumns {
		skip[c] = struct{}{}
	}

	columns := make([]subdivisionColumn, 0, len(table.Columns))

	for i, name := range table.Columns {
		if _, ignored := skip[name]; ignored {
			continue
		}

		columns = append(columns, subdivisionColumn{index: i, code: name})
	}

	return labelIdx, columns, nil
}

// extractHeaderNames reads row 0 as the code -> display name mapping.
// A table without rows yields an empty mapping.
func extractHeaderNames(table *RawTable, columns []subdivisionColumn) map[string]string {
	names := make(map[string]string, len(columns))
	if len(table.Rows) == 0 {
		return names
	}

	for _, col := range columns {
		name := table.Cell(0, col.index).Text()
		if name == "" {
			name = col.code
		}

		names[col.code] = name
	}

	return names
}

// tryParseInt converts a count cell. Fractional numbers truncate toward
// zero; strings must hold a base-10 integer. Negative, boolean and values
// outside the int range are rejected.
func tryParseInt(cell Cell) (int, bool) {
	switch cell.Kind {
	case CellNumber:
		if math.IsNaN(cell.Num) || math.IsInf(cell.Num, 0) {
			return 0, false
		}

		v := math.Trunc(cell.Num)
		if v < 0 || v >= float64(math.MaxInt) {
			return 0, false
		}

		return int(v), true
	case CellString:
		v, err := strconv.Atoi(strings.TrimSpace(cell.Str))
		if err != nil || v < 0 {
			return 0, false
		}

		return v, true
	default:
		return 0, false
	}
}

package source

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/core/incidents"
)

// DecodeXLSX reads the first sheet of a workbook. Its first row names the
// columns; empty cells are null and numeric text becomes a number.
func DecodeXLSX(data []byte) (*incidents.RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %v: %w", err, coreerrors.ErrSchema)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheet: %w", coreerrors.ErrSchema)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %v: %w", sheets[0], err, coreerrors.ErrSchema)
	}

	if len(rows) == 0 {
		return &incidents.RawTable{}, nil
	}

	columns := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		columns[i] = strings.TrimSpace(name)
	}

	table := &incidents.RawTable{Columns: columns, Rows: make([][]incidents.Cell, 0, len(rows)-1)}

	for _, row := range rows[1:] {
		cells := make([]incidents.Cell, len(row))
		for i, v := range row {
			cells[i] = textCell(v)
		}

		table.Rows = append(table.Rows, cells)
	}

	return table, nil
}

func textCell(v string) incidents.Cell {
	v = strings.TrimSpace(v)
	if v == "" {
		return incidents.NullCell()
	}

	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return incidents.NumberCell(f)
	}

	return incidents.StringCell(v)
}

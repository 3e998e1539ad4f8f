// Package source decodes the wide crime table from its stored document and
// hands it to the normalizer.
package source

import (
	"fmt"

	"github.com/tidwall/gjson"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
	"github.com/safecity/dashboard/internal/core/incidents"
)

// DecodeJSON parses a JSON-encoded table. Three layouts are accepted, in
// the shapes pandas writes them:
//
//	records: [{"col": v, ...}, ...]
//	columns: {"col": {"0": v, "1": v}, ...}
//	split:   {"columns": [...], "data": [[...], ...]}
//
// Column order follows first appearance in the document.
func DecodeJSON(data []byte) (*incidents.RawTable, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %w", coreerrors.ErrSchema)
	}

	root := gjson.ParseBytes(data)

	switch {
	case root.IsArray():
		return decodeRecords(root)
	case root.IsObject() && root.Get("columns").IsArray() && root.Get("data").IsArray():
		return decodeSplit(root)
	case root.IsObject():
		return decodeColumns(root)
	default:
		return nil, fmt.Errorf("json document is neither an array nor an object: %w", coreerrors.ErrSchema)
	}
}

type columnIndex struct {
	names []string
	pos   map[string]int
}

func newColumnIndex() *columnIndex {
	return &columnIndex{pos: make(map[string]int)}
}

func (c *columnIndex) add(name string) int {
	if i, ok := c.pos[name]; ok {
		return i
	}

	c.pos[name] = len(c.names)
	c.names = append(c.names, name)

	return len(c.names) - 1
}

func decodeRecords(root gjson.Result) (*incidents.RawTable, error) {
	cols := newColumnIndex()

	var (
		rows   [][]incidents.Cell
		badRow int
	)

	root.ForEach(func(_, row gjson.Result) bool {
		if !row.IsObject() {
			badRow = len(rows) + 1
			return false
		}

		cells := make([]incidents.Cell, len(cols.names))

		row.ForEach(func(key, value gjson.Result) bool {
			i := cols.add(key.String())
			for len(cells) <= i {
				cells = append(cells, incidents.NullCell())
			}

			cells[i] = cellOf(value)

			return true
		})

		rows = append(rows, cells)

		return true
	})

	if badRow > 0 {
		return nil, fmt.Errorf("record %d is not an object: %w", badRow, coreerrors.ErrSchema)
	}

	return &incidents.RawTable{Columns: cols.names, Rows: rows}, nil
}

func decodeColumns(root gjson.Result) (*incidents.RawTable, error) {
	cols := newColumnIndex()
	rowIdx := newColumnIndex()

	type cellAt struct {
		row, col int
		cell     incidents.Cell
	}

	var (
		cells  []cellAt
		badCol string
	)

	root.ForEach(func(key, column gjson.Result) bool {
		if !column.IsObject() {
			badCol = key.String()
			return false
		}

		c := cols.add(key.String())

		column.ForEach(func(rowKey, value gjson.Result) bool {
			cells = append(cells, cellAt{row: rowIdx.add(rowKey.String()), col: c, cell: cellOf(value)})
			return true
		})

		return true
	})

	if badCol != "" {
		return nil, fmt.Errorf("column %q is not an object: %w", badCol, coreerrors.ErrSchema)
	}

	rows := make([][]incidents.Cell, len(rowIdx.names))
	for i := range rows {
		rows[i] = make([]incidents.Cell, len(cols.names))
	}

	for _, c := range cells {
		rows[c.row][c.col] = c.cell
	}

	return &incidents.RawTable{Columns: cols.names, Rows: rows}, nil
}

func decodeSplit(root gjson.Result) (*incidents.RawTable, error) {
	var columns []string

	root.Get("columns").ForEach(func(_, name gjson.Result) bool {
		columns = append(columns, name.String())
		return true
	})

	var rows [][]incidents.Cell

	root.Get("data").ForEach(func(_, row gjson.Result) bool {
		var cells []incidents.Cell

		row.ForEach(func(_, value gjson.Result) bool {
			cells = append(cells, cellOf(value))
			return true
		})

		rows = append(rows, cells)

		return true
	})

	return &incidents.RawTable{Columns: columns, Rows: rows}, nil
}

func cellOf(v gjson.Result) incidents.Cell {
	switch v.Type {
	case gjson.Null:
		return incidents.NullCell()
	case gjson.Number:
		return incidents.NumberCell(v.Num)
	case gjson.String:
		return incidents.StringCell(v.Str)
	case gjson.True, gjson.False:
		return incidents.BoolCell(v.Bool())
	default:
		return incidents.StringCell(v.Raw)
	}
}

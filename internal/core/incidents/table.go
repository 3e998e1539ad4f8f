package incidents

import (
	"strconv"
	"strings"
)

// CellKind tells which value a Cell carries.
type CellKind uint8

const (
	CellNull CellKind = iota
	CellNumber
	CellString
	CellBool
)

// Cell is one value of a raw source table.
type Cell struct {
	Kind CellKind
	Num  float64
	Str  string
	Bool bool
}

// NullCell is a missing value.
func NullCell() Cell { return Cell{Kind: CellNull} }

// NumberCell wraps a numeric value.
func NumberCell(v float64) Cell { return Cell{Kind: CellNumber, Num: v} }

// StringCell wraps a text value.
func StringCell(v string) Cell { return Cell{Kind: CellString, Str: v} }

// BoolCell wraps a boolean value.
func BoolCell(v bool) Cell { return Cell{Kind: CellBool, Bool: v} }

// IsNull reports whether the cell holds no value.
func (c Cell) IsNull() bool { return c.Kind == CellNull }

// Text renders the cell as display text. Null cells render empty.
func (c Cell) Text() string {
	switch c.Kind {
	case CellString:
		return strings.TrimSpace(c.Str)
	case CellNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case CellBool:
		return strconv.FormatBool(c.Bool)
	default:
		return ""
	}
}

// Raw renders the cell like Text but keeps string values verbatim.
func (c Cell) Raw() string {
	if c.Kind == CellString {
		return c.Str
	}

	return c.Text()
}

// RawTable is the wide source table: named columns in source order and rows
// of cells. Rows may be shorter than Columns; missing cells read as null.
type RawTable struct {
	Columns []string
	Rows    [][]Cell
}

// ColumnIndex returns the position of the column with exactly this name.
func (t *RawTable) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}

	return -1, false
}

// Cell returns the cell at row/col, or a null cell when out of range.
func (t *RawTable) Cell(row, col int) Cell {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return NullCell()
	}

	cells := t.Rows[row]
	if col >= len(cells) {
		return NullCell()
	}

	return cells[col]
}

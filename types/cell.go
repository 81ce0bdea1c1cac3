package types

import (
	"fmt"
	"regexp"

	"github.com/teranos/mend/errors"
)

// TIDColumn is the tuple identifier column every source table carries.
const TIDColumn = "tid"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier rejects empty or unsafe table and attribute names.
// Identifiers are spliced into SQL, so only plain names are accepted.
func ValidIdentifier(kind, name string) error {
	if name == "" {
		return errors.NewInvalidInputError("%s name is empty", kind)
	}
	if !identifierPattern.MatchString(name) {
		return errors.NewInvalidInputError("%s name %q is not a plain identifier", kind, name)
	}
	return nil
}

// Column addresses one attribute of one table.
type Column struct {
	// Schema is the database namespace, empty for the default one.
	// It does not take part in cell identity.
	Schema    string
	Table     string
	Attribute string
}

// NewColumn validates both identifiers.
func NewColumn(table, attribute string) (Column, error) {
	if err := ValidIdentifier("table", table); err != nil {
		return Column{}, err
	}
	if err := ValidIdentifier("attribute", attribute); err != nil {
		return Column{}, err
	}
	return Column{Table: table, Attribute: attribute}, nil
}

func (c Column) String() string {
	return c.Table + "." + c.Attribute
}

// CellKey is the identity of a cell: its coordinate, never its value.
type CellKey struct {
	Table     string
	Attribute string
	TID       int
}

func (k CellKey) String() string {
	return fmt.Sprintf("%s.%s[%d]", k.Table, k.Attribute, k.TID)
}

// Cell is one observed value in the dataset. Cells are immutable;
// WithValue returns a new Cell at the same coordinate.
type Cell struct {
	column Column
	tid    int
	value  Value
}

// NewCell builds a cell at column/tid holding v.
func NewCell(column Column, tid int, v Value) (Cell, error) {
	if err := ValidIdentifier("table", column.Table); err != nil {
		return Cell{}, err
	}
	if err := ValidIdentifier("attribute", column.Attribute); err != nil {
		return Cell{}, err
	}
	return Cell{column: column, tid: tid, value: v}, nil
}

func (c Cell) Column() Column    { return c.column }
func (c Cell) Table() string     { return c.column.Table }
func (c Cell) Attribute() string { return c.column.Attribute }
func (c Cell) TID() int          { return c.tid }
func (c Cell) Value() Value      { return c.value }

// Key returns the coordinate identity of c.
func (c Cell) Key() CellKey {
	return CellKey{Table: c.column.Table, Attribute: c.column.Attribute, TID: c.tid}
}

// SameCoordinate reports whether c and o address the same cell.
func (c Cell) SameCoordinate(o Cell) bool {
	return c.Key() == o.Key()
}

// WithValue returns a copy of c holding v.
func (c Cell) WithValue(v Value) Cell {
	c.value = v
	return c
}

func (c Cell) String() string {
	return fmt.Sprintf("%s=%q", c.Key(), c.value.String())
}

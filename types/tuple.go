package types

import (
	"time"

	"github.com/teranos/mend/errors"
)

// ColumnInfo describes one attribute of a source table.
type ColumnInfo struct {
	Name string
	Type DataType
}

// Schema lists the attributes of a source table, excluding the tid column.
type Schema struct {
	Table   string
	Columns []ColumnInfo
}

// Lookup returns the column named name.
func (s Schema) Lookup(name string) (ColumnInfo, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnInfo{}, false
}

func (s Schema) index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Tuple is one row of a source table.
type Tuple struct {
	schema Schema
	tid    int
	values []Value
}

// NewTuple pairs values positionally with the schema's columns.
func NewTuple(schema Schema, tid int, values []Value) (Tuple, error) {
	if len(values) != len(schema.Columns) {
		return Tuple{}, errors.NewInvalidInputError("tuple %d of %s has %d values for %d columns",
			tid, schema.Table, len(values), len(schema.Columns))
	}
	return Tuple{schema: schema, tid: tid, values: values}, nil
}

func (t Tuple) TID() int       { return t.tid }
func (t Tuple) Table() string  { return t.schema.Table }
func (t Tuple) Schema() Schema { return t.schema }

// Value returns the value of attribute attr.
func (t Tuple) Value(attr string) (Value, bool) {
	i := t.schema.index(attr)
	if i < 0 {
		return Value{}, false
	}
	return t.values[i], true
}

// Cell returns the cell of attribute attr.
func (t Tuple) Cell(attr string) (Cell, error) {
	i := t.schema.index(attr)
	if i < 0 {
		return Cell{}, errors.NewNotFoundError("attribute %s in table %s", attr, t.schema.Table)
	}
	col, err := NewColumn(t.schema.Table, attr)
	if err != nil {
		return Cell{}, err
	}
	return NewCell(col, t.tid, t.values[i])
}

// Cells returns every cell of the tuple in schema order.
func (t Tuple) Cells() []Cell {
	cells := make([]Cell, 0, len(t.values))
	for _, c := range t.schema.Columns {
		cell, err := t.Cell(c.Name)
		if err != nil {
			continue
		}
		cells = append(cells, cell)
	}
	return cells
}

// With returns a copy of t with attr set to v.
func (t Tuple) With(attr string, v Value) Tuple {
	i := t.schema.index(attr)
	if i < 0 {
		return t
	}
	values := make([]Value, len(t.values))
	copy(values, t.values)
	values[i] = v
	t.values = values
	return t
}

// Table is an in-memory snapshot of a source table, ordered by tid.
type Table struct {
	Schema Schema
	Tuples []Tuple
}

// Get returns the tuple with id tid.
func (t *Table) Get(tid int) (Tuple, bool) {
	for _, tu := range t.Tuples {
		if tu.tid == tid {
			return tu, true
		}
	}
	return Tuple{}, false
}

// Label is the class of a training instance.
type Label int

const (
	LabelUnset Label = iota
	LabelYes
	LabelNo
)

func (l Label) String() string {
	switch l {
	case LabelYes:
		return "YES"
	case LabelNo:
		return "NO"
	default:
		return "?"
	}
}

// TrainingInstance is one observation for the acceptance classifier.
// Yes means the proposed value was accepted as a genuine repair.
type TrainingInstance struct {
	Label      Label
	Tuple      Tuple
	Attribute  string
	Proposed   Value
	Similarity float64
}

// AuditRecord is one applied fix. Audit rows are append-only.
type AuditRecord struct {
	ID        int
	VID       int
	TID       int
	Table     string
	Attribute string
	OldValue  string
	NewValue  string
	Time      time.Time
}

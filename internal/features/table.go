package features

import (
	"fmt"
	"math"
)

// Table is a column-oriented feature table: one row per (entity, timestamp)
// pair, columns in a stable order. Numeric columns must be finite; the
// registry enforces that before a table leaves the package.
type Table struct {
	n           int
	order       []string
	numeric     map[string][]float64
	categorical map[string][]string
}

func NewTable(rows int) *Table {
	return &Table{
		n:           rows,
		numeric:     make(map[string][]float64),
		categorical: make(map[string][]string),
	}
}

func (t *Table) Len() int { return t.n }

// Columns returns the column names in insertion order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Table) Has(name string) bool {
	_, num := t.numeric[name]
	_, cat := t.categorical[name]
	return num || cat
}

func (t *Table) IsCategorical(name string) bool {
	_, ok := t.categorical[name]
	return ok
}

func (t *Table) SetNumeric(name string, vals []float64) error {
	if len(vals) != t.n {
		return fmt.Errorf("column %s has %d values, table has %d rows", name, len(vals), t.n)
	}
	if t.Has(name) {
		return fmt.Errorf("column %s already set", name)
	}
	t.numeric[name] = vals
	t.order = append(t.order, name)
	return nil
}

func (t *Table) SetCategorical(name string, vals []string) error {
	if len(vals) != t.n {
		return fmt.Errorf("column %s has %d values, table has %d rows", name, len(vals), t.n)
	}
	if t.Has(name) {
		return fmt.Errorf("column %s already set", name)
	}
	t.categorical[name] = vals
	t.order = append(t.order, name)
	return nil
}

func (t *Table) Numeric(name string) ([]float64, bool) {
	vals, ok := t.numeric[name]
	return vals, ok
}

func (t *Table) Categorical(name string) ([]string, bool) {
	vals, ok := t.categorical[name]
	return vals, ok
}

// Drop removes a column. Unknown names are ignored.
func (t *Table) Drop(name string) {
	if !t.Has(name) {
		return
	}
	delete(t.numeric, name)
	delete(t.categorical, name)
	for i, col := range t.order {
		if col == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Reorder rebuilds the column order to exactly match the given list. Every
// listed column must exist; extra existing columns are dropped.
func (t *Table) Reorder(columns []string) error {
	for _, name := range columns {
		if !t.Has(name) {
			return fmt.Errorf("cannot reorder: column %s missing", name)
		}
	}
	keep := make(map[string]bool, len(columns))
	for _, name := range columns {
		keep[name] = true
	}
	for _, name := range t.Columns() {
		if !keep[name] {
			t.Drop(name)
		}
	}
	t.order = append(t.order[:0:0], columns...)
	return nil
}

// CheckFinite returns an error naming the first numeric column holding a
// NaN or infinite value.
func (t *Table) CheckFinite() error {
	for _, name := range t.order {
		vals, ok := t.numeric[name]
		if !ok {
			continue
		}
		for i, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("column %s row %d is not finite (%v)", name, i, v)
			}
		}
	}
	return nil
}

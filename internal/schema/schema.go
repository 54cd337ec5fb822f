// Package schema persists the feature contract of a trained model and
// reconciles freshly computed feature tables against it. Column order is
// part of the serving contract.
package schema

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/features"
	"github.com/PArns/v4.ml.park.fan/internal/metrics"
)

// Columns that may never be defaulted. Their absence is a caller bug, not
// a backward-compatibility case.
var requiredColumns = []string{"park_id", "attraction_id"}

// Column is one persisted feature column with its reconciliation default.
type Column struct {
	Name            string  `json:"name"`
	Categorical     bool    `json:"categorical"`
	Default         float64 `json:"default"`
	DefaultCategory string  `json:"default_category,omitempty"`
}

// ModelFeatureSchema is created once per training run and immutable
// thereafter.
type ModelFeatureSchema struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Columns   []Column  `json:"columns"`
}

// FromTable captures the ordered column list of a training table, pulling
// each column's documented default from the feature registry.
func FromTable(version string, tbl *features.Table, reg *features.Registry) *ModelFeatureSchema {
	s := &ModelFeatureSchema{
		Version:   version,
		CreatedAt: time.Now().UTC(),
	}
	for _, name := range tbl.Columns() {
		col := Column{Name: name, Categorical: tbl.IsCategorical(name)}
		if f, ok := reg.Lookup(name); ok {
			col.Default = f.Default
			col.DefaultCategory = f.DefaultCategory
		}
		if col.Categorical && col.DefaultCategory == "" {
			col.DefaultCategory = "UNKNOWN"
		}
		s.Columns = append(s.Columns, col)
	}
	return s
}

// ColumnNames returns the persisted order.
func (s *ModelFeatureSchema) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// CategoricalNames returns the persisted categorical subset in order.
func (s *ModelFeatureSchema) CategoricalNames() []string {
	var out []string
	for _, c := range s.Columns {
		if c.Categorical {
			out = append(out, c.Name)
		}
	}
	return out
}

// Reconcile reshapes a freshly computed table to exactly this schema:
// extra columns are dropped with a notice, persisted columns missing from
// the table are inserted with their documented default and a warning, and
// the column order is rebuilt to match training. Missing identifier
// columns fail loudly.
func (s *ModelFeatureSchema) Reconcile(tbl *features.Table) error {
	for _, name := range requiredColumns {
		if !tbl.Has(name) {
			return fmt.Errorf("required identifier column %s missing from feature table", name)
		}
	}

	known := make(map[string]bool, len(s.Columns))
	var missing []string
	for _, col := range s.Columns {
		known[col.Name] = true
		if tbl.Has(col.Name) {
			continue
		}
		missing = append(missing, col.Name)
		if col.Categorical {
			vals := make([]string, tbl.Len())
			for i := range vals {
				vals[i] = col.DefaultCategory
			}
			if err := tbl.SetCategorical(col.Name, vals); err != nil {
				return err
			}
		} else {
			vals := make([]float64, tbl.Len())
			for i := range vals {
				vals[i] = col.Default
			}
			if err := tbl.SetNumeric(col.Name, vals); err != nil {
				return err
			}
		}
		metrics.FeatureDefaultsApplied.WithLabelValues(col.Name).Add(float64(tbl.Len()))
	}
	if len(missing) > 0 {
		log.Printf("Warning: schema %s expects columns absent from current computation, using defaults: %v", s.Version, missing)
	}

	for _, name := range tbl.Columns() {
		if !known[name] {
			log.Printf("Dropping column %s not present in schema %s", name, s.Version)
		}
	}

	return tbl.Reorder(s.ColumnNames())
}

// Save writes the schema next to its model artifact.
func (s *ModelFeatureSchema) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write schema %s: %w", path, err)
	}
	return nil
}

// Load reads a persisted schema.
func Load(path string) (*ModelFeatureSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	s := &ModelFeatureSchema{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", path, err)
	}
	if len(s.Columns) == 0 {
		return nil, fmt.Errorf("schema %s has no columns", path)
	}
	return s, nil
}

package features

import (
	"fmt"
	"log"
	"math"
)

// Kind distinguishes numeric from categorical feature columns.
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

// Feature is one declared feature: a name, its upstream dependencies, a
// pure compute function and a default. Each feature is declared exactly
// once; training and inference both go through the same declaration, which
// is what keeps the two code paths from drifting apart.
type Feature struct {
	Name string
	Kind Kind
	Deps []string

	// Default fills non-finite results and schema-reconciliation gaps.
	Default float64
	// DefaultCategory is the categorical counterpart, usually "UNKNOWN".
	DefaultCategory string

	// Exactly one of Compute/ComputeCat is set, matching Kind. The table
	// passed in already holds every dependency column.
	Compute    func(ctx *Context, tbl *Table) ([]float64, error)
	ComputeCat func(ctx *Context, tbl *Table) ([]string, error)
}

// Registry holds feature declarations and computes them in dependency
// order, each exactly once.
type Registry struct {
	features map[string]Feature
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{features: make(map[string]Feature)}
}

func (r *Registry) Register(f Feature) error {
	if f.Name == "" {
		return fmt.Errorf("feature name cannot be empty")
	}
	if _, exists := r.features[f.Name]; exists {
		return fmt.Errorf("feature %s declared twice", f.Name)
	}
	switch f.Kind {
	case Numeric:
		if f.Compute == nil {
			return fmt.Errorf("numeric feature %s has no compute function", f.Name)
		}
	case Categorical:
		if f.ComputeCat == nil {
			return fmt.Errorf("categorical feature %s has no compute function", f.Name)
		}
		if f.DefaultCategory == "" {
			f.DefaultCategory = "UNKNOWN"
		}
	}
	r.features[f.Name] = f
	r.order = append(r.order, f.Name)
	return nil
}

func (r *Registry) MustRegister(f Feature) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

// Names returns all declared feature names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the declaration for a feature name.
func (r *Registry) Lookup(name string) (Feature, bool) {
	f, ok := r.features[name]
	return f, ok
}

// Resolve expands the requested features to include all transitive
// dependencies and returns them in a valid computation order.
func (r *Registry) Resolve(names []string) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(names))
	var ordered []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("feature dependency cycle through %s", name)
		}
		f, ok := r.features[name]
		if !ok {
			return fmt.Errorf("unknown feature %s", name)
		}
		state[name] = visiting
		for _, dep := range f.Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		ordered = append(ordered, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// Compute builds a table holding the requested features (plus their
// dependencies), each computed exactly once. Non-finite numeric results
// are replaced by the feature's default; the returned table is NaN-free.
func (r *Registry) Compute(ctx *Context, names []string) (*Table, error) {
	ordered, err := r.Resolve(names)
	if err != nil {
		return nil, err
	}

	tbl := NewTable(len(ctx.Rows))
	for _, name := range ordered {
		f := r.features[name]
		switch f.Kind {
		case Numeric:
			vals, err := f.Compute(ctx, tbl)
			if err != nil {
				return nil, fmt.Errorf("computing feature %s: %w", name, err)
			}
			defaulted := 0
			for i, v := range vals {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					vals[i] = f.Default
					defaulted++
				}
			}
			if defaulted > 0 {
				log.Printf("Warning: feature %s had %d non-finite values, filled with default %v", name, defaulted, f.Default)
			}
			if err := tbl.SetNumeric(name, vals); err != nil {
				return nil, err
			}
		case Categorical:
			vals, err := f.ComputeCat(ctx, tbl)
			if err != nil {
				return nil, fmt.Errorf("computing feature %s: %w", name, err)
			}
			for i, v := range vals {
				if v == "" {
					vals[i] = f.DefaultCategory
				}
			}
			if err := tbl.SetCategorical(name, vals); err != nil {
				return nil, err
			}
		}
	}

	if err := tbl.CheckFinite(); err != nil {
		return nil, fmt.Errorf("feature table failed finiteness check: %w", err)
	}
	return tbl, nil
}

// Package model defines the regressor boundary and the shared
// current-model reference. The gradient-boosted production model is a
// black box behind the Regressor interface; the baseline regressor keeps
// the pipeline runnable without it.
package model

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/features"
	"github.com/PArns/v4.ml.park.fan/internal/metrics"
	"github.com/PArns/v4.ml.park.fan/internal/schema"
)

// Regressor scores a reconciled feature table, one prediction per row.
type Regressor interface {
	Predict(tbl *features.Table) ([]float64, error)
}

// IntervalRegressor additionally estimates a 90% prediction interval.
// Post-processing derives model confidence from the interval width and
// falls back to time-based confidence when the regressor cannot provide
// intervals.
type IntervalRegressor interface {
	Regressor
	PredictInterval(tbl *features.Table) (lower, upper []float64, err error)
}

// Artifact bundles everything one training run produced.
type Artifact struct {
	Regressor Regressor
	Schema    *schema.ModelFeatureSchema
	Version   string
	TrainedAt time.Time
}

// Manager holds the shared current-model reference. The artifact is
// swapped, never mutated in place, so in-flight predictions keep the
// model they started with.
type Manager struct {
	current atomic.Pointer[Artifact]
}

func NewManager() *Manager {
	return &Manager{}
}

// Current returns the active artifact, or an error before the first swap.
func (m *Manager) Current() (*Artifact, error) {
	a := m.current.Load()
	if a == nil {
		return nil, fmt.Errorf("no model loaded")
	}
	return a, nil
}

// Swap atomically publishes a new artifact.
func (m *Manager) Swap(a *Artifact) {
	m.current.Store(a)
	metrics.ModelSwapsTotal.Inc()
	log.Printf("Model swapped to %s (trained %s, %d features)",
		a.Version, a.TrainedAt.Format(time.RFC3339), len(a.Schema.Columns))
}

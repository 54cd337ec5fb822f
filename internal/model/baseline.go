package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/stat"

	"github.com/PArns/v4.ml.park.fan/internal/features"
)

// Baseline is a deliberately simple blended-history regressor: a weighted
// mix of the trailing 1h mean, yesterday's lag and last week's lag, with
// the training-set mean as the last resort. It satisfies the same
// interface as the production model and makes the full pipeline runnable
// and testable without it.
type Baseline struct {
	WeightLastHour  float64 `json:"weight_last_hour"`
	WeightYesterday float64 `json:"weight_yesterday"`
	WeightLastWeek  float64 `json:"weight_last_week"`
	GlobalMean      float64 `json:"global_mean"`
	ResidualStd     float64 `json:"residual_std"`
}

func NewBaseline() *Baseline {
	return &Baseline{
		WeightLastHour:  0.5,
		WeightYesterday: 0.3,
		WeightLastWeek:  0.2,
	}
}

// Fit records the training-set mean and the residual spread of the blend,
// which later feeds interval estimation.
func (b *Baseline) Fit(tbl *features.Table, target []float64) error {
	if tbl.Len() != len(target) {
		return fmt.Errorf("table has %d rows, target has %d", tbl.Len(), len(target))
	}
	if len(target) == 0 {
		return fmt.Errorf("cannot fit on an empty table")
	}
	b.GlobalMean = stat.Mean(target, nil)

	preds, err := b.Predict(tbl)
	if err != nil {
		return err
	}
	residuals := make([]float64, len(target))
	for i := range target {
		residuals[i] = target[i] - preds[i]
	}
	if len(residuals) > 1 {
		b.ResidualStd = stat.StdDev(residuals, nil)
	}
	return nil
}

func (b *Baseline) Predict(tbl *features.Table) ([]float64, error) {
	lastHour, ok := tbl.Numeric("avg_wait_last_1h")
	if !ok {
		return nil, fmt.Errorf("column avg_wait_last_1h missing")
	}
	yesterday, ok := tbl.Numeric("wait_same_hour_yesterday")
	if !ok {
		return nil, fmt.Errorf("column wait_same_hour_yesterday missing")
	}
	lastWeek, ok := tbl.Numeric("wait_same_hour_last_week")
	if !ok {
		return nil, fmt.Errorf("column wait_same_hour_last_week missing")
	}

	out := make([]float64, tbl.Len())
	for i := range out {
		v := b.WeightLastHour*lastHour[i] + b.WeightYesterday*yesterday[i] + b.WeightLastWeek*lastWeek[i]
		if v <= 0 {
			v = b.GlobalMean
		}
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		out[i] = v
	}
	return out, nil
}

// PredictInterval derives a symmetric 90% interval from the fitted
// residual spread.
func (b *Baseline) PredictInterval(tbl *features.Table) ([]float64, []float64, error) {
	preds, err := b.Predict(tbl)
	if err != nil {
		return nil, nil, err
	}
	const z90 = 1.645
	lower := make([]float64, len(preds))
	upper := make([]float64, len(preds))
	for i, p := range preds {
		half := z90 * b.ResidualStd
		lo := p - half
		if lo < 0 {
			lo = 0
		}
		lower[i] = lo
		upper[i] = p + half
	}
	return lower, upper, nil
}

// Save persists the fitted parameters.
func (b *Baseline) Save(path string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal baseline model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write baseline model %s: %w", path, err)
	}
	return nil
}

// LoadBaseline restores a fitted baseline regressor.
func LoadBaseline(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline model %s: %w", path, err)
	}
	b := &Baseline{}
	if err := json.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("failed to parse baseline model %s: %w", path, err)
	}
	return b, nil
}

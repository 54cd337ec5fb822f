package features

import (
	"math"
	"testing"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/models"
)

var seriesBase = time.Date(2025, time.July, 1, 8, 0, 0, 0, time.UTC)

func histObs(id string, offset time.Duration, wait float64) models.Observation {
	return models.Observation{
		ParkID:       "park-1",
		AttractionID: id,
		Timestamp:    seriesBase.Add(offset),
		WaitMinutes:  wait,
	}
}

// The anti-leakage contract: no trailing aggregate may see the value at
// its own timestamp.
func TestWindowsExcludeObservationAtT(t *testing.T) {
	obs := []models.Observation{
		histObs("a", -50*time.Minute, 10),
		histObs("a", -30*time.Minute, 20),
		histObs("a", -10*time.Minute, 30),
		histObs("a", 0, 500), // the spike at t itself
	}
	h := NewHistoryIndex(obs)
	s := h.Entity("a")

	tests := []struct {
		name   string
		window time.Duration
	}{
		{"1h window", time.Hour},
		{"24h window", 24 * time.Hour},
		{"7d window", 7 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mean, ok := s.MeanBetween(seriesBase.Add(-tt.window), seriesBase)
			if !ok {
				t.Fatalf("expected a defined mean")
			}
			if mean != 20 {
				t.Errorf("mean = %v, want 20 (spike at t must be excluded)", mean)
			}
		})
	}

	if vals := s.TrailingValues(seriesBase, 168); len(vals) != 3 {
		t.Errorf("trailing values include observation at t: %v", vals)
	}
}

func TestLagNearestTolerance(t *testing.T) {
	obs := []models.Observation{
		histObs("a", -24*time.Hour-10*time.Minute, 42),
	}
	s := NewHistoryIndex(obs).Entity("a")

	tests := []struct {
		name   string
		target time.Duration
		tol    time.Duration
		want   float64
		wantOK bool
	}{
		{"within tolerance", -24 * time.Hour, 15 * time.Minute, 42, true},
		{"outside tolerance", -24 * time.Hour, 5 * time.Minute, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.LagNearest(seriesBase.Add(tt.target), tt.tol)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("LagNearest = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTrendSlope(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"rising series", []float64{0, 1, 2, 3, 4}, 1},
		{"flat series", []float64{5, 5, 5, 5}, 0},
		{"single point", []float64{7}, 0},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trendSlope(tt.values)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("trendSlope = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolatilityCap(t *testing.T) {
	// A wildly swinging series whose stddev far exceeds the cap.
	values := []float64{0, 400, 0, 400, 0, 400}
	got := dampenedVolatility(values, 40)
	if limit := math.Log1p(40); math.Abs(got-limit) > 1e-9 {
		t.Errorf("volatility = %v, want capped at %v", got, limit)
	}

	// A calm series stays below the cap.
	calm := dampenedVolatility([]float64{10, 12, 11, 13}, 40)
	if calm >= math.Log1p(40) {
		t.Errorf("calm series hit the cap: %v", calm)
	}
}

func TestMeanFirstDiff(t *testing.T) {
	if got := meanFirstDiff([]float64{10, 14, 18}); got != 4 {
		t.Errorf("meanFirstDiff = %v, want 4", got)
	}
	if got := meanFirstDiff([]float64{10}); got != 0 {
		t.Errorf("single value should yield 0, got %v", got)
	}
}

func TestUnknownEntityIsSafe(t *testing.T) {
	h := NewHistoryIndex(nil)
	s := h.Entity("missing")

	if _, ok := s.MeanBetween(seriesBase.Add(-time.Hour), seriesBase); ok {
		t.Errorf("mean over empty series must be undefined")
	}
	if _, ok := s.LagNearest(seriesBase, time.Minute); ok {
		t.Errorf("lag over empty series must be undefined")
	}
	if vals := s.TrailingValues(seriesBase, 10); vals != nil {
		t.Errorf("trailing values over empty series must be nil")
	}
}

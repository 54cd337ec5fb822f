package features

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// Series is one entity's time-ordered wait history. Prefix sums make
// trailing-window means O(log n) per lookup.
type Series struct {
	ts     []int64 // unix seconds, ascending
	wait   []float64
	prefix []float64 // prefix[i] = sum of wait[0:i]
}

// HistoryIndex holds per-entity series plus per-park pooled series used
// for occupancy reconstruction.
type HistoryIndex struct {
	entities map[string]*Series
	parks    map[string]*Series
}

// NewHistoryIndex builds sorted per-entity and per-park series from
// cleaned observations.
func NewHistoryIndex(obs []models.Observation) *HistoryIndex {
	type bucket struct {
		ts   []int64
		wait []float64
	}
	entities := make(map[string]*bucket)
	parks := make(map[string]*bucket)

	add := func(m map[string]*bucket, key string, o models.Observation) {
		b := m[key]
		if b == nil {
			b = &bucket{}
			m[key] = b
		}
		b.ts = append(b.ts, o.Timestamp.Unix())
		b.wait = append(b.wait, o.WaitMinutes)
	}
	for _, o := range obs {
		add(entities, o.AttractionID, o)
		add(parks, o.ParkID, o)
	}

	build := func(m map[string]*bucket) map[string]*Series {
		out := make(map[string]*Series, len(m))
		for key, b := range m {
			idx := make([]int, len(b.ts))
			for i := range idx {
				idx[i] = i
			}
			sort.Slice(idx, func(a, c int) bool { return b.ts[idx[a]] < b.ts[idx[c]] })

			s := &Series{
				ts:     make([]int64, len(idx)),
				wait:   make([]float64, len(idx)),
				prefix: make([]float64, len(idx)+1),
			}
			for i, j := range idx {
				s.ts[i] = b.ts[j]
				s.wait[i] = b.wait[j]
				s.prefix[i+1] = s.prefix[i] + b.wait[j]
			}
			out[key] = s
		}
		return out
	}

	return &HistoryIndex{entities: build(entities), parks: build(parks)}
}

// Entity returns the series for one attraction, nil if unknown.
func (h *HistoryIndex) Entity(id string) *Series {
	if h == nil {
		return nil
	}
	return h.entities[id]
}

// Park returns the pooled series for one park, nil if unknown.
func (h *HistoryIndex) Park(id string) *Series {
	if h == nil {
		return nil
	}
	return h.parks[id]
}

// EntityMedians returns each entity's median wait, the per-entity baseline
// used for crowd-level classification.
func (h *HistoryIndex) EntityMedians() map[string]float64 {
	if h == nil {
		return nil
	}
	out := make(map[string]float64, len(h.entities))
	for id, s := range h.entities {
		if m, ok := s.Median(); ok {
			out[id] = m
		}
	}
	return out
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ts)
}

// searchFrom returns the first index with ts >= t.
func (s *Series) searchFrom(t int64) int {
	return sort.Search(len(s.ts), func(i int) bool { return s.ts[i] >= t })
}

// MeanBetween computes the mean wait over the left-closed window
// [from, to). The observation at `to` itself is never included; that is
// the anti-leakage contract every trailing aggregate relies on.
func (s *Series) MeanBetween(from, to time.Time) (float64, bool) {
	if s == nil || len(s.ts) == 0 {
		return 0, false
	}
	lo := s.searchFrom(from.Unix())
	hi := s.searchFrom(to.Unix())
	if hi <= lo {
		return 0, false
	}
	return (s.prefix[hi] - s.prefix[lo]) / float64(hi-lo), true
}

// LagNearest finds the wait value closest to target within tolerance.
func (s *Series) LagNearest(target time.Time, tol time.Duration) (float64, bool) {
	if s == nil || len(s.ts) == 0 {
		return 0, false
	}
	t := target.Unix()
	i := s.searchFrom(t)

	best := -1
	var bestDist int64
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(s.ts) {
			continue
		}
		d := s.ts[j] - t
		if d < 0 {
			d = -d
		}
		if best == -1 || d < bestDist {
			best, bestDist = j, d
		}
	}
	if best == -1 || bestDist > int64(tol.Seconds()) {
		return 0, false
	}
	return s.wait[best], true
}

// TrailingValues returns up to maxSamples wait values strictly before t,
// oldest first. A maxSamples of 0 means no sample cap.
func (s *Series) TrailingValues(t time.Time, maxSamples int) []float64 {
	if s == nil || len(s.ts) == 0 {
		return nil
	}
	hi := s.searchFrom(t.Unix())
	lo := 0
	if maxSamples > 0 && hi-lo > maxSamples {
		lo = hi - maxSamples
	}
	if hi <= lo {
		return nil
	}
	return s.wait[lo:hi]
}

// TrailingWindowValues returns the wait values in [t-window, t), oldest
// first.
func (s *Series) TrailingWindowValues(t time.Time, window time.Duration) []float64 {
	if s == nil || len(s.ts) == 0 {
		return nil
	}
	lo := s.searchFrom(t.Add(-window).Unix())
	hi := s.searchFrom(t.Unix())
	if hi <= lo {
		return nil
	}
	return s.wait[lo:hi]
}

// Mean over the whole series.
func (s *Series) Mean() (float64, bool) {
	if s == nil || len(s.ts) == 0 {
		return 0, false
	}
	return s.prefix[len(s.ts)] / float64(len(s.ts)), true
}

// Median over the whole series. Used as the occupancy baseline.
func (s *Series) Median() (float64, bool) {
	if s == nil || len(s.ts) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(s.wait))
	copy(sorted, s.wait)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil), true
}

// trendSlope fits wait against sample index over the trailing window and
// returns the regression slope. Needs at least two points.
func trendSlope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, values, nil, false)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0
	}
	return slope
}

// dampenedVolatility converts a raw stddev into log1p space and caps it so
// extreme volatility cannot dominate occupancy and time signals.
func dampenedVolatility(values []float64, capMinutes float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sd := stat.StdDev(values, nil)
	if math.IsNaN(sd) {
		return 0
	}
	v := math.Log1p(sd)
	if limit := math.Log1p(capMinutes); v > limit {
		v = limit
	}
	return v
}

// meanFirstDiff is the average step-to-step change over a short window.
func meanFirstDiff(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(values); i++ {
		sum += values[i] - values[i-1]
	}
	return sum / float64(len(values)-1)
}

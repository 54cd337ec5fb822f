package features

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// Neutral weather defaults, used when no observation is near enough.
const (
	defaultTemperature = 20.0
	rainThresholdMM    = 0.5
)

type weatherSeries struct {
	ts   []int64
	rows []models.WeatherObservation
}

// WeatherIndex holds per-park hourly weather series plus per-(park, month)
// temperature means for deviation features.
type WeatherIndex struct {
	parks        map[string]*weatherSeries
	monthlyTemps map[string][13]float64
	monthlyOK    map[string][13]bool
}

func NewWeatherIndex(rows []models.WeatherObservation) *WeatherIndex {
	ix := &WeatherIndex{
		parks:        make(map[string]*weatherSeries),
		monthlyTemps: make(map[string][13]float64),
		monthlyOK:    make(map[string][13]bool),
	}
	byPark := make(map[string][]models.WeatherObservation)
	for _, r := range rows {
		byPark[r.ParkID] = append(byPark[r.ParkID], r)
	}
	for park, list := range byPark {
		sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
		s := &weatherSeries{ts: make([]int64, len(list)), rows: list}
		for i, r := range list {
			s.ts[i] = r.Timestamp.Unix()
		}
		ix.parks[park] = s

		var sums, counts [13]float64
		for _, r := range list {
			m := int(r.Timestamp.Month())
			sums[m] += r.Temperature
			counts[m]++
		}
		var means [13]float64
		var ok [13]bool
		for m := 1; m <= 12; m++ {
			if counts[m] > 0 {
				means[m] = sums[m] / counts[m]
				ok[m] = true
			}
		}
		ix.monthlyTemps[park] = means
		ix.monthlyOK[park] = ok
	}
	return ix
}

func (ix *WeatherIndex) series(parkID string) *weatherSeries {
	if ix == nil {
		return nil
	}
	return ix.parks[parkID]
}

// At returns the weather observation nearest to t within tolerance.
func (ix *WeatherIndex) At(parkID string, t time.Time, tol time.Duration) (models.WeatherObservation, bool) {
	s := ix.series(parkID)
	if s == nil || len(s.ts) == 0 {
		return models.WeatherObservation{}, false
	}
	target := t.Unix()
	i := sort.Search(len(s.ts), func(j int) bool { return s.ts[j] >= target })

	best := -1
	var bestDist int64
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(s.ts) {
			continue
		}
		d := s.ts[j] - target
		if d < 0 {
			d = -d
		}
		if best == -1 || d < bestDist {
			best, bestDist = j, d
		}
	}
	if best == -1 || bestDist > int64(tol.Seconds()) {
		return models.WeatherObservation{}, false
	}
	return s.rows[best], true
}

// PrecipitationSum totals precipitation over the left-closed window
// [t-window, t).
func (ix *WeatherIndex) PrecipitationSum(parkID string, t time.Time, window time.Duration) float64 {
	s := ix.series(parkID)
	if s == nil {
		return 0
	}
	lo := sort.Search(len(s.ts), func(j int) bool { return s.ts[j] >= t.Add(-window).Unix() })
	hi := sort.Search(len(s.ts), func(j int) bool { return s.ts[j] >= t.Unix() })
	sum := 0.0
	for j := lo; j < hi; j++ {
		sum += s.rows[j].Precipitation
	}
	return sum
}

// MonthlyMeanTemperature returns the park's average temperature for the
// month, ok=false when no samples exist for it.
func (ix *WeatherIndex) MonthlyMeanTemperature(parkID string, month time.Month) (float64, bool) {
	if ix == nil {
		return 0, false
	}
	ok := ix.monthlyOK[parkID]
	if !ok[int(month)] {
		return 0, false
	}
	return ix.monthlyTemps[parkID][int(month)], true
}

// minExtremeSamples is seven days of hourly data; below that the rolling
// P90 is too unstable to call anything extreme.
const minExtremeSamples = 7 * 24

// IsExtreme reports whether the value at t exceeds the P90 of the trailing
// 14 days of the selected measure.
func (ix *WeatherIndex) IsExtreme(parkID string, t time.Time, measure func(models.WeatherObservation) float64) bool {
	s := ix.series(parkID)
	if s == nil {
		return false
	}
	cur, ok := ix.At(parkID, t, time.Hour)
	if !ok {
		return false
	}

	lo := sort.Search(len(s.ts), func(j int) bool { return s.ts[j] >= t.AddDate(0, 0, -14).Unix() })
	hi := sort.Search(len(s.ts), func(j int) bool { return s.ts[j] >= t.Unix() })
	if hi-lo < minExtremeSamples {
		return false
	}
	window := make([]float64, 0, hi-lo)
	for j := lo; j < hi; j++ {
		window = append(window, measure(s.rows[j]))
	}
	sort.Float64s(window)
	p90 := stat.Quantile(0.90, stat.Empirical, window, nil)
	return measure(cur) > p90
}

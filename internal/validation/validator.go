package validation

import (
	"log"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/PArns/v4.ml.park.fan/internal/metrics"
	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// Step names used in reports and metrics.
const (
	StepRange      = "range"
	StepOutlier    = "outlier"
	StepDedupe     = "dedupe"
	StepDowntime   = "downtime"
	StepMinSamples = "min_samples"
)

// Steps toggles individual cleaning passes. Order of application is fixed;
// the flags only decide whether a pass runs.
type Steps struct {
	Range      bool
	Outlier    bool
	Dedupe     bool
	Downtime   bool
	MinSamples bool
}

// AllSteps enables every cleaning pass.
func AllSteps() Steps {
	return Steps{Range: true, Outlier: true, Dedupe: true, Downtime: true, MinSamples: true}
}

// WaitStats summarizes the wait-value distribution of the cleaned batch.
type WaitStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Report describes what one validation run did. It is advisory and never
// blocks downstream processing.
type Report struct {
	RowsIn              int            `json:"rows_in"`
	RowsOut             int            `json:"rows_out"`
	RemovedPct          float64        `json:"removed_pct"`
	RemovedByStep       map[string]int `json:"removed_by_step"`
	EntitiesIn          int            `json:"entities_in"`
	EntitiesOut         int            `json:"entities_out"`
	BackwardJumps       int            `json:"backward_jumps"`
	MinSamplesThreshold int            `json:"min_samples_threshold"`
	WaitStats           WaitStats      `json:"wait_stats"`
}

// Validator cleans raw observation batches. Data-quality findings go into
// the report; the batch always continues with whatever rows survive.
type Validator struct {
	maxWait      float64
	iqrFactor    float64
	outlierFloor float64
	steps        Steps
}

// Options configures a Validator. Zero values fall back to defaults that
// match the production cleaning thresholds.
type Options struct {
	MaxWaitMinutes   float64
	OutlierIQRFactor float64
	OutlierFloorWait float64
	Steps            Steps
}

func New(opts Options) *Validator {
	v := &Validator{
		maxWait:      opts.MaxWaitMinutes,
		iqrFactor:    opts.OutlierIQRFactor,
		outlierFloor: opts.OutlierFloorWait,
		steps:        opts.Steps,
	}
	if v.maxWait <= 0 {
		v.maxWait = 600
	}
	if v.iqrFactor <= 0 {
		v.iqrFactor = 3.0
	}
	if v.outlierFloor <= 0 {
		v.outlierFloor = 200
	}
	return v
}

// Clean runs the enabled passes in order and returns the surviving rows
// sorted by (entity, timestamp) together with a report.
func (v *Validator) Clean(obs []models.Observation) ([]models.Observation, Report) {
	report := Report{
		RowsIn:        len(obs),
		RemovedByStep: make(map[string]int),
		EntitiesIn:    countEntities(obs),
	}
	metrics.RowsValidated.Add(float64(len(obs)))

	rows := make([]models.Observation, len(obs))
	copy(rows, obs)

	if v.steps.Range {
		rows = v.dropOutOfRange(rows, &report)
	}
	if v.steps.Outlier {
		rows = v.dropStatisticalOutliers(rows, &report)
	}
	if v.steps.Dedupe {
		rows = dropDuplicates(rows, &report)
	}
	if v.steps.Downtime {
		rows = dropDowntimeAnomalies(rows, &report)
	}
	if v.steps.MinSamples {
		rows = v.dropSparseEntities(rows, &report)
	}

	report.BackwardJumps = countBackwardJumps(rows)
	sortByEntityTime(rows)

	report.RowsOut = len(rows)
	report.EntitiesOut = countEntities(rows)
	if report.RowsIn > 0 {
		report.RemovedPct = 100 * float64(report.RowsIn-report.RowsOut) / float64(report.RowsIn)
	}
	report.WaitStats = computeWaitStats(rows)

	for step, n := range report.RemovedByStep {
		metrics.RowsDropped.WithLabelValues(step).Add(float64(n))
	}
	log.Printf("Validation: %d -> %d rows (%.1f%% removed), %d -> %d entities, threshold=%d",
		report.RowsIn, report.RowsOut, report.RemovedPct,
		report.EntitiesIn, report.EntitiesOut, report.MinSamplesThreshold)

	return rows, report
}

// dropOutOfRange removes negative waits and sensor-error values above the
// fixed ceiling.
func (v *Validator) dropOutOfRange(rows []models.Observation, report *Report) []models.Observation {
	kept := rows[:0]
	for _, r := range rows {
		if r.WaitMinutes < 0 || r.WaitMinutes > v.maxWait {
			report.RemovedByStep[StepRange]++
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// dropStatisticalOutliers flags per-entity values beyond Q3 + factor*IQR.
// The absolute floor keeps low-traffic entities, whose IQR is near zero,
// from being decimated.
func (v *Validator) dropStatisticalOutliers(rows []models.Observation, report *Report) []models.Observation {
	byEntity := make(map[string][]float64)
	for _, r := range rows {
		byEntity[r.AttractionID] = append(byEntity[r.AttractionID], r.WaitMinutes)
	}

	limits := make(map[string]float64, len(byEntity))
	for id, waits := range byEntity {
		if len(waits) < 10 {
			continue
		}
		sort.Float64s(waits)
		q1 := stat.Quantile(0.25, stat.Empirical, waits, nil)
		q3 := stat.Quantile(0.75, stat.Empirical, waits, nil)
		limits[id] = q3 + v.iqrFactor*(q3-q1)
	}

	kept := rows[:0]
	for _, r := range rows {
		if limit, ok := limits[r.AttractionID]; ok && r.WaitMinutes > limit && r.WaitMinutes > v.outlierFloor {
			report.RemovedByStep[StepOutlier]++
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// dropDuplicates removes repeated (entity, timestamp) rows, keeping the
// first occurrence.
func dropDuplicates(rows []models.Observation, report *Report) []models.Observation {
	type key struct {
		id string
		ts int64
	}
	seen := make(map[key]bool, len(rows))
	kept := rows[:0]
	for _, r := range rows {
		k := key{id: r.AttractionID, ts: r.Timestamp.UnixNano()}
		if seen[k] {
			report.RemovedByStep[StepDedupe]++
			continue
		}
		seen[k] = true
		kept = append(kept, r)
	}
	return kept
}

// dropDowntimeAnomalies removes sudden unrepresentative drops: rows whose
// wait is under 10 minutes while the centered 7-sample rolling median of
// the entity's series exceeds 25 minutes.
func dropDowntimeAnomalies(rows []models.Observation, report *Report) []models.Observation {
	byEntity := make(map[string][]int)
	for i, r := range rows {
		byEntity[r.AttractionID] = append(byEntity[r.AttractionID], i)
	}

	drop := make(map[int]bool)
	window := make([]float64, 0, 7)
	for _, idxs := range byEntity {
		sort.Slice(idxs, func(a, b int) bool {
			return rows[idxs[a]].Timestamp.Before(rows[idxs[b]].Timestamp)
		})
		for pos, idx := range idxs {
			wait := rows[idx].WaitMinutes
			if wait >= 10 {
				continue
			}
			window = window[:0]
			for j := pos - 3; j <= pos+3; j++ {
				if j < 0 || j >= len(idxs) {
					continue
				}
				window = append(window, rows[idxs[j]].WaitMinutes)
			}
			sort.Float64s(window)
			if stat.Quantile(0.5, stat.Empirical, window, nil) > 25 {
				drop[idx] = true
			}
		}
	}

	if len(drop) == 0 {
		return rows
	}
	kept := rows[:0]
	for i, r := range rows {
		if drop[i] {
			report.RemovedByStep[StepDowntime]++
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// dropSparseEntities removes entities with fewer samples than an adaptive
// threshold. The base threshold scales with the calendar span covered and
// is lowered during low-activity periods so off-season batches do not
// discard most of the catalog.
func (v *Validator) dropSparseEntities(rows []models.Observation, report *Report) []models.Observation {
	if len(rows) == 0 {
		return rows
	}

	counts := make(map[string]int)
	minTs, maxTs := rows[0].Timestamp, rows[0].Timestamp
	for _, r := range rows {
		counts[r.AttractionID]++
		if r.Timestamp.Before(minTs) {
			minTs = r.Timestamp
		}
		if r.Timestamp.After(maxTs) {
			maxTs = r.Timestamp
		}
	}

	spanDays := maxTs.Sub(minTs).Hours() / 24
	base := 50
	switch {
	case spanDays < 30:
		base = 10
	case spanDays < 60:
		base = 15
	case spanDays < 90:
		base = 20
	}

	countVals := make([]float64, 0, len(counts))
	for _, c := range counts {
		countVals = append(countVals, float64(c))
	}
	sort.Float64s(countVals)
	median := stat.Quantile(0.5, stat.Empirical, countVals, nil)
	threshold := base
	if median < 1.5*float64(base) {
		q25 := stat.Quantile(0.25, stat.Empirical, countVals, nil)
		lowered := int(q25 * 1.2)
		if lowered < 10 {
			lowered = 10
		}
		if lowered < threshold {
			threshold = lowered
		}
	}
	report.MinSamplesThreshold = threshold

	kept := rows[:0]
	for _, r := range rows {
		if counts[r.AttractionID] < threshold {
			report.RemovedByStep[StepMinSamples]++
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// countBackwardJumps reports per-entity timestamp regressions in the
// incoming order. Post-sort there should be none; a non-zero count is a
// data-quality signal, not an error.
func countBackwardJumps(rows []models.Observation) int {
	last := make(map[string]time.Time)
	jumps := 0
	for _, r := range rows {
		if prev, ok := last[r.AttractionID]; ok && r.Timestamp.Before(prev) {
			jumps++
		}
		last[r.AttractionID] = r.Timestamp
	}
	return jumps
}

func sortByEntityTime(rows []models.Observation) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].AttractionID != rows[j].AttractionID {
			return rows[i].AttractionID < rows[j].AttractionID
		}
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
}

func countEntities(rows []models.Observation) int {
	seen := make(map[string]bool)
	for _, r := range rows {
		seen[r.AttractionID] = true
	}
	return len(seen)
}

func computeWaitStats(rows []models.Observation) WaitStats {
	if len(rows) == 0 {
		return WaitStats{}
	}
	waits := make([]float64, len(rows))
	for i, r := range rows {
		waits[i] = r.WaitMinutes
	}
	sorted := make([]float64, len(waits))
	copy(sorted, waits)
	sort.Float64s(sorted)

	ws := WaitStats{
		Mean:   stat.Mean(waits, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
	if len(waits) > 1 {
		ws.Std = stat.StdDev(waits, nil)
	}
	return ws
}

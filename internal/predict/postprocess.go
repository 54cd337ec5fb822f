// Package predict turns raw regressor output into finished, filtered
// forecast points.
package predict

import (
	"math"
	"sort"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/metrics"
	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// Point is one raw forecast point before post-processing.
type Point struct {
	EntityID string
	ParkID   string
	UTC      time.Time
	Local    time.Time

	Raw         float64
	Lower       float64
	Upper       float64
	HasInterval bool

	// Closed is set when the schedule resolver marked this point closed
	// (maintenance override, closed day).
	Closed bool
}

// PostProcessor finalizes raw points: clipping, rounding, confidence,
// crowd level, trend label and the closed override.
type PostProcessor struct {
	Horizon  string
	BaseTime time.Time

	// Baselines maps entity id to its median wait; missing entities get a
	// neutral moderate classification.
	Baselines map[string]float64

	// CurrentWait optionally supplies the live actual per entity; trend
	// labels prefer it over the previous forecast point.
	CurrentWait map[string]float64
}

// Process finalizes the points, grouped per entity in timestamp order.
func (p *PostProcessor) Process(points []Point) []models.Prediction {
	byEntity := make(map[string][]Point)
	var order []string
	for _, pt := range points {
		if _, seen := byEntity[pt.EntityID]; !seen {
			order = append(order, pt.EntityID)
		}
		byEntity[pt.EntityID] = append(byEntity[pt.EntityID], pt)
	}

	out := make([]models.Prediction, 0, len(points))
	for _, entityID := range order {
		pts := byEntity[entityID]
		sort.Slice(pts, func(i, j int) bool { return pts[i].UTC.Before(pts[j].UTC) })

		prev := math.NaN()
		if cur, ok := p.CurrentWait[entityID]; ok {
			prev = cur
		}
		for _, pt := range pts {
			pred := p.finalize(pt, prev)
			out = append(out, pred)
			if !pt.Closed {
				prev = float64(pred.WaitMinutes)
			}
		}
	}
	metrics.PredictionsGenerated.WithLabelValues(p.Horizon).Add(float64(len(out)))
	return out
}

func (p *PostProcessor) finalize(pt Point, prev float64) models.Prediction {
	pred := models.Prediction{
		ParkID:       pt.ParkID,
		AttractionID: pt.EntityID,
		Horizon:      p.Horizon,
		Timestamp:    pt.UTC,
	}

	if pt.Closed {
		pred.WaitMinutes = 0
		pred.Confidence = 100
		pred.CrowdLevel = "closed"
		pred.Trend = "stable"
		return pred
	}

	raw := pt.Raw
	if raw < 0 {
		raw = 0
	}
	pred.WaitMinutes = RoundToNearest5(raw)

	timeConf := p.timeConfidence(pt.UTC)
	modelConf := timeConf
	if pt.HasInterval {
		modelConf = intervalConfidence(raw, pt.Lower, pt.Upper, timeConf)
	}
	pred.Confidence = int(math.Round(0.6*timeConf + 0.4*modelConf))

	pred.CrowdLevel = crowdLevel(raw, p.Baselines[pt.EntityID])
	pred.Trend = trendLabel(float64(pred.WaitMinutes), prev)
	return pred
}

// RoundToNearest5 snaps a wait to 5-minute increments; anything under 2.5
// collapses to 0.
func RoundToNearest5(v float64) int {
	if v < 2.5 {
		return 0
	}
	return int(math.Floor((v+2.5)/5)) * 5
}

// timeConfidence decays linearly with forecast distance, steeper for
// hourly than daily predictions, floored at a minimum.
func (p *PostProcessor) timeConfidence(ts time.Time) float64 {
	base := p.BaseTime
	if base.IsZero() {
		base = time.Now().UTC()
	}
	if p.Horizon == models.HorizonDaily {
		daysAhead := ts.Sub(base).Hours() / 24
		if daysAhead < 0 {
			daysAhead = 0
		}
		return math.Max(30, 85-0.15*daysAhead)
	}
	hoursAhead := ts.Sub(base).Hours()
	if hoursAhead < 0 {
		hoursAhead = 0
	}
	return math.Max(50, 95-2*hoursAhead)
}

// intervalConfidence maps the relative width of a 90% interval to a
// confidence score; a degenerate point falls back to time confidence.
func intervalConfidence(point, lower, upper, fallback float64) float64 {
	if point <= 0 || upper < lower {
		return fallback
	}
	relUnc := (upper - lower) / point
	if relUnc > 1 {
		relUnc = 1
	}
	return math.Max(30, 100*(1-relUnc))
}

// crowdLevel classifies the predicted/baseline ratio in percent.
func crowdLevel(predicted, baseline float64) string {
	if baseline <= 0 {
		return "moderate"
	}
	ratio := predicted / baseline * 100
	switch {
	case ratio <= 50:
		return "very_low"
	case ratio <= 79:
		return "low"
	case ratio <= 120:
		return "moderate"
	case ratio <= 170:
		return "high"
	case ratio <= 250:
		return "very_high"
	default:
		return "extreme"
	}
}

// trendLabel compares a point against its reference with a ±5 minute
// deadband.
func trendLabel(predicted, reference float64) string {
	if math.IsNaN(reference) {
		return "stable"
	}
	switch diff := predicted - reference; {
	case diff > 5:
		return "increasing"
	case diff < -5:
		return "decreasing"
	default:
		return "stable"
	}
}

package predict

import (
	"github.com/PArns/v4.ml.park.fan/internal/calendar"
	"github.com/PArns/v4.ml.park.fan/internal/features"
	"github.com/PArns/v4.ml.park.fan/internal/metrics"
	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// FilterBySchedule drops forecast points the park calendar rules out, in
// each park's local timezone. Hourly horizons lose points at or after that
// day's closing time; daily horizons lose whole non-operating days. Parks
// without any schedule data keep all points (fail-open).
func FilterBySchedule(preds []models.Prediction, sched *features.ScheduleIndex, loc *calendar.Localizer, horizon string) []models.Prediction {
	if sched == nil {
		return preds
	}

	kept := make([]models.Prediction, 0, len(preds))
	for _, pred := range preds {
		if !sched.HasPark(pred.ParkID) {
			kept = append(kept, pred)
			continue
		}
		local := loc.Localize(pred.ParkID, pred.Timestamp)

		if horizon == models.HorizonDaily {
			if !sched.IsOperatingDay(pred.ParkID, local) {
				metrics.PredictionsFiltered.WithLabelValues(horizon, "non_operating_day").Inc()
				continue
			}
			kept = append(kept, pred)
			continue
		}

		_, closing, ok := sched.OperatingWindow(pred.ParkID, local)
		if ok && !local.Before(closing.In(local.Location())) {
			metrics.PredictionsFiltered.WithLabelValues(horizon, "after_closing").Inc()
			continue
		}
		kept = append(kept, pred)
	}
	return kept
}

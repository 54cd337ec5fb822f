package predict

import (
	"testing"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/calendar"
	"github.com/PArns/v4.ml.park.fan/internal/features"
	"github.com/PArns/v4.ml.park.fan/internal/models"
)

func filterFixture() (*features.ScheduleIndex, *calendar.Localizer) {
	day := time.Date(2025, time.July, 10, 0, 0, 0, 0, time.UTC)
	sched := features.NewScheduleIndex([]models.ScheduleEntry{
		{
			ParkID:      "p1",
			Date:        day,
			Type:        models.ScheduleOperating,
			OpeningTime: time.Date(2025, time.July, 10, 9, 0, 0, 0, time.UTC),
			ClosingTime: time.Date(2025, time.July, 10, 18, 0, 0, 0, time.UTC),
		},
	})
	loc := calendar.NewLocalizer([]models.Park{
		{ID: "p1", Country: "DE", Timezone: "UTC"},
		{ID: "p2", Country: "DE", Timezone: "UTC"},
	})
	return sched, loc
}

func hourlyPred(park string, hour int) models.Prediction {
	return models.Prediction{
		ParkID:       park,
		AttractionID: "a1",
		Horizon:      models.HorizonHourly,
		Timestamp:    time.Date(2025, time.July, 10, hour, 0, 0, 0, time.UTC),
	}
}

func TestHourlyFilterDropsAfterClosing(t *testing.T) {
	sched, loc := filterFixture()
	preds := []models.Prediction{
		hourlyPred("p1", 12),
		hourlyPred("p1", 17),
		hourlyPred("p1", 18), // at closing
		hourlyPred("p1", 20), // after closing
	}

	kept := FilterBySchedule(preds, sched, loc, models.HorizonHourly)
	if len(kept) != 2 {
		t.Fatalf("kept %d points, want 2", len(kept))
	}
	for _, pred := range kept {
		if pred.Timestamp.Hour() >= 18 {
			t.Errorf("point at %v survived past closing", pred.Timestamp)
		}
	}
}

func TestDailyFilterDropsNonOperatingDays(t *testing.T) {
	sched, loc := filterFixture()
	preds := []models.Prediction{
		{ParkID: "p1", Horizon: models.HorizonDaily, Timestamp: time.Date(2025, time.July, 10, 14, 0, 0, 0, time.UTC)},
		{ParkID: "p1", Horizon: models.HorizonDaily, Timestamp: time.Date(2025, time.July, 11, 14, 0, 0, 0, time.UTC)},
	}

	kept := FilterBySchedule(preds, sched, loc, models.HorizonDaily)
	if len(kept) != 1 {
		t.Fatalf("kept %d points, want 1", len(kept))
	}
	if kept[0].Timestamp.Day() != 10 {
		t.Errorf("wrong day survived: %v", kept[0].Timestamp)
	}
}

func TestFilterFailsOpenWithoutScheduleData(t *testing.T) {
	sched, loc := filterFixture()
	preds := []models.Prediction{
		hourlyPred("p2", 3),
		hourlyPred("p2", 23),
	}

	kept := FilterBySchedule(preds, sched, loc, models.HorizonHourly)
	if len(kept) != len(preds) {
		t.Errorf("kept %d points, want all %d (fail-open)", len(kept), len(preds))
	}
}

func TestHourlyTimestamps(t *testing.T) {
	base := time.Date(2025, time.July, 1, 10, 25, 0, 0, time.UTC)
	ts := HourlyTimestamps(base, 24)

	if len(ts) != 24 {
		t.Fatalf("got %d timestamps, want 24", len(ts))
	}
	if !ts[0].Equal(time.Date(2025, time.July, 1, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("first timestamp = %v, want next full hour", ts[0])
	}
	for i := 1; i < len(ts); i++ {
		if ts[i].Sub(ts[i-1]) != time.Hour {
			t.Fatalf("timestamps not hourly at %d", i)
		}
	}
}

func TestDailyTimestamps(t *testing.T) {
	base := time.Date(2025, time.July, 1, 10, 25, 0, 0, time.UTC)
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatal(err)
	}
	ts := DailyTimestamps(base, 3, berlin)

	if len(ts) != 3 {
		t.Fatalf("got %d timestamps, want 3", len(ts))
	}
	first := ts[0].In(berlin)
	if first.Hour() != 14 || first.Day() != 2 {
		t.Errorf("first point = %v, want next day 14:00 local", first)
	}
}

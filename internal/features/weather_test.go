package features

import (
	"testing"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/models"
)

func hourlyWeather(park string, start time.Time, temps []float64) []models.WeatherObservation {
	rows := make([]models.WeatherObservation, len(temps))
	for i, temp := range temps {
		rows[i] = models.WeatherObservation{
			ParkID:      park,
			Timestamp:   start.Add(time.Duration(i) * time.Hour),
			Temperature: temp,
		}
	}
	return rows
}

func TestWeatherAt(t *testing.T) {
	start := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	ix := NewWeatherIndex(hourlyWeather("p1", start, []float64{10, 12, 14}))

	got, ok := ix.At("p1", start.Add(70*time.Minute), 90*time.Minute)
	if !ok {
		t.Fatal("expected a nearby observation")
	}
	if got.Temperature != 12 {
		t.Errorf("nearest temperature = %v, want 12 (the 01:00 row)", got.Temperature)
	}

	if _, ok := ix.At("p1", start.Add(12*time.Hour), 90*time.Minute); ok {
		t.Error("observation outside tolerance should not match")
	}
	if _, ok := ix.At("unknown", start, 90*time.Minute); ok {
		t.Error("unknown park should not match")
	}
}

func TestPrecipitationSumLeftClosed(t *testing.T) {
	start := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	rows := []models.WeatherObservation{
		{ParkID: "p1", Timestamp: start, Precipitation: 1},
		{ParkID: "p1", Timestamp: start.Add(time.Hour), Precipitation: 2},
		{ParkID: "p1", Timestamp: start.Add(2 * time.Hour), Precipitation: 4},
	}
	ix := NewWeatherIndex(rows)

	// Window [00:00, 02:00): the 02:00 row at the boundary is excluded.
	got := ix.PrecipitationSum("p1", start.Add(2*time.Hour), 2*time.Hour)
	if got != 3 {
		t.Errorf("PrecipitationSum = %v, want 3", got)
	}

	if got := ix.PrecipitationSum("unknown", start, time.Hour); got != 0 {
		t.Errorf("PrecipitationSum for unknown park = %v, want 0", got)
	}
}

func TestMonthlyMeanTemperature(t *testing.T) {
	start := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	ix := NewWeatherIndex(hourlyWeather("p1", start, []float64{18, 22}))

	mean, ok := ix.MonthlyMeanTemperature("p1", time.July)
	if !ok {
		t.Fatal("expected July mean to exist")
	}
	if mean != 20 {
		t.Errorf("July mean = %v, want 20", mean)
	}

	if _, ok := ix.MonthlyMeanTemperature("p1", time.January); ok {
		t.Error("month without samples should report ok=false")
	}
}

func TestIsExtreme(t *testing.T) {
	start := time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

	// Ten days of mild hourly temperatures, then one hot sample at t.
	temps := make([]float64, 10*24)
	for i := range temps {
		temps[i] = 20
	}
	rows := hourlyWeather("p1", start, temps)
	at := start.Add(time.Duration(len(temps)) * time.Hour)
	rows = append(rows, models.WeatherObservation{ParkID: "p1", Timestamp: at, Temperature: 38})
	ix := NewWeatherIndex(rows)

	temp := func(w models.WeatherObservation) float64 { return w.Temperature }
	if !ix.IsExtreme("p1", at, temp) {
		t.Error("38 degrees against a flat 20-degree history should be extreme")
	}
	if ix.IsExtreme("p1", start.Add(200*time.Hour), temp) {
		t.Error("a sample equal to the trailing P90 should not be extreme")
	}

	// Too little history: never extreme.
	short := NewWeatherIndex(hourlyWeather("p2", start, []float64{20, 20, 40}))
	if short.IsExtreme("p2", start.Add(2*time.Hour), temp) {
		t.Error("under a week of samples should never report extreme")
	}
}

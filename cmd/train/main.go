package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/PArns/v4.ml.park.fan/internal/config"
	"github.com/PArns/v4.ml.park.fan/internal/features"
	"github.com/PArns/v4.ml.park.fan/internal/model"
	"github.com/PArns/v4.ml.park.fan/internal/models"
	"github.com/PArns/v4.ml.park.fan/internal/schema"
	"github.com/PArns/v4.ml.park.fan/internal/store"
	"github.com/PArns/v4.ml.park.fan/internal/validation"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg, err := config.Load("./config.yaml")
	if err != nil {
		log.Printf("Warning: using default config: %v", err)
		cfg = config.Default()
	}

	ctx := context.Background()

	st, err := store.New(config.GetPostgresConfig())
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	parkIDs := parkIDsFromEnv()
	if len(parkIDs) == 0 {
		parkIDs, err = st.ParkIDs(ctx)
		if err != nil {
			log.Fatalf("Failed to list parks: %v", err)
		}
	}
	if len(parkIDs) == 0 {
		log.Fatal("No parks to train on")
	}
	log.Printf("Training on %d parks", len(parkIDs))

	parks, err := st.Parks(ctx, parkIDs)
	if err != nil {
		log.Fatalf("Failed to load parks: %v", err)
	}
	attractions, err := st.Attractions(ctx, parkIDs)
	if err != nil {
		log.Fatalf("Failed to load attractions: %v", err)
	}
	attractionIDs := make([]string, 0, len(attractions))
	for _, a := range attractions {
		attractionIDs = append(attractionIDs, a.ID)
	}

	now := time.Now().UTC()
	from := now.AddDate(-cfg.Training.LookbackYears, 0, 0)

	observations, err := st.Observations(ctx, attractionIDs, from, now)
	if err != nil {
		log.Fatalf("Failed to load observations: %v", err)
	}
	holidays, err := st.Holidays(ctx, holidayCountries(parks), from, now)
	if err != nil {
		log.Fatalf("Failed to load holidays: %v", err)
	}
	schedules, err := st.Schedules(ctx, parkIDs, from, now)
	if err != nil {
		log.Fatalf("Failed to load schedules: %v", err)
	}
	weather, err := st.Weather(ctx, parkIDs, from, now)
	if err != nil {
		log.Fatalf("Failed to load weather: %v", err)
	}

	validator := validation.New(validation.Options{
		MaxWaitMinutes:   cfg.Training.MaxWaitMinutes,
		OutlierIQRFactor: cfg.Training.OutlierIQRFactor,
		OutlierFloorWait: cfg.Training.OutlierFloorWait,
		Steps:            validation.AllSteps(),
	})
	clean, report := validator.Clean(observations)
	if len(clean) == 0 {
		log.Fatal("No observations survived validation")
	}

	builder := features.NewBuilder()
	tbl, target, err := builder.BuildTraining(features.TrainingInput{
		Observations:  clean,
		Parks:         parks,
		Attractions:   attractions,
		Holidays:      holidays,
		Schedules:     schedules,
		Weather:       weather,
		VolatilityCap: cfg.Training.VolatilityCapStd,
	})
	if err != nil {
		log.Fatalf("Failed to build feature table: %v", err)
	}
	log.Printf("Feature table: %d rows, %d columns", tbl.Len(), len(tbl.Columns()))

	baseline := model.NewBaseline()
	if err := baseline.Fit(tbl, target); err != nil {
		log.Fatalf("Failed to fit baseline model: %v", err)
	}

	featureSchema := schema.FromTable(cfg.Model.Version, tbl, builder.Registry())

	if err := os.MkdirAll(cfg.Model.Dir, 0o755); err != nil {
		log.Fatalf("Failed to create model dir: %v", err)
	}
	if err := featureSchema.Save(filepath.Join(cfg.Model.Dir, "schema.json")); err != nil {
		log.Fatalf("Failed to save feature schema: %v", err)
	}
	if err := baseline.Save(filepath.Join(cfg.Model.Dir, "baseline.json")); err != nil {
		log.Fatalf("Failed to save baseline model: %v", err)
	}
	if err := saveReport(filepath.Join(cfg.Model.Dir, "validation_report.json"), report); err != nil {
		log.Fatalf("Failed to save validation report: %v", err)
	}

	log.Printf("Training completed: version %s, %d/%d rows kept, residual std %.2f",
		cfg.Model.Version, report.RowsOut, report.RowsIn, baseline.ResidualStd)
}

// parkIDsFromEnv reads an optional comma-separated PARK_IDS restriction.
func parkIDsFromEnv() []string {
	raw := os.Getenv("PARK_IDS")
	if raw == "" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// holidayCountries collects the distinct country codes of the parks and
// their influencing regions.
func holidayCountries(parks []models.Park) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(country string) {
		if country != "" && !seen[country] {
			seen[country] = true
			out = append(out, country)
		}
	}
	for _, p := range parks {
		add(p.Country)
		for _, r := range p.InfluencingRegions {
			add(r.Country)
		}
	}
	return out
}

func saveReport(path string, report validation.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

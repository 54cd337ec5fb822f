package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/PArns/v4.ml.park.fan/internal/calendar"
	"github.com/PArns/v4.ml.park.fan/internal/config"
	"github.com/PArns/v4.ml.park.fan/internal/features"
	"github.com/PArns/v4.ml.park.fan/internal/model"
	"github.com/PArns/v4.ml.park.fan/internal/models"
	"github.com/PArns/v4.ml.park.fan/internal/parkmeta"
	"github.com/PArns/v4.ml.park.fan/internal/predict"
	"github.com/PArns/v4.ml.park.fan/internal/schema"
	"github.com/PArns/v4.ml.park.fan/internal/server"
	"github.com/PArns/v4.ml.park.fan/internal/store"
	"github.com/PArns/v4.ml.park.fan/internal/validation"
)

// History depth for inference: the 30-day lag plus a margin.
const historyDays = 31

type service struct {
	cfg     *config.Config
	store   *store.Store
	parks   *parkmeta.Cache
	models  *model.Manager
	builder *features.Builder
	redis   *redis.Client
	channel string
}

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

	redisCfg := config.GetRedisConfig()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis ping failed: %v", err)
	}

	manager := model.NewManager()
	if err := loadArtifact(manager, cfg); err != nil {
		log.Fatalf("Failed to load model artifact: %v", err)
	}

	svc := &service{
		cfg:     cfg,
		store:   st,
		parks:   parkmeta.New(st, time.Duration(cfg.ParkMeta.TTL), cfg.ParkMeta.RefreshPerMin),
		models:  manager,
		builder: features.NewBuilder(),
		redis:   redisClient,
		channel: resolveChannel(cfg, redisCfg),
	}

	ops := server.NewServer(manager)
	if report, err := loadValidationReport(filepath.Join(cfg.Model.Dir, "validation_report.json")); err != nil {
		log.Printf("Warning: no validation report available: %v", err)
	} else {
		ops.RecordRun(report)
	}
	go func() {
		addr := envOr("OPS_ADDR", ":8080")
		log.Printf("Ops server listening on %s", addr)
		if err := ops.Start(addr); err != nil {
			log.Fatalf("Ops server failed: %v", err)
		}
	}()

	interval := time.Hour
	if raw := os.Getenv("PREDICT_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("Invalid PREDICT_INTERVAL %q: %v", raw, err)
		}
		interval = parsed
	}

	for {
		if err := svc.runCycle(ctx); err != nil {
			log.Printf("Prediction cycle failed: %v", err)
		}
		time.Sleep(interval)
	}
}

// loadArtifact reads the persisted schema and baseline regressor and
// publishes them as the current model.
func loadArtifact(manager *model.Manager, cfg *config.Config) error {
	featureSchema, err := schema.Load(filepath.Join(cfg.Model.Dir, "schema.json"))
	if err != nil {
		return err
	}
	baseline, err := model.LoadBaseline(filepath.Join(cfg.Model.Dir, "baseline.json"))
	if err != nil {
		return err
	}
	manager.Swap(&model.Artifact{
		Regressor: baseline,
		Schema:    featureSchema,
		Version:   featureSchema.Version,
		TrainedAt: featureSchema.CreatedAt,
	})
	return nil
}

func (s *service) runCycle(ctx context.Context) error {
	now := time.Now().UTC()

	parkIDs := parkIDsFromEnv()
	var err error
	if len(parkIDs) == 0 {
		parkIDs, err = s.store.ParkIDs(ctx)
		if err != nil {
			return err
		}
	}
	if len(parkIDs) == 0 {
		log.Print("No parks to predict for")
		return nil
	}

	parks, err := s.parks.Get(ctx, parkIDs)
	if err != nil {
		return err
	}
	attractions, err := s.store.Attractions(ctx, parkIDs)
	if err != nil {
		return err
	}
	if len(attractions) == 0 {
		log.Print("No attractions to predict for")
		return nil
	}
	attractionIDs := make([]string, 0, len(attractions))
	for _, a := range attractions {
		attractionIDs = append(attractionIDs, a.ID)
	}

	horizonDays := s.cfg.Prediction.DailySteps
	history, err := s.store.Observations(ctx, attractionIDs, now.AddDate(0, 0, -historyDays), now)
	if err != nil {
		return err
	}
	holidays, err := s.store.Holidays(ctx, holidayCountries(parks), now.AddDate(0, 0, -7), now.AddDate(0, 0, horizonDays+1))
	if err != nil {
		return err
	}
	schedules, err := s.store.Schedules(ctx, parkIDs, now.AddDate(0, 0, -1), now.AddDate(0, 0, horizonDays+1))
	if err != nil {
		return err
	}
	weather, err := s.store.Weather(ctx, parkIDs, now.AddDate(0, 0, -15), now.AddDate(0, 0, 3))
	if err != nil {
		return err
	}

	localizer := calendar.NewLocalizer(parks)
	schedIdx := features.NewScheduleIndex(schedules)
	baselines := s.entityBaselines(ctx, history, attractionIDs)

	reference := features.InferenceInput{
		History:       history,
		Parks:         parks,
		Attractions:   attractions,
		Holidays:      holidays,
		Schedules:     schedules,
		Weather:       weather,
		VolatilityCap: s.cfg.Training.VolatilityCapStd,
	}

	// Hourly: one batch across all parks, timestamps are UTC-aligned.
	// Fresh observations become live overrides for the near-term features.
	hourly := reference
	hourly.EntityIDs, hourly.ParkIDs = entityParkPairs(attractions, "")
	hourly.Timestamps = predict.HourlyTimestamps(now, s.cfg.Prediction.HourlySteps)
	hourly.Live = features.LiveFromSnapshots(currentSnapshots(history, now))
	if err := s.predictBatch(ctx, hourly, models.HorizonHourly, now, schedIdx, localizer, baselines); err != nil {
		return err
	}

	// Daily: one batch per park, the 14:00 local anchor depends on the
	// park's timezone.
	for _, park := range parks {
		daily := reference
		daily.EntityIDs, daily.ParkIDs = entityParkPairs(attractions, park.ID)
		if len(daily.EntityIDs) == 0 {
			continue
		}
		daily.Timestamps = predict.DailyTimestamps(now, horizonDays, localizer.Location(park.ID))
		if err := s.predictBatch(ctx, daily, models.HorizonDaily, now, schedIdx, localizer, baselines); err != nil {
			return err
		}
	}
	return nil
}

// predictBatch runs one horizon batch end to end: features, schema
// reconciliation, scoring, post-processing, schedule filter, publish.
func (s *service) predictBatch(
	ctx context.Context,
	in features.InferenceInput,
	horizon string,
	now time.Time,
	schedIdx *features.ScheduleIndex,
	localizer *calendar.Localizer,
	baselines map[string]float64,
) error {
	artifact, err := s.models.Current()
	if err != nil {
		return err
	}

	tbl, rows, err := s.builder.BuildInference(in)
	if err != nil {
		return err
	}
	if err := artifact.Schema.Reconcile(tbl); err != nil {
		return err
	}

	raw, lower, upper, hasInterval, err := score(artifact.Regressor, tbl)
	if err != nil {
		return err
	}

	points := make([]predict.Point, len(rows))
	for i, row := range rows {
		points[i] = predict.Point{
			EntityID:    row.EntityID,
			ParkID:      row.ParkID,
			UTC:         row.UTC,
			Local:       row.Local,
			Raw:         raw[i],
			HasInterval: hasInterval,
			Closed:      schedIdx.ClosedForMaintenance(row.ParkID, row.EntityID, row.Local),
		}
		if hasInterval {
			points[i].Lower = lower[i]
			points[i].Upper = upper[i]
		}
	}

	post := predict.PostProcessor{
		Horizon:   horizon,
		BaseTime:  now,
		Baselines: baselines,
	}
	preds := post.Process(points)
	preds = predict.FilterBySchedule(preds, schedIdx, localizer, horizon)

	return s.publish(ctx, preds)
}

// score runs the regressor, with intervals when it supports them.
func score(r model.Regressor, tbl *features.Table) (raw, lower, upper []float64, hasInterval bool, err error) {
	if ir, ok := r.(model.IntervalRegressor); ok {
		raw, err = ir.Predict(tbl)
		if err != nil {
			return nil, nil, nil, false, err
		}
		lower, upper, err = ir.PredictInterval(tbl)
		if err != nil {
			return nil, nil, nil, false, err
		}
		return raw, lower, upper, true, nil
	}
	raw, err = r.Predict(tbl)
	return raw, nil, nil, false, err
}

// entityBaselines computes each attraction's median wait from loaded
// history, falling back to precomputed percentile aggregates for
// attractions without enough recent rows.
func (s *service) entityBaselines(ctx context.Context, history []models.Observation, attractionIDs []string) map[string]float64 {
	baselines := features.NewHistoryIndex(history).EntityMedians()

	var missing []string
	for _, id := range attractionIDs {
		if _, ok := baselines[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return baselines
	}

	aggs, err := s.store.PercentileAggregates(ctx, missing)
	if err != nil {
		log.Printf("Warning: percentile aggregate fallback failed: %v", err)
		return baselines
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, agg := range aggs {
		if agg.SampleCount <= 0 {
			continue
		}
		sums[agg.AttractionID] += agg.P50
		counts[agg.AttractionID]++
	}
	for id, n := range counts {
		baselines[id] = sums[id] / float64(n)
	}
	return baselines
}

func (s *service) publish(ctx context.Context, preds []models.Prediction) error {
	for _, pred := range preds {
		data, err := json.Marshal(pred)
		if err != nil {
			log.Printf("Failed to serialize prediction for %s: %v", pred.AttractionID, err)
			continue
		}
		if err := s.redis.Publish(ctx, s.channel, data).Err(); err != nil {
			return err
		}
	}
	log.Printf("Published %d predictions to channel %s", len(preds), s.channel)
	return nil
}

// loadValidationReport reads the report the training run saved next to
// its model artifacts, for the ops /validation-report endpoint.
func loadValidationReport(path string) (validation.Report, error) {
	var report validation.Report
	data, err := os.ReadFile(path)
	if err != nil {
		return report, err
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return report, fmt.Errorf("failed to parse validation report %s: %w", path, err)
	}
	return report, nil
}

// resolveChannel picks the prediction channel: the REDIS_CHANNEL env
// override wins over the config file value.
func resolveChannel(cfg *config.Config, redisCfg config.RedisConfig) string {
	if redisCfg.Channel != "" {
		return redisCfg.Channel
	}
	return cfg.Prediction.Channel
}

// currentSnapshots derives live attraction snapshots from the freshest
// loaded observation per attraction. Observations older than the staleness
// cutoff contribute nothing; the wait observed roughly 30 minutes earlier
// feeds the change-velocity feature.
func currentSnapshots(history []models.Observation, now time.Time) []models.Snapshot {
	const (
		staleAfter = 15 * time.Minute
		recentLag  = 30 * time.Minute
		recentTol  = 15 * time.Minute
	)

	byEntity := make(map[string][]models.Observation)
	for _, o := range history {
		byEntity[o.AttractionID] = append(byEntity[o.AttractionID], o)
	}

	var snaps []models.Snapshot
	for id, list := range byEntity {
		latest := list[0]
		for _, o := range list[1:] {
			if o.Timestamp.After(latest.Timestamp) {
				latest = o
			}
		}
		if now.Sub(latest.Timestamp) > staleAfter {
			continue
		}

		snap := models.Snapshot{
			ParkID:       latest.ParkID,
			AttractionID: id,
			ObservedAt:   latest.Timestamp,
			WaitMinutes:  latest.WaitMinutes,
			IsOpen:       latest.Status == "" || latest.Status == "OPERATING",
		}

		target := latest.Timestamp.Add(-recentLag)
		bestDist := recentTol + time.Second
		for _, o := range list {
			dist := o.Timestamp.Sub(target)
			if dist < 0 {
				dist = -dist
			}
			if dist < bestDist {
				bestDist = dist
				snap.RecentWaitMinutes = o.WaitMinutes
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// entityParkPairs builds the parallel id lists for one batch. An empty
// parkFilter includes every attraction.
func entityParkPairs(attractions []models.Attraction, parkFilter string) (entityIDs, parkIDs []string) {
	for _, a := range attractions {
		if parkFilter != "" && a.ParkID != parkFilter {
			continue
		}
		entityIDs = append(entityIDs, a.ID)
		parkIDs = append(parkIDs, a.ParkID)
	}
	return entityIDs, parkIDs
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

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

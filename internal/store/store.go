// Package store is the read-only query layer over the upstream Postgres
// observation log and its reference tables. All writes happen on the
// ingestion side; this service only reads.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/PArns/v4.ml.park.fan/internal/config"
	"github.com/PArns/v4.ml.park.fan/internal/metrics"
	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// Store wraps the Postgres connection pool.
type Store struct {
	db *sqlx.DB
}

// New connects, pings and configures the pool.
func New(cfg config.PostgresConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	metrics.DBConnectionsOpen.Set(float64(db.Stats().OpenConnections))

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Observations returns wait-time rows for the attraction set within
// [from, to), ordered by attraction and timestamp.
func (s *Store) Observations(ctx context.Context, attractionIDs []string, from, to time.Time) ([]models.Observation, error) {
	start := time.Now()
	var rows []models.Observation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT q."parkId"::text        AS park_id,
		       q."attractionId"::text  AS attraction_id,
		       q."timestamp"           AS timestamp,
		       q."waitTime"            AS wait_minutes,
		       COALESCE(q."status", '')     AS status,
		       COALESCE(q."queueType", '')  AS queue_kind
		FROM queue_data q
		WHERE q."attractionId"::text = ANY($1)
		  AND q."timestamp" >= $2
		  AND q."timestamp" < $3
		ORDER BY q."attractionId", q."timestamp"`,
		pq.Array(attractionIDs), from, to)
	metrics.RecordDBQuery("select", "queue_data", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	return rows, nil
}

// Holidays returns holiday rows for the country set within [from, to].
func (s *Store) Holidays(ctx context.Context, countries []string, from, to time.Time) ([]models.Holiday, error) {
	start := time.Now()
	var rows []models.Holiday
	err := s.db.SelectContext(ctx, &rows, `
		SELECT h."countryCode"          AS country,
		       COALESCE(h."regionCode", '') AS region,
		       h."date"                 AS date,
		       h."name"                 AS name,
		       h."holidayType"          AS type,
		       h."nationwide"           AS nationwide
		FROM holidays h
		WHERE h."countryCode" = ANY($1)
		  AND h."date" BETWEEN $2 AND $3`,
		pq.Array(countries), from, to)
	metrics.RecordDBQuery("select", "holidays", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	return rows, nil
}

// Schedules returns schedule entries for the park set within [from, to].
func (s *Store) Schedules(ctx context.Context, parkIDs []string, from, to time.Time) ([]models.ScheduleEntry, error) {
	start := time.Now()
	var rows []models.ScheduleEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT e."parkId"::text                      AS park_id,
		       COALESCE(e."attractionId"::text, '')  AS attraction_id,
		       e."date"                              AS date,
		       e."scheduleType"                      AS type,
		       COALESCE(e."openingTime", 'epoch'::timestamptz) AS opening_time,
		       COALESCE(e."closingTime", 'epoch'::timestamptz) AS closing_time
		FROM schedule_entries e
		WHERE e."parkId"::text = ANY($1)
		  AND e."date" BETWEEN $2 AND $3`,
		pq.Array(parkIDs), from, to)
	metrics.RecordDBQuery("select", "schedule_entries", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	for i := range rows {
		if rows[i].OpeningTime.Unix() == 0 {
			rows[i].OpeningTime = time.Time{}
		}
		if rows[i].ClosingTime.Unix() == 0 {
			rows[i].ClosingTime = time.Time{}
		}
	}
	return rows, nil
}

// ParkIDs returns the ids of every known park.
func (s *Store) ParkIDs(ctx context.Context) ([]string, error) {
	start := time.Now()
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT p.id::text FROM parks p ORDER BY p.id`)
	metrics.RecordDBQuery("select", "parks", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query park ids: %w", err)
	}
	return ids, nil
}

// Parks returns park metadata including the attraction count and up to
// three influencing regions.
func (s *Store) Parks(ctx context.Context, parkIDs []string) ([]models.Park, error) {
	start := time.Now()
	var rows []models.Park
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.id::text            AS id,
		       p."name"              AS name,
		       p."countryCode"       AS country,
		       COALESCE(p."regionCode", '') AS region,
		       p."timezone"          AS timezone,
		       p."latitude"          AS latitude,
		       p."longitude"         AS longitude,
		       COUNT(DISTINCT a.id)  AS attraction_count
		FROM parks p
		LEFT JOIN attractions a ON a."parkId" = p.id
		WHERE p.id::text = ANY($1)
		GROUP BY p.id`,
		pq.Array(parkIDs))
	metrics.RecordDBQuery("select", "parks", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query parks: %w", err)
	}

	type influenceRow struct {
		ParkID  string `db:"park_id"`
		Country string `db:"country"`
		Region  string `db:"region"`
	}
	start = time.Now()
	var influences []influenceRow
	err = s.db.SelectContext(ctx, &influences, `
		SELECT r."parkId"::text AS park_id,
		       r."countryCode"  AS country,
		       r."regionCode"   AS region
		FROM park_influence_regions r
		WHERE r."parkId"::text = ANY($1)
		ORDER BY r."parkId", r."priority"`,
		pq.Array(parkIDs))
	metrics.RecordDBQuery("select", "park_influence_regions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query influence regions: %w", err)
	}

	byPark := make(map[string][]models.RegionRef)
	for _, r := range influences {
		if len(byPark[r.ParkID]) >= 3 {
			continue
		}
		byPark[r.ParkID] = append(byPark[r.ParkID], models.RegionRef{Country: r.Country, Region: r.Region})
	}
	for i := range rows {
		rows[i].InfluencingRegions = byPark[rows[i].ID]
	}
	return rows, nil
}

// Attractions returns attraction metadata for the park set.
func (s *Store) Attractions(ctx context.Context, parkIDs []string) ([]models.Attraction, error) {
	start := time.Now()
	var rows []models.Attraction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id::text       AS id,
		       a."parkId"::text AS park_id,
		       a."name"         AS name,
		       COALESCE(a."attractionType", '') AS type
		FROM attractions a
		WHERE a."parkId"::text = ANY($1)`,
		pq.Array(parkIDs))
	metrics.RecordDBQuery("select", "attractions", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query attractions: %w", err)
	}
	return rows, nil
}

// Weather returns hourly weather rows for the park set within [from, to).
func (s *Store) Weather(ctx context.Context, parkIDs []string, from, to time.Time) ([]models.WeatherObservation, error) {
	start := time.Now()
	var rows []models.WeatherObservation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w."parkId"::text  AS park_id,
		       w."timestamp"     AS timestamp,
		       w."temperature"   AS temperature,
		       w."precipitation" AS precipitation,
		       w."windSpeedMax"  AS wind_speed_max,
		       COALESCE(w."snowfall", 0) AS snowfall,
		       COALESCE(w."weatherCode", 0) AS weather_code
		FROM weather_data w
		WHERE w."parkId"::text = ANY($1)
		  AND w."timestamp" >= $2
		  AND w."timestamp" < $3
		ORDER BY w."parkId", w."timestamp"`,
		pq.Array(parkIDs), from, to)
	metrics.RecordDBQuery("select", "weather_data", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query weather: %w", err)
	}
	return rows, nil
}

// PercentileAggregates returns the precomputed per-(attraction, hour)
// percentile rows used as cheap baselines when full history is not
// loaded.
func (s *Store) PercentileAggregates(ctx context.Context, attractionIDs []string) ([]models.PercentileAggregate, error) {
	start := time.Now()
	var rows []models.PercentileAggregate
	err := s.db.SelectContext(ctx, &rows, `
		SELECT g."attractionId"::text AS attraction_id,
		       g."hourOfDay"          AS hour,
		       g."p50WaitTime"        AS p50,
		       g."p90WaitTime"        AS p90,
		       g."sampleCount"        AS sample_count
		FROM queue_data_aggregates g
		WHERE g."attractionId"::text = ANY($1)`,
		pq.Array(attractionIDs))
	metrics.RecordDBQuery("select", "queue_data_aggregates", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query percentile aggregates: %w", err)
	}
	return rows, nil
}

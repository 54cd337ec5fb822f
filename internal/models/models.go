package models

import "time"

// Observation is a single wait-time sample for one attraction.
// Timestamps are stored in UTC; local-time context is derived later.
type Observation struct {
	ParkID       string    `db:"park_id" json:"park_id"`
	AttractionID string    `db:"attraction_id" json:"attraction_id"`
	Timestamp    time.Time `db:"timestamp" json:"timestamp"`
	WaitMinutes  float64   `db:"wait_minutes" json:"wait_minutes"`
	Status       string    `db:"status" json:"status"`         // e.g. "OPERATING", "DOWN"
	QueueKind    string    `db:"queue_kind" json:"queue_kind"` // e.g. "STANDBY", "SINGLE_RIDER"
}

// RegionRef names a (country, region) pair whose holiday calendar
// influences a park's visitor volume.
type RegionRef struct {
	Country string `json:"country"`
	Region  string `json:"region"`
}

// Park holds the static metadata needed to localize and contextualize
// observations for one park. InfluencingRegions carries up to three
// neighboring regions whose holidays matter for this park.
type Park struct {
	ID                 string      `db:"id" json:"id"`
	Name               string      `db:"name" json:"name"`
	Country            string      `db:"country" json:"country"`
	Region             string      `db:"region" json:"region"`
	Timezone           string      `db:"timezone" json:"timezone"`
	Latitude           float64     `db:"latitude" json:"latitude"`
	Longitude          float64     `db:"longitude" json:"longitude"`
	AttractionCount    int         `db:"attraction_count" json:"attraction_count"`
	InfluencingRegions []RegionRef `db:"-" json:"influencing_regions"`
}

// Attraction describes one ride or show inside a park.
type Attraction struct {
	ID     string `db:"id" json:"id"`
	ParkID string `db:"park_id" json:"park_id"`
	Name   string `db:"name" json:"name"`
	Type   string `db:"type" json:"type"` // e.g. "COASTER", "SHOW"; empty means unknown
}

// Holiday is one calendar entry. Region is empty for nationwide holidays.
// Type distinguishes public holidays from school vacations.
type Holiday struct {
	Country    string    `db:"country" json:"country"`
	Region     string    `db:"region" json:"region"`
	Date       time.Time `db:"date" json:"date"`
	Name       string    `db:"name" json:"name"`
	Type       string    `db:"type" json:"type"` // "public" or "school"
	Nationwide bool      `db:"nationwide" json:"nationwide"`
}

// Schedule entry types as delivered by the upstream feed.
const (
	ScheduleOperating     = "OPERATING"
	ScheduleMaintenance   = "MAINTENANCE"
	ScheduleClosed        = "CLOSED"
	ScheduleTicketedEvent = "TICKETED_EVENT"
	SchedulePrivateEvent  = "PRIVATE_EVENT"
	ScheduleExtraHours    = "EXTRA_HOURS"
	ScheduleInfo          = "INFO"
)

// ScheduleEntry is one operating-calendar row. AttractionID is empty for
// park-level entries; attraction-level MAINTENANCE/CLOSED entries override
// the park calendar for that attraction.
type ScheduleEntry struct {
	ParkID       string    `db:"park_id" json:"park_id"`
	AttractionID string    `db:"attraction_id" json:"attraction_id"`
	Date         time.Time `db:"date" json:"date"`
	Type         string    `db:"type" json:"type"`
	OpeningTime  time.Time `db:"opening_time" json:"opening_time"`
	ClosingTime  time.Time `db:"closing_time" json:"closing_time"`
}

// WeatherObservation is one hourly weather sample for a park location.
type WeatherObservation struct {
	ParkID        string    `db:"park_id" json:"park_id"`
	Timestamp     time.Time `db:"timestamp" json:"timestamp"`
	Temperature   float64   `db:"temperature" json:"temperature"`
	Precipitation float64   `db:"precipitation" json:"precipitation"`
	WindSpeedMax  float64   `db:"wind_speed_max" json:"wind_speed_max"`
	Snowfall      float64   `db:"snowfall" json:"snowfall"`
	WeatherCode   int       `db:"weather_code" json:"weather_code"`
}

// Snapshot carries the live state of one attraction at inference time.
// RecentWaitMinutes is the wait observed roughly 30 minutes ago and feeds
// the change-velocity feature; zero values fall back to neutral defaults.
type Snapshot struct {
	ParkID            string    `json:"park_id"`
	AttractionID      string    `json:"attraction_id"`
	ObservedAt        time.Time `json:"observed_at"`
	WaitMinutes       float64   `json:"wait_minutes"`
	RecentWaitMinutes float64   `json:"recent_wait_minutes"`
	IsOpen            bool      `json:"is_open"`
}

// PercentileAggregate is a precomputed per-(attraction, hour) wait-time
// percentile row, maintained by the ingestion side for cheap temporal
// lookups.
type PercentileAggregate struct {
	AttractionID string  `db:"attraction_id" json:"attraction_id"`
	Hour         int     `db:"hour" json:"hour"`
	P50          float64 `db:"p50" json:"p50"`
	P90          float64 `db:"p90" json:"p90"`
	SampleCount  int     `db:"sample_count" json:"sample_count"`
}

// Prediction horizons.
const (
	HorizonHourly = "hourly"
	HorizonDaily  = "daily"
)

// Prediction is one finished forecast point after post-processing.
type Prediction struct {
	ParkID       string    `json:"park_id"`
	AttractionID string    `json:"attraction_id"`
	Horizon      string    `json:"horizon"`
	Timestamp    time.Time `json:"timestamp"`
	WaitMinutes  int       `json:"wait_minutes"`
	Confidence   int       `json:"confidence"` // 0-100
	Trend        string    `json:"trend"`      // "increasing", "decreasing", "stable"
	CrowdLevel   string    `json:"crowd_level"`
}

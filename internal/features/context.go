package features

import (
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/calendar"
	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// Row is one (entity, timestamp) pair a feature vector is built for.
// Training rows carry the observed wait as the target; future rows do not.
type Row struct {
	EntityID string
	ParkID   string
	UTC      time.Time
	Local    time.Time
	Wait     float64
	HasWait  bool
}

// LiveContext carries optional serve-time override maps keyed by entity or
// park id. Absent entries fall back to the historical reconstruction or a
// neutral default; both paths produce values on the same scale.
type LiveContext struct {
	CurrentWait     map[string]float64 // entity id -> current wait
	RecentWait      map[string]float64 // entity id -> wait ~30min ago
	Occupancy       map[string]float64 // park id -> occupancy percent
	TimeSinceOpen   map[string]float64 // entity id -> minutes since opening
	DowntimeToday   map[string]float64 // entity id -> downtime minutes today
	VirtualQueue    map[string]bool    // entity id -> virtual queue active
	SchedulePresent map[string]bool    // park id -> schedule data available
}

// LiveFromSnapshots builds the serve-time override maps from current
// attraction snapshots. Closed attractions contribute nothing, their wait
// values are not meaningful. Returns nil when no snapshot is usable so
// callers can pass the result straight through.
func LiveFromSnapshots(snaps []models.Snapshot) *LiveContext {
	lc := &LiveContext{
		CurrentWait: make(map[string]float64),
		RecentWait:  make(map[string]float64),
	}
	for _, s := range snaps {
		if !s.IsOpen || s.AttractionID == "" {
			continue
		}
		lc.CurrentWait[s.AttractionID] = s.WaitMinutes
		if s.RecentWaitMinutes > 0 {
			lc.RecentWait[s.AttractionID] = s.RecentWaitMinutes
		}
	}
	if len(lc.CurrentWait) == 0 {
		return nil
	}
	return lc
}

// Context is the shared input state of one feature-table build. The same
// context type serves training and inference; only the row set and the
// optional live overrides differ.
type Context struct {
	Rows []Row

	Localizer *calendar.Localizer
	Holidays  *calendar.HolidayIndex
	Schedules *ScheduleIndex
	Weather   *WeatherIndex
	History   *HistoryIndex

	Parks       map[string]models.Park
	Attractions map[string]models.Attraction

	Live *LiveContext

	// VolatilityCap bounds the 7d volatility feature (minutes of stddev).
	VolatilityCap float64

	stateCache map[int]OperatingState
	baselines  map[string]float64
}

// operatingState resolves and memoizes the schedule state for row i. The
// correction signal is the training-row wait when present, otherwise the
// live current wait for that entity.
func (c *Context) operatingState(i int) OperatingState {
	if c.stateCache == nil {
		c.stateCache = make(map[int]OperatingState, len(c.Rows))
	}
	if st, ok := c.stateCache[i]; ok {
		return st
	}
	row := c.Rows[i]
	observed, has := row.Wait, row.HasWait
	if !has {
		observed, has = c.liveCurrentWait(row.EntityID)
	}
	st := c.Schedules.Resolve(row.ParkID, row.EntityID, row.Local, observed, has)
	c.stateCache[i] = st
	return st
}

// parkBaseline memoizes the park's median wait, the denominator of the
// occupancy percentage.
func (c *Context) parkBaseline(parkID string) (float64, bool) {
	if c.baselines == nil {
		c.baselines = make(map[string]float64)
	}
	if v, ok := c.baselines[parkID]; ok {
		return v, v > 0
	}
	v := 0.0
	if s := c.History.Park(parkID); s != nil {
		if m, ok := s.Median(); ok {
			v = m
		}
	}
	c.baselines[parkID] = v
	return v, v > 0
}

func (c *Context) park(parkID string) (models.Park, bool) {
	p, ok := c.Parks[parkID]
	return p, ok
}

func (c *Context) liveCurrentWait(entityID string) (float64, bool) {
	if c.Live == nil || c.Live.CurrentWait == nil {
		return 0, false
	}
	v, ok := c.Live.CurrentWait[entityID]
	return v, ok
}

func (c *Context) liveRecentWait(entityID string) (float64, bool) {
	if c.Live == nil || c.Live.RecentWait == nil {
		return 0, false
	}
	v, ok := c.Live.RecentWait[entityID]
	return v, ok
}

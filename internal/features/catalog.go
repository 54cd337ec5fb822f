package features

import (
	"math"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/calendar"
	"github.com/PArns/v4.ml.park.fan/internal/models"
)

const (
	lagTolerance   = 15 * time.Minute
	weatherTol     = 90 * time.Minute
	velocityWindow = 30 * time.Minute
	trendMaxPoints = 168
)

// perRow lifts a pure per-row function into a column compute function.
func perRow(fn func(ctx *Context, i int, row Row) float64) func(*Context, *Table) ([]float64, error) {
	return func(ctx *Context, _ *Table) ([]float64, error) {
		out := make([]float64, len(ctx.Rows))
		for i, row := range ctx.Rows {
			out[i] = fn(ctx, i, row)
		}
		return out, nil
	}
}

func perRowCat(fn func(ctx *Context, i int, row Row) string) func(*Context, *Table) ([]string, error) {
	return func(ctx *Context, _ *Table) ([]string, error) {
		out := make([]string, len(ctx.Rows))
		for i, row := range ctx.Rows {
			out[i] = fn(ctx, i, row)
		}
		return out, nil
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// registerAll declares the full feature catalog. Declaration order is the
// canonical column order of a freshly built table.
func registerAll(r *Registry) {
	registerIdentity(r)
	registerTime(r)
	registerHoliday(r)
	registerTemporal(r)
	registerOccupancy(r)
	registerSchedule(r)
	registerWeather(r)
	registerMeta(r)
	registerInteractions(r)
}

func registerIdentity(r *Registry) {
	// Identifier columns are part of the serving contract and are never
	// defaulted; the reconciler fails loudly when they are missing.
	r.MustRegister(Feature{
		Name: "park_id", Kind: Categorical, DefaultCategory: "UNKNOWN",
		ComputeCat: perRowCat(func(_ *Context, _ int, row Row) string { return row.ParkID }),
	})
	r.MustRegister(Feature{
		Name: "attraction_id", Kind: Categorical, DefaultCategory: "UNKNOWN",
		ComputeCat: perRowCat(func(_ *Context, _ int, row Row) string { return row.EntityID }),
	})
}

func registerTime(r *Registry) {
	r.MustRegister(Feature{
		Name: "hour", Kind: Numeric,
		Compute: perRow(func(_ *Context, _ int, row Row) float64 { return float64(row.Local.Hour()) }),
	})
	// Monday = 0, matching the trained model's encoding.
	r.MustRegister(Feature{
		Name: "day_of_week", Kind: Numeric,
		Compute: perRow(func(_ *Context, _ int, row Row) float64 {
			return float64((int(row.Local.Weekday()) + 6) % 7)
		}),
	})
	r.MustRegister(Feature{
		Name: "month", Kind: Numeric, Default: 6,
		Compute: perRow(func(_ *Context, _ int, row Row) float64 { return float64(row.Local.Month()) }),
	})
	r.MustRegister(Feature{
		Name: "day_of_year", Kind: Numeric,
		Compute: perRow(func(_ *Context, _ int, row Row) float64 { return float64(row.Local.YearDay()) }),
	})

	cyclical := []struct {
		sinName, cosName string
		period           float64
		value            func(row Row) float64
	}{
		{"hour_sin", "hour_cos", 24, func(row Row) float64 { return float64(row.Local.Hour()) }},
		{"dow_sin", "dow_cos", 7, func(row Row) float64 { return float64((int(row.Local.Weekday()) + 6) % 7) }},
		{"month_sin", "month_cos", 12, func(row Row) float64 { return float64(row.Local.Month()) }},
		{"doy_sin", "doy_cos", 365, func(row Row) float64 { return float64(row.Local.YearDay()) }},
	}
	for _, c := range cyclical {
		c := c
		r.MustRegister(Feature{
			Name: c.sinName, Kind: Numeric,
			Compute: perRow(func(_ *Context, _ int, row Row) float64 {
				return math.Sin(2 * math.Pi * c.value(row) / c.period)
			}),
		})
		r.MustRegister(Feature{
			Name: c.cosName, Kind: Numeric, Default: 1,
			Compute: perRow(func(_ *Context, _ int, row Row) float64 {
				return math.Cos(2 * math.Pi * c.value(row) / c.period)
			}),
		})
	}

	r.MustRegister(Feature{
		Name: "is_weekend", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			country := ""
			if p, ok := ctx.park(row.ParkID); ok {
				country = p.Country
			}
			return boolToFloat(calendar.IsWeekend(country, row.Local))
		}),
	})
	r.MustRegister(Feature{
		Name: "is_peak_season", Kind: Numeric,
		Compute: perRow(func(_ *Context, _ int, row Row) float64 {
			m := row.Local.Month()
			return boolToFloat(m == time.July || m == time.August || m == time.December)
		}),
	})
	r.MustRegister(Feature{
		Name: "season", Kind: Categorical, DefaultCategory: "UNKNOWN",
		ComputeCat: perRowCat(func(_ *Context, _ int, row Row) string {
			switch row.Local.Month() {
			case time.December, time.January, time.February:
				return "winter"
			case time.March, time.April, time.May:
				return "spring"
			case time.June, time.July, time.August:
				return "summer"
			default:
				return "fall"
			}
		}),
	})
}

func registerHoliday(r *Registry) {
	resolvePrimary := func(ctx *Context, row Row) calendar.DayResolution {
		if ctx.Holidays == nil {
			return calendar.DayResolution{}
		}
		p, ok := ctx.park(row.ParkID)
		if !ok {
			return calendar.DayResolution{}
		}
		return ctx.Holidays.Resolve(p.Country, p.Region, row.Local)
	}

	r.MustRegister(Feature{
		Name: "is_holiday", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			return boolToFloat(resolvePrimary(ctx, row).IsHoliday)
		}),
	})
	r.MustRegister(Feature{
		Name: "is_public_holiday", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			res := resolvePrimary(ctx, row)
			return boolToFloat(res.IsHoliday && res.Type == "public")
		}),
	})
	r.MustRegister(Feature{
		Name: "is_school_holiday", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			res := resolvePrimary(ctx, row)
			return boolToFloat(res.IsHoliday && res.Type == "school")
		}),
	})
	r.MustRegister(Feature{
		Name: "is_bridge_day", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			return boolToFloat(resolvePrimary(ctx, row).IsBridge)
		}),
	})

	// Neighboring regions feed visitor volume: count their holidays too,
	// up to the three influencing regions carried on the park.
	influencing := func(ctx *Context, row Row, holidayType string) float64 {
		if ctx.Holidays == nil {
			return 0
		}
		p, ok := ctx.park(row.ParkID)
		if !ok {
			return 0
		}
		count := 0.0
		for _, ref := range p.InfluencingRegions {
			res := ctx.Holidays.Resolve(ref.Country, ref.Region, row.Local)
			if res.IsHoliday && res.Type == holidayType {
				count++
			}
		}
		return count
	}
	r.MustRegister(Feature{
		Name: "influencing_public_holidays", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			return influencing(ctx, row, "public")
		}),
	})
	r.MustRegister(Feature{
		Name: "influencing_school_holidays", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			return influencing(ctx, row, "school")
		}),
	})
}

func registerTemporal(r *Registry) {
	entityMean := func(ctx *Context, entityID string) (float64, bool) {
		return ctx.History.Entity(entityID).Mean()
	}
	lag := func(ctx *Context, row Row, offset time.Duration) (float64, bool) {
		return ctx.History.Entity(row.EntityID).LagNearest(row.UTC.Add(-offset), lagTolerance)
	}

	r.MustRegister(Feature{
		Name: "avg_wait_last_1h", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			s := ctx.History.Entity(row.EntityID)
			if v, ok := s.MeanBetween(row.UTC.Add(-time.Hour), row.UTC); ok {
				return v
			}
			// Fallback chain: yesterday's lag, last week's lag, zero.
			if v, ok := lag(ctx, row, 24*time.Hour); ok {
				return v
			}
			if v, ok := lag(ctx, row, 7*24*time.Hour); ok {
				return v
			}
			return 0
		}),
	})
	trailingMean := func(window time.Duration) func(ctx *Context, i int, row Row) float64 {
		return func(ctx *Context, _ int, row Row) float64 {
			s := ctx.History.Entity(row.EntityID)
			if v, ok := s.MeanBetween(row.UTC.Add(-window), row.UTC); ok {
				return v
			}
			if v, ok := s.Mean(); ok {
				return v
			}
			return 0
		}
	}
	r.MustRegister(Feature{
		Name: "avg_wait_last_24h", Kind: Numeric,
		Compute: perRow(trailingMean(24 * time.Hour)),
	})
	r.MustRegister(Feature{
		Name: "avg_wait_last_7d", Kind: Numeric,
		Compute: perRow(trailingMean(7 * 24 * time.Hour)),
	})

	lagFeature := func(offset time.Duration) func(ctx *Context, i int, row Row) float64 {
		return func(ctx *Context, _ int, row Row) float64 {
			if v, ok := lag(ctx, row, offset); ok {
				return v
			}
			if v, ok := entityMean(ctx, row.EntityID); ok {
				return v
			}
			return 0
		}
	}
	r.MustRegister(Feature{
		Name: "wait_same_hour_yesterday", Kind: Numeric,
		Compute: perRow(lagFeature(24 * time.Hour)),
	})
	r.MustRegister(Feature{
		Name: "wait_same_hour_last_week", Kind: Numeric,
		Compute: perRow(lagFeature(7 * 24 * time.Hour)),
	})
	r.MustRegister(Feature{
		Name: "wait_same_hour_last_month", Kind: Numeric,
		Compute: perRow(lagFeature(30 * 24 * time.Hour)),
	})

	r.MustRegister(Feature{
		Name: "trend_7d", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			values := ctx.History.Entity(row.EntityID).TrailingValues(row.UTC, trendMaxPoints)
			return trendSlope(values)
		}),
	})
	r.MustRegister(Feature{
		Name: "volatility_7d", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			capMinutes := ctx.VolatilityCap
			if capMinutes <= 0 {
				capMinutes = 40
			}
			values := ctx.History.Entity(row.EntityID).TrailingValues(row.UTC, trendMaxPoints)
			return dampenedVolatility(values, capMinutes)
		}),
	})
	r.MustRegister(Feature{
		Name: "wait_velocity", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			cur, okCur := ctx.liveCurrentWait(row.EntityID)
			recent, okRecent := ctx.liveRecentWait(row.EntityID)
			if okCur && okRecent {
				return (cur - recent) / 6
			}
			values := ctx.History.Entity(row.EntityID).TrailingWindowValues(row.UTC, velocityWindow)
			return meanFirstDiff(values)
		}),
	})
}

func registerOccupancy(r *Registry) {
	r.MustRegister(Feature{
		Name: "occupancy_pct", Kind: Numeric, Default: 100,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if ctx.Live != nil && ctx.Live.Occupancy != nil {
				if v, ok := ctx.Live.Occupancy[row.ParkID]; ok {
					return clamp(v, 0, 150)
				}
			}
			baseline, ok := ctx.parkBaseline(row.ParkID)
			if !ok {
				return 100
			}
			mean, ok := ctx.History.Park(row.ParkID).MeanBetween(row.UTC.Add(-time.Hour), row.UTC)
			if !ok {
				return 100
			}
			return clamp(mean/baseline*100, 0, 150)
		}),
	})
	r.MustRegister(Feature{
		Name: "time_since_open", Kind: Numeric,
		Compute: perRow(func(ctx *Context, i int, row Row) float64 {
			if ctx.Live != nil && ctx.Live.TimeSinceOpen != nil {
				if v, ok := ctx.Live.TimeSinceOpen[row.EntityID]; ok {
					return v
				}
			}
			return ctx.operatingState(i).MinutesSinceOpen
		}),
	})
	r.MustRegister(Feature{
		Name: "downtime_today", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if ctx.Live != nil && ctx.Live.DowntimeToday != nil {
				if v, ok := ctx.Live.DowntimeToday[row.EntityID]; ok {
					return v
				}
			}
			return 0
		}),
	})
	r.MustRegister(Feature{
		Name: "has_virtual_queue", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if ctx.Live != nil && ctx.Live.VirtualQueue != nil {
				if v, ok := ctx.Live.VirtualQueue[row.EntityID]; ok {
					return boolToFloat(v)
				}
			}
			return 0
		}),
	})
	r.MustRegister(Feature{
		Name: "schedule_present", Kind: Numeric, Default: 1,
		Compute: perRow(func(ctx *Context, i int, row Row) float64 {
			if ctx.Live != nil && ctx.Live.SchedulePresent != nil {
				if v, ok := ctx.Live.SchedulePresent[row.ParkID]; ok {
					return boolToFloat(v)
				}
			}
			if ctx.Schedules.HasPark(row.ParkID) {
				return boolToFloat(ctx.operatingState(i).ScheduleFound)
			}
			// No schedule feed at all: assume present.
			return 1
		}),
	})
}

func registerSchedule(r *Registry) {
	r.MustRegister(Feature{
		Name: "is_open", Kind: Numeric,
		Compute: perRow(func(ctx *Context, i int, _ Row) float64 {
			return boolToFloat(ctx.operatingState(i).IsOpen)
		}),
	})
	r.MustRegister(Feature{
		Name: "has_special_event", Kind: Numeric,
		Compute: perRow(func(ctx *Context, i int, _ Row) float64 {
			return boolToFloat(ctx.operatingState(i).HasSpecialEvent)
		}),
	})
	r.MustRegister(Feature{
		Name: "has_extra_hours", Kind: Numeric,
		Compute: perRow(func(ctx *Context, i int, _ Row) float64 {
			return boolToFloat(ctx.operatingState(i).HasExtraHours)
		}),
	})
}

func registerWeather(r *Registry) {
	r.MustRegister(Feature{
		Name: "temperature_avg", Kind: Numeric, Default: defaultTemperature,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if w, ok := ctx.Weather.At(row.ParkID, row.UTC, weatherTol); ok {
				return w.Temperature
			}
			return defaultTemperature
		}),
	})
	r.MustRegister(Feature{
		Name: "temp_deviation", Kind: Numeric, Deps: []string{"temperature_avg"},
		Compute: func(ctx *Context, tbl *Table) ([]float64, error) {
			temps, _ := tbl.Numeric("temperature_avg")
			out := make([]float64, len(ctx.Rows))
			for i, row := range ctx.Rows {
				if mean, ok := ctx.Weather.MonthlyMeanTemperature(row.ParkID, row.Local.Month()); ok {
					out[i] = temps[i] - mean
				}
			}
			return out, nil
		},
	})
	r.MustRegister(Feature{
		Name: "precipitation", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if w, ok := ctx.Weather.At(row.ParkID, row.UTC, weatherTol); ok {
				return w.Precipitation
			}
			return 0
		}),
	})
	r.MustRegister(Feature{
		Name: "precipitation_3h", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if ctx.Weather == nil {
				return 0
			}
			return ctx.Weather.PrecipitationSum(row.ParkID, row.UTC, 3*time.Hour)
		}),
	})
	r.MustRegister(Feature{
		Name: "is_raining", Kind: Numeric, Deps: []string{"precipitation"},
		Compute: func(ctx *Context, tbl *Table) ([]float64, error) {
			precip, _ := tbl.Numeric("precipitation")
			out := make([]float64, len(ctx.Rows))
			for i, v := range precip {
				out[i] = boolToFloat(v > rainThresholdMM)
			}
			return out, nil
		},
	})
	r.MustRegister(Feature{
		Name: "wind_speed_max", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if w, ok := ctx.Weather.At(row.ParkID, row.UTC, weatherTol); ok {
				return w.WindSpeedMax
			}
			return 0
		}),
	})
	r.MustRegister(Feature{
		Name: "snowfall", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if w, ok := ctx.Weather.At(row.ParkID, row.UTC, weatherTol); ok {
				return w.Snowfall
			}
			return 0
		}),
	})
	r.MustRegister(Feature{
		Name: "weather_code", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if w, ok := ctx.Weather.At(row.ParkID, row.UTC, weatherTol); ok {
				return float64(w.WeatherCode)
			}
			return 0
		}),
	})
	r.MustRegister(Feature{
		Name: "is_temp_extreme", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if ctx.Weather == nil {
				return 0
			}
			return boolToFloat(ctx.Weather.IsExtreme(row.ParkID, row.UTC,
				func(w models.WeatherObservation) float64 { return w.Temperature }))
		}),
	})
	r.MustRegister(Feature{
		Name: "is_wind_extreme", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if ctx.Weather == nil {
				return 0
			}
			return boolToFloat(ctx.Weather.IsExtreme(row.ParkID, row.UTC,
				func(w models.WeatherObservation) float64 { return w.WindSpeedMax }))
		}),
	})
}

func registerMeta(r *Registry) {
	r.MustRegister(Feature{
		Name: "attraction_type", Kind: Categorical, DefaultCategory: "UNKNOWN",
		ComputeCat: perRowCat(func(ctx *Context, _ int, row Row) string {
			if a, ok := ctx.Attractions[row.EntityID]; ok && a.Type != "" {
				return a.Type
			}
			return "UNKNOWN"
		}),
	})
	r.MustRegister(Feature{
		Name: "park_attraction_count", Kind: Numeric,
		Compute: perRow(func(ctx *Context, _ int, row Row) float64 {
			if p, ok := ctx.park(row.ParkID); ok {
				return float64(p.AttractionCount)
			}
			return 0
		}),
	})
}

// Interaction features come last and only multiply finalized columns; they
// never re-derive raw inputs.
func registerInteractions(r *Registry) {
	product := func(a, b string) Feature {
		return Feature{
			Name: a + "_x_" + b, Kind: Numeric, Deps: []string{a, b},
			Compute: func(ctx *Context, tbl *Table) ([]float64, error) {
				left, _ := tbl.Numeric(a)
				right, _ := tbl.Numeric(b)
				out := make([]float64, len(ctx.Rows))
				for i := range out {
					out[i] = left[i] * right[i]
				}
				return out, nil
			},
		}
	}
	r.MustRegister(product("hour", "is_weekend"))
	r.MustRegister(product("is_holiday", "occupancy_pct"))
	r.MustRegister(product("temperature_avg", "precipitation"))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

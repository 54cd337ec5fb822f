package features

import (
	"fmt"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/calendar"
	"github.com/PArns/v4.ml.park.fan/internal/metrics"
	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// Builder computes feature tables through the shared feature catalog.
// Training and inference both go through the same declarations; only the
// row set and the optional live context differ.
type Builder struct {
	registry *Registry
}

func NewBuilder() *Builder {
	r := NewRegistry()
	registerAll(r)
	return &Builder{registry: r}
}

func (b *Builder) Registry() *Registry { return b.registry }

// TrainingInput is one batch of cleaned observations plus the reference
// data needed to contextualize them.
type TrainingInput struct {
	Observations []models.Observation
	Parks        []models.Park
	Attractions  []models.Attraction
	Holidays     []models.Holiday
	Schedules    []models.ScheduleEntry
	Weather      []models.WeatherObservation

	VolatilityCap float64
}

// BuildTraining computes the full feature table for a cleaned batch. The
// returned target slice holds the observed wait per row, parallel to the
// table. Rows with missing identifiers are a caller bug and fail loudly.
func (b *Builder) BuildTraining(in TrainingInput) (*Table, []float64, error) {
	start := time.Now()

	for i, o := range in.Observations {
		if o.AttractionID == "" || o.ParkID == "" {
			return nil, nil, fmt.Errorf("observation %d is missing identifiers (attraction=%q park=%q)", i, o.AttractionID, o.ParkID)
		}
	}

	ctx := b.newContext(in.Parks, in.Attractions, in.Holidays, in.Schedules, in.Weather, in.Observations, nil, in.VolatilityCap)
	ctx.Rows = make([]Row, len(in.Observations))
	target := make([]float64, len(in.Observations))
	for i, o := range in.Observations {
		ctx.Rows[i] = Row{
			EntityID: o.AttractionID,
			ParkID:   o.ParkID,
			UTC:      o.Timestamp,
			Local:    ctx.Localizer.Localize(o.ParkID, o.Timestamp),
			Wait:     o.WaitMinutes,
			HasWait:  true,
		}
		target[i] = o.WaitMinutes
	}

	tbl, err := b.registry.Compute(ctx, b.registry.Names())
	if err != nil {
		return nil, nil, err
	}
	metrics.FeatureBuildDuration.WithLabelValues("training").Observe(time.Since(start).Seconds())
	return tbl, target, nil
}

// InferenceInput describes one prediction request: parallel entity and
// park id lists, the future timestamps to forecast, recent history for
// temporal features, reference data, and optional live overrides.
type InferenceInput struct {
	EntityIDs  []string
	ParkIDs    []string
	Timestamps []time.Time

	History     []models.Observation
	Parks       []models.Park
	Attractions []models.Attraction
	Holidays    []models.Holiday
	Schedules   []models.ScheduleEntry
	Weather     []models.WeatherObservation

	Live          *LiveContext
	VolatilityCap float64
}

// BuildInference computes the feature table for every (entity, timestamp)
// pair, entities outermost. The returned row slice is parallel to the
// table and maps each table row back to its entity and timestamp.
func (b *Builder) BuildInference(in InferenceInput) (*Table, []Row, error) {
	start := time.Now()

	if len(in.EntityIDs) == 0 {
		return nil, nil, fmt.Errorf("no entities requested")
	}
	if len(in.EntityIDs) != len(in.ParkIDs) {
		return nil, nil, fmt.Errorf("entity/park id lists have mismatched lengths (%d vs %d)", len(in.EntityIDs), len(in.ParkIDs))
	}
	if len(in.Timestamps) == 0 {
		return nil, nil, fmt.Errorf("no forecast timestamps supplied")
	}
	for i := range in.EntityIDs {
		if in.EntityIDs[i] == "" || in.ParkIDs[i] == "" {
			return nil, nil, fmt.Errorf("entity %d is missing identifiers (attraction=%q park=%q)", i, in.EntityIDs[i], in.ParkIDs[i])
		}
	}

	ctx := b.newContext(in.Parks, in.Attractions, in.Holidays, in.Schedules, in.Weather, in.History, in.Live, in.VolatilityCap)
	ctx.Rows = make([]Row, 0, len(in.EntityIDs)*len(in.Timestamps))
	for i, entityID := range in.EntityIDs {
		parkID := in.ParkIDs[i]
		for _, ts := range in.Timestamps {
			ctx.Rows = append(ctx.Rows, Row{
				EntityID: entityID,
				ParkID:   parkID,
				UTC:      ts,
				Local:    ctx.Localizer.Localize(parkID, ts),
			})
		}
	}

	tbl, err := b.registry.Compute(ctx, b.registry.Names())
	if err != nil {
		return nil, nil, err
	}
	metrics.FeatureBuildDuration.WithLabelValues("inference").Observe(time.Since(start).Seconds())
	return tbl, ctx.Rows, nil
}

func (b *Builder) newContext(
	parks []models.Park,
	attractions []models.Attraction,
	holidays []models.Holiday,
	schedules []models.ScheduleEntry,
	weather []models.WeatherObservation,
	history []models.Observation,
	live *LiveContext,
	volatilityCap float64,
) *Context {
	parkMap := make(map[string]models.Park, len(parks))
	for _, p := range parks {
		parkMap[p.ID] = p
	}
	attractionMap := make(map[string]models.Attraction, len(attractions))
	for _, a := range attractions {
		attractionMap[a.ID] = a
	}

	return &Context{
		Localizer:     calendar.NewLocalizer(parks),
		Holidays:      calendar.NewHolidayIndex(holidays),
		Schedules:     NewScheduleIndex(schedules),
		Weather:       NewWeatherIndex(weather),
		History:       NewHistoryIndex(history),
		Parks:         parkMap,
		Attractions:   attractionMap,
		Live:          live,
		VolatilityCap: volatilityCap,
	}
}

package calendar

import (
	"log"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// Countries whose weekend falls on Friday and Saturday.
var fridayWeekendCountries = map[string]bool{
	"SA": true,
	"AE": true,
	"BH": true,
	"KW": true,
	"OM": true,
	"QA": true,
	"IL": true,
}

// Localizer converts UTC observation timestamps into per-park local
// wall-clock time. Every calendar-keyed lookup downstream (holiday date,
// schedule date, hour-of-day) must use the localized timestamp; UTC shifts
// the calendar date near midnight for offset parks.
type Localizer struct {
	locations map[string]*time.Location
	countries map[string]string
}

// NewLocalizer resolves each park's IANA timezone once. A park with an
// unresolvable timezone degrades to UTC with a warning; the batch still
// completes.
func NewLocalizer(parks []models.Park) *Localizer {
	l := &Localizer{
		locations: make(map[string]*time.Location, len(parks)),
		countries: make(map[string]string, len(parks)),
	}
	for _, p := range parks {
		loc, err := time.LoadLocation(p.Timezone)
		if err != nil {
			log.Printf("Warning: park %s has unresolvable timezone %q, falling back to UTC: %v", p.ID, p.Timezone, err)
			loc = time.UTC
		}
		l.locations[p.ID] = loc
		l.countries[p.ID] = p.Country
	}
	return l
}

// Location returns the park's resolved timezone, or UTC for unknown parks.
func (l *Localizer) Location(parkID string) *time.Location {
	if loc, ok := l.locations[parkID]; ok {
		return loc
	}
	return time.UTC
}

// Localize converts a UTC timestamp to the park's local wall-clock time.
func (l *Localizer) Localize(parkID string, t time.Time) time.Time {
	return t.In(l.Location(parkID))
}

// Country returns the park's country code, empty for unknown parks.
func (l *Localizer) Country(parkID string) string {
	return l.countries[parkID]
}

// IsWeekend applies the region-specific weekend definition: Friday and
// Saturday for the Middle-East country set, Saturday and Sunday otherwise.
func IsWeekend(country string, t time.Time) bool {
	wd := t.Weekday()
	if fridayWeekendCountries[country] {
		return wd == time.Friday || wd == time.Saturday
	}
	return wd == time.Saturday || wd == time.Sunday
}

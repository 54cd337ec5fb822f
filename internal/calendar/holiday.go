package calendar

import (
	"strings"
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// DayResolution is the calendar classification of a single local date for
// one (country, region) pair.
type DayResolution struct {
	IsHoliday bool
	Label     string
	Type      string // "public" or "school" when IsHoliday
	IsBridge  bool
}

// NormalizeRegion reduces a region code to the part after its last
// separator, so "DE-NW", "de_nw" and "NW" all resolve to "NW".
func NormalizeRegion(code string) string {
	code = strings.TrimSpace(code)
	if idx := strings.LastIndexAny(code, "-_"); idx >= 0 {
		code = code[idx+1:]
	}
	return strings.ToUpper(code)
}

type holidayKey struct {
	country string
	region  string
	day     int
}

// HolidayIndex is a hash-indexed holiday calendar. Regional entries take
// precedence over nationwide entries for the same (country, date).
type HolidayIndex struct {
	regional map[holidayKey]models.Holiday
	national map[holidayKey]models.Holiday
}

// NewHolidayIndex builds the lookup index from raw holiday rows. Region
// codes are normalized once at build time.
func NewHolidayIndex(rows []models.Holiday) *HolidayIndex {
	ix := &HolidayIndex{
		regional: make(map[holidayKey]models.Holiday, len(rows)),
		national: make(map[holidayKey]models.Holiday, len(rows)),
	}
	for _, h := range rows {
		day := dateKey(h.Date)
		country := strings.ToUpper(h.Country)
		if h.Nationwide || h.Region == "" {
			k := holidayKey{country: country, day: day}
			if _, exists := ix.national[k]; !exists {
				ix.national[k] = h
			}
			continue
		}
		k := holidayKey{country: country, region: NormalizeRegion(h.Region), day: day}
		if _, exists := ix.regional[k]; !exists {
			ix.regional[k] = h
		}
	}
	return ix
}

// Lookup returns the holiday applying to (country, region, date), with
// regional entries preferred over nationwide ones.
func (ix *HolidayIndex) Lookup(country, region string, date time.Time) (models.Holiday, bool) {
	day := dateKey(date)
	country = strings.ToUpper(country)
	if region != "" {
		k := holidayKey{country: country, region: NormalizeRegion(region), day: day}
		if h, ok := ix.regional[k]; ok {
			return h, true
		}
	}
	h, ok := ix.national[holidayKey{country: country, day: day}]
	return h, ok
}

// Resolve classifies one local date: direct holiday, school-holiday weekend
// extension, or bridge day. A date classified as a holiday is never also a
// bridge day.
func (ix *HolidayIndex) Resolve(country, region string, date time.Time) DayResolution {
	if h, ok := ix.Lookup(country, region, date); ok {
		return DayResolution{IsHoliday: true, Label: h.Name, Type: h.Type}
	}

	// School holidays on a Friday extend over the weekend. Public holidays
	// never do.
	switch date.Weekday() {
	case time.Saturday:
		if h, ok := ix.Lookup(country, region, date.AddDate(0, 0, -1)); ok && h.Type == "school" {
			return DayResolution{IsHoliday: true, Label: h.Name, Type: h.Type}
		}
	case time.Sunday:
		if h, ok := ix.Lookup(country, region, date.AddDate(0, 0, -2)); ok && h.Type == "school" {
			return DayResolution{IsHoliday: true, Label: h.Name, Type: h.Type}
		}
	}

	if ix.isBridge(country, region, date) {
		return DayResolution{IsBridge: true}
	}
	return DayResolution{}
}

// isBridge reports whether a non-holiday weekday sits next to public
// holidays in a way that commonly turns it into a day off. School holidays
// never produce bridge days.
func (ix *HolidayIndex) isBridge(country, region string, date time.Time) bool {
	switch date.Weekday() {
	case time.Friday:
		return ix.isPublic(country, region, date.AddDate(0, 0, -1))
	case time.Monday:
		return ix.isPublic(country, region, date.AddDate(0, 0, 1))
	case time.Tuesday, time.Wednesday, time.Thursday:
		return ix.isPublic(country, region, date.AddDate(0, 0, -1)) &&
			ix.isPublic(country, region, date.AddDate(0, 0, 1))
	}
	return false
}

func (ix *HolidayIndex) isPublic(country, region string, date time.Time) bool {
	h, ok := ix.Lookup(country, region, date)
	return ok && h.Type == "public"
}

// dateKey collapses a timestamp to a comparable calendar-date integer.
func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

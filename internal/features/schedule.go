package features

import (
	"time"

	"github.com/PArns/v4.ml.park.fan/internal/models"
)

// OperatingState is the resolved open/closed/event state of one
// (park, attraction, local timestamp).
type OperatingState struct {
	IsOpen           bool
	HasSpecialEvent  bool
	HasExtraHours    bool
	MinutesSinceOpen float64
	ForcedOpen       bool
	ScheduleFound    bool
}

type parkDayKey struct {
	park string
	day  int
}

type attractionDayKey struct {
	park       string
	attraction string
	day        int
}

// ScheduleIndex hash-indexes schedule entries by calendar date so state
// resolution never scans rows. Park-level entries set the default state;
// attraction-level MAINTENANCE/CLOSED entries override a single attraction
// to closed regardless of park state.
type ScheduleIndex struct {
	parkDays       map[parkDayKey][]models.ScheduleEntry
	attractionDays map[attractionDayKey][]models.ScheduleEntry
	parksWithData  map[string]bool
}

func NewScheduleIndex(entries []models.ScheduleEntry) *ScheduleIndex {
	ix := &ScheduleIndex{
		parkDays:       make(map[parkDayKey][]models.ScheduleEntry),
		attractionDays: make(map[attractionDayKey][]models.ScheduleEntry),
		parksWithData:  make(map[string]bool),
	}
	for _, e := range entries {
		day := localDateKey(e.Date)
		ix.parksWithData[e.ParkID] = true
		if e.AttractionID == "" {
			k := parkDayKey{park: e.ParkID, day: day}
			ix.parkDays[k] = append(ix.parkDays[k], e)
			continue
		}
		k := attractionDayKey{park: e.ParkID, attraction: e.AttractionID, day: day}
		ix.attractionDays[k] = append(ix.attractionDays[k], e)
	}
	return ix
}

// HasPark reports whether any schedule data exists for the park. The final
// prediction filter fails open when this is false.
func (ix *ScheduleIndex) HasPark(parkID string) bool {
	return ix != nil && ix.parksWithData[parkID]
}

// Resolve computes the operating state for a localized timestamp.
// observedWait carries ground truth (training: the actual wait; inference:
// a caller-supplied current wait): if it is positive while no schedule
// marks the time open, open is forced, since schedule data is a secondary
// signal and must never contradict observed reality.
func (ix *ScheduleIndex) Resolve(parkID, attractionID string, local time.Time, observedWait float64, hasObserved bool) OperatingState {
	var st OperatingState
	if ix == nil {
		if hasObserved && observedWait > 0 {
			st.IsOpen = true
			st.ForcedOpen = true
		}
		return st
	}

	day := localDateKey(local)
	parkEntries := ix.parkDays[parkDayKey{park: parkID, day: day}]
	attrEntries := ix.attractionDays[attractionDayKey{park: parkID, attraction: attractionID, day: day}]
	st.ScheduleFound = len(parkEntries)+len(attrEntries) > 0

	forcedClosed := false
	apply := func(entries []models.ScheduleEntry, attractionLevel bool) {
		for _, e := range entries {
			switch e.Type {
			case models.ScheduleOperating:
				if withinInterval(local, e.OpeningTime, e.ClosingTime) {
					st.IsOpen = true
					if m := local.Sub(e.OpeningTime).Minutes(); m > st.MinutesSinceOpen {
						st.MinutesSinceOpen = m
					}
				}
			case models.ScheduleMaintenance, models.ScheduleClosed:
				if attractionLevel {
					forcedClosed = true
				}
			case models.ScheduleTicketedEvent, models.SchedulePrivateEvent:
				st.HasSpecialEvent = true
			case models.ScheduleExtraHours:
				st.HasExtraHours = true
				if withinInterval(local, e.OpeningTime, e.ClosingTime) {
					st.IsOpen = true
				}
			}
		}
	}
	apply(parkEntries, false)
	apply(attrEntries, true)

	if forcedClosed {
		st.IsOpen = false
		st.MinutesSinceOpen = 0
		return st
	}

	if !st.IsOpen {
		st.MinutesSinceOpen = 0
		if hasObserved && observedWait > 0 {
			st.IsOpen = true
			st.ForcedOpen = true
		}
	}
	if st.MinutesSinceOpen < 0 {
		st.MinutesSinceOpen = 0
	}
	return st
}

// ClosedForMaintenance reports whether an attraction-level MAINTENANCE or
// CLOSED entry overrides the given local date.
func (ix *ScheduleIndex) ClosedForMaintenance(parkID, attractionID string, local time.Time) bool {
	if ix == nil {
		return false
	}
	k := attractionDayKey{park: parkID, attraction: attractionID, day: localDateKey(local)}
	for _, e := range ix.attractionDays[k] {
		if e.Type == models.ScheduleMaintenance || e.Type == models.ScheduleClosed {
			return true
		}
	}
	return false
}

// OperatingWindow returns the park-level OPERATING interval for a local
// date. ok is false when the park has no OPERATING entry that day.
func (ix *ScheduleIndex) OperatingWindow(parkID string, local time.Time) (opening, closing time.Time, ok bool) {
	if ix == nil {
		return time.Time{}, time.Time{}, false
	}
	for _, e := range ix.parkDays[parkDayKey{park: parkID, day: localDateKey(local)}] {
		if e.Type != models.ScheduleOperating {
			continue
		}
		if !ok || e.OpeningTime.Before(opening) {
			opening = e.OpeningTime
		}
		if !ok || e.ClosingTime.After(closing) {
			closing = e.ClosingTime
		}
		ok = true
	}
	return opening, closing, ok
}

// IsOperatingDay reports whether the park has any OPERATING entry on the
// local date.
func (ix *ScheduleIndex) IsOperatingDay(parkID string, local time.Time) bool {
	_, _, ok := ix.OperatingWindow(parkID, local)
	return ok
}

// withinInterval checks the [opening, closing) contract. Entries without
// times (zero values) never match.
func withinInterval(t, opening, closing time.Time) bool {
	if opening.IsZero() || closing.IsZero() {
		return false
	}
	return !t.Before(opening) && t.Before(closing)
}

// localDateKey collapses a timestamp to its wall-clock calendar date.
func localDateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

package predict

import "time"

// HourlyTimestamps generates the next `steps` full hours, starting at the
// first full hour after base.
func HourlyTimestamps(base time.Time, steps int) []time.Time {
	start := base.Truncate(time.Hour).Add(time.Hour)
	out := make([]time.Time, 0, steps)
	for i := 0; i < steps; i++ {
		out = append(out, start.Add(time.Duration(i)*time.Hour))
	}
	return out
}

// DailyTimestamps generates one point per day for the next `steps` days,
// anchored at 14:00 in the given location: mid-afternoon is when daily
// crowd levels are most representative.
func DailyTimestamps(base time.Time, steps int, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := base.In(loc)
	out := make([]time.Time, 0, steps)
	for i := 1; i <= steps; i++ {
		d := local.AddDate(0, 0, i)
		out = append(out, time.Date(d.Year(), d.Month(), d.Day(), 14, 0, 0, 0, loc).UTC())
	}
	return out
}

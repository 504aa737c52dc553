package movement

import "time"

// DisplayLayout renders created_at as "Jan 05, 14:30".
const DisplayLayout = "Jan 02, 15:04"

// FormatTimestamp renders t in loc (UTC when nil) using DisplayLayout.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DisplayLayout)
}

// Package timefmt formats timestamps for transcripts and prompts.
//
// The agent presents times to the model in Asia/Shanghai regardless of host
// timezone, matching the rooms it serves.
package timefmt

import "time"

const layout = "2006-01-02 15:04:05"

// shanghai is resolved once; a fixed UTC+8 zone stands in when the tzdata
// lookup fails (e.g. minimal containers without zoneinfo).
var shanghai = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}()

// Format renders t in Asia/Shanghai as "YYYY-MM-DD HH:MM:SS".
func Format(t time.Time) string {
	return t.In(shanghai).Format(layout)
}

// Now renders the current time in Asia/Shanghai.
func Now() string {
	return Format(time.Now())
}

// Parse reads a "YYYY-MM-DD HH:MM:SS" timestamp as Asia/Shanghai wall time.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(layout, s, shanghai)
}

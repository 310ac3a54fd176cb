// Package schedule maps wall-clock time onto the configured setpoint schedule.
package schedule

import (
	"time"

	"github.com/thatsimonsguy/propagator/internal/model"
)

// Resolve returns the setpoint of the latest entry whose time of day has
// passed. Before the first entry of the day the first entry's setpoint still
// applies. Entries are compared in stored order.
func Resolve(entries []model.ScheduleEntry, now time.Time) float64 {
	if len(entries) == 0 {
		return 0
	}

	tod := model.TimeOfDayOf(now)
	setpoint := entries[0].Setpoint
	for _, e := range entries {
		if tod >= e.Time {
			setpoint = e.Setpoint
		}
	}
	return setpoint
}

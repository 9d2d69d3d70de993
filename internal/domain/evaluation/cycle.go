// internal/domain/evaluation/cycle.go
package evaluation

import "time"

// Cycle is a time-bounded evaluation campaign spanning several classes.
type Cycle struct {
	ID        int64
	Name      string
	StartDate time.Time
	EndDate   time.Time // last day on which responses are accepted
	Active    bool
	Closed    bool
	CreatedAt time.Time
}

// HasEnded reports whether the cycle's end date is strictly before the date of now.
// EndDate is a calendar day: its own year/month/day are used, never its instant,
// so a DATE decoded at UTC midnight is not shifted into the previous day.
func (c *Cycle) HasEnded(now time.Time) bool {
	loc := now.Location()
	end := time.Date(c.EndDate.Year(), c.EndDate.Month(), c.EndDate.Day(), 0, 0, 0, 0, loc)
	today := dateOnly(now, loc)
	return end.Before(today)
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DateOnly normalizes t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	return dateOnly(t, t.Location())
}

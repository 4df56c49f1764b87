package foil

import "time"

const dateLayout = "2006-01-02"

// Calendar counts business days, skipping weekends and configured holidays
type Calendar struct {
	holidays map[string]bool
}

// NewCalendar creates a calendar with the given holidays. Dates are
// YYYY-MM-DD; unparsable entries are ignored.
func NewCalendar(holidays []string) *Calendar {
	c := &Calendar{holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		if d, err := time.Parse(dateLayout, h); err == nil {
			c.holidays[d.Format(dateLayout)] = true
		}
	}
	return c
}

// IsBusinessDay reports whether t falls on a working day
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[t.Format(dateLayout)]
}

// AddBusinessDays moves t forward by n working days, keeping the time of
// day. A request received on a non-working day starts counting from the
// next working day.
func (c *Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if c.IsBusinessDay(t) {
			n--
		}
	}
	return t
}

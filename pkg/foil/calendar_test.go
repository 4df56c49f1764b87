package foil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t.Add(10 * time.Hour)
}

func TestAddBusinessDays(t *testing.T) {
	tests := []struct {
		name     string
		holidays []string
		start    string
		days     int
		want     string
	}{
		{"same week", nil, "2024-03-04", 3, "2024-03-07"},
		{"skips weekend", nil, "2024-03-01", 5, "2024-03-08"},
		{"twenty days is four weeks", nil, "2024-01-08", 20, "2024-02-05"},
		{"starts on saturday", nil, "2024-03-02", 1, "2024-03-04"},
		{"skips holiday", []string{"2024-03-04"}, "2024-03-01", 5, "2024-03-11"},
		{"zero days", nil, "2024-03-02", 0, "2024-03-02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := NewCalendar(tt.holidays)
			got := cal.AddBusinessDays(day(tt.start), tt.days)
			assert.Equal(t, tt.want, got.Format(dateLayout))
			assert.Equal(t, 10, got.Hour(), "time of day is kept")
		})
	}
}

func TestIsBusinessDay(t *testing.T) {
	cal := NewCalendar([]string{"2024-07-04", "not-a-date"})
	assert.True(t, cal.IsBusinessDay(day("2024-07-03")))
	assert.False(t, cal.IsBusinessDay(day("2024-07-04")))
	assert.False(t, cal.IsBusinessDay(day("2024-07-06")))
	assert.False(t, cal.IsBusinessDay(day("2024-07-07")))
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, StatusReceived.CanTransition(StatusAcknowledged))
	assert.True(t, StatusAcknowledged.CanTransition(StatusExtended))
	assert.True(t, StatusExtended.CanTransition(StatusExtended))
	assert.True(t, StatusInProgress.CanTransition(StatusPartiallyGranted))

	assert.False(t, StatusReceived.CanTransition(StatusExtended))
	assert.False(t, StatusReceived.CanTransition(StatusReceived))
	assert.False(t, StatusInProgress.CanTransition(StatusAcknowledged))

	for _, terminal := range []Status{StatusGranted, StatusPartiallyGranted, StatusDenied, StatusClosed} {
		assert.True(t, terminal.Terminal())
		for _, next := range []Status{StatusReceived, StatusInProgress, StatusExtended, StatusClosed} {
			assert.False(t, terminal.CanTransition(next), "%s -> %s", terminal, next)
		}
	}
	assert.False(t, Status("PENDING").Valid())
}

func TestRequestOverdue(t *testing.T) {
	now := day("2024-03-10")
	r := &Request{Status: StatusInProgress, DueAt: day("2024-03-08")}
	assert.True(t, r.Overdue(now))

	r.Status = StatusGranted
	assert.False(t, r.Overdue(now))

	r.Status = StatusReceived
	r.DueAt = day("2024-03-12")
	assert.False(t, r.Overdue(now))
}

package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes the next sync after a given time.
// Every Schedule is also a cron.Schedule.
type Schedule interface {
	Next(from time.Time) time.Time
}

// MinInterval is the shortest gap Every allows between syncs of one entry.
const MinInterval = 10 * time.Second

// parser accepts standard 5-field expressions and descriptors like "@every 5m".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type interval time.Duration

// Every syncs at a fixed interval, raised to MinInterval when shorter.
func Every(d time.Duration) Schedule {
	return interval(max(d, MinInterval))
}

func (i interval) Next(from time.Time) time.Time {
	return from.Add(time.Duration(i))
}

// clock fires at hour:minute on the listed weekdays, or every day when days is empty.
type clock struct {
	days   []time.Weekday
	hour   int
	minute int
	loc    *time.Location
}

// Daily syncs at hour:minute UTC each day.
func Daily(hour, minute int) Schedule {
	return &clock{hour: hour, minute: minute, loc: time.UTC}
}

// Weekly syncs on day at hour:minute UTC each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return &clock{days: []time.Weekday{day}, hour: hour, minute: minute, loc: time.UTC}
}

// Weekdays syncs at hour:minute UTC Monday through Friday, matching washer shifts.
func Weekdays(hour, minute int) Schedule {
	return &clock{
		days:   []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		hour:   hour,
		minute: minute,
		loc:    time.UTC,
	}
}

// In returns a copy of s evaluated in loc. Schedules other than Daily,
// Weekly and Weekdays are returned unchanged.
func In(s Schedule, loc *time.Location) Schedule {
	c, ok := s.(*clock)
	if !ok || loc == nil {
		return s
	}
	cp := *c
	cp.loc = loc
	return &cp
}

func (c *clock) Next(from time.Time) time.Time {
	from = from.In(c.loc)
	next := time.Date(from.Year(), from.Month(), from.Day(), c.hour, c.minute, 0, 0, c.loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	for i := 0; i < 7; i++ {
		if c.runsOn(next.Weekday()) {
			return next
		}
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (c *clock) runsOn(day time.Weekday) bool {
	if len(c.days) == 0 {
		return true
	}
	for _, d := range c.days {
		if d == day {
			return true
		}
	}
	return false
}

// Parse parses a cron expression or descriptor.
func Parse(expr string) (Schedule, error) {
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("jobsync: invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

// Cron is like Parse but panics on an invalid expression.
func Cron(expr string) Schedule {
	s, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return s
}

package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields the next firing time after from.
type Schedule interface {
	Next(from time.Time) time.Time
}

type interval struct {
	every time.Duration
}

// Every fires at a fixed interval. Non-positive intervals are raised to one
// second.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		d = time.Second
	}
	return &interval{every: d}
}

func (s *interval) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

type clock struct {
	weekday *time.Weekday
	hour    int
	minute  int
	loc     *time.Location
}

// Daily fires every day at hour:minute UTC.
func Daily(hour, minute int) Schedule {
	return DailyIn(time.UTC, hour, minute)
}

// DailyIn fires every day at hour:minute in loc.
func DailyIn(loc *time.Location, hour, minute int) Schedule {
	return &clock{hour: hour, minute: minute, loc: loc}
}

// Weekly fires on day at hour:minute UTC.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return &clock{weekday: &day, hour: hour, minute: minute, loc: time.UTC}
}

func (s *clock) Next(from time.Time) time.Time {
	from = from.In(s.loc)
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, s.loc)

	if s.weekday == nil {
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}

	days := int(*s.weekday - from.Weekday())
	if days < 0 {
		days += 7
	}
	next = next.AddDate(0, 0, days)
	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type cronSchedule struct {
	expr     string
	schedule cron.Schedule
}

// ParseCron parses a five-field cron expression or a descriptor such as
// "@hourly" or "@every 30s".
func ParseCron(expr string) (Schedule, error) {
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid cron expression %q: %w", expr, err)
	}
	return &cronSchedule{expr: expr, schedule: s}, nil
}

// Cron is ParseCron for expressions known to be valid. It panics on error.
func Cron(expr string) Schedule {
	s, err := ParseCron(expr)
	if err != nil {
		panic(err.Error())
	}
	return s
}

func (s *cronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

func (s *cronSchedule) String() string {
	return s.expr
}

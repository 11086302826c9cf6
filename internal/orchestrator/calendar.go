package orchestrator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TradingCalendar describes the daily collection window: weekdays plus a
// start and end time of day in one location. Start is inclusive, end exclusive.
type TradingCalendar struct {
	Location *time.Location
	start    time.Duration
	end      time.Duration
	weekdays map[time.Weekday]bool
}

// NewTradingCalendar parses HH:MM:SS bounds. Weekdays use 0 = Sunday.
func NewTradingCalendar(loc *time.Location, start, end string, weekdays []int) (*TradingCalendar, error) {
	s, err := parseClock(start)
	if err != nil {
		return nil, err
	}
	e, err := parseClock(end)
	if err != nil {
		return nil, err
	}
	if s >= e {
		return nil, fmt.Errorf("window start %s must be before end %s", start, end)
	}
	if loc == nil {
		loc = time.UTC
	}

	days := make(map[time.Weekday]bool, len(weekdays))
	for _, d := range weekdays {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("weekday %d out of range 0-6", d)
		}
		days[time.Weekday(d)] = true
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("at least one trading weekday is required")
	}

	return &TradingCalendar{Location: loc, start: s, end: e, weekdays: days}, nil
}

func parseClock(v string) (time.Duration, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q, want HH:MM:SS", v)
	}
	var n [3]int
	for i, p := range parts {
		x, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid time of day %q: %w", v, err)
		}
		n[i] = x
	}
	if n[0] > 23 || n[1] > 59 || n[2] > 59 || n[0] < 0 || n[1] < 0 || n[2] < 0 {
		return 0, fmt.Errorf("invalid time of day %q", v)
	}
	return time.Duration(n[0])*time.Hour + time.Duration(n[1])*time.Minute + time.Duration(n[2])*time.Second, nil
}

// InWindow reports whether t falls on a trading weekday within [start, end).
func (c *TradingCalendar) InWindow(t time.Time) bool {
	local := t.In(c.Location)
	if !c.weekdays[local.Weekday()] {
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location)
	tod := local.Sub(midnight)
	return tod >= c.start && tod < c.end
}

// StartSpec is the six-field cron expression (with seconds) for the window start.
func (c *TradingCalendar) StartSpec() string {
	return c.spec(c.start)
}

// EndSpec is the cron expression for the window end.
func (c *TradingCalendar) EndSpec() string {
	return c.spec(c.end)
}

func (c *TradingCalendar) spec(tod time.Duration) string {
	h := int(tod / time.Hour)
	m := int(tod % time.Hour / time.Minute)
	s := int(tod % time.Minute / time.Second)
	return fmt.Sprintf("%d %d %d * * %s", s, m, h, c.weekdayField())
}

func (c *TradingCalendar) weekdayField() string {
	days := make([]int, 0, len(c.weekdays))
	for d := range c.weekdays {
		days = append(days, int(d))
	}
	sort.Ints(days)

	// Collapse consecutive runs: [1 2 3 4 5] -> "1-5".
	var parts []string
	for i := 0; i < len(days); {
		j := i
		for j+1 < len(days) && days[j+1] == days[j]+1 {
			j++
		}
		if j > i {
			parts = append(parts, fmt.Sprintf("%d-%d", days[i], days[j]))
		} else {
			parts = append(parts, strconv.Itoa(days[i]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// Describe renders the window for humans, e.g. "09:15:30-15:35:00 Asia/Kolkata (1-5)".
func (c *TradingCalendar) Describe() string {
	return fmt.Sprintf("%s-%s %s (%s)", formatClock(c.start), formatClock(c.end), c.Location, c.weekdayField())
}

func formatClock(tod time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(tod/time.Hour), int(tod%time.Hour/time.Minute), int(tod%time.Minute/time.Second))
}

package orchestrator

import (
	"testing"
	"time"
)

var testIST = time.FixedZone("IST", 19800)

func nseCalendar(t *testing.T) *TradingCalendar {
	t.Helper()
	cal, err := NewTradingCalendar(testIST, "09:15:30", "15:35:00", []int{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("NewTradingCalendar failed: %v", err)
	}
	return cal
}

func TestInWindow(t *testing.T) {
	cal := nseCalendar(t)

	// 2025-05-12 is a Monday.
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"just before start", time.Date(2025, 5, 12, 9, 15, 29, 0, testIST), false},
		{"at start", time.Date(2025, 5, 12, 9, 15, 30, 0, testIST), true},
		{"midday", time.Date(2025, 5, 12, 12, 0, 0, 0, testIST), true},
		{"just before end", time.Date(2025, 5, 12, 15, 34, 59, 0, testIST), true},
		{"at end", time.Date(2025, 5, 12, 15, 35, 0, 0, testIST), false},
		{"saturday", time.Date(2025, 5, 10, 12, 0, 0, 0, testIST), false},
		{"sunday", time.Date(2025, 5, 11, 12, 0, 0, 0, testIST), false},
		{"utc input converted", time.Date(2025, 5, 12, 4, 0, 0, 0, time.UTC), true},
		{"utc late evening is next day", time.Date(2025, 5, 9, 20, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		if got := cal.InWindow(tt.at); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestCronSpecs(t *testing.T) {
	cal := nseCalendar(t)
	if got := cal.StartSpec(); got != "30 15 9 * * 1-5" {
		t.Errorf("Unexpected start spec %q", got)
	}
	if got := cal.EndSpec(); got != "0 35 15 * * 1-5" {
		t.Errorf("Unexpected end spec %q", got)
	}

	odd, err := NewTradingCalendar(testIST, "10:00:00", "11:00:00", []int{5, 0, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if got := odd.StartSpec(); got != "0 0 10 * * 0,2-3,5" {
		t.Errorf("Unexpected spec %q", got)
	}
	if got := cal.Describe(); got != "09:15:30-15:35:00 IST (1-5)" {
		t.Errorf("Unexpected description %q", got)
	}
}

func TestNewTradingCalendarInvalid(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		days       []int
	}{
		{"bad format", "9:15", "15:35:00", []int{1}},
		{"hour out of range", "24:00:00", "15:35:00", []int{1}},
		{"start after end", "16:00:00", "15:35:00", []int{1}},
		{"no weekdays", "09:15:30", "15:35:00", nil},
		{"weekday out of range", "09:15:30", "15:35:00", []int{7}},
	}
	for _, tt := range tests {
		if _, err := NewTradingCalendar(testIST, tt.start, tt.end, tt.days); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

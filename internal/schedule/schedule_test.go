package schedule

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clockAt(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func TestParseTimeOfDay(t *testing.T) {
	cases := map[string]TimeOfDay{
		"00:00": 0,
		"08:30": 510,
		"12:00": 720,
		"17:15": 1035,
		"23:59": 1439,
	}
	for input, expect := range cases {
		parsed, err := ParseTimeOfDay(input)
		if err != nil {
			t.Fatalf("expected %s to parse: %v", input, err)
		}
		if parsed != expect {
			t.Fatalf("expected %s to parse to %d, got %d", input, expect, parsed)
		}
		if parsed.String() != input {
			t.Fatalf("expected %s to round-trip, got %s", input, parsed.String())
		}
	}

	invalid := []string{"", "8", "24:00", "12:60", "-1:30", "ab:cd", "12:00:00"}
	for _, input := range invalid {
		if _, err := ParseTimeOfDay(input); err == nil {
			t.Fatalf("expected %q to be rejected", input)
		}
	}
}

func TestTimeOfDayFrom(t *testing.T) {
	if got := TimeOfDayFrom(clockAt(8, 45)); got != MustParseTimeOfDay("08:45") {
		t.Fatalf("expected 08:45, got %s", got)
	}
	// Seconds are below gating resolution.
	withSeconds := time.Date(2026, 3, 2, 8, 45, 59, 0, time.UTC)
	if got := TimeOfDayFrom(withSeconds); got != MustParseTimeOfDay("08:45") {
		t.Fatalf("expected seconds to be dropped, got %s", got)
	}
}

func TestWithinSchoolHoursBounds(t *testing.T) {
	cfg := Default()
	cases := map[string]bool{
		"07:59": false,
		"08:00": true,
		"12:30": true,
		"17:00": true,
		"17:01": false,
	}
	for input, expect := range cases {
		if got := cfg.WithinSchoolHours(MustParseTimeOfDay(input)); got != expect {
			t.Fatalf("expected WithinSchoolHours(%s)=%v, got %v", input, expect, got)
		}
	}
}

func TestActivePeriod(t *testing.T) {
	cfg := Default()

	if p := cfg.ActivePeriod(MustParseTimeOfDay("08:29")); p != nil {
		t.Fatalf("expected no active period before p1, got %s", p.ID)
	}
	for _, input := range []string{"08:30", "09:15", "10:00"} {
		p := cfg.ActivePeriod(MustParseTimeOfDay(input))
		if p == nil || p.ID != "p1" {
			t.Fatalf("expected p1 active at %s", input)
		}
	}
	if p := cfg.ActivePeriod(MustParseTimeOfDay("10:01")); p != nil {
		t.Fatalf("expected gap after p1, got %s", p.ID)
	}
}

func TestActivePeriodFirstMatchWins(t *testing.T) {
	// Overlaps are rejected by Validate; if one slips through anyway, the
	// earlier-declared period must win.
	cfg := Config{
		Hours: SchoolHours{Start: MustParseTimeOfDay("08:00"), End: MustParseTimeOfDay("17:00")},
		Periods: []Period{
			{ID: "a", Name: "A", Start: MustParseTimeOfDay("09:00"), End: MustParseTimeOfDay("10:00")},
			{ID: "b", Name: "B", Start: MustParseTimeOfDay("09:30"), End: MustParseTimeOfDay("10:30")},
		},
	}
	p := cfg.ActivePeriod(MustParseTimeOfDay("09:45"))
	if p == nil || p.ID != "a" {
		t.Fatalf("expected first declared period to win, got %+v", p)
	}
}

func TestNextPeriod(t *testing.T) {
	cfg := Default()

	p := cfg.NextPeriod(MustParseTimeOfDay("08:00"))
	if p == nil || p.ID != "p1" {
		t.Fatalf("expected p1 next at 08:00")
	}
	// Strictly after: a period starting exactly now is not "next".
	p = cfg.NextPeriod(MustParseTimeOfDay("08:30"))
	if p == nil || p.ID != "p2" {
		t.Fatalf("expected p2 next at 08:30, got %+v", p)
	}
	if p := cfg.NextPeriod(MustParseTimeOfDay("16:00")); p != nil {
		t.Fatalf("expected no next period after the last start, got %s", p.ID)
	}

	empty := Config{Hours: cfg.Hours}
	if p := empty.NextPeriod(MustParseTimeOfDay("08:00")); p != nil {
		t.Fatalf("expected no next period without periods")
	}
}

func TestTimeUntil(t *testing.T) {
	if d := TimeUntil(MustParseTimeOfDay("08:30"), MustParseTimeOfDay("08:15")); d != 15*time.Minute {
		t.Fatalf("expected 15m, got %s", d)
	}
	if d := TimeUntil(MustParseTimeOfDay("08:15"), MustParseTimeOfDay("08:15")); d != 0 {
		t.Fatalf("expected 0, got %s", d)
	}
	// A target already past today wraps to tomorrow, never negative.
	if d := TimeUntil(MustParseTimeOfDay("08:00"), MustParseTimeOfDay("17:30")); d != 14*time.Hour+30*time.Minute {
		t.Fatalf("expected 14h30m wrap, got %s", d)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(0); got != "0m" {
		t.Fatalf("expected 0m, got %s", got)
	}
	if got := FormatDuration(10 * time.Minute); got != "10m" {
		t.Fatalf("expected 10m, got %s", got)
	}
	if got := FormatDuration(59 * time.Minute); got != "59m" {
		t.Fatalf("expected 59m, got %s", got)
	}
	if got := FormatDuration(time.Hour); got != "1h 0m" {
		t.Fatalf("expected 1h 0m, got %s", got)
	}
	if got := FormatDuration(time.Hour + 30*time.Minute); got != "1h 30m" {
		t.Fatalf("expected 1h 30m, got %s", got)
	}
	if got := FormatDuration(14*time.Hour + 30*time.Minute); got != "14h 30m" {
		t.Fatalf("expected 14h 30m, got %s", got)
	}
}

func TestPeriodKey(t *testing.T) {
	day := clockAt(8, 45)
	key := PeriodKey(day, "p1")
	if key != "2026-03-02-p1" {
		t.Fatalf("unexpected key %s", key)
	}
	if PeriodKey(day, "p1") != key {
		t.Fatalf("expected key to be stable")
	}
	if PeriodKey(day.AddDate(0, 0, 1), "p1") == key {
		t.Fatalf("expected different days to produce different keys")
	}
	if PeriodKey(day, "p2") == key {
		t.Fatalf("expected different periods to produce different keys")
	}
}

func TestHistory(t *testing.T) {
	hist := History{}
	key := PeriodKey(clockAt(8, 45), "p1")
	if hist.Has(key) {
		t.Fatalf("expected empty history to miss")
	}
	hist.Add(key)
	if !hist.Has(key) {
		t.Fatalf("expected history to contain added key")
	}
	if hist.Has(PeriodKey(clockAt(8, 45), "p2")) {
		t.Fatalf("expected other period keys to miss")
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default timetable to validate: %v", err)
	}

	hours := SchoolHours{Start: MustParseTimeOfDay("08:00"), End: MustParseTimeOfDay("17:00")}
	cases := map[string]Config{
		"inverted hours": {
			Hours: SchoolHours{Start: MustParseTimeOfDay("17:00"), End: MustParseTimeOfDay("08:00")},
		},
		"missing id": {
			Hours:   hours,
			Periods: []Period{{Name: "A", Start: MustParseTimeOfDay("09:00"), End: MustParseTimeOfDay("10:00")}},
		},
		"missing name": {
			Hours:   hours,
			Periods: []Period{{ID: "a", Start: MustParseTimeOfDay("09:00"), End: MustParseTimeOfDay("10:00")}},
		},
		"duplicate id": {
			Hours: hours,
			Periods: []Period{
				{ID: "a", Name: "A", Start: MustParseTimeOfDay("09:00"), End: MustParseTimeOfDay("10:00")},
				{ID: "a", Name: "B", Start: MustParseTimeOfDay("10:30"), End: MustParseTimeOfDay("11:00")},
			},
		},
		"inverted period": {
			Hours:   hours,
			Periods: []Period{{ID: "a", Name: "A", Start: MustParseTimeOfDay("10:00"), End: MustParseTimeOfDay("09:00")}},
		},
		"shared boundary minute": {
			Hours: hours,
			Periods: []Period{
				{ID: "a", Name: "A", Start: MustParseTimeOfDay("09:00"), End: MustParseTimeOfDay("10:00")},
				{ID: "b", Name: "B", Start: MustParseTimeOfDay("10:00"), End: MustParseTimeOfDay("11:00")},
			},
		},
		"out of order": {
			Hours: hours,
			Periods: []Period{
				{ID: "b", Name: "B", Start: MustParseTimeOfDay("10:30"), End: MustParseTimeOfDay("11:00")},
				{ID: "a", Name: "A", Start: MustParseTimeOfDay("09:00"), End: MustParseTimeOfDay("10:00")},
			},
		},
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected %s to be rejected", name)
		}
	}

	// An empty period list is a valid (if useless) timetable.
	if err := (Config{Hours: hours}).Validate(); err != nil {
		t.Fatalf("expected empty period list to validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	payload := `{
		"school_hours": {"start": "08:00", "end": "17:00"},
		"periods": [
			{"id": "m1", "name": "Morning Block", "start": "08:30", "end": "10:00"},
			{"id": "m2", "name": "Late Morning", "start": "10:15", "end": "11:45"}
		]
	}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write schedule file: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load schedule file: %v", err)
	}
	if len(cfg.Periods) != 2 || cfg.Periods[0].ID != "m1" {
		t.Fatalf("unexpected periods: %+v", cfg.Periods)
	}
	if cfg.Periods[0].Start != MustParseTimeOfDay("08:30") {
		t.Fatalf("expected start 08:30, got %s", cfg.Periods[0].Start)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected missing file to error")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"school_hours": {"start": "17:00", "end": "08:00"}}`), 0o600); err != nil {
		t.Fatalf("write schedule file: %v", err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Fatalf("expected invalid timetable to error")
	}
}

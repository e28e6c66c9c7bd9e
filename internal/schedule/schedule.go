// Package schedule decides whether a face-verification attempt is allowed
// at a given instant, based on a static daily timetable and the student's
// verification history for the day.
package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time as minutes since local midnight.
// Only minute resolution matters for verification gating.
type TimeOfDay int

func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	return TimeOfDay(hour*60 + minute), nil
}

func MustParseTimeOfDay(value string) TimeOfDay {
	parsed, err := ParseTimeOfDay(value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TimeOfDayFrom(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < minutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.String())), nil
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SchoolHours is the outer daily window outside of which no verification
// activity is permitted, whatever the period configuration says.
type SchoolHours struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

type Period struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Contains treats both boundary minutes as inside the period.
func (p Period) Contains(t TimeOfDay) bool {
	return t >= p.Start && t <= p.End
}

// Config is the complete daily timetable. It is loaded once at startup and
// read-only afterwards. Periods must be disjoint and in ascending start
// order; Validate enforces this at load time because the evaluation
// functions assume it and do not defend against overlaps.
type Config struct {
	Hours   SchoolHours `json:"school_hours"`
	Periods []Period    `json:"periods"`
}

// Default is the reference timetable used when no schedule file is
// configured.
func Default() Config {
	return Config{
		Hours: SchoolHours{Start: MustParseTimeOfDay("08:00"), End: MustParseTimeOfDay("17:00")},
		Periods: []Period{
			{ID: "p1", Name: "First Period", Start: MustParseTimeOfDay("08:30"), End: MustParseTimeOfDay("10:00")},
			{ID: "p2", Name: "Second Period", Start: MustParseTimeOfDay("10:15"), End: MustParseTimeOfDay("11:45")},
			{ID: "p3", Name: "Third Period", Start: MustParseTimeOfDay("12:00"), End: MustParseTimeOfDay("13:30")},
			{ID: "p4", Name: "Fourth Period", Start: MustParseTimeOfDay("14:00"), End: MustParseTimeOfDay("15:30")},
			{ID: "p5", Name: "Fifth Period", Start: MustParseTimeOfDay("15:45"), End: MustParseTimeOfDay("17:15")},
		},
	}
}

func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read schedule file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse schedule file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid schedule file: %w", err)
	}
	return cfg, nil
}

// Validate rejects timetables the evaluator is not defined over: inverted
// school hours or periods, blank or duplicate period ids, and periods that
// are out of order or share minutes. Period boundaries are inclusive, so a
// period starting on the minute the previous one ends counts as an overlap.
func (c Config) Validate() error {
	if !c.Hours.Start.Valid() || !c.Hours.End.Valid() {
		return fmt.Errorf("school hours out of range")
	}
	if c.Hours.End < c.Hours.Start {
		return fmt.Errorf("school hours end %s before start %s", c.Hours.End, c.Hours.Start)
	}
	seen := make(map[string]struct{}, len(c.Periods))
	for i, p := range c.Periods {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("period %d: missing id", i)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("period %s: missing name", p.ID)
		}
		if _, exists := seen[p.ID]; exists {
			return fmt.Errorf("period %s: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
		if !p.Start.Valid() || !p.End.Valid() {
			return fmt.Errorf("period %s: time out of range", p.ID)
		}
		if p.End < p.Start {
			return fmt.Errorf("period %s: ends %s before it starts %s", p.ID, p.End, p.Start)
		}
		if i > 0 && p.Start <= c.Periods[i-1].End {
			return fmt.Errorf("period %s starts %s before period %s ends %s", p.ID, p.Start, c.Periods[i-1].ID, c.Periods[i-1].End)
		}
	}
	return nil
}

// WithinSchoolHours is inclusive on both ends: the opening and closing
// minutes themselves count as within.
func (c Config) WithinSchoolHours(t TimeOfDay) bool {
	return t >= c.Hours.Start && t <= c.Hours.End
}

// ActivePeriod returns the first period in configured order containing t,
// or nil. With a validated config at most one period can match; the
// first-match rule is only a tie-break for misconfigured overlaps.
func (c Config) ActivePeriod(t TimeOfDay) *Period {
	for _, p := range c.Periods {
		if p.Contains(t) {
			period := p
			return &period
		}
	}
	return nil
}

// NextPeriod returns the first period in configured order starting
// strictly after t, or nil. It never wraps to the next day.
func (c Config) NextPeriod(t TimeOfDay) *Period {
	for _, p := range c.Periods {
		if p.Start > t {
			period := p
			return &period
		}
	}
	return nil
}

// TimeUntil is the duration from now forward to the next occurrence of
// target, wrapping past midnight when target has already gone by today.
func TimeUntil(target, now TimeOfDay) time.Duration {
	diff := int(target) - int(now)
	if diff < 0 {
		diff += minutesPerDay
	}
	return time.Duration(diff) * time.Minute
}

// FormatDuration renders a duration the way status badges expect it:
// "2h 5m", or "45m" when under an hour.
func FormatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes >= 60 {
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}

// PeriodKey derives the verification-history key for one period on one
// calendar day, e.g. "2026-08-26-p1".
func PeriodKey(day time.Time, periodID string) string {
	return fmt.Sprintf("%s-%s", day.Format("2006-01-02"), periodID)
}

// History is a snapshot of the verification-marker keys already written
// for one student on one day. The evaluator only ever reads it; loading
// and persisting markers is the store's job.
type History map[string]struct{}

func (h History) Has(key string) bool {
	_, exists := h[key]
	return exists
}

func (h History) Add(key string) {
	h[key] = struct{}{}
}

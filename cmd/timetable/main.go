// Package main implements the timetable CLI for inspecting eligibility
// verdicts against a school timetable without running the server.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/schedule"
)

var (
	schedulePath = flag.String("schedule", "", "timetable JSON file (defaults to the built-in timetable)")
	dateRaw      = flag.String("date", "", "day to render as YYYY-MM-DD (defaults to today)")
	atRaw        = flag.String("at", "", "clock to evaluate as HH:MM (defaults to now)")
	verifiedRaw  = flag.String("verified", "", "comma-separated period ids already verified that day")
	modeRaw      = flag.String("mode", "normal", "evaluation mode: normal or always_allow")
	tzName       = flag.String("tz", "Local", "timezone the school clock runs in")
	noColor      = flag.Bool("no-color", false, "disable colored output")
)

func main() {
	flag.Parse()
	if *noColor {
		color.NoColor = true
	}

	cfg := schedule.Default()
	if *schedulePath != "" {
		loaded, err := schedule.LoadFile(*schedulePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "schedule load failed: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	location, err := time.LoadLocation(*tzName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "timezone load failed: %v\n", err)
		os.Exit(1)
	}

	now := time.Now().In(location)
	if *dateRaw != "" {
		day, err := time.ParseInLocation("2006-01-02", *dateRaw, location)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid date %q: expected YYYY-MM-DD\n", *dateRaw)
			os.Exit(1)
		}
		now = time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), now.Minute(), 0, 0, location)
	}
	if *atRaw != "" {
		at, err := schedule.ParseTimeOfDay(*atRaw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid clock %q: expected HH:MM\n", *atRaw)
			os.Exit(1)
		}
		now = time.Date(now.Year(), now.Month(), now.Day(), int(at)/60, int(at)%60, 0, 0, location)
	}

	mode, err := schedule.ParseMode(*modeRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	hist := schedule.History{}
	for _, id := range strings.Split(*verifiedRaw, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		hist.Add(schedule.PeriodKey(now, id))
	}

	renderDay(cfg, hist, now)
	renderVerdict(schedule.Evaluate(now, cfg, hist, mode))
}

func renderDay(cfg schedule.Config, hist schedule.History, now time.Time) {
	at := schedule.TimeOfDayFrom(now)
	fmt.Printf("%s  school hours %s-%s  (%s)\n\n", now.Format("Monday 2006-01-02"), cfg.Hours.Start, cfg.Hours.End, now.Location())
	for _, period := range cfg.Periods {
		verified := hist.Has(schedule.PeriodKey(now, period.ID))
		label := schedule.DayLabel(at, period, verified)
		marker := "  "
		if period.Contains(at) {
			marker = "> "
		}
		fmt.Printf("%s%-4s %s-%s  %-16s %s\n", marker, period.ID, period.Start, period.End, period.Name, labelColor(label).Sprint(label))
	}
	fmt.Println()
}

func renderVerdict(verdict schedule.Verdict) {
	status := color.New(color.FgRed).Sprint("denied")
	if verdict.Allowed {
		status = color.New(color.FgGreen).Sprint("allowed")
	}
	fmt.Printf("Verification %s: %s\n", status, verdict.Reason)
	if verdict.Next != nil {
		fmt.Printf("Next period %s (%s) starts in %s\n", verdict.Next.Name, verdict.Next.ID, schedule.FormatDuration(verdict.TimeUntilNext))
	}
}

func labelColor(label string) *color.Color {
	switch label {
	case "Present":
		return color.New(color.FgGreen)
	case "Pending":
		return color.New(color.FgYellow)
	case "Starts Soon":
		return color.New(color.FgCyan)
	case "Absent":
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}

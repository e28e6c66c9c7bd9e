package schedule

import (
	"fmt"
	"time"
)

// Mode selects how Evaluate treats the gate chain. It is always passed in
// by the caller; there is no package-level override switch.
type Mode int

const (
	ModeNormal Mode = iota
	ModeAlwaysAllow
)

func ParseMode(value string) (Mode, error) {
	switch value {
	case "normal":
		return ModeNormal, nil
	case "always_allow":
		return ModeAlwaysAllow, nil
	default:
		return ModeNormal, fmt.Errorf("invalid evaluation mode %q", value)
	}
}

func (m Mode) String() string {
	if m == ModeAlwaysAllow {
		return "always_allow"
	}
	return "normal"
}

type ReasonCode string

const (
	ReasonOutsideSchoolHours ReasonCode = "outside_school_hours"
	ReasonNoActivePeriod     ReasonCode = "no_active_period"
	ReasonAlreadyVerified    ReasonCode = "already_verified"
	ReasonAvailable          ReasonCode = "verification_available"
	ReasonOverride           ReasonCode = "override_active"
)

// Verdict is the evaluation outcome. Denials are data, not errors: callers
// branch on Allowed and surface Reason. TimeUntilNext is zero when Next is
// nil.
type Verdict struct {
	Allowed       bool
	Code          ReasonCode
	Reason        string
	Current       *Period
	Next          *Period
	TimeUntilNext time.Duration
}

// Evaluate runs the gate chain for one student at one instant. Gates go
// from coarsest to finest so the reported reason is always the most
// specific true one: school hours, then active period, then whether this
// period was already verified today. Identical inputs always produce an
// identical verdict.
func Evaluate(now time.Time, cfg Config, hist History, mode Mode) Verdict {
	t := TimeOfDayFrom(now)

	if mode == ModeAlwaysAllow {
		return Verdict{
			Allowed: true,
			Code:    ReasonOverride,
			Reason:  "verification override active",
			Current: cfg.ActivePeriod(t),
		}
	}

	if !cfg.WithinSchoolHours(t) {
		return Verdict{
			Allowed: false,
			Code:    ReasonOutsideSchoolHours,
			Reason:  fmt.Sprintf("outside school hours (%s-%s)", cfg.Hours.Start, cfg.Hours.End),
		}
	}

	current := cfg.ActivePeriod(t)
	if current == nil {
		verdict := Verdict{
			Allowed: false,
			Code:    ReasonNoActivePeriod,
			Reason:  "no class period is currently active",
		}
		if next := cfg.NextPeriod(t); next != nil {
			verdict.Next = next
			verdict.TimeUntilNext = TimeUntil(next.Start, t)
		}
		return verdict
	}

	if hist.Has(PeriodKey(now, current.ID)) {
		verdict := Verdict{
			Allowed: false,
			Code:    ReasonAlreadyVerified,
			Reason:  fmt.Sprintf("already verified for %s", current.Name),
			Current: current,
		}
		if next := cfg.NextPeriod(t); next != nil {
			verdict.Next = next
			verdict.TimeUntilNext = TimeUntil(next.Start, t)
		}
		return verdict
	}

	return Verdict{
		Allowed: true,
		Code:    ReasonAvailable,
		Reason:  fmt.Sprintf("verification available for %s", current.Name),
		Current: current,
	}
}

// State is the per-period, per-day lifecycle: NotStarted and Expired are
// driven purely by the clock, the Active pair by whether a verification
// marker exists. The unverified to verified transition happens at most
// once per day and is irreversible within it.
type State int

const (
	StateNotStarted State = iota
	StateActiveUnverified
	StateActiveVerified
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateActiveUnverified:
		return "active_unverified"
	case StateActiveVerified:
		return "active_verified"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

func StateOf(t TimeOfDay, p Period, verified bool) State {
	switch {
	case t < p.Start:
		return StateNotStarted
	case t > p.End:
		return StateExpired
	case verified:
		return StateActiveVerified
	default:
		return StateActiveUnverified
	}
}

// DayLabel is the badge text for a period. An expired period stays
// "Present" when a marker was written before it ended.
func DayLabel(t TimeOfDay, p Period, verified bool) string {
	switch StateOf(t, p, verified) {
	case StateNotStarted:
		return "Starts Soon"
	case StateActiveVerified:
		return "Present"
	case StateExpired:
		if verified {
			return "Present"
		}
		return "Absent"
	default:
		return "Pending"
	}
}

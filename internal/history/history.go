// Package history owns verification markers: per-student, per-period,
// per-day records meaning "this student already verified for this period
// today." Markers live until local end of day plus a grace window, then
// become unreachable and are evicted; the evaluator only ever sees the
// pre-filtered snapshot for the day being evaluated.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/schedule"
)

type Store interface {
	// MarkVerified writes the marker for one period on one day. It returns
	// false when the marker already existed, which is how replays are told
	// apart from first attempts.
	MarkVerified(ctx context.Context, studentID string, day time.Time, periodID string) (bool, error)
	Verified(ctx context.Context, studentID string, day time.Time, periodID string) (bool, error)
	DayHistory(ctx context.Context, studentID string, day time.Time) (schedule.History, error)
	Unmark(ctx context.Context, studentID string, day time.Time, periodID string) error
	PruneExpired(ctx context.Context, now time.Time) (int, error)
}

func dayKey(studentID string, day time.Time) string {
	return fmt.Sprintf("verification_history:%s:%s", studentID, day.Format("2006-01-02"))
}

// expiryFor is local end of day plus the retention grace, computed in the
// day's own location so rollover follows the school clock.
func expiryFor(day time.Time, grace time.Duration) time.Time {
	year, month, dom := day.Date()
	midnight := time.Date(year, month, dom, 0, 0, 0, 0, day.Location())
	return midnight.AddDate(0, 0, 1).Add(grace)
}

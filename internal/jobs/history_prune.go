package jobs

import (
	"context"
	"log"
	"time"

	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/history"
)

// StartHistoryPruneJob evicts verification markers whose retention window
// has passed. Stores that expire keys on their own make this a no-op tick.
func StartHistoryPruneJob(ctx context.Context, interval time.Duration, store history.Store) {
	if store == nil {
		log.Printf("history prune job disabled: store not configured")
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				pruned, err := store.PruneExpired(tickCtx, time.Now())
				cancel()
				if err != nil {
					log.Printf("history prune job error: %v", err)
					continue
				}
				if pruned > 0 {
					log.Printf("history prune job evicted %d day markers", pruned)
				}
			}
		}
	}()
}

// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartMaintenanceScheduler runs periodic ledger/profile reconciliation.
// Drift is reported, never auto-repaired.
func (s *LedgerStore) StartMaintenanceScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			drifts, err := s.Reconcile()
			if err != nil {
				log.Printf("[Scheduler] reconciliation failed: %v", err)
				return
			}
			if len(drifts) == 0 {
				log.Println("✅ Ledger reconciliation clean")
				return
			}
			for _, d := range drifts {
				log.Printf("[Scheduler] ledger drift for user %d: exp %d/%d, points %d/%d",
					d.UserID, d.LedgerExp, d.ProfileExp, d.LedgerBalance, d.AvailablePoints)
			}
		}),
	)
}

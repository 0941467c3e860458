package reconcile

import (
	"context"
	"log"
	"time"
)

const sweepBatchSize = 100

// Sweeper periodically expires overdue reservations in the background.
type Sweeper struct {
	reconciler *Reconciler
	interval   time.Duration
}

func NewSweeper(reconciler *Reconciler, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{reconciler: reconciler, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.reconciler.ExpireOverdue(ctx, sweepBatchSize); err != nil {
				log.Printf("sweep: expire overdue reservations: %v", err)
			}
		}
	}
}

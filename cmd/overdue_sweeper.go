package main

import (
	"context"
	"log"
	"time"

	"paydesk/internal/services"
)

const overdueSweepTimeout = 1 * time.Minute

// startOverdueSweeper marks sent invoices past their due date as overdue,
// once shortly after startup and then daily.
func startOverdueSweeper(ctx context.Context, svc *services.InvoiceService, infoLog, errorLog *log.Logger) {
	if svc == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		runOnce := func() {
			runCtx, cancel := context.WithTimeout(ctx, overdueSweepTimeout)
			marked, err := svc.SweepOverdue(runCtx, time.Now().UTC(), infoLog)
			cancel()
			if err != nil {
				if errorLog != nil {
					errorLog.Printf("overdue sweeper: %v", err)
				}
			} else if marked > 0 && infoLog != nil {
				infoLog.Printf("overdue sweeper: marked %d invoices overdue", marked)
			}
		}

		runOnce()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()
}

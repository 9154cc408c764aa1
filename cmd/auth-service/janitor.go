package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pribylovaa/carelink-auth/internal/metrics"
	"github.com/pribylovaa/carelink-auth/internal/storage"
)

// startRefreshJanitor периодически удаляет refresh-записи, истёкшие раньше
// чем now-retention. Отозванные, но не истёкшие записи остаются: по ним
// ловится replay.
func startRefreshJanitor(ctx context.Context, st storage.RefreshTokenStorage, log *slog.Logger, period, retention time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sweepExpired(ctx, st, log, retention, time.Now().UTC())
			}
		}
	}()
}

func sweepExpired(ctx context.Context, st storage.RefreshTokenStorage, log *slog.Logger, retention time.Duration, now time.Time) {
	if retention < 0 {
		retention = 0
	}

	n, err := st.DeleteExpiredTokens(ctx, now.Add(-retention))
	if err != nil {
		log.Error("refresh_janitor_failed", slog.String("err", err.Error()))
		return
	}

	metrics.JanitorDeleted.Add(float64(n))
	if n > 0 {
		log.Info("refresh_janitor_swept", slog.Int64("deleted", n))
	}
}

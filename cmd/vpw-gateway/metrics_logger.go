package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/kstaniek/go-vpw-gateway/internal/metrics"
)

// runMetricsLogger periodically logs the local counter mirror until ctx is done.
func runMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger) error {
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			snap := metrics.Snap()
			l.Info("metrics_snapshot",
				"bus_rx", snap.BusRx,
				"bus_rx_bytes", snap.BusRxBytes,
				"bus_tx", snap.BusTx,
				"no_data", snap.NoData,
				"bus_errors", snap.BusErrors,
				"console_tx", snap.ConsoleTx,
				"tcp_rx", snap.TCPRx,
				"tcp_tx", snap.TCPTx,
				"hub_drops", snap.HubDrops,
				"dash_readings", snap.DashReadings,
				"errors", snap.Errors,
			)
		case <-ctx.Done():
			return nil
		}
	}
}

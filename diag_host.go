//go:build !tinygo

package main

import (
	"context"
	"log/slog"

	"sensornode-go/bus"
	"sensornode-go/services/config"
	"sensornode-go/services/diag"
	"sensornode-go/services/lifecycle"
	"sensornode-go/services/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// startDiag registers node metrics and, when diag.listen is set, serves them.
func startDiag(ctx context.Context, cfg config.Config, b *bus.Bus, log *slog.Logger) lifecycle.Recorder {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Diag.Listen == "" {
		return m
	}
	srv := diag.New(b.NewConnection("diag"), reg, log)
	go func() {
		_ = srv.Run(ctx, cfg.Diag.Listen)
	}()
	return m
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sensornode-go/bus"
	"sensornode-go/services/config"
	"sensornode-go/services/hal"
	"sensornode-go/services/lifecycle"
	"sensornode-go/services/platform"
	"sensornode-go/x/logx"
)

// Set with -ldflags "-X main.version=... -X main.deviceID=...".
var (
	version  = "1.0.0"
	deviceID = "poli"
)

func main() {
	cfg, err := config.Load(deviceID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logx.New(cfg.LogLevel, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	log = log.With("device", cfg.DeviceID, "version", version)
	log.Info("boot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plat, err := platform.Open(cfg, log)
	if err != nil {
		log.Error("platform unavailable", "err", err)
		os.Exit(1)
	}

	b := bus.NewBus(16)
	recorder := startDiag(ctx, cfg, b, log)
	sensors := hal.Probe(ctx, plat.Bus, cfg.Sensors, log)

	out := lifecycle.New(lifecycle.Deps{
		Config:   cfg,
		Version:  version,
		Link:     plat.Link,
		Store:    plat.Store,
		Sensors:  sensors,
		Bus:      b,
		Log:      log,
		Recorder: recorder,
	}).Run(ctx)

	if out.Restart() {
		plat.Restarter.Restart(out.Reason)
		return
	}
	log.Info("stopped", "reason", out.Reason, "err", out.Err)
}

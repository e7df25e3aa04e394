//go:build tinygo

package main

import (
	"context"
	"log/slog"

	"sensornode-go/bus"
	"sensornode-go/services/config"
	"sensornode-go/services/lifecycle"
)

func startDiag(context.Context, config.Config, *bus.Bus, *slog.Logger) lifecycle.Recorder {
	return nil
}

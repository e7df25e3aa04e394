//go:build !linux && !tinygo

package platform

import (
	"log/slog"

	"sensornode-go/errcode"
	"sensornode-go/services/config"
)

// Open has no bus to offer on this host; use cmd/nodesim instead.
func Open(cfg config.Config, log *slog.Logger) (*Platform, error) {
	return nil, errcode.New(errcode.NotPresent, "platform.open", "no i2c support on this host")
}

// Package platform supplies the board resources the lifecycle needs: the
// two-wire bus, the wireless link, the firmware slots and a way to restart.
package platform

import (
	"log/slog"
	"os"

	"sensornode-go/services/network"
	"sensornode-go/services/ota"

	"tinygo.org/x/drivers"
)

// RestartExitCode is the process status used when a real reboot is not
// possible; a supervisor is expected to start the node again.
const RestartExitCode = 3

// Restarter performs the restart the lifecycle asked for. It does not return
// on success.
type Restarter interface {
	Restart(reason string)
}

// Platform bundles resources acquired once at startup.
type Platform struct {
	Bus       drivers.I2C
	Link      network.Link
	Store     ota.Store
	Restarter Restarter
}

// ExitRestarter ends the process with RestartExitCode.
type ExitRestarter struct {
	Log  *slog.Logger
	exit func(int)
}

func (r ExitRestarter) Restart(reason string) {
	if r.Log != nil {
		r.Log.Warn("restarting by exit", "reason", reason, "status", RestartExitCode)
	}
	exit := r.exit
	if exit == nil {
		exit = os.Exit
	}
	exit(RestartExitCode)
}

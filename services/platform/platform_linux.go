//go:build linux && !tinygo

package platform

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"sensornode-go/errcode"
	"sensornode-go/services/config"
	"sensornode-go/services/network"
	"sensornode-go/services/ota"

	"golang.org/x/sys/unix"
	"tinygo.org/x/drivers"
)

// i2cSlave is I2C_SLAVE from linux/i2c-dev.h.
const i2cSlave = 0x0703

// DevI2C is a /dev/i2c-N adapter. Each Tx selects the target address, then
// writes w and reads r as two separate transfers.
type DevI2C struct {
	mu   sync.Mutex
	fd   int
	addr int
}

var _ drivers.I2C = (*DevI2C)(nil)

// OpenI2C opens /dev/i2c-<bus>.
func OpenI2C(bus int) (*DevI2C, error) {
	path := fmt.Sprintf("/dev/i2c-%d", bus)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errcode.Wrap(errcode.NotPresent, "platform.i2c", fmt.Errorf("%s: %w", path, err))
	}
	return &DevI2C{fd: fd, addr: -1}, nil
}

func (d *DevI2C) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(addr) != d.addr {
		if err := unix.IoctlSetInt(d.fd, i2cSlave, int(addr)); err != nil {
			return err
		}
		d.addr = int(addr)
	}
	if len(w) > 0 {
		if n, err := unix.Write(d.fd, w); err != nil {
			return err
		} else if n != len(w) {
			return fmt.Errorf("i2c short write: %d of %d", n, len(w))
		}
	}
	if len(r) > 0 {
		if n, err := unix.Read(d.fd, r); err != nil {
			return err
		} else if n != len(r) {
			return fmt.Errorf("i2c short read: %d of %d", n, len(r))
		}
	}
	return nil
}

func (d *DevI2C) Close() error { return unix.Close(d.fd) }

// RebootRestarter reboots the machine, falling back to an exit when the
// process lacks CAP_SYS_BOOT.
type RebootRestarter struct {
	Log *slog.Logger
}

func (r RebootRestarter) Restart(reason string) {
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		if r.Log != nil {
			r.Log.Warn("reboot refused", "err", err)
		}
	}
	ExitRestarter{Log: r.Log}.Restart(reason)
}

// Open acquires the Linux resources named by cfg.
func Open(cfg config.Config, log *slog.Logger) (*Platform, error) {
	bus, err := OpenI2C(cfg.I2C.Bus)
	if err != nil {
		return nil, err
	}
	restarter := Restarter(RebootRestarter{Log: log})
	if os.Geteuid() != 0 {
		restarter = ExitRestarter{Log: log}
	}
	return &Platform{
		Bus:       bus,
		Link:      network.NewIfaceLink(cfg.WiFi.Iface),
		Store:     ota.NewFsStore(""),
		Restarter: restarter,
	}, nil
}

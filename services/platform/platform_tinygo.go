//go:build tinygo

package platform

import (
	"io"
	"io/fs"
	"log/slog"
	"machine"

	"sensornode-go/services/config"
	"sensornode-go/services/network"
	"sensornode-go/services/ota"

	"tinygo.org/x/drivers/netlink/probe"
	"tinygo.org/x/tinyfs/littlefs"
)

// flashFS adapts littlefs on the on-chip flash to ota.FlashFS.
type flashFS struct {
	*littlefs.LFS
}

// Stat reads any failure as absence: littlefs reports a missing entry with an
// unexported errno, and a failing stat on a mounted volume has no other cause
// the store could act on.
func (f flashFS) Stat(name string) (fs.FileInfo, error) {
	fi, err := f.LFS.Stat(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return fi, nil
}

func (f flashFS) OpenFile(name string, flag int) (io.WriteCloser, error) {
	return f.LFS.OpenFile(name, flag)
}

func (f flashFS) ReadFile(name string) ([]byte, error) {
	fd, err := f.LFS.Open(name)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return io.ReadAll(fd)
}

func openFlash(log *slog.Logger) (ota.FlashStore, error) {
	lfs := littlefs.New(machine.Flash)
	lfs.Configure(&littlefs.Config{
		CacheSize:     512,
		LookaheadSize: 512,
		BlockCycles:   100,
	})
	return ota.MountFlash(flashFS{lfs}, log)
}

type cpuRestarter struct {
	log *slog.Logger
}

func (r cpuRestarter) Restart(reason string) {
	r.log.Warn("cpu reset", "reason", reason)
	machine.CPUReset()
}

// Open configures I2C0 on the board default pins, mounts littlefs on the
// on-chip flash and probes the radio selected by the build tags.
func Open(cfg config.Config, log *slog.Logger) (*Platform, error) {
	bus := machine.I2C0
	if err := bus.Configure(machine.I2CConfig{
		Frequency: cfg.I2C.Frequency,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	}); err != nil {
		return nil, err
	}
	store, err := openFlash(log)
	if err != nil {
		return nil, err
	}
	nl, dev := probe.Probe()
	return &Platform{
		Bus:       bus,
		Link:      network.NewNetlinkLink(nl, dev),
		Store:     store,
		Restarter: cpuRestarter{log: log},
	}, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sync"
	"time"

	"sensornode-go/bus"
	"sensornode-go/services/config"
	"sensornode-go/services/diag"
	"sensornode-go/services/hal"
	"sensornode-go/services/hal/sim"
	"sensornode-go/services/lifecycle"
	"sensornode-go/services/metrics"
	"sensornode-go/services/ota"
	"sensornode-go/x/logx"
	"sensornode-go/x/timex"

	"github.com/prometheus/client_golang/prometheus"
)

// maxBoots bounds promote-then-reboot chains.
const maxBoots = 3

type options struct {
	Cycles       int
	Running      string
	OTAVersion   string
	FailSensors  []string
	PortalStatus int
	LinkPolls    int
	Diag         string
	Quiet        bool
	LogLevel     string
}

type summary struct {
	Boots   int
	Posts   int
	Logins  int
	Version string
	Last    lifecycle.Outcome
}

// simLink comes up after a fixed number of Connected calls.
type simLink struct {
	mu      sync.Mutex
	upAfter int
	calls   int
}

func (l *simLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.upAfter >= 0 && l.calls > l.upAfter
}
func (l *simLink) Activate() error            { return nil }
func (l *simLink) Begin(string, string) error { return nil }
func (l *simLink) Addr() (netip.Addr, error)  { return netip.MustParseAddr("192.168.4.2"), nil }

func image(version string) string {
	return fmt.Sprintf("# sensor node image\nVERSION = %q\n", version)
}

// lockedWriter serialises output from the monitor, the remote handlers and
// the boot loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func run(ctx context.Context, o options, out io.Writer) (summary, error) {
	out = &lockedWriter{w: out}
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	cfg, err := config.Load("sim")
	if err != nil {
		return summary{}, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	log, err := logx.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return summary{}, err
	}
	if o.OTAVersion == "" {
		o.OTAVersion = o.Running
	}

	rem, err := newRemote(image(o.OTAVersion), o.PortalStatus, out)
	if err != nil {
		return summary{}, err
	}
	defer rem.close()
	cfg.OTA.SourceURL = rem.URL() + "/main.py"
	cfg.Portal.LoginURL = rem.URL() + "/login"
	cfg.Portal.Username = "sim"
	cfg.Portal.Zone = "bench"
	cfg.Report.BaseURL = rem.URL() + "/macros/s/"

	dir, err := os.MkdirTemp("", "nodesim-")
	if err != nil {
		return summary{}, err
	}
	defer os.RemoveAll(dir)
	store := ota.NewFsStore(dir)
	if err := store.WriteFile(cfg.OTA.BootPath, []byte(image(o.Running))); err != nil {
		return summary{}, err
	}

	i2c, _, _, _ := sim.Standard()
	for _, id := range o.FailSensors {
		s, ok := findSensor(cfg.Sensors, id)
		if !ok {
			return summary{}, fmt.Errorf("unknown sensor %q", id)
		}
		i2c.SetFail(s.Addr, true)
	}

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	b := bus.NewBus(32)
	if !o.Quiet {
		go monitor(ctx, b, out)
	}
	if o.Diag != "" {
		go func() { _ = diag.New(b.NewConnection("diag"), reg, log).Run(ctx, o.Diag) }()
	}

	sum := summary{Version: o.Running}
	for sum.Boots < maxBoots {
		sum.Boots++
		fmt.Fprintf(out, "boot    #%d version=%s\n", sum.Boots, sum.Version)

		runCtx, cancel := context.WithCancel(ctx)
		sensors := hal.Probe(runCtx, i2c, cfg.Sensors, log)
		outcome := lifecycle.New(lifecycle.Deps{
			Config:   cfg,
			Version:  sum.Version,
			Link:     &simLink{upAfter: o.LinkPolls},
			Store:    store,
			Sensors:  sensors,
			Bus:      b,
			Log:      log,
			Recorder: rec,
			Sleep:    cycleLimit(cfg.Telemetry.Interval, o.Cycles, cancel),
		}).Run(runCtx)
		cancel()
		sum.Last = outcome
		fmt.Fprintf(out, "outcome %s reason=%s\n", outcome.Kind, outcome.Reason)

		if outcome.Reason != lifecycle.ReasonOTAPromoted {
			break
		}
		booted, err := store.ReadFile(cfg.OTA.BootPath)
		if err != nil {
			return sum, err
		}
		v, ok := ota.ExtractVersion(string(booted), cfg.OTA.Marker)
		if !ok {
			return sum, errors.New("promoted image has no version line")
		}
		sum.Version = v
	}
	sum.Posts, sum.Logins = rem.counts()
	return sum, nil
}

// cycleLimit sleeps for real and cancels once n telemetry intervals have
// been slept. n <= 0 never cancels.
func cycleLimit(interval time.Duration, n int, cancel context.CancelFunc) func(context.Context, time.Duration) error {
	var cycles int
	return func(ctx context.Context, d time.Duration) error {
		if d == interval && n > 0 {
			cycles++
			if cycles >= n {
				cancel()
				return ctx.Err()
			}
		}
		return timex.Sleep(ctx, d)
	}
}

func findSensor(sensors []config.Sensor, id string) (config.Sensor, bool) {
	for _, s := range sensors {
		if s.ID == id {
			return s, true
		}
	}
	return config.Sensor{}, false
}

func monitor(ctx context.Context, b *bus.Bus, out io.Writer) {
	conn := b.NewConnection("monitor")
	sub := conn.Subscribe(bus.T("node", "#"))
	defer conn.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			fmt.Fprintf(out, "bus     %-20s %+v\n", msg.Topic, msg.Payload)
		}
	}
}

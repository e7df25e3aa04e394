// Package lifecycle drives the node from boot to the telemetry loop:
// network, portal, one OTA check, then report forever.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"sensornode-go/bus"
	"sensornode-go/errcode"
	"sensornode-go/services/config"
	"sensornode-go/services/hal"
	"sensornode-go/services/network"
	"sensornode-go/services/ota"
	"sensornode-go/services/portal"
	"sensornode-go/services/report"
	"sensornode-go/services/telemetry"
	"sensornode-go/types"
	"sensornode-go/x/timex"
)

// Kind says what the caller must do once Run returns.
type Kind string

const (
	KindRestart Kind = "restart"
	KindStopped Kind = "stopped"
)

// Restart reasons.
const (
	ReasonNetworkTimeout = "network_timeout"
	ReasonOTAPromoted    = "ota_promoted"
)

type Outcome struct {
	Kind   Kind
	Reason string
	Err    error
}

func (o Outcome) Restart() bool { return o.Kind == KindRestart }

// Recorder counts activity across every phase.
type Recorder interface {
	network.PollCounter
	ota.Counter
	telemetry.Recorder
}

type nopRecorder struct{}

func (nopRecorder) LinkPoll()                 {}
func (nopRecorder) OTACheck(string)           {}
func (nopRecorder) Cycle(time.Duration)       {}
func (nopRecorder) SensorRead(string, string) {}
func (nopRecorder) Report(string)             {}

// Deps are the resources acquired once at startup.
type Deps struct {
	Config  config.Config
	Version string
	Link    network.Link
	Store   ota.Store
	Sensors hal.SensorSet
	Bus     *bus.Bus
	Log     *slog.Logger

	// Client is shared by portal, OTA and report. Nil gives each its own
	// client with the configured timeout.
	Client *http.Client
	// Recorder may be nil.
	Recorder Recorder
	// Sleep is used for link polls and the telemetry interval.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Controller struct {
	d    Deps
	conn *bus.Connection
	log  *slog.Logger
	st   types.NodeState
	now  func() time.Time
}

func New(d Deps) *Controller {
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.Sleep == nil {
		d.Sleep = timex.Sleep
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Bus == nil {
		d.Bus = bus.NewBus(8)
	}
	return &Controller{
		d:    d,
		conn: d.Bus.NewConnection("lifecycle"),
		log:  d.Log.With("svc", "lifecycle"),
		st:   types.NodeState{Version: d.Version},
		now:  time.Now,
	}
}

// Run returns only on a restart condition or when ctx ends.
func (c *Controller) Run(ctx context.Context) Outcome {
	cfg := c.d.Config
	c.set(types.LevelBooting, "start")
	config.Publish(c.conn, cfg)

	c.set(types.LevelConnecting, "wifi")
	acq := &network.Acquirer{
		Link:     c.d.Link,
		Attempts: cfg.WiFi.Attempts,
		Interval: cfg.WiFi.PollInterval,
		Log:      c.d.Log,
		Sleep:    c.d.Sleep,
		Counter:  c.d.Recorder,
	}
	sess, err := acq.Connect(ctx, cfg.WiFi.SSID, cfg.WiFi.Password)
	switch {
	case errors.Is(err, network.ErrLinkTimeout):
		return c.restart(ReasonNetworkTimeout, err)
	case err != nil && ctx.Err() != nil:
		return c.stopped(ctx.Err())
	case err != nil:
		// Activation failures are as fatal as a timeout.
		return c.restart(ReasonNetworkTimeout, err)
	}
	if sess.Addr.IsValid() {
		c.st.Addr = sess.Addr.String()
	}

	if auth := portal.New(cfg.Portal, c.d.Client, c.d.Log); auth != nil {
		c.set(types.LevelPortal, "authenticating")
		if err := auth.Authenticate(ctx); err != nil {
			c.log.Warn("portal login failed, continuing", "code", errcode.Of(err), "err", err)
		}
	}

	c.set(types.LevelUpdating, "checking")
	mgr := ota.NewManager(cfg.OTA, c.d.Version, c.d.Store, c.d.Client, c.d.Log)
	mgr.Counter = c.d.Recorder
	res := mgr.Check(ctx)
	c.st.Remote = res.Version
	if res.Restart() {
		c.log.Info("update promoted", "version", res.Version)
		return c.restart(ReasonOTAPromoted, nil)
	}
	if res.Err != nil {
		c.log.Warn("update check failed, continuing", "state", res.State, "code", errcode.Of(res.Err))
	}
	if ctx.Err() != nil {
		return c.stopped(ctx.Err())
	}

	c.set(types.LevelRunning, string(res.State))
	svc := telemetry.New(cfg.Telemetry, c.d.Sensors, report.NewTransport(cfg.Report, c.d.Client),
		c.d.Bus.NewConnection("telemetry"), c.d.Log)
	svc.Recorder = c.d.Recorder
	svc.Sleep = c.d.Sleep
	return c.stopped(svc.Run(ctx))
}

func (c *Controller) restart(reason string, err error) Outcome {
	c.set(types.LevelRestarting, reason)
	c.log.Warn("restart requested", "reason", reason, "err", err)
	return Outcome{Kind: KindRestart, Reason: reason, Err: err}
}

func (c *Controller) stopped(err error) Outcome {
	c.set(types.LevelStopped, "context_done")
	return Outcome{Kind: KindStopped, Reason: "context_done", Err: err}
}

func (c *Controller) set(level types.Level, status string) {
	c.st.Level = level
	c.st.Status = status
	c.st.TS = c.now().UnixNano()
	c.conn.Publish(c.conn.NewMessage(types.TopicState, c.st, true))
	c.log.Debug("state", "level", level, "status", status)
}

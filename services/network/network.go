// Package network brings the station link up before anything else runs.
package network

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"sensornode-go/errcode"
	"sensornode-go/x/timex"
)

// ErrLinkTimeout is returned when the link is still down after every poll.
var ErrLinkTimeout = &errcode.E{C: errcode.Timeout, Op: "network.connect", Msg: "link did not come up"}

// Link is the wireless interface as seen by the acquirer.
type Link interface {
	Connected() bool
	// Activate powers the interface in station mode.
	Activate() error
	// Begin starts association. An empty password means an open network.
	Begin(ssid, password string) error
	Addr() (netip.Addr, error)
}

// Session describes an established link.
type Session struct {
	Up   bool
	Addr netip.Addr
}

// PollCounter is told about each wait for the link.
type PollCounter interface {
	LinkPoll()
}

// Acquirer connects with a bounded number of polls.
type Acquirer struct {
	Link     Link
	Attempts int
	Interval time.Duration
	Log      *slog.Logger
	// Sleep defaults to timex.Sleep.
	Sleep   func(ctx context.Context, d time.Duration) error
	Counter PollCounter
}

// Connect is idempotent: an already connected link succeeds at once without
// touching the interface.
func (a *Acquirer) Connect(ctx context.Context, ssid, password string) (Session, error) {
	log := a.log()
	sleep := a.Sleep
	if sleep == nil {
		sleep = timex.Sleep
	}
	attempts := a.Attempts
	if attempts <= 0 {
		attempts = 15
	}

	if !a.Link.Connected() {
		log.Info("connecting", "ssid", ssid, "open", password == "")
		if err := a.Link.Activate(); err != nil {
			return Session{}, errcode.Wrap(errcode.Transport, "network.activate", err)
		}
		if err := a.Link.Begin(ssid, password); err != nil {
			// Association may still complete; keep polling.
			log.Warn("begin failed", "err", err)
		}
		for i := 1; i <= attempts && !a.Link.Connected(); i++ {
			if err := sleep(ctx, a.Interval); err != nil {
				return Session{}, err
			}
			if a.Counter != nil {
				a.Counter.LinkPoll()
			}
			log.Debug("waiting for link", "poll", i, "of", attempts)
		}
		if !a.Link.Connected() {
			log.Error("link timeout", "attempts", attempts)
			return Session{}, ErrLinkTimeout
		}
	}

	addr, err := a.Link.Addr()
	if err != nil {
		log.Warn("connected without address", "err", err)
	} else {
		log.Info("connected", "addr", addr.String())
	}
	return Session{Up: true, Addr: addr}, nil
}

func (a *Acquirer) log() *slog.Logger {
	if a.Log == nil {
		return slog.Default().With("svc", "network")
	}
	return a.Log.With("svc", "network")
}

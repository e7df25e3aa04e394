package network

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"sensornode-go/errcode"

	"tinygo.org/x/drivers/netlink"
)

// -----------------------------------------------------------------------------
// netlink (MCU Wi-Fi drivers)
// -----------------------------------------------------------------------------

// Addresser reports the L3 address; netdev.Netdever satisfies it.
type Addresser interface {
	Addr() (netip.Addr, error)
}

// NetlinkLink drives a TinyGo netlink device. NetConnect blocks for the whole
// association, so Begin runs it on its own goroutine and the acquirer's polls
// observe the outcome.
type NetlinkLink struct {
	nl      netlink.Netlinker
	dev     Addresser
	Timeout time.Duration

	mu         sync.Mutex
	up         bool
	connecting bool
	lastErr    error
}

var _ Link = (*NetlinkLink)(nil)

func NewNetlinkLink(nl netlink.Netlinker, dev Addresser) *NetlinkLink {
	l := &NetlinkLink{nl: nl, dev: dev, Timeout: 15 * time.Second}
	nl.NetNotify(l.onEvent)
	return l
}

func (l *NetlinkLink) onEvent(e netlink.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch e {
	case netlink.EventNetUp:
		l.up = true
	case netlink.EventNetDown:
		l.up = false
	}
}

func (l *NetlinkLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.up
}

// Activate is a no-op; netlink drivers power the radio inside NetConnect.
func (l *NetlinkLink) Activate() error { return nil }

func (l *NetlinkLink) Begin(ssid, password string) error {
	l.mu.Lock()
	if l.connecting || l.up {
		l.mu.Unlock()
		return nil
	}
	l.connecting = true
	l.mu.Unlock()

	params := &netlink.ConnectParams{
		ConnectMode:    netlink.ConnectModeSTA,
		Ssid:           ssid,
		Passphrase:     password,
		AuthType:       netlink.AuthTypeWPA2,
		Retries:        1,
		ConnectTimeout: l.Timeout,
	}
	if password == "" {
		params.AuthType = netlink.AuthTypeOpen
	}

	go func() {
		err := l.nl.NetConnect(params)
		l.mu.Lock()
		defer l.mu.Unlock()
		l.connecting = false
		switch {
		case err == nil, errors.Is(err, netlink.ErrConnected):
			l.up = true
		default:
			l.lastErr = err
		}
	}()
	return nil
}

// Err returns the last association failure, if any.
func (l *NetlinkLink) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

func (l *NetlinkLink) Addr() (netip.Addr, error) {
	if l.dev == nil {
		return netip.Addr{}, errcode.New(errcode.NotPresent, "network.addr", "no netdev")
	}
	return l.dev.Addr()
}

// -----------------------------------------------------------------------------
// Host interfaces
// -----------------------------------------------------------------------------

// IfaceLink watches an OS-managed interface. Association is left to the
// host's supplicant; the link counts as connected once the interface is up
// with a global IPv4 address.
type IfaceLink struct {
	Name string
	// lookup is swapped in tests.
	lookup func(name string) (*net.Interface, []net.Addr, error)
}

var _ Link = (*IfaceLink)(nil)

func NewIfaceLink(name string) *IfaceLink {
	return &IfaceLink{Name: name, lookup: lookupIface}
}

func lookupIface(name string) (*net.Interface, []net.Addr, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, nil, err
	}
	addrs, err := ifi.Addrs()
	return ifi, addrs, err
}

func (l *IfaceLink) Connected() bool {
	_, err := l.Addr()
	return err == nil
}

func (l *IfaceLink) Activate() error {
	if _, _, err := l.lookup(l.Name); err != nil {
		return errcode.Wrap(errcode.NotPresent, "network.activate", err)
	}
	return nil
}

func (l *IfaceLink) Begin(ssid, password string) error { return nil }

func (l *IfaceLink) Addr() (netip.Addr, error) {
	ifi, addrs, err := l.lookup(l.Name)
	if err != nil {
		return netip.Addr{}, err
	}
	if ifi.Flags&net.FlagUp == 0 {
		return netip.Addr{}, errcode.New(errcode.NotReady, "network.addr", l.Name+" is down")
	}
	for _, a := range addrs {
		pfx, err := netip.ParsePrefix(a.String())
		if err != nil {
			continue
		}
		ip := pfx.Addr()
		if ip.Is4() && ip.IsGlobalUnicast() {
			return ip, nil
		}
	}
	return netip.Addr{}, errcode.New(errcode.NotReady, "network.addr", l.Name+" has no IPv4 address")
}

package network

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"sensornode-go/errcode"

	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers/netlink"
)

type fakeLink struct {
	upAfterPolls int // -1 never
	polls        int
	connected    bool
	activated    int
	begun        []string
	activateErr  error
}

func (f *fakeLink) Connected() bool {
	if f.connected {
		return true
	}
	if f.upAfterPolls >= 0 && f.polls >= f.upAfterPolls {
		f.connected = true
	}
	return f.connected
}
func (f *fakeLink) Activate() error { f.activated++; return f.activateErr }
func (f *fakeLink) Begin(ssid, pw string) error {
	f.begun = append(f.begun, ssid+"/"+pw)
	return nil
}
func (f *fakeLink) Addr() (netip.Addr, error) { return netip.MustParseAddr("10.0.0.7"), nil }

type countingSleep struct {
	link  *fakeLink
	slept []time.Duration
}

func (c *countingSleep) sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.link.polls++
	return ctx.Err()
}

type pollCount int

func (p *pollCount) LinkPoll() { *p++ }

func newAcquirer(l *fakeLink) (*Acquirer, *countingSleep, *pollCount) {
	cs := &countingSleep{link: l}
	var pc pollCount
	return &Acquirer{
		Link:     l,
		Attempts: 15,
		Interval: time.Second,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Sleep:    cs.sleep,
		Counter:  &pc,
	}, cs, &pc
}

func TestConnectAlreadyConnected(t *testing.T) {
	l := &fakeLink{connected: true}
	a, cs, _ := newAcquirer(l)

	s, err := a.Connect(context.Background(), "lab", "")
	require.NoError(t, err)
	require.True(t, s.Up)
	require.Equal(t, "10.0.0.7", s.Addr.String())
	require.Zero(t, l.activated)
	require.Empty(t, l.begun)
	require.Empty(t, cs.slept)
}

func TestConnectAfterPolls(t *testing.T) {
	l := &fakeLink{upAfterPolls: 4}
	a, cs, pc := newAcquirer(l)

	s, err := a.Connect(context.Background(), "PoliSemFio", "")
	require.NoError(t, err)
	require.True(t, s.Up)
	require.Equal(t, 1, l.activated)
	require.Equal(t, []string{"PoliSemFio/"}, l.begun)
	require.Len(t, cs.slept, 4)
	require.Equal(t, 4, int(*pc))
}

func TestConnectTimeoutAfterFifteenPolls(t *testing.T) {
	l := &fakeLink{upAfterPolls: -1}
	a, cs, _ := newAcquirer(l)

	_, err := a.Connect(context.Background(), "lab", "secret")
	require.ErrorIs(t, err, ErrLinkTimeout)
	require.Equal(t, errcode.Timeout, errcode.Of(err))
	require.Len(t, cs.slept, 15)
	for _, d := range cs.slept {
		require.Equal(t, time.Second, d)
	}
}

func TestConnectActivateFailure(t *testing.T) {
	l := &fakeLink{upAfterPolls: -1, activateErr: errors.New("no radio")}
	a, _, _ := newAcquirer(l)
	_, err := a.Connect(context.Background(), "lab", "")
	require.Equal(t, errcode.Transport, errcode.Of(err))
}

func TestConnectCancelled(t *testing.T) {
	l := &fakeLink{upAfterPolls: -1}
	a, cs, _ := newAcquirer(l)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Connect(ctx, "lab", "")
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, cs.slept, 1)
}

// -----------------------------------------------------------------------------
// NetlinkLink
// -----------------------------------------------------------------------------

type fakeNetlinker struct {
	mu     sync.Mutex
	cb     func(netlink.Event)
	params *netlink.ConnectParams
	err    error
	done   chan struct{}
}

func (f *fakeNetlinker) NetConnect(p *netlink.ConnectParams) error {
	f.mu.Lock()
	f.params = p
	cb := f.cb
	f.mu.Unlock()
	defer close(f.done)
	if f.err == nil && cb != nil {
		cb(netlink.EventNetUp)
	}
	return f.err
}
func (f *fakeNetlinker) NetDisconnect()                             {}
func (f *fakeNetlinker) NetNotify(cb func(netlink.Event))           { f.cb = cb }
func (f *fakeNetlinker) GetHardwareAddr() (net.HardwareAddr, error) { return nil, nil }

type fixedAddr struct{}

func (fixedAddr) Addr() (netip.Addr, error) { return netip.MustParseAddr("192.168.4.2"), nil }

func TestNetlinkLinkOpenNetwork(t *testing.T) {
	nl := &fakeNetlinker{done: make(chan struct{})}
	l := NewNetlinkLink(nl, fixedAddr{})
	require.False(t, l.Connected())

	require.NoError(t, l.Activate())
	require.NoError(t, l.Begin("PoliSemFio", ""))
	<-nl.done

	require.Eventually(t, l.Connected, time.Second, time.Millisecond)
	nl.mu.Lock()
	require.Equal(t, netlink.AuthType(netlink.AuthTypeOpen), nl.params.AuthType)
	require.Equal(t, "PoliSemFio", nl.params.Ssid)
	nl.mu.Unlock()

	addr, err := l.Addr()
	require.NoError(t, err)
	require.Equal(t, "192.168.4.2", addr.String())
}

func TestNetlinkLinkFailure(t *testing.T) {
	nl := &fakeNetlinker{done: make(chan struct{}), err: netlink.ErrAuthFailure}
	l := NewNetlinkLink(nl, nil)
	require.NoError(t, l.Begin("lab", "password1"))
	<-nl.done

	require.Eventually(t, func() bool { return l.Err() != nil }, time.Second, time.Millisecond)
	require.False(t, l.Connected())
	require.ErrorIs(t, l.Err(), netlink.ErrAuthFailure)
	require.Equal(t, netlink.AuthType(netlink.AuthTypeWPA2), nl.params.AuthType)

	_, err := l.Addr()
	require.Equal(t, errcode.NotPresent, errcode.Of(err))
}

// -----------------------------------------------------------------------------
// IfaceLink
// -----------------------------------------------------------------------------

func TestIfaceLink(t *testing.T) {
	var flags net.Flags
	var addrs []net.Addr
	l := NewIfaceLink("wlan0")
	l.lookup = func(name string) (*net.Interface, []net.Addr, error) {
		if name != "wlan0" {
			return nil, nil, errors.New("no such interface")
		}
		return &net.Interface{Name: name, Flags: flags}, addrs, nil
	}

	require.NoError(t, l.Activate())
	require.False(t, l.Connected())

	flags = net.FlagUp
	addrs = []net.Addr{&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)}}
	require.False(t, l.Connected())

	addrs = append(addrs, &net.IPNet{IP: net.IPv4(192, 168, 1, 20), Mask: net.CIDRMask(24, 32)})
	require.True(t, l.Connected())
	a, err := l.Addr()
	require.NoError(t, err)
	require.Equal(t, "192.168.1.20", a.String())

	l.Name = "eth9"
	require.Equal(t, errcode.NotPresent, errcode.Of(l.Activate()))
}

package node

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/meshchat/internal/config"
	"github.com/rudransh-shrivastava/meshchat/internal/discovery"
	"github.com/rudransh-shrivastava/meshchat/internal/discovery/mocks"
	"github.com/rudransh-shrivastava/meshchat/internal/events"
	"github.com/rudransh-shrivastava/meshchat/internal/logger"
	"github.com/rudransh-shrivastava/meshchat/internal/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const waitTimeout = 5 * time.Second

type sentLine struct {
	address string
	text    string
}

// fakeSender records sends and answers dials with an in-memory pipe whose
// far end is kept for the test.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentLine
	dialed  []string
	remotes []net.Conn
	sendErr error
	dialErr error
}

func (f *fakeSender) Send(_ context.Context, address, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentLine{address: address, text: text})
	return nil
}

func (f *fakeSender) Dial(_ context.Context, address string) (net.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialed = append(f.dialed, address)
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	local, remote := net.Pipe()
	f.remotes = append(f.remotes, remote)
	return local, nil
}

func (f *fakeSender) Sent() []sentLine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentLine(nil), f.sent...)
}

func (f *fakeSender) Dialed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dialed...)
}

func (f *fakeSender) Remote(i int) net.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remotes[i]
}

type harness struct {
	node   *Node
	disc   *mocks.MockDiscovery
	notes  chan discovery.Notification
	sender *fakeSender
	sub    *events.Subscription
}

type harnessOptions struct {
	cfg      config.Config
	linkInfo discovery.LinkInfo
	peers    []discovery.RawPeer
}

func newHarness(t *testing.T, opts ...func(*harnessOptions)) *harness {
	t.Helper()

	o := harnessOptions{cfg: config.Default()}
	o.cfg.ListenHost = "127.0.0.1"
	o.cfg.Port = 0
	for _, opt := range opts {
		opt(&o)
	}

	ctrl := gomock.NewController(t)
	disc := mocks.NewMockDiscovery(ctrl)
	notes := make(chan discovery.Notification, 16)

	disc.EXPECT().Notifications().Return((<-chan discovery.Notification)(notes)).AnyTimes()
	disc.EXPECT().RequestLinkInfo(gomock.Any()).Return(o.linkInfo, nil).AnyTimes()
	disc.EXPECT().RequestPeers(gomock.Any()).Return(o.peers, nil).AnyTimes()

	sender := &fakeSender{}
	n, err := New(Options{
		Config:    o.cfg,
		Discovery: disc,
		Sender:    sender,
		Logger:    logger.NewDiscardLogger(),
	})
	require.NoError(t, err)

	sub := n.Subscribe()
	t.Cleanup(sub.Close)

	return &harness{node: n, disc: disc, notes: notes, sender: sender, sub: sub}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.node.Start(context.Background()))
	t.Cleanup(func() { _ = h.node.Stop() })
}

func (h *harness) waitStatus(t *testing.T, text string) {
	t.Helper()
	timeout := time.After(waitTimeout)
	var seen []string
	for {
		select {
		case st := <-h.sub.Status():
			if st.Text == text {
				return
			}
			seen = append(seen, st.Text)
		case <-timeout:
			t.Fatalf("timeout waiting for status %q, saw %q", text, seen)
		}
	}
}

func (h *harness) waitStatusPrefix(t *testing.T, prefix string) string {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case st := <-h.sub.Status():
			if strings.HasPrefix(st.Text, prefix) {
				return st.Text
			}
		case <-timeout:
			t.Fatalf("timeout waiting for status starting with %q", prefix)
		}
	}
}

func (h *harness) waitMessage(t *testing.T) events.Message {
	t.Helper()
	select {
	case msg := <-h.sub.Messages():
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for message")
	}
	return events.Message{}
}

func (h *harness) waitPeers(t *testing.T, n int) []peer.Peer {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev := <-h.sub.Peers():
			if len(ev.Peers) == n {
				return ev.Peers
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %d peers", n)
		}
	}
}

// sync waits until the coordinator has processed every notification sent
// before it.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	h.notes <- discovery.AdapterStateChanged{Enabled: false}
	h.waitStatus(t, "adapter disabled")
}

// syncStatuses is sync that also returns every status published before the
// coordinator caught up.
func (h *harness) syncStatuses(t *testing.T) []string {
	t.Helper()
	h.notes <- discovery.AdapterStateChanged{Enabled: false}
	timeout := time.After(waitTimeout)
	var seen []string
	for {
		select {
		case st := <-h.sub.Status():
			if st.Text == "adapter disabled" {
				return seen
			}
			seen = append(seen, st.Text)
		case <-timeout:
			t.Fatalf("timeout waiting for coordinator, saw %q", seen)
		}
	}
}

func (h *harness) becomeClient(t *testing.T, addr string) {
	t.Helper()
	h.notes <- discovery.LinkStateChanged{Connected: true, CoordinatorAddress: addr}
	h.waitStatus(t, "connected to host "+addr)
}

func (h *harness) becomeHost(t *testing.T, peerAddr string) {
	t.Helper()
	h.notes <- discovery.LinkStateChanged{Connected: true, IsCoordinator: true, PeerAddress: peerAddr}
	h.waitStatus(t, "you are the host")
}

func TestNewRequiresDiscovery(t *testing.T) {
	_, err := New(Options{Config: config.Default(), Logger: logger.NewDiscardLogger()})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOperationsBeforeStart(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.node.StartDiscovery(), ErrNotStarted)
	assert.ErrorIs(t, h.node.ConnectTo(peer.Peer{Address: "A"}), ErrNotStarted)
	assert.ErrorIs(t, h.node.SendMessage("10.0.0.1", "hi"), ErrNotStarted)
	assert.ErrorIs(t, h.node.Disconnect(), ErrNotStarted)
	assert.Equal(t, Session{Role: RoleUnestablished, State: StateIdle}, h.node.Session())
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	err := h.node.SendMessage("10.0.0.1", "")

	assert.ErrorIs(t, err, ErrInvalidArgument)
	h.sync(t)
	assert.Empty(t, h.sender.Sent())
	assert.Empty(t, h.sender.Dialed())
}

func TestSendMessageRejectsLineAboveLimit(t *testing.T) {
	h := newHarness(t, func(o *harnessOptions) { o.cfg.MaxLineSize = 64 })
	h.start(t)

	assert.ErrorIs(t, h.node.SendMessage("10.0.0.1", strings.Repeat("x", 64)), ErrInvalidArgument)
	require.NoError(t, h.node.SendMessage("10.0.0.1", strings.Repeat("x", 63)))

	h.waitStatus(t, "message sent to 10.0.0.1")
	sent := h.sender.Sent()
	require.Len(t, sent, 1)
	assert.Len(t, sent[0].text, 63)
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	assert.ErrorIs(t, h.node.Start(context.Background()), ErrAlreadyStarted)
}

func TestPeerConnectSendScenario(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.notes <- discovery.PeerListChanged{Peers: []discovery.RawPeer{{Address: "A", Name: "Phone1"}}}
	peers := h.waitPeers(t, 1)
	require.Equal(t, "Phone1", peers[0].Name)
	assert.Eventually(t, func() bool { return len(h.node.Peers()) == 1 }, waitTimeout, 10*time.Millisecond)

	h.disc.EXPECT().Connect(gomock.Any(), "A").Return(nil)
	require.NoError(t, h.node.ConnectTo(peers[0]))
	h.waitStatus(t, "connecting to Phone1")
	assert.Equal(t, StateConnecting, h.node.Session().State)

	h.becomeClient(t, "10.0.0.1")
	assert.Equal(t, Session{Role: RoleClient, RemoteAddress: "10.0.0.1", State: StateEstablished}, h.node.Session())
	assert.Eventually(t, func() bool { return len(h.sender.Dialed()) == 1 }, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, "10.0.0.1", h.sender.Dialed()[0])

	require.NoError(t, h.node.SendMessage("10.0.0.1", "hi"))

	msg := h.waitMessage(t)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, events.Sent, msg.Direction)
	h.waitStatus(t, "message sent to 10.0.0.1")
	assert.Equal(t, []sentLine{{address: "10.0.0.1", text: "hi"}}, h.sender.Sent())
}

func TestPeerListIsReplacedNotMerged(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.notes <- discovery.PeerListChanged{Peers: []discovery.RawPeer{{Address: "A"}, {Address: "B"}}}
	h.waitPeers(t, 2)
	h.notes <- discovery.PeerListChanged{Peers: []discovery.RawPeer{{Address: "C"}}}
	got := h.waitPeers(t, 1)
	assert.Equal(t, "C", got[0].Address)

	h.notes <- discovery.PeerListChanged{}
	h.sync(t)
	assert.Empty(t, h.node.Peers())
}

func TestBecameHostListens(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.becomeHost(t, "10.0.0.2:8988")
	assert.Equal(t, Session{Role: RoleHost, RemoteAddress: "10.0.0.2:8988", State: StateEstablished}, h.node.Session())

	conn, err := net.Dial("tcp", h.node.Addr())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_, err = conn.Write([]byte("hello\n"))
	require.NoError(t, err)

	msg := h.waitMessage(t)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, events.Received, msg.Direction)
}

func TestClientReadsHandshakeConnection(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.becomeClient(t, "10.0.0.1")
	assert.Eventually(t, func() bool { return len(h.sender.Dialed()) == 1 }, waitTimeout, 10*time.Millisecond)

	go func() { _, _ = h.sender.Remote(0).Write([]byte("from host\n")) }()

	msg := h.waitMessage(t)
	assert.Equal(t, "from host", msg.Text)
}

func TestLinkLostResetsSession(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.becomeHost(t, "")

	h.notes <- discovery.LinkStateChanged{Connected: false}
	h.waitStatus(t, "disconnected")

	assert.Equal(t, Session{Role: RoleUnestablished, State: StateIdle}, h.node.Session())
}

func TestLinkDownDuringNegotiationIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.disc.EXPECT().Connect(gomock.Any(), "A").Return(nil)
	require.NoError(t, h.node.ConnectTo(peer.Peer{Address: "A"}))
	h.waitStatus(t, "connecting to A")

	h.notes <- discovery.LinkStateChanged{Connected: false}
	statuses := h.syncStatuses(t)

	assert.NotContains(t, statuses, "disconnected")
	assert.Equal(t, StateConnecting, h.node.Session().State)
}

func TestNegotiationTimeout(t *testing.T) {
	h := newHarness(t, func(o *harnessOptions) { o.cfg.NegotiationTimeout = 100 * time.Millisecond })
	h.start(t)

	h.disc.EXPECT().Connect(gomock.Any(), "A").Return(nil)
	require.NoError(t, h.node.ConnectTo(peer.Peer{Address: "A"}))

	h.waitStatus(t, "negotiation failed: "+ErrNegotiationTimeout.Error())
	assert.Equal(t, Session{Role: RoleUnestablished, State: StateIdle}, h.node.Session())
}

func TestRoleAssignmentStopsNegotiationTimer(t *testing.T) {
	h := newHarness(t, func(o *harnessOptions) { o.cfg.NegotiationTimeout = 100 * time.Millisecond })
	h.start(t)

	h.disc.EXPECT().Connect(gomock.Any(), "A").Return(nil)
	require.NoError(t, h.node.ConnectTo(peer.Peer{Address: "A"}))
	h.waitStatus(t, "connecting to A")
	h.becomeHost(t, "")

	time.Sleep(300 * time.Millisecond)
	h.sync(t)
	assert.Equal(t, StateEstablished, h.node.Session().State)
}

func TestConnectToPrefersRegistryName(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.notes <- discovery.PeerListChanged{Peers: []discovery.RawPeer{{Address: "A", Name: "Phone1"}}}
	h.waitPeers(t, 1)

	h.disc.EXPECT().Connect(gomock.Any(), "A").Return(nil)
	require.NoError(t, h.node.ConnectTo(peer.Peer{Address: "A", Name: "stale"}))
	h.waitStatus(t, "connecting to Phone1")
}

func TestConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.disc.EXPECT().Connect(gomock.Any(), "A").Return(&discovery.Failure{Op: "connect", Code: discovery.ReasonError})
	require.NoError(t, h.node.ConnectTo(peer.Peer{Address: "A"}))

	h.waitStatus(t, "connect failed: 0")
	assert.Equal(t, StateIdle, h.node.Session().State)
}

func TestConnectToWhileEstablishedKeepsLink(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.becomeHost(t, "10.0.0.2:8988")

	// no Connect expectation: the collaborator must not be asked again
	require.NoError(t, h.node.ConnectTo(peer.Peer{Address: "A"}))
	h.waitStatus(t, "already connected to 10.0.0.2:8988")

	assert.Equal(t, Session{Role: RoleHost, RemoteAddress: "10.0.0.2:8988", State: StateEstablished}, h.node.Session())
}

func TestConnectToRejectsEmptyAddress(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	assert.ErrorIs(t, h.node.ConnectTo(peer.Peer{Name: "nameless"}), ErrInvalidArgument)
}

func TestStartDiscovery(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
		state  State
	}{
		{"success", nil, "searching", StateDiscovering},
		{"busy", &discovery.Failure{Op: "discover", Code: discovery.ReasonBusy}, "discovery failed: 2", StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.start(t)

			h.disc.EXPECT().StartDiscovery(gomock.Any()).Return(tt.err)
			require.NoError(t, h.node.StartDiscovery())

			h.waitStatus(t, tt.status)
			assert.Equal(t, tt.state, h.node.Session().State)
		})
	}
}

func TestSendFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.sender.sendErr = errors.New("connection refused")
	h.start(t)

	require.NoError(t, h.node.SendMessage("10.0.0.9", "lost"))

	text := h.waitStatusPrefix(t, "send failed: ")
	assert.Contains(t, text, "connection refused")
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.becomeClient(t, "10.0.0.1")

	h.disc.EXPECT().Disconnect(gomock.Any()).DoAndReturn(func(context.Context) error {
		h.notes <- discovery.LinkStateChanged{Connected: false}
		return nil
	})
	require.NoError(t, h.node.Disconnect())

	h.waitStatus(t, "disconnected")
	assert.Equal(t, Session{Role: RoleUnestablished, State: StateIdle}, h.node.Session())
}

func TestResyncAdoptsExistingLink(t *testing.T) {
	h := newHarness(t, func(o *harnessOptions) {
		o.linkInfo = discovery.LinkInfo{Connected: true, IsCoordinator: true, PeerAddress: "10.0.0.7:8988"}
		o.peers = []discovery.RawPeer{{Address: "B", Name: "Phone2"}}
	})
	h.start(t)

	h.waitStatus(t, "you are the host")
	peers := h.waitPeers(t, 1)
	assert.Equal(t, "Phone2", peers[0].Name)
	assert.Equal(t, RoleHost, h.node.Session().Role)
}

func TestAdapterStatus(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.notes <- discovery.AdapterStateChanged{Enabled: true}
	h.waitStatus(t, "adapter enabled")
	h.notes <- discovery.AdapterStateChanged{Enabled: false}
	h.waitStatus(t, "adapter disabled")
}

func TestBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	h := newHarness(t, func(o *harnessOptions) { o.cfg.Port = port })

	err = h.node.Start(context.Background())
	require.ErrorIs(t, err, ErrBindFailure)
	t.Cleanup(func() { _ = h.node.Stop() })

	h.waitStatusPrefix(t, "listen failed: ")
	assert.Equal(t, StateFailed, h.node.Session().State)
	assert.ErrorIs(t, h.node.SendMessage("10.0.0.1", "hi"), ErrNotStarted)
}

func TestStopClosesAllConnections(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.becomeHost(t, "")

	const n = 3
	conns := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		conn, err := net.Dial("tcp", h.node.Addr())
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()
		conns = append(conns, conn)
	}
	assert.Eventually(t, func() bool { return h.node.endpoint.ActiveConns() == n }, waitTimeout, 10*time.Millisecond)

	require.NoError(t, h.node.Stop())

	assert.Equal(t, 0, h.node.endpoint.ActiveConns())
	assert.Equal(t, Session{Role: RoleUnestablished, State: StateIdle}, h.node.Session())
	for _, conn := range conns {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, err := conn.Read(make([]byte, 1))
		assert.Error(t, err)
	}
	assert.ErrorIs(t, h.node.StartDiscovery(), ErrNotStarted)
}

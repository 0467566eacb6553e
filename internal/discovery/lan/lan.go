// Package lan implements the discovery collaborator over UDP on one LAN
// segment. Peers announce themselves with periodic beacons; a link is
// formed by a request/accept exchange in which the receiving side becomes
// the coordinator.
package lan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/meshchat/internal/discovery"
	"github.com/rudransh-shrivastava/meshchat/internal/logger"
	"github.com/rudransh-shrivastava/meshchat/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	defaultBeaconInterval = time.Second
	defaultPeerTTL        = 5 * time.Second
	readBufferSize        = 2048
)

type Config struct {
	// Address is this device's link-layer identity. A random one is
	// generated when empty.
	Address        string
	Name           string
	ListenAddr     string
	BroadcastAddrs []string
	MessagingPort  int
	BeaconInterval time.Duration
	PeerTTL        time.Duration
	Logger         *logrus.Logger
}

type seenPeer struct {
	raw      discovery.RawPeer
	udp      *net.UDPAddr
	port     int
	lastSeen time.Time
}

type link struct {
	connected   bool
	coordinator bool
	remote      string
	remoteUDP   *net.UDPAddr
	coordAddr   string
	peerAddr    string
}

type Discovery struct {
	cfg     Config
	logger  *logrus.Logger
	conn    *net.UDPConn
	targets []*net.UDPAddr

	notifications chan discovery.Notification
	done          chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once

	// emitMu serialises state changes with the notifications they produce,
	// so the stream observes them in order. It is always taken before mu.
	emitMu sync.Mutex

	mu       sync.Mutex
	closed   bool
	scanning bool
	beacons  bool
	peers    map[string]*seenPeer
	order    []string
	pending  string
	link     link
}

var _ discovery.Discovery = (*Discovery)(nil)

func New(cfg Config) (*Discovery, error) {
	if cfg.Address == "" {
		cfg.Address = uuid.NewString()
	}
	if cfg.BeaconInterval <= 0 {
		cfg.BeaconInterval = defaultBeaconInterval
	}
	if cfg.PeerTTL <= 0 {
		cfg.PeerTTL = defaultPeerTTL
	}
	if cfg.MessagingPort == 0 {
		cfg.MessagingPort = protocol.DefaultPort
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	targets := make([]*net.UDPAddr, 0, len(cfg.BroadcastAddrs))
	for _, addr := range cfg.BroadcastAddrs {
		udpAddr, err := net.ResolveUDPAddr("udp4", addr)
		if err != nil {
			return nil, fmt.Errorf("resolve broadcast address %s: %w", addr, err)
		}
		targets = append(targets, udpAddr)
	}

	laddr, err := net.ResolveUDPAddr("udp4", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %s: %w", cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", cfg.ListenAddr, err)
	}

	d := &Discovery{
		cfg:           cfg,
		logger:        log,
		conn:          conn,
		targets:       targets,
		notifications: make(chan discovery.Notification, 100),
		done:          make(chan struct{}),
		peers:         make(map[string]*seenPeer),
	}

	d.notifications <- discovery.AdapterStateChanged{Enabled: true}

	d.wg.Add(1)
	go d.readLoop()

	log.WithFields(logrus.Fields{"addr": d.Addr(), "id": cfg.Address}).Info("LAN discovery bound")
	return d, nil
}

// Addr is the bound UDP address.
func (d *Discovery) Addr() string {
	return d.conn.LocalAddr().String()
}

func (d *Discovery) Notifications() <-chan discovery.Notification {
	return d.notifications
}

func (d *Discovery) StartDiscovery(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return &discovery.Failure{Op: "discover", Code: discovery.ReasonBusy}
	}
	d.scanning = true
	startBeacons := !d.beacons
	d.beacons = true
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	if startBeacons {
		d.wg.Add(1)
		go d.beaconLoop()
	}

	d.emit(discovery.PeerListChanged{Peers: snapshot})
	return nil
}

func (d *Discovery) RequestPeers(ctx context.Context) ([]discovery.RawPeer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, &discovery.Failure{Op: "request peers", Code: discovery.ReasonBusy}
	}
	return d.snapshotLocked(), nil
}

func (d *Discovery) RequestLinkInfo(ctx context.Context) (discovery.LinkInfo, error) {
	if err := ctx.Err(); err != nil {
		return discovery.LinkInfo{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return discovery.LinkInfo{}, &discovery.Failure{Op: "request link info", Code: discovery.ReasonBusy}
	}
	return d.linkInfoLocked(), nil
}

// Connect asks the peer at address to form a link. The link comes up
// asynchronously once the peer accepts. Connecting to the peer already
// linked is a no-op.
func (d *Discovery) Connect(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return &discovery.Failure{Op: "connect", Code: discovery.ReasonBusy}
	}
	p, ok := d.peers[address]
	if !ok {
		d.mu.Unlock()
		return &discovery.Failure{Op: "connect", Code: discovery.ReasonError}
	}
	if d.link.connected {
		linked := d.link.remote
		d.mu.Unlock()
		if linked == address {
			return nil
		}
		return &discovery.Failure{Op: "connect", Code: discovery.ReasonBusy}
	}
	d.pending = address
	target := p.udp
	d.mu.Unlock()

	if err := d.send(protocol.MsgLinkRequest, target); err != nil {
		d.mu.Lock()
		d.pending = ""
		d.mu.Unlock()
		d.logger.WithError(err).Warn("Failed to send link request")
		return &discovery.Failure{Op: "connect", Code: discovery.ReasonError}
	}

	d.logger.WithField("peer", address).Debug("Link requested")
	return nil
}

func (d *Discovery) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return &discovery.Failure{Op: "disconnect", Code: discovery.ReasonBusy}
	}
	d.pending = ""
	if !d.link.connected {
		d.mu.Unlock()
		return nil
	}
	target := d.link.remoteUDP
	d.link = link{}
	d.mu.Unlock()

	if err := d.send(protocol.MsgLinkClose, target); err != nil {
		d.logger.WithError(err).Debug("Failed to send link close")
	}

	d.emit(discovery.LinkStateChanged{Connected: false})
	return nil
}

// Close stops the background loops and closes the notification stream.
// Every call made afterwards fails with ReasonBusy.
func (d *Discovery) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)

		d.emitMu.Lock()
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		select {
		case d.notifications <- discovery.AdapterStateChanged{Enabled: false}:
		default:
		}
		d.emitMu.Unlock()

		err = d.conn.Close()
		d.wg.Wait()
		close(d.notifications)
		d.logger.Info("LAN discovery closed")
	})
	return err
}

func (d *Discovery) readLoop() {
	defer d.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, src, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			d.logger.WithError(err).Debug("Failed to read datagram")
			continue
		}

		dg, err := protocol.UnmarshalDatagram(buf[:n])
		if err != nil {
			d.logger.WithError(err).WithField("from", src.String()).Debug("Ignoring datagram")
			continue
		}
		if dg.Address == d.cfg.Address {
			continue
		}

		d.handleDatagram(dg, src)
	}
}

func (d *Discovery) handleDatagram(dg protocol.Datagram, src *net.UDPAddr) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	switch dg.Type {
	case protocol.MsgBeacon:
		d.handleBeacon(dg, src)
	case protocol.MsgLinkRequest:
		d.handleLinkRequest(dg, src)
	case protocol.MsgLinkAccept:
		d.handleLinkAccept(dg, src)
	case protocol.MsgLinkClose:
		d.handleLinkClose(dg)
	}
}

func (d *Discovery) handleBeacon(dg protocol.Datagram, src *net.UDPAddr) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	changed := d.observeLocked(dg, src)
	emit := changed && d.scanning
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	if emit {
		d.emit(discovery.PeerListChanged{Peers: snapshot})
	}
}

func (d *Discovery) handleLinkRequest(dg protocol.Datagram, src *net.UDPAddr) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.observeLocked(dg, src)

	if d.link.connected {
		current := d.link
		d.mu.Unlock()
		if current.remote != dg.Address {
			d.logger.WithField("peer", dg.Address).Warn("Rejecting link request while linked to another peer")
			return
		}
		// Repeated request on the current link: roles never change. Only the
		// coordinator answers, in case its first accept was lost.
		if current.coordinator {
			if err := d.send(protocol.MsgLinkAccept, src); err != nil {
				d.logger.WithError(err).Warn("Failed to resend link accept")
			}
			return
		}
		d.logger.WithField("peer", dg.Address).Debug("Dropping link request from coordinator")
		return
	}
	// Crossed requests: the side with the lower address waits for its own
	// request to be accepted.
	if d.pending == dg.Address && d.cfg.Address < dg.Address {
		d.mu.Unlock()
		return
	}

	d.pending = ""
	d.link = link{
		connected:   true,
		coordinator: true,
		remote:      dg.Address,
		remoteUDP:   src,
		peerAddr:    net.JoinHostPort(src.IP.String(), strconv.Itoa(dg.Port)),
	}
	info := d.linkInfoLocked()
	d.mu.Unlock()

	if err := d.send(protocol.MsgLinkAccept, src); err != nil {
		d.logger.WithError(err).Warn("Failed to send link accept")
	}
	d.logger.WithField("peer", dg.Address).Info("Link established as coordinator")
	d.emit(discovery.LinkStateFromInfo(info))
}

func (d *Discovery) handleLinkAccept(dg protocol.Datagram, src *net.UDPAddr) {
	d.mu.Lock()
	if d.closed || d.pending != dg.Address {
		d.mu.Unlock()
		return
	}
	d.pending = ""
	d.link = link{
		connected: true,
		remote:    dg.Address,
		remoteUDP: src,
		coordAddr: net.JoinHostPort(src.IP.String(), strconv.Itoa(dg.Port)),
	}
	info := d.linkInfoLocked()
	d.mu.Unlock()

	d.logger.WithField("coordinator", info.CoordinatorAddress).Info("Link established")
	d.emit(discovery.LinkStateFromInfo(info))
}

func (d *Discovery) handleLinkClose(dg protocol.Datagram) {
	d.mu.Lock()
	if d.closed || !d.link.connected || d.link.remote != dg.Address {
		d.mu.Unlock()
		return
	}
	d.link = link{}
	d.mu.Unlock()

	d.logger.WithField("peer", dg.Address).Info("Link closed by peer")
	d.emit(discovery.LinkStateChanged{Connected: false})
}

func (d *Discovery) beaconLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.BeaconInterval)
	defer ticker.Stop()

	d.tick()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Discovery) tick() {
	for _, target := range d.targets {
		if err := d.send(protocol.MsgBeacon, target); err != nil {
			d.logger.WithError(err).WithField("target", target.String()).Debug("Failed to send beacon")
		}
	}
	d.sweep(time.Now())
}

// sweep drops peers whose last beacon is older than the TTL.
func (d *Discovery) sweep(now time.Time) {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	kept := d.order[:0]
	removed := false
	for _, addr := range d.order {
		p := d.peers[addr]
		if now.Sub(p.lastSeen) > d.cfg.PeerTTL && addr != d.link.remote {
			delete(d.peers, addr)
			removed = true
			continue
		}
		kept = append(kept, addr)
	}
	d.order = kept
	emit := removed && d.scanning
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	if emit {
		d.emit(discovery.PeerListChanged{Peers: snapshot})
	}
}

// observeLocked records a sighting and reports whether the visible peer set
// changed.
func (d *Discovery) observeLocked(dg protocol.Datagram, src *net.UDPAddr) bool {
	p, ok := d.peers[dg.Address]
	if !ok {
		d.peers[dg.Address] = &seenPeer{
			raw:      discovery.RawPeer{Address: dg.Address, Name: dg.Name},
			udp:      src,
			port:     dg.Port,
			lastSeen: time.Now(),
		}
		d.order = append(d.order, dg.Address)
		return true
	}

	changed := p.raw.Name != dg.Name
	p.raw.Name = dg.Name
	p.udp = src
	p.port = dg.Port
	p.lastSeen = time.Now()
	return changed
}

func (d *Discovery) snapshotLocked() []discovery.RawPeer {
	out := make([]discovery.RawPeer, 0, len(d.order))
	for _, addr := range d.order {
		raw := d.peers[addr].raw
		switch {
		case d.link.connected && d.link.remote == addr:
			raw.Status = discovery.StatusConnected
		case d.pending == addr:
			raw.Status = discovery.StatusInvited
		default:
			raw.Status = discovery.StatusAvailable
		}
		out = append(out, raw)
	}
	return out
}

func (d *Discovery) linkInfoLocked() discovery.LinkInfo {
	return discovery.LinkInfo{
		Connected:          d.link.connected,
		IsCoordinator:      d.link.coordinator,
		CoordinatorAddress: d.link.coordAddr,
		PeerAddress:        d.link.peerAddr,
	}
}

func (d *Discovery) send(t protocol.MessageType, to *net.UDPAddr) error {
	if to == nil {
		return errors.New("no target address")
	}

	data, err := protocol.Datagram{
		Type:    t,
		Address: d.cfg.Address,
		Name:    d.cfg.Name,
		Port:    d.cfg.MessagingPort,
	}.Marshal()
	if err != nil {
		return err
	}

	_, err = d.conn.WriteToUDP(data, to)
	return err
}

// emit must be called with emitMu held and mu released.
func (d *Discovery) emit(n discovery.Notification) {
	select {
	case d.notifications <- n:
	case <-d.done:
	}
}

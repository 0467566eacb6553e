// Package node is the session coordinator. It reacts to link notifications
// from the discovery collaborator, decides whether this device hosts or
// joins, owns the messaging endpoint and publishes status, messages and
// peer lists on an event bus.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rudransh-shrivastava/meshchat/internal/config"
	"github.com/rudransh-shrivastava/meshchat/internal/discovery"
	"github.com/rudransh-shrivastava/meshchat/internal/events"
	"github.com/rudransh-shrivastava/meshchat/internal/link"
	"github.com/rudransh-shrivastava/meshchat/internal/logger"
	"github.com/rudransh-shrivastava/meshchat/internal/peer"
	"github.com/rudransh-shrivastava/meshchat/internal/transport"
	"github.com/rudransh-shrivastava/meshchat/internal/worker"
	"github.com/sirupsen/logrus"
)

// Sender is the outbound path. transport.Sender implements it.
type Sender interface {
	Send(ctx context.Context, address, text string) error
	Dial(ctx context.Context, address string) (net.Conn, error)
}

type Options struct {
	Config    config.Config
	Discovery discovery.Discovery
	Sender    Sender
	// Bus is created, and closed on Stop, when nil.
	Bus    *events.Bus
	Logger *logrus.Logger
}

type snapshot struct {
	session  Session
	peers    []peer.Peer
	sequence uint64
}

type Node struct {
	cfg       config.Config
	discovery discovery.Discovery
	sender    Sender
	bus       *events.Bus
	ownBus    bool
	endpoint  *transport.Endpoint
	logger    *logrus.Logger

	pool     *worker.Pool
	commands chan func()
	cancel   context.CancelFunc
	done     chan struct{}

	// owned by the run loop
	session   Session
	registry  *peer.Registry
	tracker   *link.Tracker
	timer     *time.Timer
	timerC    <-chan time.Time
	handshake net.Conn

	current atomic.Pointer[snapshot]

	lifecycle sync.Mutex
	started   bool
	stopped   bool
}

func New(opts Options) (*Node, error) {
	if opts.Discovery == nil {
		return nil, fmt.Errorf("%w: discovery is required", ErrInvalidArgument)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	cfg := opts.Config
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = config.Default().NegotiationTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = config.Default().DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.Default().WriteTimeout
	}
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = config.Default().MaxLineSize
	}

	sender := opts.Sender
	if sender == nil {
		sender = transport.NewSender(transport.SenderConfig{
			Port:         cfg.Port,
			DialTimeout:  cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
			Logger:       log,
		})
	}

	bus := opts.Bus
	ownBus := bus == nil
	if ownBus {
		bus = events.NewBus(log)
	}

	n := &Node{
		cfg:       cfg,
		discovery: opts.Discovery,
		sender:    sender,
		bus:       bus,
		ownBus:    ownBus,
		endpoint: transport.NewEndpoint(transport.EndpointConfig{
			Addr:           cfg.ListenAddr(),
			MaxConnections: cfg.MaxConnections,
			MaxLineSize:    cfg.MaxLineSize,
			Buffer:         cfg.EventBuffer,
			Logger:         log,
		}),
		logger:   log,
		commands: make(chan func(), 100),
		done:     make(chan struct{}),
		registry: peer.NewRegistry(),
		tracker:  link.NewTracker(),
	}
	n.publishSnapshot()
	return n, nil
}

// Start binds the messaging endpoint and starts the coordinator task. The
// endpoint binds once per node: after a bind failure the node stays in
// StateFailed and Start returns ErrBindFailure.
func (n *Node) Start(ctx context.Context) error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()

	if n.started {
		return ErrAlreadyStarted
	}
	n.started = true

	if err := n.endpoint.Start(); err != nil {
		n.logger.Errorf("Failed to bind messaging endpoint on %s: %v", n.cfg.ListenAddr(), err)
		n.session.State = StateFailed
		n.publishSnapshot()
		n.bus.PublishStatus("listen failed: " + err.Error())
		return fmt.Errorf("%w: %v", ErrBindFailure, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.pool = worker.NewPool(loopCtx, n.logger)

	go n.run(loopCtx)
	n.resync()

	n.logger.WithField("addr", n.endpoint.Addr()).Info("Node started")
	return nil
}

// Stop cancels the coordinator task and closes the endpoint together with
// every live connection. Sends already in flight are not waited for.
func (n *Node) Stop() error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()

	if !n.started || n.stopped {
		return nil
	}
	n.stopped = true

	if n.cancel != nil {
		n.cancel()
		<-n.done
		n.pool.Stop()
	}

	active := n.endpoint.ActiveConns()
	err := n.endpoint.Close()
	if n.ownBus {
		n.bus.Close()
	}

	n.logger.WithField("closed_conns", active).Info("Node stopped")
	return err
}

// Subscribe attaches a subscriber to the node's status, message and peer
// streams.
func (n *Node) Subscribe() *events.Subscription {
	return n.bus.Subscribe()
}

func (n *Node) Session() Session {
	return n.current.Load().session
}

func (n *Node) Peers() []peer.Peer {
	peers := n.current.Load().peers
	out := make([]peer.Peer, len(peers))
	copy(out, peers)
	return out
}

// Addr is the bound messaging address, empty before Start.
func (n *Node) Addr() string {
	return n.endpoint.Addr()
}

func (n *Node) ready() error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()

	if !n.started || n.stopped || n.cancel == nil {
		return ErrNotStarted
	}
	return nil
}

// post hands fn to the coordinator task. It reports false when the task has
// already exited.
func (n *Node) post(fn func()) bool {
	select {
	case n.commands <- fn:
		return true
	case <-n.done:
		return false
	}
}

func (n *Node) publishSnapshot() {
	n.current.Store(&snapshot{
		session:  n.session,
		peers:    n.registry.All(),
		sequence: n.registry.Sequence(),
	})
}

func (n *Node) setSession(s Session) {
	n.session = s
	n.publishSnapshot()
}

// reasonCode renders a collaborator failure as its numeric reason code.
func reasonCode(err error) string {
	var failure *discovery.Failure
	if errors.As(err, &failure) {
		return strconv.Itoa(failure.Code)
	}
	return err.Error()
}

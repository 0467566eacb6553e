package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/meshchat/internal/logger"
	"github.com/rudransh-shrivastava/meshchat/internal/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

const (
	defaultMaxConnections = 32
	defaultBuffer         = 100
	acceptRetryDelay      = 50 * time.Millisecond
)

type EndpointConfig struct {
	Addr string
	// MaxConnections caps concurrently accepted connections. Further
	// clients wait in the kernel backlog until a slot frees up.
	MaxConnections int
	MaxLineSize    int
	Buffer         int
	Logger         *logrus.Logger
}

// Endpoint owns one listening socket and a read task per connection. Every
// received line is delivered on Messages in per-connection order.
type Endpoint struct {
	cfg    EndpointConfig
	logger *logrus.Logger

	messages chan Inbound
	done     chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	started  bool
	closed   bool

	closeOnce sync.Once
}

func NewEndpoint(cfg EndpointConfig) *Endpoint {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = protocol.DefaultMaxLineSize
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	return &Endpoint{
		cfg:      cfg,
		logger:   log,
		messages: make(chan Inbound, cfg.Buffer),
		done:     make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start binds the listening socket and runs the accept loop until Close.
// A bind failure is returned as is and the endpoint stays unstarted.
func (e *Endpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.started {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", e.cfg.Addr)
	if err != nil {
		return err
	}

	e.listener = netutil.LimitListener(ln, e.cfg.MaxConnections)
	e.started = true

	e.wg.Add(1)
	go e.acceptLoop()

	e.logger.WithField("addr", ln.Addr().String()).Info("Messaging endpoint listening")
	return nil
}

func (e *Endpoint) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Messages is closed once the endpoint is closed and every read task has
// finished.
func (e *Endpoint) Messages() <-chan Inbound {
	return e.messages
}

func (e *Endpoint) ActiveConns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}

// Serve hands an already established connection to the endpoint, which then
// reads it to completion and closes it. It reports false, closing conn, when
// the endpoint is already closed.
func (e *Endpoint) Serve(conn net.Conn) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = conn.Close()
		return false
	}
	e.conns[conn] = struct{}{}
	e.wg.Add(1)
	e.mu.Unlock()

	go e.readConn(conn)
	return true
}

// Close stops the accept loop, force-closes every live connection and waits
// for all read tasks to end.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.done)
		if e.listener != nil {
			err = e.listener.Close()
		}
		for conn := range e.conns {
			_ = conn.Close()
		}
		e.mu.Unlock()

		e.wg.Wait()
		close(e.messages)
		e.logger.Info("Messaging endpoint closed")
	})
	return err
}

func (e *Endpoint) acceptLoop() {
	defer e.wg.Done()

	for {
		conn, err := e.listener.Accept()
		if err != nil {
			select {
			case <-e.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			e.logger.WithError(err).Warn("Failed to accept connection")
			time.Sleep(acceptRetryDelay)
			continue
		}

		e.logger.WithField("peer", conn.RemoteAddr().String()).Debug("Connection accepted")
		if !e.Serve(conn) {
			return
		}
	}
}

func (e *Endpoint) readConn(conn net.Conn) {
	defer e.wg.Done()
	defer e.release(conn)

	remote := conn.RemoteAddr().String()
	lr := protocol.NewLineReader(conn, e.cfg.MaxLineSize)

	for {
		line, err := lr.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				e.logger.WithField("peer", remote).Debug("Connection closed by peer")
			case errors.Is(err, bufio.ErrTooLong):
				e.logger.WithField("peer", remote).Warnf("Dropping connection: line exceeds %d bytes", e.cfg.MaxLineSize)
			default:
				e.logger.WithError(err).WithField("peer", remote).Debug("Connection read failed")
			}
			return
		}

		select {
		case e.messages <- Inbound{Text: line, Remote: remote}:
		case <-e.done:
			return
		}
	}
}

func (e *Endpoint) release(conn net.Conn) {
	e.mu.Lock()
	delete(e.conns, conn)
	e.mu.Unlock()
	_ = conn.Close()
}

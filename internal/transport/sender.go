package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rudransh-shrivastava/meshchat/internal/logger"
	"github.com/rudransh-shrivastava/meshchat/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

type SenderConfig struct {
	// Port is used for addresses that do not name one.
	Port         int
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *logrus.Logger
}

// Sender delivers each line over its own connection: dial, write, close.
// There is no retry and no queueing.
type Sender struct {
	cfg    SenderConfig
	logger *logrus.Logger
	dialer net.Dialer
}

func NewSender(cfg SenderConfig) *Sender {
	if cfg.Port == 0 {
		cfg.Port = protocol.DefaultPort
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	return &Sender{
		cfg:    cfg,
		logger: log,
		dialer: net.Dialer{Timeout: cfg.DialTimeout},
	}
}

// Target turns a host or host:port into a dialable address.
func (s *Sender) Target(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	host := strings.TrimSuffix(strings.TrimPrefix(address, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(s.cfg.Port))
}

func (s *Sender) Dial(ctx context.Context, address string) (net.Conn, error) {
	target := s.Target(address)
	conn, err := s.dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return conn, nil
}

func (s *Sender) Send(ctx context.Context, address, text string) error {
	conn, err := s.Dial(ctx, address)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := protocol.WriteLine(conn, text); err != nil {
		return fmt.Errorf("write to %s: %w", conn.RemoteAddr(), err)
	}

	s.logger.WithField("peer", conn.RemoteAddr().String()).Debug("Message sent")
	return nil
}

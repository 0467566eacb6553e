// Package config loads meshchat settings from defaults, an optional TOML
// file and MESHCHAT_* environment variables, in that order.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/rudransh-shrivastava/meshchat/internal/protocol"
)

const EnvPrefix = "MESHCHAT"

var validate = validator.New()

type Config struct {
	Name               string        `envconfig:"NAME" validate:"required,max=64"`
	ListenHost         string        `envconfig:"LISTEN_HOST"`
	Port               int           `envconfig:"PORT" validate:"min=1,max=65535"`
	DiscoveryPort      int           `envconfig:"DISCOVERY_PORT" validate:"min=1,max=65535,nefield=Port"`
	BroadcastAddrs     []string      `envconfig:"BROADCAST_ADDRS" validate:"required,min=1,dive,required"`
	BeaconInterval     time.Duration `envconfig:"BEACON_INTERVAL" validate:"gt=0"`
	PeerTTL            time.Duration `envconfig:"PEER_TTL" validate:"gtfield=BeaconInterval"`
	NegotiationTimeout time.Duration `envconfig:"NEGOTIATION_TIMEOUT" validate:"gt=0"`
	DialTimeout        time.Duration `envconfig:"DIAL_TIMEOUT" validate:"gt=0"`
	WriteTimeout       time.Duration `envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	MaxConnections     int           `envconfig:"MAX_CONNECTIONS" validate:"min=1"`
	MaxLineSize        int           `envconfig:"MAX_LINE_SIZE" validate:"min=64"`
	EventBuffer        int           `envconfig:"EVENT_BUFFER" validate:"min=1"`
	LogLevel           string        `envconfig:"LOG_LEVEL" validate:"oneof=trace debug info warn warning error"`
}

type fileConfig struct {
	Name               string   `toml:"name"`
	ListenHost         string   `toml:"listen_host"`
	Port               int      `toml:"port"`
	DiscoveryPort      int      `toml:"discovery_port"`
	BroadcastAddrs     []string `toml:"broadcast_addrs"`
	BeaconInterval     string   `toml:"beacon_interval"`
	PeerTTL            string   `toml:"peer_ttl"`
	NegotiationTimeout string   `toml:"negotiation_timeout"`
	DialTimeout        string   `toml:"dial_timeout"`
	WriteTimeout       string   `toml:"write_timeout"`
	MaxConnections     int      `toml:"max_connections"`
	MaxLineSize        int      `toml:"max_line_size"`
	EventBuffer        int      `toml:"event_buffer"`
	LogLevel           string   `toml:"log_level"`
}

func Default() Config {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "meshchat"
	}

	return Config{
		Name:               name,
		Port:               protocol.DefaultPort,
		DiscoveryPort:      protocol.DefaultDiscoveryPort,
		BroadcastAddrs:     []string{"255.255.255.255"},
		BeaconInterval:     time.Second,
		PeerTTL:            5 * time.Second,
		NegotiationTimeout: 30 * time.Second,
		DialTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxConnections:     32,
		MaxLineSize:        protocol.DefaultMaxLineSize,
		EventBuffer:        64,
		LogLevel:           "info",
	}
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty) and the environment, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListenAddr is the messaging endpoint bind address.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.Port))
}

// DiscoveryAddr is the UDP bind address for LAN discovery.
func (c Config) DiscoveryAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.DiscoveryPort))
}

// BroadcastTargets returns BroadcastAddrs with the discovery port applied to
// entries that do not carry one.
func (c Config) BroadcastTargets() []string {
	targets := make([]string, 0, len(c.BroadcastAddrs))
	for _, addr := range c.BroadcastAddrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err == nil {
			targets = append(targets, addr)
			continue
		}
		targets = append(targets, net.JoinHostPort(addr, strconv.Itoa(c.DiscoveryPort)))
	}
	return targets
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("listen_host") {
		cfg.ListenHost = strings.TrimSpace(raw.ListenHost)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("discovery_port") {
		cfg.DiscoveryPort = raw.DiscoveryPort
	}
	if meta.IsDefined("broadcast_addrs") {
		cfg.BroadcastAddrs = raw.BroadcastAddrs
	}
	if meta.IsDefined("max_connections") {
		cfg.MaxConnections = raw.MaxConnections
	}
	if meta.IsDefined("max_line_size") {
		cfg.MaxLineSize = raw.MaxLineSize
	}
	if meta.IsDefined("event_buffer") {
		cfg.EventBuffer = raw.EventBuffer
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"beacon_interval", raw.BeaconInterval, &cfg.BeaconInterval},
		{"peer_ttl", raw.PeerTTL, &cfg.PeerTTL},
		{"negotiation_timeout", raw.NegotiationTimeout, &cfg.NegotiationTimeout},
		{"dial_timeout", raw.DialTimeout, &cfg.DialTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	return nil
}

package cli

import (
	"context"
	"fmt"

	"github.com/rudransh-shrivastava/meshchat/internal/config"
	"github.com/rudransh-shrivastava/meshchat/internal/discovery/lan"
	"github.com/rudransh-shrivastava/meshchat/internal/node"
	"github.com/sirupsen/logrus"
)

func newDiscovery(c config.Config, l *logrus.Logger) (*lan.Discovery, error) {
	d, err := lan.New(lan.Config{
		Name:           c.Name,
		ListenAddr:     c.DiscoveryAddr(),
		BroadcastAddrs: c.BroadcastTargets(),
		MessagingPort:  c.Port,
		BeaconInterval: c.BeaconInterval,
		PeerTTL:        c.PeerTTL,
		Logger:         l,
	})
	if err != nil {
		return nil, fmt.Errorf("starting discovery: %w", err)
	}
	return d, nil
}

// startNode wires LAN discovery to a started node. The returned cleanup
// stops both.
func startNode(ctx context.Context, c config.Config, l *logrus.Logger) (*node.Node, func(), error) {
	disc, err := newDiscovery(c, l)
	if err != nil {
		return nil, nil, err
	}

	n, err := node.New(node.Options{Config: c, Discovery: disc, Logger: l})
	if err != nil {
		_ = disc.Close()
		return nil, nil, err
	}

	if err := n.Start(ctx); err != nil {
		_ = n.Stop()
		_ = disc.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = n.Stop()
		_ = disc.Close()
	}
	return n, cleanup, nil
}

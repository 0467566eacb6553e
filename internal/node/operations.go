package node

import (
	"context"
	"fmt"

	"github.com/rudransh-shrivastava/meshchat/internal/events"
	"github.com/rudransh-shrivastava/meshchat/internal/peer"
)

// StartDiscovery asks the collaborator to scan. The outcome is reported as
// a status event; failures are not retried.
func (n *Node) StartDiscovery() error {
	if err := n.ready(); err != nil {
		return err
	}

	n.pool.Go("start discovery", func(ctx context.Context) {
		err := n.discovery.StartDiscovery(ctx)
		n.post(func() {
			if err != nil {
				n.logger.Warnf("Discovery failed: %v", err)
				n.bus.PublishStatus("discovery failed: " + reasonCode(err))
				return
			}
			if n.session.State == StateIdle || n.session.State == StateFailed {
				n.setSession(Session{State: StateDiscovering})
			}
			n.bus.PublishStatus("searching")
		})
	})
	return nil
}

// ConnectTo asks the collaborator for a link to p. The role is decided
// later by a link notification; if none arrives within the negotiation
// timeout the session falls back to idle.
func (n *Node) ConnectTo(p peer.Peer) error {
	if p.Address == "" {
		return fmt.Errorf("%w: peer has no address", ErrInvalidArgument)
	}
	if err := n.ready(); err != nil {
		return err
	}

	n.pool.Go("connect", func(ctx context.Context) {
		// an established session keeps its link; the collaborator is not
		// asked again
		proceed := make(chan bool, 1)
		posted := n.post(func() {
			if n.session.State == StateEstablished {
				n.bus.PublishStatus("already connected to " + n.session.RemoteAddress)
				proceed <- false
				return
			}
			n.setSession(Session{State: StateConnecting})
			n.armTimer()
			proceed <- true
		})
		if !posted {
			return
		}
		select {
		case ok := <-proceed:
			if !ok {
				return
			}
		case <-n.done:
			return
		}

		err := n.discovery.Connect(ctx, p.Address)
		n.post(func() {
			if err != nil {
				n.logger.WithField("peer", p.Address).Warnf("Connect failed: %v", err)
				if n.session.State == StateConnecting {
					n.stopTimer()
					n.setSession(Session{State: StateIdle})
				}
				n.bus.PublishStatus("connect failed: " + reasonCode(err))
				return
			}
			name := p.DisplayName()
			if known, ok := n.registry.Lookup(p.Address); ok {
				name = known.DisplayName()
			}
			n.bus.PublishStatus("connecting to " + name)
		})
	})
	return nil
}

// SendMessage delivers text to target on a background task. Empty text and
// text a receiver with the same line limit would refuse are rejected before
// any socket is opened.
func (n *Node) SendMessage(target, text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidArgument)
	}
	if len(text) >= n.cfg.MaxLineSize {
		return fmt.Errorf("%w: message of %d bytes exceeds the %d byte line limit", ErrInvalidArgument, len(text), n.cfg.MaxLineSize-1)
	}
	if target == "" {
		return fmt.Errorf("%w: empty target address", ErrInvalidArgument)
	}
	if err := n.ready(); err != nil {
		return err
	}

	n.pool.Go("send", func(context.Context) {
		// not tied to the node's lifetime: a send in flight at Stop runs out
		// on its own deadline
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.DialTimeout+n.cfg.WriteTimeout)
		defer cancel()

		if err := n.sender.Send(ctx, target, text); err != nil {
			n.logger.WithField("target", target).Warnf("Send failed: %v", err)
			n.bus.PublishStatus("send failed: " + err.Error())
			return
		}

		n.bus.PublishMessage(text, events.Sent, target)
		n.bus.PublishStatus("message sent to " + target)
	})
	return nil
}

// Disconnect asks the collaborator to tear the link down. The session is
// reset by the link-down notification that follows.
func (n *Node) Disconnect() error {
	if err := n.ready(); err != nil {
		return err
	}

	n.pool.Go("disconnect", func(ctx context.Context) {
		err := n.discovery.Disconnect(ctx)
		n.post(func() {
			if err != nil {
				n.logger.Warnf("Disconnect failed: %v", err)
				n.bus.PublishStatus("disconnect failed: " + reasonCode(err))
				return
			}
			if n.session.State == StateConnecting {
				n.stopTimer()
				n.setSession(Session{State: StateIdle})
			}
		})
	})
	return nil
}

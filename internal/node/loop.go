package node

import (
	"context"
	"fmt"
	"time"

	"github.com/rudransh-shrivastava/meshchat/internal/discovery"
	"github.com/rudransh-shrivastava/meshchat/internal/events"
	"github.com/rudransh-shrivastava/meshchat/internal/link"
	"github.com/rudransh-shrivastava/meshchat/internal/peer"
	"github.com/sirupsen/logrus"
)

// run is the coordinator task. Session, registry, tracker, timer and the
// handshake connection are only touched from here.
func (n *Node) run(ctx context.Context) {
	defer close(n.done)

	notifications := n.discovery.Notifications()
	messages := n.endpoint.Messages()

	for {
		select {
		case <-ctx.Done():
			n.resetSession()
			return

		case note, ok := <-notifications:
			if !ok {
				n.logger.Warn("Discovery notification stream closed")
				notifications = nil
				continue
			}
			n.handleNotification(note)

		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			n.bus.PublishMessage(msg.Text, events.Received, msg.Remote)

		case cmd := <-n.commands:
			cmd()

		case <-n.timerC:
			n.onNegotiationTimeout()
		}
	}
}

func (n *Node) handleNotification(note discovery.Notification) {
	ev, ok := n.tracker.Translate(note)
	if !ok {
		n.logger.Debugf("Ignoring notification %T", note)
		return
	}

	switch ev := ev.(type) {
	case link.PeersUpdated:
		n.registry.ReplaceAll(ev.Peers)
		n.logger.WithField("count", n.registry.Len()).Debugf("Peers updated: %v", peer.Names(n.registry.All()))
		n.publishSnapshot()
		n.bus.PublishPeers(n.registry.All())

	case link.BecameHost:
		n.onBecameHost(ev.PeerAddress)

	case link.BecameClient:
		n.onBecameClient(ev.RemoteAddress)

	case link.LinkLost:
		n.logger.Info("Link lost")
		n.resetSession()
		n.bus.PublishStatus("disconnected")

	case link.AdapterChanged:
		if ev.Enabled {
			n.bus.PublishStatus("adapter enabled")
			n.resync()
			return
		}
		n.bus.PublishStatus("adapter disabled")
	}
}

func (n *Node) onBecameHost(peerAddress string) {
	n.stopTimer()

	if n.session.Established() && n.session.Role == RoleHost {
		if peerAddress != "" && peerAddress != n.session.RemoteAddress {
			n.setSession(Session{Role: RoleHost, RemoteAddress: peerAddress, State: StateEstablished})
		}
		return
	}

	n.closeHandshake()
	n.setSession(Session{Role: RoleHost, RemoteAddress: peerAddress, State: StateEstablished})
	n.logger.WithField("peer", peerAddress).Info("Link established as host")
	n.bus.PublishStatus("you are the host")
}

func (n *Node) onBecameClient(remote string) {
	n.stopTimer()

	if n.session.Established() && n.session.Role == RoleClient && n.session.RemoteAddress == remote {
		return
	}

	n.closeHandshake()
	n.setSession(Session{Role: RoleClient, RemoteAddress: remote, State: StateEstablished})
	n.logger.WithField("host", remote).Info("Link established as client")
	n.bus.PublishStatus("connected to host " + remote)
	n.dialHost(remote)
}

// dialHost opens the client's connection to the host's listening port and
// hands it to the endpoint, which reads whatever the host writes on it.
func (n *Node) dialHost(remote string) {
	n.pool.Go("dial host", func(ctx context.Context) {
		dialCtx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
		defer cancel()

		conn, err := n.sender.Dial(dialCtx, remote)
		if err != nil {
			n.post(func() {
				if n.session.Role != RoleClient || n.session.RemoteAddress != remote {
					return
				}
				n.logger.WithField("host", remote).Warnf("Failed to reach host: %v", err)
				n.bus.PublishStatus("host unreachable: " + err.Error())
			})
			return
		}

		posted := n.post(func() {
			if n.session.Role != RoleClient || n.session.RemoteAddress != remote || n.handshake != nil {
				_ = conn.Close()
				return
			}
			if n.endpoint.Serve(conn) {
				n.handshake = conn
			}
		})
		if !posted {
			_ = conn.Close()
		}
	})
}

// resync adopts a link or peer list that already existed before the
// coordinator started listening, unless newer notifications got there first.
func (n *Node) resync() {
	seq := n.current.Load().sequence

	n.pool.Go("resync", func(ctx context.Context) {
		info, linkErr := n.discovery.RequestLinkInfo(ctx)
		peers, peersErr := n.discovery.RequestPeers(ctx)

		n.post(func() {
			if linkErr != nil {
				n.logger.Debugf("Link info unavailable: %v", linkErr)
			} else if info.Connected && !n.tracker.Established() {
				n.handleNotification(discovery.LinkStateFromInfo(info))
			}

			if peersErr != nil {
				n.logger.Debugf("Peer list unavailable: %v", peersErr)
			} else if n.registry.Sequence() == seq {
				n.handleNotification(discovery.PeerListChanged{Peers: peers})
			}
		})
	})
}

func (n *Node) armTimer() {
	n.stopTimer()
	n.timer = time.NewTimer(n.cfg.NegotiationTimeout)
	n.timerC = n.timer.C
}

func (n *Node) stopTimer() {
	if n.timer == nil {
		return
	}
	n.timer.Stop()
	n.timer = nil
	n.timerC = nil
}

func (n *Node) onNegotiationTimeout() {
	n.timer = nil
	n.timerC = nil

	if n.session.State != StateConnecting {
		return
	}

	n.logger.WithFields(logrus.Fields{"timeout": n.cfg.NegotiationTimeout}).Warn("Role negotiation timed out")
	n.setSession(Session{State: StateIdle})
	n.bus.PublishStatus(fmt.Sprintf("negotiation failed: %v", ErrNegotiationTimeout))
}

func (n *Node) resetSession() {
	n.stopTimer()
	n.closeHandshake()
	n.tracker.Reset()
	n.setSession(Session{State: StateIdle})
}

func (n *Node) closeHandshake() {
	if n.handshake == nil {
		return
	}
	_ = n.handshake.Close()
	n.handshake = nil
}

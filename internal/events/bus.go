package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/meshchat/internal/logger"
	"github.com/rudransh-shrivastava/meshchat/internal/peer"
	"github.com/sirupsen/logrus"
)

// Bus fans events out to every live Subscription. Each kind keeps
// publication order per subscriber; nothing is ordered across kinds.
//
// Bus is safe for concurrent use.
type Bus struct {
	logger *logrus.Logger

	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextID  uint64
	ordinal uint64
	closed  bool
}

func NewBus(log *logrus.Logger) *Bus {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Bus{
		logger: log,
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscribe attaches a new subscriber. It only sees events published after
// the call. Subscribing to a closed bus yields already closed channels.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscription(b, b.nextID)
	b.nextID++
	if b.closed {
		sub.finish()
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) PublishStatus(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.logger.WithField("status", text).Debug("Publishing status")

	st := Status{Text: text, At: time.Now()}
	for _, sub := range b.subs {
		sub.status.push(st)
	}
}

// PublishMessage stamps the message with an ID and ordinal and returns what
// was published.
func (b *Bus) PublishMessage(text string, dir Direction, remote string) Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ordinal++
	msg := Message{
		ID:        uuid.New(),
		Text:      text,
		Direction: dir,
		Remote:    remote,
		Ordinal:   b.ordinal,
		At:        time.Now(),
	}
	if b.closed {
		return msg
	}

	for _, sub := range b.subs {
		sub.messages.push(msg)
	}
	return msg
}

func (b *Bus) PublishPeers(peers []peer.Peer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		// each subscriber owns its copy
		cp := make([]peer.Peer, len(peers))
		copy(cp, peers)
		sub.peers.push(PeersUpdated{Peers: cp, At: time.Now()})
	}
}

// Close ends every subscription once its queued events are delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.finish()
		delete(b.subs, id)
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Subscription is one subscriber's view of the bus. Each channel is closed
// when the bus closes or the subscription is closed.
type Subscription struct {
	id  uint64
	bus *Bus

	status   *queue[Status]
	messages *queue[Message]
	peers    *queue[PeersUpdated]

	done      chan struct{}
	closeOnce sync.Once
}

func newSubscription(b *Bus, id uint64) *Subscription {
	s := &Subscription{
		id:       id,
		bus:      b,
		status:   newQueue[Status](),
		messages: newQueue[Message](),
		peers:    newQueue[PeersUpdated](),
		done:     make(chan struct{}),
	}
	go s.status.run(s.done)
	go s.messages.run(s.done)
	go s.peers.run(s.done)
	return s
}

func (s *Subscription) Status() <-chan Status {
	return s.status.out
}

func (s *Subscription) Messages() <-chan Message {
	return s.messages.out
}

func (s *Subscription) Peers() <-chan PeersUpdated {
	return s.peers.out
}

// Close detaches the subscriber and drops whatever it has not read yet.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.remove(s.id)
		close(s.done)
	})
}

func (s *Subscription) finish() {
	s.status.finish()
	s.messages.finish()
	s.peers.finish()
}

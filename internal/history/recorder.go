package history

import (
	"context"

	"github.com/rudransh-shrivastava/meshchat/internal/events"
	"github.com/rudransh-shrivastava/meshchat/internal/logger"
	"github.com/sirupsen/logrus"
)

// Recorder copies a subscription's messages and peer snapshots into a Store.
type Recorder struct {
	store  *Store
	logger *logrus.Logger
}

func NewRecorder(store *Store, log *logrus.Logger) *Recorder {
	if log == nil {
		log = logger.NewLogger()
	}
	return &Recorder{store: store, logger: log}
}

// Run records until ctx is done or every stream of sub is closed. Status
// events are drained and dropped.
func (r *Recorder) Run(ctx context.Context, sub *events.Subscription) error {
	status := sub.Status()
	messages := sub.Messages()
	peers := sub.Peers()

	for status != nil || messages != nil || peers != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case _, ok := <-status:
			if !ok {
				status = nil
			}

		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			if err := r.store.SaveMessage(ctx, msg); err != nil {
				r.logger.WithError(err).Warn("Failed to record message")
			}

		case ev, ok := <-peers:
			if !ok {
				peers = nil
				continue
			}
			if err := r.store.SavePeers(ctx, ev.Peers); err != nil {
				r.logger.WithError(err).Warn("Failed to record peers")
			}
		}
	}
	return nil
}

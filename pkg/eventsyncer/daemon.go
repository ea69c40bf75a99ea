package eventsyncer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/setup-robot/wifi-connect/pkg/store"

	log "github.com/sirupsen/logrus"
)

const attemptEventType = "wifi_provision_attempt"

// EventSyncer periodically drains recorded connection attempts and ships
// them to the fleet backend. Attempts accumulate while the device is
// offline; a publish failure just leaves the file for the next tick.
type EventSyncer struct {
	store     store.CredentialStore
	publisher store.Publisher
	t         *time.Ticker
}

func NewEventSyncer(
	interval time.Duration,
	credStore store.CredentialStore,
	publisher store.Publisher) *EventSyncer {
	es := &EventSyncer{store: credStore, publisher: publisher}
	if credStore == nil || publisher == nil {
		log.Fatalf("can't start an event syncer without a store and publisher. Got nil")
	}
	es.t = time.NewTicker(interval)
	return es
}

func (es *EventSyncer) Close() error {
	es.t.Stop()
	return nil
}

func (es *EventSyncer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return es.Close()

		case <-es.t.C:
			fileNames, attempts, err := es.store.PendingAttempts()
			if err != nil {
				return errors.Wrapf(err, "error reading pending attempts")
			}
			for i, attempt := range attempts {
				log.Infof("publishing attempt: %v", string(attempt))
				err := es.publisher.Publish(attemptEventType, attempt)
				if err != nil {
					log.Warnf("Could not publish attempt: %v. Will retry later", string(attempt))
					continue
				}
				err = es.store.DeleteAttempt(fileNames[i])
				if err != nil {
					log.Warnf("Could not delete synced attempt file %v: %v", fileNames[i], err)
				}
			}
		}
	}
}

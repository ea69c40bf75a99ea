package eventsyncer

import (
	"context"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setup-robot/wifi-connect/pkg/store"
)

type fakePublisher struct {
	fail      bool
	published [][]byte
}

func (f *fakePublisher) Publish(eventType string, payload []byte) error {
	if f.fail {
		return errors.New("gateway unreachable")
	}
	f.published = append(f.published, payload)
	return nil
}

func newSyncedStore(t *testing.T) store.CredentialStore {
	dir, err := ioutil.TempDir("", "syncer")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	credStore, err := store.NewFileSystemStore("bench-device-1", dir)
	require.NoError(t, err)
	return credStore
}

func TestSyncPublishesAndDeletes(t *testing.T) {
	credStore := newSyncedStore(t)
	require.NoError(t, credStore.RecordAttempt(store.Attempt{
		SSID:      "HomeNet",
		StartedAt: time.Now(),
		Outcome:   store.FailedAuth,
	}))

	publisher := &fakePublisher{}
	syncer := NewEventSyncer(10*time.Millisecond, credStore, publisher)
	defer syncer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	syncer.Run(ctx)

	assert.Len(t, publisher.published, 1)
	names, _, err := credStore.PendingAttempts()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSyncRetainsOnPublishFailure(t *testing.T) {
	credStore := newSyncedStore(t)
	require.NoError(t, credStore.RecordAttempt(store.Attempt{
		SSID:      "HomeNet",
		StartedAt: time.Now(),
		Outcome:   store.FailedTimeout,
	}))

	publisher := &fakePublisher{fail: true}
	syncer := NewEventSyncer(10*time.Millisecond, credStore, publisher)
	defer syncer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	syncer.Run(ctx)

	// The attempt stays queued for the next run.
	names, _, err := credStore.PendingAttempts()
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

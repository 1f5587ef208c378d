package progress

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyanpath/gyanpath-agent/pkg/events"
	"github.com/gyanpath/gyanpath-agent/pkg/outbox"
	"github.com/gyanpath/gyanpath-agent/pkg/remote"
	"github.com/gyanpath/gyanpath-agent/pkg/storage"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

func newTestTracker(t *testing.T) (*Tracker, storage.Store, *outbox.Outbox) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	ob := outbox.New(store, remote.NewClient(server.URL, ""), broker, time.Minute)
	return NewTracker(store, ob, time.Minute), store, ob
}

// failingStore rejects SaveProgress while failing is set.
type failingStore struct {
	storage.Store
	failing bool
}

func (s *failingStore) SaveProgress(progress *types.ProgressRecord) error {
	if s.failing {
		return assert.AnError
	}
	return s.Store.SaveProgress(progress)
}

func TestTrackerFlushPersistsAndEnqueues(t *testing.T) {
	tracker, store, ob := newTestTracker(t)

	tracker.RecordTime("l1", "c1", 0.5)
	tracker.RecordTime("l1", "c1", 1.0)
	tracker.RecordTime("l2", "c1", 0.8)

	require.NoError(t, tracker.Flush())

	rec, err := store.GetProgress("l1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.PositionSeconds)
	assert.False(t, rec.Completed)

	depth, err := ob.Depth()
	require.NoError(t, err)
	assert.Equal(t, 2, depth, "one outbox entry per staged lesson")

	// Nothing staged after a flush; flushing again enqueues nothing.
	require.NoError(t, tracker.Flush())
	depth, err = ob.Depth()
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestTrackerCompleteEnqueuesAggregates(t *testing.T) {
	tracker, store, ob := newTestTracker(t)

	tracker.RecordTime("l1", "c1", 0.9)
	require.NoError(t, tracker.Complete("l1", "c1"))

	rec, err := store.GetProgress("l1")
	require.NoError(t, err)
	assert.True(t, rec.Completed)

	entries, err := store.ListOutbox()
	require.NoError(t, err)
	kinds := make(map[types.OutboxKind]int)
	for _, e := range entries {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds[types.OutboxKindLessonComplete])
	assert.Equal(t, 1, kinds[types.OutboxKindEnrollmentProgress])

	depth, err := ob.Depth()
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestTrackerFlushRestagesOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	bolt, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	store := &failingStore{Store: bolt, failing: true}
	ob := outbox.New(bolt, remote.NewClient(server.URL, ""), broker, time.Minute)
	tracker := NewTracker(store, ob, time.Minute)

	tracker.RecordTime("l1", "c1", 12.0)
	tracker.RecordTime("l2", "c1", 7.0)

	require.Error(t, tracker.Flush())

	// A failed flush must not drop the staged records.
	store.failing = false
	require.NoError(t, tracker.Flush())

	rec, err := bolt.GetProgress("l1")
	require.NoError(t, err)
	assert.Equal(t, 12.0, rec.PositionSeconds)

	rec, err = bolt.GetProgress("l2")
	require.NoError(t, err)
	assert.Equal(t, 7.0, rec.PositionSeconds)
}

func TestTrackerBlocksSkipAcrossCalls(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	tracker.RecordTime("l1", "c1", 0.5)
	pos, forcedBack := tracker.RecordTime("l1", "c1", 45.0)
	assert.True(t, forcedBack)
	assert.Equal(t, 0.5, pos)

	assert.False(t, tracker.RequestSeek("l1", 10.0))
	assert.True(t, tracker.RequestSeek("l1", 0.4))
}

func TestTrackerResumesFromStore(t *testing.T) {
	tracker, store, _ := newTestTracker(t)

	require.NoError(t, store.SaveProgress(&types.ProgressRecord{
		LessonID:        "l1",
		CourseID:        "c1",
		PositionSeconds: 300,
	}))

	// A fresh guard picks up the persisted high-water mark.
	assert.True(t, tracker.RequestSeek("l1", 299))
	assert.False(t, tracker.RequestSeek("l1", 301))
}

package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/gyanpath/gyanpath-agent/pkg/log"
	"github.com/gyanpath/gyanpath-agent/pkg/outbox"
	"github.com/gyanpath/gyanpath-agent/pkg/storage"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

// Tracker manages per-lesson playback guards and persists progress. Updates
// land in the local store and the outbox on every flush tick; nothing goes
// directly to the network from the playback path.
type Tracker struct {
	store  storage.Store
	outbox *outbox.Outbox

	interval time.Duration
	stopCh   chan struct{}

	mu     sync.Mutex
	guards map[string]*Guard
	dirty  map[string]*types.ProgressRecord
}

// NewTracker creates a tracker. interval is the flush cadence (the original
// player synced every 5 seconds).
func NewTracker(store storage.Store, ob *outbox.Outbox, interval time.Duration) *Tracker {
	return &Tracker{
		store:    store,
		outbox:   ob,
		interval: interval,
		stopCh:   make(chan struct{}),
		guards:   make(map[string]*Guard),
		dirty:    make(map[string]*types.ProgressRecord),
	}
}

// Start begins the periodic flush loop
func (t *Tracker) Start() {
	go t.run()
}

// Stop stops the flush loop, flushing once more on the way out.
func (t *Tracker) Stop() {
	close(t.stopCh)
	if err := t.Flush(); err != nil {
		logger := log.WithComponent("progress")
		logger.Warn().Err(err).Msg("final flush failed")
	}
}

func (t *Tracker) run() {
	logger := log.WithComponent("progress")
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.Flush(); err != nil {
				logger.Warn().Err(err).Msg("progress flush failed")
			}
		case <-t.stopCh:
			return
		}
	}
}

// RecordTime feeds a playback time update through the lesson's guard and
// stages the accepted position for the next flush. Returns the position the
// player should be at and whether it was forced back.
func (t *Tracker) RecordTime(lessonID, courseID string, position float64) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	guard := t.guardLocked(lessonID)
	accepted, forcedBack := guard.RecordTime(position)

	rec, ok := t.dirty[lessonID]
	if !ok {
		rec = &types.ProgressRecord{LessonID: lessonID, CourseID: courseID}
		t.dirty[lessonID] = rec
	}
	rec.PositionSeconds = guard.MaxWatched()
	rec.UpdatedAt = time.Now()

	return accepted, forcedBack
}

// RequestSeek reports whether an explicit seek is allowed for the lesson.
func (t *Tracker) RequestSeek(lessonID string, target float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.guardLocked(lessonID).RequestSeek(target)
}

// Complete marks a lesson finished: the local record flips to completed and
// both the completion and the enrollment aggregate update are enqueued on
// the outbox.
func (t *Tracker) Complete(lessonID, courseID string) error {
	t.mu.Lock()
	guard := t.guardLocked(lessonID)
	position := guard.MaxWatched()
	delete(t.dirty, lessonID)
	t.mu.Unlock()

	rec := &types.ProgressRecord{
		LessonID:        lessonID,
		CourseID:        courseID,
		PositionSeconds: position,
		Completed:       true,
		UpdatedAt:       time.Now(),
	}
	if err := t.store.SaveProgress(rec); err != nil {
		return fmt.Errorf("failed to save completion: %w", err)
	}

	err := t.outbox.Enqueue(types.OutboxKindLessonComplete, &types.ProgressUpdate{
		LessonID:        lessonID,
		CourseID:        courseID,
		PositionSeconds: position,
		Completed:       true,
		RecordedAt:      time.Now(),
	})
	if err != nil {
		return err
	}
	return t.outbox.Enqueue(types.OutboxKindEnrollmentProgress, &types.EnrollmentUpdate{CourseID: courseID})
}

// Flush persists staged records and enqueues them for remote sync. On a
// failure the unflushed records are re-staged so the next flush retries
// them instead of dropping progress.
func (t *Tracker) Flush() error {
	t.mu.Lock()
	staged := t.dirty
	t.dirty = make(map[string]*types.ProgressRecord)
	t.mu.Unlock()

	for id, rec := range staged {
		if err := t.store.SaveProgress(rec); err != nil {
			t.restage(staged)
			return fmt.Errorf("failed to save progress for %s: %w", rec.LessonID, err)
		}
		err := t.outbox.Enqueue(types.OutboxKindProgress, &types.ProgressUpdate{
			LessonID:        rec.LessonID,
			CourseID:        rec.CourseID,
			PositionSeconds: rec.PositionSeconds,
			Completed:       rec.Completed,
			RecordedAt:      rec.UpdatedAt,
		})
		if err != nil {
			t.restage(staged)
			return err
		}
		delete(staged, id)
	}
	return nil
}

// restage puts unflushed records back. A record the player touched again in
// the meantime is newer than the stale copy and wins.
func (t *Tracker) restage(records map[string]*types.ProgressRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, rec := range records {
		if _, ok := t.dirty[id]; !ok {
			t.dirty[id] = rec
		}
	}
}

// guardLocked returns the lesson's guard, creating it from the persisted
// position on first touch. Caller holds t.mu.
func (t *Tracker) guardLocked(lessonID string) *Guard {
	if guard, ok := t.guards[lessonID]; ok {
		return guard
	}

	resume := 0.0
	if rec, err := t.store.GetProgress(lessonID); err == nil {
		resume = rec.PositionSeconds
	}
	guard := NewGuard(resume)
	t.guards[lessonID] = guard
	return guard
}

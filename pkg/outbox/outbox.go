package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gyanpath/gyanpath-agent/pkg/events"
	"github.com/gyanpath/gyanpath-agent/pkg/log"
	"github.com/gyanpath/gyanpath-agent/pkg/metrics"
	"github.com/gyanpath/gyanpath-agent/pkg/remote"
	"github.com/gyanpath/gyanpath-agent/pkg/storage"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

const (
	backoffBase = 5 * time.Second
	backoffCap  = 5 * time.Minute
)

// Outbox drains pending remote writes with retry and backoff. Writes are
// persisted locally first, so transient network failure cannot lose learner
// progress.
type Outbox struct {
	store  storage.Store
	remote *remote.Client
	broker *events.Broker
	online func() bool // nil means always online

	interval time.Duration
	stopCh   chan struct{}
}

// New creates an outbox. interval is the drain loop tick.
func New(store storage.Store, client *remote.Client, broker *events.Broker, interval time.Duration) *Outbox {
	return &Outbox{
		store:    store,
		remote:   client,
		broker:   broker,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// SetOnlineCheck installs a connectivity gate; drains are skipped while it
// reports false.
func (o *Outbox) SetOnlineCheck(f func() bool) {
	o.online = f
}

// Enqueue persists a pending remote write.
func (o *Outbox) Enqueue(kind types.OutboxKind, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	entry := &types.OutboxEntry{
		ID:          uuid.New().String(),
		Kind:        kind,
		Payload:     data,
		NextAttempt: time.Now(),
		CreatedAt:   time.Now(),
	}
	if err := o.store.EnqueueOutbox(entry); err != nil {
		return fmt.Errorf("failed to enqueue outbox entry: %w", err)
	}
	o.updateDepthGauge()
	return nil
}

// Depth returns the number of pending entries.
func (o *Outbox) Depth() (int, error) {
	entries, err := o.store.ListOutbox()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Start begins the drain loop
func (o *Outbox) Start() {
	go o.run()
}

// Stop stops the drain loop
func (o *Outbox) Stop() {
	close(o.stopCh)
}

func (o *Outbox) run() {
	logger := log.WithComponent("outbox")
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if o.online != nil && !o.online() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), o.interval)
			if _, _, err := o.DrainOnce(ctx); err != nil {
				logger.Warn().Err(err).Msg("drain cycle failed")
			}
			cancel()
		case <-o.stopCh:
			return
		}
	}
}

// DrainOnce pushes every due entry once. Per-entry failures reschedule that
// entry with exponential backoff and never stop the cycle. Returns the
// drained and failed counts.
func (o *Outbox) DrainOnce(ctx context.Context) (drained, failed int, err error) {
	entries, err := o.store.ListOutbox()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list outbox: %w", err)
	}

	// Oldest first keeps progress updates roughly in order.
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })

	now := time.Now()
	logger := log.WithComponent("outbox")

	for _, entry := range entries {
		if entry.NextAttempt.After(now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}

		if err := o.dispatch(ctx, entry); err != nil {
			entry.Attempts++
			entry.LastError = err.Error()
			entry.NextAttempt = now.Add(backoff(entry.Attempts))
			if updateErr := o.store.UpdateOutbox(entry); updateErr != nil {
				logger.Error().Err(updateErr).Str("entry_id", entry.ID).Msg("failed to reschedule entry")
			}
			failed++
			metrics.OutboxDrainsTotal.WithLabelValues("failed").Inc()
			metrics.OutboxRetriesTotal.Inc()
			logger.Warn().Err(err).
				Str("entry_id", entry.ID).
				Str("kind", string(entry.Kind)).
				Int("attempts", entry.Attempts).
				Msg("outbox push failed, rescheduled")
			continue
		}

		if err := o.store.DeleteOutbox(entry.ID); err != nil {
			logger.Error().Err(err).Str("entry_id", entry.ID).Msg("failed to delete drained entry")
			continue
		}
		drained++
		metrics.OutboxDrainsTotal.WithLabelValues("drained").Inc()
	}

	o.updateDepthGauge()
	if drained > 0 {
		o.broker.Emit(types.EventSyncProgress, "outbox drained", map[string]string{
			"drained": strconv.Itoa(drained),
			"failed":  strconv.Itoa(failed),
		})
	}
	return drained, failed, nil
}

// dispatch pushes a single entry to the backend.
func (o *Outbox) dispatch(ctx context.Context, entry *types.OutboxEntry) error {
	switch entry.Kind {
	case types.OutboxKindProgress:
		var update types.ProgressUpdate
		if err := json.Unmarshal(entry.Payload, &update); err != nil {
			return fmt.Errorf("bad progress payload: %w", err)
		}
		return o.remote.UpsertProgress(ctx, &update)

	case types.OutboxKindLessonComplete:
		var update types.ProgressUpdate
		if err := json.Unmarshal(entry.Payload, &update); err != nil {
			return fmt.Errorf("bad completion payload: %w", err)
		}
		if err := o.remote.UpsertProgress(ctx, &update); err != nil {
			return err
		}
		return o.remote.CompleteLesson(ctx, update.LessonID)

	case types.OutboxKindEnrollmentProgress:
		var update types.EnrollmentUpdate
		if err := json.Unmarshal(entry.Payload, &update); err != nil {
			return fmt.Errorf("bad enrollment payload: %w", err)
		}
		percent, err := o.completionPercent(update.CourseID)
		if err != nil {
			return err
		}
		return o.remote.UpdateEnrollmentProgress(ctx, update.CourseID, percent)

	default:
		return fmt.Errorf("unknown outbox kind %q", entry.Kind)
	}
}

// completionPercent recomputes the course aggregate from local rows at drain
// time. Queued duplicates therefore converge on the same final value no
// matter the order they drain in.
func (o *Outbox) completionPercent(courseID string) (int, error) {
	lessons, err := o.store.ListLessonsByCourse(courseID)
	if err != nil {
		return 0, fmt.Errorf("failed to list lessons: %w", err)
	}
	if len(lessons) == 0 {
		return 0, nil
	}

	records, err := o.store.ListProgressByCourse(courseID)
	if err != nil {
		return 0, fmt.Errorf("failed to list progress: %w", err)
	}

	completed := 0
	for _, rec := range records {
		if rec.Completed {
			completed++
		}
	}
	return (100 * completed) / len(lessons), nil
}

func (o *Outbox) updateDepthGauge() {
	if entries, err := o.store.ListOutbox(); err == nil {
		metrics.OutboxDepth.Set(float64(len(entries)))
	}
}

// backoff returns the delay before the given attempt number retries.
func backoff(attempts int) time.Duration {
	d := backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

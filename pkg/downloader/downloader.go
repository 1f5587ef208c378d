package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyanpath/gyanpath-agent/pkg/events"
	"github.com/gyanpath/gyanpath-agent/pkg/log"
	"github.com/gyanpath/gyanpath-agent/pkg/metrics"
	"github.com/gyanpath/gyanpath-agent/pkg/remote"
	"github.com/gyanpath/gyanpath-agent/pkg/storage"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

// ErrDownloadInProgress is returned when a download is already running for
// the requested course.
var ErrDownloadInProgress = errors.New("download already in progress for course")

// ProgressFunc reports download progress to the caller.
// Called with the whole-operation percentage: 10 after the course record,
// 20 after the lesson list, 20-90 through the lesson loop, 100 at the end.
type ProgressFunc func(status *types.DownloadStatus)

// Downloader orchestrates course downloads into the local store.
type Downloader struct {
	store  storage.Store
	remote *remote.Client
	broker *events.Broker
	blobs  string // blob root: <dataDir>/blobs

	mu     sync.Mutex
	active map[string]*types.DownloadStatus
}

// New creates a downloader. dataDir is the agent data directory; blob files
// land under <dataDir>/blobs/<courseID>/.
func New(store storage.Store, client *remote.Client, broker *events.Broker, dataDir string) *Downloader {
	return &Downloader{
		store:  store,
		remote: client,
		broker: broker,
		blobs:  filepath.Join(dataDir, "blobs"),
		active: make(map[string]*types.DownloadStatus),
	}
}

// DownloadCourse fetches the course record and its published lessons, then
// sequentially fetches each lesson's video and PDF blobs and persists
// everything locally.
//
// Only two failures abort the operation: the course fetch and the lesson-list
// fetch. Every per-asset failure is logged, counted and skipped; the lesson
// row is still written so the lesson is never dropped entirely. Lessons are
// processed one at a time to keep constrained connections usable. ctx is
// checked between lessons; cancelling stops further work without unwinding
// what already landed.
func (d *Downloader) DownloadCourse(ctx context.Context, courseID string, onProgress ProgressFunc) (*types.DownloadStatus, error) {
	status, err := d.begin(courseID)
	if err != nil {
		return nil, err
	}
	defer d.finish(courseID)

	logger := log.WithCourseID(courseID)
	timer := metrics.NewTimer()

	report := func() {
		d.publish(status)
		if onProgress != nil {
			onProgress(status)
		}
		d.broker.Emit(types.EventDownloadProgress, "download progress", map[string]string{
			"course_id": courseID,
			"percent":   strconv.Itoa(status.Percent),
		})
	}

	d.broker.Emit(types.EventDownloadStarted, "course download started", map[string]string{
		"course_id": courseID,
	})

	fail := func(err error) (*types.DownloadStatus, error) {
		status.State = types.DownloadStateFailed
		status.Error = err.Error()
		status.FinishedAt = time.Now()
		d.publish(status)
		metrics.DownloadsTotal.WithLabelValues("failed").Inc()
		d.broker.Emit(types.EventDownloadFailed, err.Error(), map[string]string{
			"course_id": courseID,
		})
		return status, err
	}

	course, err := d.remote.GetCourse(ctx, courseID)
	if err != nil {
		return fail(fmt.Errorf("failed to fetch course: %w", err))
	}
	status.Percent = 10
	report()

	lessons, err := d.remote.ListPublishedLessons(ctx, courseID)
	if err != nil {
		return fail(fmt.Errorf("failed to fetch lessons: %w", err))
	}
	status.LessonsTotal = len(lessons)
	status.Percent = 20
	report()

	courseDir := filepath.Join(d.blobs, courseID)
	if err := os.MkdirAll(courseDir, 0700); err != nil {
		return fail(fmt.Errorf("failed to create blob directory: %w", err))
	}

	for _, lesson := range lessons {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		cached := &types.CachedLesson{
			ID:                   lesson.ID,
			CourseID:             courseID,
			Title:                lesson.Title,
			TitleLocalized:       lesson.TitleLocalized,
			Description:          lesson.Description,
			DescriptionLocalized: lesson.DescriptionLocalized,
			VideoURL:             lesson.VideoURL,
			PDFURL:               lesson.PDFURL,
			Position:             lesson.Position,
			CachedAt:             time.Now(),
		}

		if lesson.VideoURL != "" {
			videoPath := filepath.Join(courseDir, lesson.ID+assetExt(lesson.VideoURL, ".mp4"))
			if err := d.fetchBlob(ctx, lesson.VideoURL, videoPath); err != nil {
				logger.Warn().Err(err).Str("lesson_id", lesson.ID).Msg("video fetch failed, skipping asset")
				status.AssetsFailed++
				metrics.AssetFailuresTotal.Inc()
			} else {
				cached.VideoPath = videoPath
			}
		}

		if lesson.PDFURL != "" {
			pdfPath := filepath.Join(courseDir, lesson.ID+assetExt(lesson.PDFURL, ".pdf"))
			if err := d.fetchBlob(ctx, lesson.PDFURL, pdfPath); err != nil {
				logger.Warn().Err(err).Str("lesson_id", lesson.ID).Msg("pdf fetch failed, skipping asset")
				status.AssetsFailed++
				metrics.AssetFailuresTotal.Inc()
			} else {
				cached.PDFPath = pdfPath
			}
		}

		if err := d.store.SaveLesson(cached); err != nil {
			return fail(fmt.Errorf("failed to save lesson %s: %w", lesson.ID, err))
		}

		status.LessonsDone++
		if status.LessonsTotal > 0 {
			status.Percent = 20 + (70*status.LessonsDone)/status.LessonsTotal
		} else {
			status.Percent = 90
		}
		report()
	}

	// The course row is written last: its presence is the "Downloaded"
	// signal, so an interrupted download never advertises a course it did
	// not finish attempting.
	err = d.store.SaveCourse(&types.CachedCourse{
		ID:                   course.ID,
		Title:                course.Title,
		TitleLocalized:       course.TitleLocalized,
		Description:          course.Description,
		DescriptionLocalized: course.DescriptionLocalized,
		ThumbnailURL:         course.ThumbnailURL,
		InstructorID:         course.InstructorID,
		LessonsTotal:         len(lessons),
		AssetsFailed:         status.AssetsFailed,
		CachedAt:             time.Now(),
	})
	if err != nil {
		return fail(fmt.Errorf("failed to save course: %w", err))
	}

	status.State = types.DownloadStateCompleted
	status.Percent = 100
	status.FinishedAt = time.Now()
	report()

	timer.ObserveDuration(metrics.DownloadDuration)
	metrics.DownloadsTotal.WithLabelValues("completed").Inc()
	d.broker.Emit(types.EventDownloadCompleted, "course download completed", map[string]string{
		"course_id":     courseID,
		"lessons_total": strconv.Itoa(status.LessonsTotal),
		"assets_failed": strconv.Itoa(status.AssetsFailed),
	})
	logger.Info().
		Int("lessons", status.LessonsTotal).
		Int("assets_failed", status.AssetsFailed).
		Msg("course download completed")

	return status, nil
}

// RemoveCourse deletes the cached course, its lessons and their blob files.
// Lesson rows are found by scanning all lessons and filtering by course id.
func (d *Downloader) RemoveCourse(courseID string) error {
	// The course row is the "Downloaded" signal; without it there is
	// nothing to remove.
	if _, err := d.store.GetCourse(courseID); err != nil {
		return err
	}

	logger := log.WithCourseID(courseID)

	lessons, err := d.store.ListLessonsByCourse(courseID)
	if err != nil {
		return fmt.Errorf("failed to list lessons: %w", err)
	}

	for _, lesson := range lessons {
		for _, p := range []string{lesson.VideoPath, lesson.PDFPath} {
			if p == "" {
				continue
			}
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				logger.Warn().Err(err).Str("path", p).Msg("failed to remove blob file")
			}
		}
		if err := d.store.DeleteLesson(lesson.ID); err != nil {
			return fmt.Errorf("failed to delete lesson %s: %w", lesson.ID, err)
		}
	}

	if err := d.store.DeleteCourse(courseID); err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}

	if err := os.RemoveAll(filepath.Join(d.blobs, courseID)); err != nil {
		logger.Warn().Err(err).Msg("failed to remove blob directory")
	}

	d.broker.Emit(types.EventCourseRemoved, "cached course removed", map[string]string{
		"course_id": courseID,
	})
	return nil
}

// Status returns a snapshot of the in-flight download for a course, if any.
func (d *Downloader) Status(courseID string) (*types.DownloadStatus, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status, ok := d.active[courseID]
	if !ok {
		return nil, false
	}
	snapshot := *status
	return &snapshot, true
}

// Active returns snapshots of all in-flight downloads.
func (d *Downloader) Active() []*types.DownloadStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	statuses := make([]*types.DownloadStatus, 0, len(d.active))
	for _, s := range d.active {
		snapshot := *s
		statuses = append(statuses, &snapshot)
	}
	return statuses
}

// begin registers a download and returns the working status. The running
// download mutates the returned struct freely; the active map only ever
// holds snapshots taken under the lock (see publish), so Status and Active
// never observe a half-updated struct.
func (d *Downloader) begin(courseID string) (*types.DownloadStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, running := d.active[courseID]; running {
		return nil, ErrDownloadInProgress
	}
	status := &types.DownloadStatus{
		ID:        uuid.New().String(),
		CourseID:  courseID,
		State:     types.DownloadStateDownloading,
		StartedAt: time.Now(),
	}
	snapshot := *status
	d.active[courseID] = &snapshot
	return status, nil
}

// publish refreshes the snapshot concurrent readers see.
func (d *Downloader) publish(status *types.DownloadStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.active[status.CourseID]; ok {
		snapshot := *status
		d.active[status.CourseID] = &snapshot
	}
}

func (d *Downloader) finish(courseID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, courseID)
}

// fetchBlob downloads one asset URL into path, removing the partial file on
// failure.
func (d *Downloader) fetchBlob(ctx context.Context, assetURL, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create blob file: %w", err)
	}

	_, _, err = d.remote.FetchAsset(ctx, assetURL, f)
	closeErr := f.Close()
	if err != nil {
		os.Remove(path)
		return err
	}
	if closeErr != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close blob file: %w", closeErr)
	}
	return nil
}

// assetExt derives a file extension from the asset URL path.
func assetExt(assetURL, fallback string) string {
	u, err := url.Parse(assetURL)
	if err != nil {
		return fallback
	}
	if ext := path.Ext(u.Path); ext != "" {
		return ext
	}
	return fallback
}

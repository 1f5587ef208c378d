package types

import (
	"encoding/json"
	"time"
)

// CachedCourse is the locally persisted record of a downloaded course.
// Its presence in the store is what marks a course "Downloaded"; the
// AssetsFailed counter reports how many lesson assets never landed.
type CachedCourse struct {
	ID                   string
	Title                string
	TitleLocalized       string
	Description          string
	DescriptionLocalized string
	ThumbnailURL         string
	InstructorID         string
	LessonsTotal         int
	AssetsFailed         int
	CachedAt             time.Time
}

// CachedLesson is one locally persisted lesson belonging to a cached course.
// VideoPath/PDFPath point at blob files under the agent's data directory and
// are empty when that asset's fetch failed during download.
type CachedLesson struct {
	ID                   string
	CourseID             string
	Title                string
	TitleLocalized       string
	Description          string
	DescriptionLocalized string
	VideoURL             string
	PDFURL               string
	Position             int
	VideoPath            string
	PDFPath              string
	CachedAt             time.Time
}

// ProgressRecord tracks playback state for a lesson.
type ProgressRecord struct {
	LessonID        string
	CourseID        string
	PositionSeconds float64
	Completed       bool
	UpdatedAt       time.Time
}

// DownloadState represents the lifecycle of a course download.
type DownloadState string

const (
	DownloadStatePending     DownloadState = "pending"
	DownloadStateDownloading DownloadState = "downloading"
	DownloadStateCompleted   DownloadState = "completed"
	DownloadStateFailed      DownloadState = "failed"
)

// DownloadStatus is the transient, in-memory progress of a running download.
// It is published over the event broker and never persisted.
type DownloadStatus struct {
	ID           string
	CourseID     string
	State        DownloadState
	Percent      int
	LessonsDone  int
	LessonsTotal int
	AssetsFailed int
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// OutboxKind identifies the remote write an outbox entry carries.
type OutboxKind string

const (
	OutboxKindProgress           OutboxKind = "progress"
	OutboxKindLessonComplete     OutboxKind = "lesson-complete"
	OutboxKindEnrollmentProgress OutboxKind = "enrollment-progress"
)

// OutboxEntry is a durable pending remote write. Entries are drained with
// exponential backoff so transient network failure cannot lose progress.
type OutboxEntry struct {
	ID          string
	Kind        OutboxKind
	Payload     json.RawMessage
	Attempts    int
	NextAttempt time.Time
	LastError   string
	CreatedAt   time.Time
}

// CacheClass splits gateway cache entries by asset type. Static entries are
// shell assets pinned for the lifetime of a generation; runtime entries are
// media and are subject to LRU eviction under the byte quota.
type CacheClass string

const (
	CacheClassStatic  CacheClass = "static"
	CacheClassRuntime CacheClass = "runtime"
)

// CacheEntry indexes one cached response body on disk.
type CacheEntry struct {
	URL         string
	Class       CacheClass
	Generation  string
	Path        string
	Size        int64
	ContentType string
	StoredAt    time.Time
	LastAccess  time.Time
}

// Course is a course record as served by the remote backend.
type Course struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	TitleLocalized       string `json:"title_localized"`
	Description          string `json:"description"`
	DescriptionLocalized string `json:"description_localized"`
	ThumbnailURL         string `json:"thumbnail_url"`
	InstructorID         string `json:"instructor_id"`
	Published            bool   `json:"published"`
}

// Lesson is a lesson record as served by the remote backend.
type Lesson struct {
	ID                   string `json:"id"`
	CourseID             string `json:"course_id"`
	Title                string `json:"title"`
	TitleLocalized       string `json:"title_localized"`
	Description          string `json:"description"`
	DescriptionLocalized string `json:"description_localized"`
	VideoURL             string `json:"video_url"`
	PDFURL               string `json:"pdf_url"`
	Position             int    `json:"position"`
	Published            bool   `json:"published"`
}

// ProgressUpdate is the payload of a progress outbox entry.
type ProgressUpdate struct {
	LessonID        string    `json:"lesson_id"`
	CourseID        string    `json:"course_id"`
	PositionSeconds float64   `json:"position_seconds"`
	Completed       bool      `json:"completed"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// EnrollmentUpdate is the payload of an enrollment-progress outbox entry.
// PercentComplete is recomputed from local completion rows at drain time,
// not carried from the moment the entry was enqueued.
type EnrollmentUpdate struct {
	CourseID string `json:"course_id"`
}

// Event is a broker event delivered to page clients over SSE.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// EventType represents the type of event.
type EventType string

const (
	EventDownloadStarted   EventType = "download.started"
	EventDownloadProgress  EventType = "download.progress"
	EventDownloadCompleted EventType = "download.completed"
	EventDownloadFailed    EventType = "download.failed"
	EventCourseRemoved     EventType = "course.removed"
	EventSyncProgress      EventType = "sync.progress"
	EventSyncQueue         EventType = "sync.queue"
	EventCacheURLs         EventType = "cache.urls"
	EventNetworkOnline     EventType = "network.online"
	EventNetworkOffline    EventType = "network.offline"
)

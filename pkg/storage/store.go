package storage

import (
	"errors"

	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

// ErrNotFound is returned when a record does not exist in the local store.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for the agent's local state storage.
// Implemented by BoltDB-backed storage.
type Store interface {
	// Courses
	SaveCourse(course *types.CachedCourse) error
	GetCourse(id string) (*types.CachedCourse, error)
	ListCourses() ([]*types.CachedCourse, error)
	DeleteCourse(id string) error

	// Lessons
	SaveLesson(lesson *types.CachedLesson) error
	GetLesson(id string) (*types.CachedLesson, error)
	ListLessons() ([]*types.CachedLesson, error)
	ListLessonsByCourse(courseID string) ([]*types.CachedLesson, error)
	DeleteLesson(id string) error

	// Progress
	SaveProgress(progress *types.ProgressRecord) error
	GetProgress(lessonID string) (*types.ProgressRecord, error)
	ListProgressByCourse(courseID string) ([]*types.ProgressRecord, error)

	// Outbox
	EnqueueOutbox(entry *types.OutboxEntry) error
	ListOutbox() ([]*types.OutboxEntry, error)
	UpdateOutbox(entry *types.OutboxEntry) error
	DeleteOutbox(id string) error

	// Gateway cache index
	PutCacheEntry(entry *types.CacheEntry) error
	GetCacheEntry(url string) (*types.CacheEntry, error)
	ListCacheEntries() ([]*types.CacheEntry, error)
	DeleteCacheEntry(url string) error

	// Utility
	Close() error
}

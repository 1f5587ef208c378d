package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

var (
	// Bucket names
	bucketCourses    = []byte("courses")
	bucketLessons    = []byte("lessons")
	bucketProgress   = []byte("progress")
	bucketOutbox     = []byte("outbox")
	bucketCacheIndex = []byte("cache_index")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "gyanpath.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketCourses,
			bucketLessons,
			bucketProgress,
			bucketOutbox,
			bucketCacheIndex,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Course operations
func (s *BoltStore) SaveCourse(course *types.CachedCourse) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCourses)
		data, err := json.Marshal(course)
		if err != nil {
			return err
		}
		return b.Put([]byte(course.ID), data)
	})
}

func (s *BoltStore) GetCourse(id string) (*types.CachedCourse, error) {
	var course types.CachedCourse
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCourses)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("course %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &course)
	})
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (s *BoltStore) ListCourses() ([]*types.CachedCourse, error) {
	var courses []*types.CachedCourse
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCourses)
		return b.ForEach(func(k, v []byte) error {
			var course types.CachedCourse
			if err := json.Unmarshal(v, &course); err != nil {
				return err
			}
			courses = append(courses, &course)
			return nil
		})
	})
	return courses, err
}

func (s *BoltStore) DeleteCourse(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCourses)
		return b.Delete([]byte(id))
	})
}

// Lesson operations
func (s *BoltStore) SaveLesson(lesson *types.CachedLesson) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLessons)
		data, err := json.Marshal(lesson)
		if err != nil {
			return err
		}
		return b.Put([]byte(lesson.ID), data)
	})
}

func (s *BoltStore) GetLesson(id string) (*types.CachedLesson, error) {
	var lesson types.CachedLesson
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLessons)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("lesson %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &lesson)
	})
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (s *BoltStore) ListLessons() ([]*types.CachedLesson, error) {
	var lessons []*types.CachedLesson
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLessons)
		return b.ForEach(func(k, v []byte) error {
			var lesson types.CachedLesson
			if err := json.Unmarshal(v, &lesson); err != nil {
				return err
			}
			lessons = append(lessons, &lesson)
			return nil
		})
	})
	return lessons, err
}

// ListLessonsByCourse scans all lessons and filters by course id. There is
// no secondary index; course removal pays an O(N) scan.
func (s *BoltStore) ListLessonsByCourse(courseID string) ([]*types.CachedLesson, error) {
	lessons, err := s.ListLessons()
	if err != nil {
		return nil, err
	}

	var filtered []*types.CachedLesson
	for _, lesson := range lessons {
		if lesson.CourseID == courseID {
			filtered = append(filtered, lesson)
		}
	}
	return filtered, nil
}

func (s *BoltStore) DeleteLesson(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLessons)
		return b.Delete([]byte(id))
	})
}

// Progress operations
func (s *BoltStore) SaveProgress(progress *types.ProgressRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		data, err := json.Marshal(progress)
		if err != nil {
			return err
		}
		return b.Put([]byte(progress.LessonID), data)
	})
}

func (s *BoltStore) GetProgress(lessonID string) (*types.ProgressRecord, error) {
	var progress types.ProgressRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		data := b.Get([]byte(lessonID))
		if data == nil {
			return fmt.Errorf("progress %s: %w", lessonID, ErrNotFound)
		}
		return json.Unmarshal(data, &progress)
	})
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

func (s *BoltStore) ListProgressByCourse(courseID string) ([]*types.ProgressRecord, error) {
	var records []*types.ProgressRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		return b.ForEach(func(k, v []byte) error {
			var record types.ProgressRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if record.CourseID == courseID {
				records = append(records, &record)
			}
			return nil
		})
	})
	return records, err
}

// Outbox operations
func (s *BoltStore) EnqueueOutbox(entry *types.OutboxEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutbox)
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(entry.ID), data)
	})
}

func (s *BoltStore) ListOutbox() ([]*types.OutboxEntry, error) {
	var entries []*types.OutboxEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutbox)
		return b.ForEach(func(k, v []byte) error {
			var entry types.OutboxEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	return entries, err
}

func (s *BoltStore) UpdateOutbox(entry *types.OutboxEntry) error {
	return s.EnqueueOutbox(entry) // Same as enqueue (upsert)
}

func (s *BoltStore) DeleteOutbox(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutbox)
		return b.Delete([]byte(id))
	})
}

// Cache index operations
func (s *BoltStore) PutCacheEntry(entry *types.CacheEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCacheIndex)
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(entry.URL), data)
	})
}

func (s *BoltStore) GetCacheEntry(url string) (*types.CacheEntry, error) {
	var entry types.CacheEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCacheIndex)
		data := b.Get([]byte(url))
		if data == nil {
			return fmt.Errorf("cache entry %s: %w", url, ErrNotFound)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *BoltStore) ListCacheEntries() ([]*types.CacheEntry, error) {
	var entries []*types.CacheEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCacheIndex)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var entry types.CacheEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	return entries, err
}

func (s *BoltStore) DeleteCacheEntry(url string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCacheIndex)
		return b.Delete([]byte(url))
	})
}

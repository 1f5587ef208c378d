/*
Package storage provides the agent's local persistence layer backed by BoltDB.

The store is a simple key-value layer over five logical tables (courses,
lessons, progress, outbox, cache_index), each a BoltDB bucket holding
JSON-marshalled rows keyed by id. All save operations are upserts: saving a
record with an existing id replaces it, never appends.

# Architecture

	Store interface (store.go)
	    │
	    ▼
	BoltStore (boltdb.go)
	    │  single file: <dataDir>/gyanpath.db
	    ▼
	BoltDB buckets: courses, lessons, progress, outbox, cache_index

One agent process owns the database file; BoltDB's file lock rejects a second
opener. That single-writer property is what rules out the write races a
multi-tab browser client would have against the same local state.

# Semantics

  - Get on a missing id returns an error wrapping ErrNotFound.
  - ListLessonsByCourse is a full-bucket scan filtered in the caller's
    process; there is no secondary index by course id, so cascading a course
    removal costs O(N) over all lessons.
  - There is no cross-bucket transaction spanning a whole download. The
    downloader writes lesson rows first and the course row last, so an
    interrupted download leaves orphan lessons rather than a course row that
    overstates what is present.
  - Blob payloads (video, PDF, cached response bodies) live as flat files
    under the data directory; the store only keeps their paths. BoltDB is not
    suited to multi-megabyte values.

# Usage

	store, err := storage.NewBoltStore("/var/lib/gyanpath")
	if err != nil { ... }
	defer store.Close()

	err = store.SaveCourse(&types.CachedCourse{ID: "c1", Title: "Algebra"})
*/
package storage

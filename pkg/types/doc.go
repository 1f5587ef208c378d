/*
Package types defines the core data structures used throughout the GyanPath
offline agent.

This package contains the domain model shared by every other package: cached
course and lesson records, playback progress, outbox entries for pending
remote writes, cache index rows for the gateway, and broker events. All
persisted types are stored as JSON rows in BoltDB by pkg/storage.

# Core Types

Offline store:
  - CachedCourse: one row per fully attempted course download
  - CachedLesson: one row per published lesson of a cached course
  - ProgressRecord: local playback state per lesson

Reconciliation:
  - OutboxEntry: durable pending remote write with backoff bookkeeping
  - ProgressUpdate / EnrollmentUpdate: outbox payloads

Gateway:
  - CacheEntry: on-disk cached response body index row
  - CacheClass: static (pinned shell assets) vs runtime (evictable media)

Remote wire shapes:
  - Course / Lesson: records as served by the GyanPath backend

Events:
  - Event / EventType: broker events streamed to page clients

# Design Patterns

All enums use typed string constants:

	type DownloadState string
	const (
	    DownloadStatePending     DownloadState = "pending"
	    DownloadStateDownloading DownloadState = "downloading"
	)

Key invariants:
  - A CachedLesson must reference a CachedCourse present in the local store;
    this is enforced by application logic, not the storage engine.
  - Presence of a CachedCourse row marks a course "Downloaded". It does not
    guarantee every asset blob landed; AssetsFailed reports the shortfall.
  - Save operations are upserts: repeating a save with the same id replaces
    the row, never appends.

# Thread Safety

Types here are plain data. Concurrent mutation must be synchronized by the
caller; the storage layer serializes persisted state through BoltDB
transactions.
*/
package types

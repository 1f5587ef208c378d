/*
Package downloader orchestrates offline course downloads.

Given a course id, the downloader fetches the course record and its published
lessons from the backend, then walks the lessons sequentially fetching each
video and PDF blob into the agent's data directory and persisting lesson
rows to the local store. The course row is written last and carries the
lesson and failed-asset counts.

# Failure semantics

Fatal to the whole operation: the course fetch and the lesson-list fetch.
Everything else degrades per item: a video that 404s or times out is logged,
counted in AssetsFailed and skipped, and the lesson is stored metadata-only.
A course with every asset fetch failed still completes at 100%.

# Progress

Progress is reported through an optional callback and the event broker:

	10   course record fetched
	20   lesson list fetched
	20-90 linear in lessons completed
	100  course row persisted

Downloads for the same course are mutually exclusive (ErrDownloadInProgress);
different courses may download concurrently, each one internally sequential.
*/
package downloader

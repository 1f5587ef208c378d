/*
Package remote is the typed HTTP client for the GyanPath backend.

It covers the reads the downloader needs (course record, published lesson
list, plain-URL asset blobs) and the writes the outbox drains (progress
upserts, lesson completion, enrollment aggregate). Every call takes a
context. Non-2xx responses surface as *StatusError so callers can
distinguish a 404 asset from a transport failure.

Mutating calls check the bearer token's exp claim locally first and return
ErrTokenExpired instead of burning a round trip on a guaranteed 401. The
signature is not verified here; that is the backend's job.
*/
package remote

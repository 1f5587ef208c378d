/*
Package outbox implements the durable pending-write queue between the agent
and the GyanPath backend.

Progress writes used to be fire-and-forget from the player: an upsert every
few seconds, errors logged and dropped. Here every remote write is persisted
locally first as an OutboxEntry, then a drain loop pushes due entries to the
backend. A failed push reschedules that entry with exponential backoff
(5s base, doubling, capped at 5m) and moves on; a successful push deletes it.
Draining is gated on the connectivity prober, so the agent does not burn
retries while offline.

Enrollment aggregates are special: the entry carries only the course id, and
the completion percentage is recomputed from local lesson-completion rows at
drain time. Two queued completions converge on the same final percentage
regardless of drain order, which removes the read-then-write race the
per-event computation had.
*/
package outbox

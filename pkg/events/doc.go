/*
Package events provides an in-memory event broker for the agent's pub/sub
messaging.

Components publish download lifecycle events, sync nudges and network state
transitions; the control API bridges subscriptions to page clients over SSE.
Delivery is at-most-once and non-blocking: the broker never waits on a slow
subscriber, matching the fire-and-forget semantics of a worker-to-page
postMessage channel, which this replaces.

Event types live in pkg/types (EventDownloadStarted, EventSyncQueue,
EventNetworkOnline, ...).
*/
package events

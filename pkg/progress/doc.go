/*
Package progress implements the playback anti-skip guard and local progress
tracking.

Each lesson gets a Guard holding the high-water mark of watched playback
position. Time updates past the mark plus a one-second tolerance are skips:
the guard rejects them and tells the player to seek back to the mark.
Explicit seeks are honored only into already-watched territory. The mark
never decreases.

The Tracker stages accepted positions and flushes them on a fixed cadence to
the local store and the outbox. Lesson completion also enqueues an
enrollment-aggregate update; see pkg/outbox for how that aggregate is
computed.
*/
package progress

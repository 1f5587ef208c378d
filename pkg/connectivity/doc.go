/*
Package connectivity tracks whether the GyanPath backend is reachable.

A periodic probe against the backend health endpoint drives an online flag
with consecutive-failure and consecutive-success thresholds, so one dropped
packet does not flap the agent offline. Transitions are published on the
event broker; the outbox gates its drains on Online() and a network.online
event is the cue for an immediate drain after reconnecting.
*/
package connectivity

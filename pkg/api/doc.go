/*
Package api exposes the agent's local control API.

GyanPath pages running in the browser drive the agent through this JSON API:
start and watch course downloads, list what is cached, feed playback time
updates through the anti-skip guard, pin extra URLs into the gateway cache,
and nudge an outbox drain. GET /v1/events streams broker events over SSE so
open pages can react to download progress, sync results, and connectivity
changes without polling.

The server binds loopback by default. It carries no authentication of its
own; the bearer token for the remote backend lives in the agent config and
never transits this API.
*/
package api

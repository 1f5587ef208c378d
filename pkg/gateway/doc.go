/*
Package gateway implements the local caching HTTP server the learner's
browser talks to while using GyanPath offline.

The gateway fronts the remote backend and resolves every GET request to one
of three outcomes: cached bytes, fresh upstream bytes, or the offline
fallback page. API calls and writes pass straight through untouched.

# Request Flow

 1. Non-GET and /api/ requests → reverse proxy to upstream
 2. Cache lookup by absolute URL → hit serves from disk, bumps LastAccess
 3. Miss while online → upstream fetch (concurrent fetches for the same URL
    collapse into one round trip), 200 bodies written through the cache
 4. Miss while offline or fetch failure → navigations (Accept: text/html)
    get the offline page, everything else a 502

# Cache Layout

Bodies live on disk under <dataDir>/cache/<generation>/, one directory per
generation, with index rows in the local store keyed by URL. Entries are
classed by extension:

	static   js, css, html, fonts, icons: the app shell, pinned for the
	         lifetime of a generation, never evicted
	runtime  images, video, pdf: media, evicted least-recently-accessed
	         first when the byte quota is exceeded

The generation string is the content hash of the shell build. At startup
Prune deletes every generation directory other than the current one, which
is how a new build invalidates the old shell atomically.

# Warm-up

On start the gateway precaches a YAML manifest of shell paths (Warm). A
manifest entry that fails to fetch is logged and skipped; warm-up never
blocks serving.
*/
package gateway

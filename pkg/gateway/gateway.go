package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gyanpath/gyanpath-agent/pkg/events"
	"github.com/gyanpath/gyanpath-agent/pkg/log"
	"github.com/gyanpath/gyanpath-agent/pkg/metrics"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

// fallbackHTML is served for offline navigations when no offline page is
// configured or the configured file is unreadable.
const fallbackHTML = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>GyanPath - Offline</title></head>
<body>
<h1>You are offline</h1>
<p>This page is not available offline. Downloaded courses are still playable.</p>
</body>
</html>
`

// Config contains gateway server settings.
type Config struct {
	// Addr is the listen address for the gateway server
	Addr string

	// UpstreamURL is the base URL of the backend the gateway fronts
	UpstreamURL string

	// OfflinePage is the path to the HTML file served for navigations
	// that cannot be satisfied from cache or upstream
	OfflinePage string
}

// fetchResult is one upstream response body shared across collapsed
// requests.
type fetchResult struct {
	status      int
	contentType string
	body        []byte
}

// Gateway is the local HTTP server the learner's browser points at. Cache
// hits are served from disk; misses are fetched upstream, written through
// the cache, and served. When the backend is unreachable, navigations fall
// back to the offline page.
type Gateway struct {
	cfg      Config
	cache    *Cache
	broker   *events.Broker
	upstream *url.URL
	proxy    *httputil.ReverseProxy
	client   *http.Client
	sf       singleflight.Group
	online   func() bool
	server   *http.Server
}

// New creates a gateway fronting the given upstream.
func New(cfg Config, cache *Cache, broker *events.Broker) (*Gateway, error) {
	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %s: %w", cfg.UpstreamURL, err)
	}

	g := &Gateway{
		cfg:      cfg,
		cache:    cache,
		broker:   broker,
		upstream: upstream,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}

	g.proxy = httputil.NewSingleHostReverseProxy(upstream)
	g.proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger := log.WithComponent("gateway")
		logger.Warn().Err(err).Str("path", r.URL.Path).Msg("proxy to upstream failed")
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
	}

	return g, nil
}

// SetOnlineCheck installs a reachability check. When it reports offline the
// gateway skips the upstream fetch and falls back immediately.
func (g *Gateway) SetOnlineCheck(fn func() bool) {
	g.online = fn
}

// Start runs the gateway server until the context is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	g.server = &http.Server{
		Addr:         g.cfg.Addr,
		Handler:      http.HandlerFunc(g.handleRequest),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", g.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.cfg.Addr, err)
	}

	logger := log.WithComponent("gateway")
	logger.Info().Str("addr", g.cfg.Addr).Str("generation", g.cache.Generation()).Msg("gateway listening")

	go func() {
		if err := g.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("gateway server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.server.Shutdown(shutdownCtx)
}

// Warm precaches the manifest's shell paths into the static cache. Failures
// are logged and skipped so a partially reachable backend still warms what
// it can.
func (g *Gateway) Warm(ctx context.Context, m *Manifest) int {
	logger := log.WithComponent("gateway")
	warmed := 0

	for _, raw := range m.URLs {
		key, err := g.resolve(raw)
		if err != nil {
			logger.Warn().Err(err).Str("url", raw).Msg("skipping bad manifest entry")
			continue
		}

		res, err := g.fetch(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Str("url", raw).Msg("failed to warm manifest entry")
			continue
		}
		if res.status != http.StatusOK {
			logger.Warn().Int("status", res.status).Str("url", raw).Msg("manifest entry not warmable")
			continue
		}

		class := types.CacheClassStatic
		if c, ok := Classify(raw); ok {
			class = c
		}
		if _, err := g.cache.Put(key, class, res.contentType, res.body); err != nil {
			logger.Warn().Err(err).Str("url", raw).Msg("failed to store manifest entry")
			continue
		}
		warmed++
	}

	logger.Info().Int("warmed", warmed).Int("total", len(m.URLs)).Msg("precache warm-up complete")
	return warmed
}

// CacheURLs fetches and caches a set of URLs on demand, typically the asset
// URLs of a lesson a page wants pinned. Unclassifiable URLs cache as
// runtime entries.
func (g *Gateway) CacheURLs(ctx context.Context, urls []string) int {
	logger := log.WithComponent("gateway")
	cached := 0

	for _, raw := range urls {
		key, err := g.resolve(raw)
		if err != nil {
			logger.Warn().Err(err).Str("url", raw).Msg("skipping bad cache URL")
			continue
		}

		res, err := g.fetch(ctx, key)
		if err != nil || res.status != http.StatusOK {
			logger.Warn().Str("url", raw).Msg("failed to cache URL")
			continue
		}

		class := types.CacheClassRuntime
		if c, ok := Classify(raw); ok {
			class = c
		}
		if _, err := g.cache.Put(key, class, res.contentType, res.body); err != nil {
			logger.Warn().Err(err).Str("url", raw).Msg("failed to store cache URL")
			continue
		}
		cached++
	}

	g.broker.Emit(types.EventCacheURLs, fmt.Sprintf("cached %d of %d URLs", cached, len(urls)), map[string]string{
		"requested": fmt.Sprintf("%d", len(urls)),
		"cached":    fmt.Sprintf("%d", cached),
	})

	return cached
}

// handleRequest resolves every request to cached bytes, fresh bytes, or the
// offline fallback.
func (g *Gateway) handleRequest(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logger := log.WithComponent("gateway")
			logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("recovered in gateway handler")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}()

	// Writes and API traffic pass straight through, the cache only ever
	// holds GET bodies.
	if r.Method != http.MethodGet || strings.HasPrefix(r.URL.Path, "/api/") {
		g.proxy.ServeHTTP(w, r)
		return
	}

	key := g.upstream.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery}).String()

	if entry, data, err := g.cache.Get(key); err == nil {
		metrics.CacheHitsTotal.WithLabelValues(string(entry.Class)).Inc()
		serveBytes(w, entry.ContentType, "HIT", data)
		return
	}
	metrics.CacheMissesTotal.Inc()

	if g.online != nil && !g.online() {
		g.serveFallback(w, r)
		return
	}

	res, err := g.fetch(r.Context(), key)
	if err != nil {
		g.serveFallback(w, r)
		return
	}
	if res.status != http.StatusOK {
		// Non-200 responses are served as-is, never cached.
		if res.contentType != "" {
			w.Header().Set("Content-Type", res.contentType)
		}
		w.WriteHeader(res.status)
		w.Write(res.body)
		return
	}

	if class, ok := Classify(r.URL.Path); ok {
		if _, err := g.cache.Put(key, class, res.contentType, res.body); err != nil {
			logger := log.WithComponent("gateway")
			logger.Warn().Err(err).Str("url", key).Msg("failed to cache response")
		}
	}

	serveBytes(w, res.contentType, "MISS", res.body)
}

// serveFallback handles an unreachable upstream. Navigations get the
// offline page, everything else a 502. The cache was already consulted.
func (g *Gateway) serveFallback(w http.ResponseWriter, r *http.Request) {
	if isNavigation(r) {
		metrics.OfflineFallbacksTotal.Inc()
		g.serveOfflinePage(w)
		return
	}
	http.Error(w, "upstream unreachable", http.StatusBadGateway)
}

func (g *Gateway) serveOfflinePage(w http.ResponseWriter) {
	body, contentType := g.offlinePageBody()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Cache", "FALLBACK")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// offlinePageBody resolves the configured offline page: a precached gateway
// path (e.g. /offline from the manifest) or a local HTML file. The built-in
// page covers a cold cache.
func (g *Gateway) offlinePageBody() ([]byte, string) {
	if g.cfg.OfflinePage != "" {
		if key, err := g.resolve(g.cfg.OfflinePage); err == nil {
			if entry, data, err := g.cache.Get(key); err == nil {
				contentType := entry.ContentType
				if contentType == "" {
					contentType = "text/html; charset=utf-8"
				}
				return data, contentType
			}
		}
		if data, err := os.ReadFile(g.cfg.OfflinePage); err == nil {
			return data, "text/html; charset=utf-8"
		}
	}
	return []byte(fallbackHTML), "text/html; charset=utf-8"
}

// fetch performs one upstream GET, collapsing concurrent requests for the
// same URL into a single round trip.
func (g *Gateway) fetch(ctx context.Context, url string) (*fetchResult, error) {
	v, err, _ := g.sf.Do(url, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		return &fetchResult{
			status:      resp.StatusCode,
			contentType: resp.Header.Get("Content-Type"),
			body:        body,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*fetchResult), nil
}

// resolve turns a manifest or request path into an absolute upstream URL.
func (g *Gateway) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return g.upstream.ResolveReference(u).String(), nil
}

func serveBytes(w http.ResponseWriter, contentType, cacheStatus string, data []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func isNavigation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

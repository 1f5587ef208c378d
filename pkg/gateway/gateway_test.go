package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyanpath/gyanpath-agent/pkg/events"
	"github.com/gyanpath/gyanpath-agent/pkg/storage"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

type upstreamFixture struct {
	server *httptest.Server
	hits   int64
}

func newUpstream(t *testing.T) *upstreamFixture {
	t.Helper()
	f := &upstreamFixture{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.hits, 1)
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>shell</html>"))
		case "/app.js":
			w.Header().Set("Content-Type", "text/javascript")
			w.Write([]byte("console.log('app')"))
		case "/app.css":
			w.Header().Set("Content-Type", "text/css")
			w.Write([]byte("body{}"))
		case "/lesson.mp4":
			w.Header().Set("Content-Type", "video/mp4")
			w.Write([]byte("videobytes"))
		case "/api/echo":
			w.Write([]byte(r.Method))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *upstreamFixture) hitCount() int64 {
	return atomic.LoadInt64(&f.hits)
}

func newTestGateway(t *testing.T, upstream string, generation string) (*Gateway, *Cache, *events.Broker) {
	t.Helper()
	dataDir := t.TempDir()
	store, err := storage.NewBoltStore(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cache, err := NewCache(store, dataDir, generation, 0)
	require.NoError(t, err)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	gw, err := New(Config{
		Addr:        "127.0.0.1:0",
		UpstreamURL: upstream,
	}, cache, broker)
	require.NoError(t, err)

	return gw, cache, broker
}

func get(gw *Gateway, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	gw.handleRequest(w, req)
	return w
}

func TestGatewayCacheFirst(t *testing.T) {
	up := newUpstream(t)
	gw, _, _ := newTestGateway(t, up.server.URL, "gen-1")

	first := get(gw, "/app.js", nil)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, "console.log('app')", first.Body.String())

	second := get(gw, "/app.js", nil)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "console.log('app')", second.Body.String())

	assert.Equal(t, int64(1), up.hitCount(), "second request must be served from cache")
}

func TestGatewayOfflineNavigationFallback(t *testing.T) {
	up := newUpstream(t)
	gw, _, _ := newTestGateway(t, up.server.URL, "gen-1")
	gw.SetOnlineCheck(func() bool { return false })

	nav := get(gw, "/courses/42", map[string]string{"Accept": "text/html"})
	assert.Equal(t, http.StatusOK, nav.Code)
	assert.Contains(t, nav.Body.String(), "offline")
	assert.Equal(t, "FALLBACK", nav.Header().Get("X-Cache"))

	asset := get(gw, "/missing.js", nil)
	assert.Equal(t, http.StatusBadGateway, asset.Code)

	assert.Equal(t, int64(0), up.hitCount(), "offline gateway must not contact upstream")
}

func TestGatewayOfflineServesCachedAssets(t *testing.T) {
	up := newUpstream(t)
	gw, _, _ := newTestGateway(t, up.server.URL, "gen-1")

	require.Equal(t, http.StatusOK, get(gw, "/lesson.mp4", nil).Code)

	gw.SetOnlineCheck(func() bool { return false })
	w := get(gw, "/lesson.mp4", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, "videobytes", w.Body.String())
}

func TestGatewayConfiguredOfflinePage(t *testing.T) {
	up := newUpstream(t)
	dataDir := t.TempDir()
	store, err := storage.NewBoltStore(dataDir)
	require.NoError(t, err)
	defer store.Close()
	cache, err := NewCache(store, dataDir, "gen-1", 0)
	require.NoError(t, err)
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	page := filepath.Join(dataDir, "offline.html")
	require.NoError(t, os.WriteFile(page, []byte("<html>custom offline</html>"), 0644))

	gw, err := New(Config{Addr: "127.0.0.1:0", UpstreamURL: up.server.URL, OfflinePage: page}, cache, broker)
	require.NoError(t, err)
	gw.SetOnlineCheck(func() bool { return false })

	w := get(gw, "/", map[string]string{"Accept": "text/html"})
	assert.Equal(t, "<html>custom offline</html>", w.Body.String())
}

func TestGatewayWarmManifest(t *testing.T) {
	up := newUpstream(t)
	gw, _, _ := newTestGateway(t, up.server.URL, "gen-1")

	warmed := gw.Warm(context.Background(), &Manifest{
		URLs: []string{"/", "/app.css", "/does-not-exist"},
	})
	assert.Equal(t, 2, warmed)

	// Offline navigation to the shell now serves the precached page.
	gw.SetOnlineCheck(func() bool { return false })
	w := get(gw, "/", map[string]string{"Accept": "text/html"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, "<html>shell</html>", w.Body.String())
}

func TestGatewayAPIPassthrough(t *testing.T) {
	up := newUpstream(t)
	gw, _, _ := newTestGateway(t, up.server.URL, "gen-1")

	w := httptest.NewRecorder()
	gw.handleRequest(w, httptest.NewRequest(http.MethodPost, "/api/echo", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "POST", w.Body.String())

	// API responses are never cached.
	w2 := httptest.NewRecorder()
	gw.handleRequest(w2, httptest.NewRequest(http.MethodGet, "/api/echo", nil))
	assert.Equal(t, "GET", w2.Body.String())
	assert.Equal(t, int64(2), up.hitCount())
}

func TestGatewayNon200NotCached(t *testing.T) {
	up := newUpstream(t)
	gw, _, _ := newTestGateway(t, up.server.URL, "gen-1")

	first := get(gw, "/gone.js", nil)
	assert.Equal(t, http.StatusNotFound, first.Code)

	second := get(gw, "/gone.js", nil)
	assert.Equal(t, http.StatusNotFound, second.Code)
	assert.Equal(t, int64(2), up.hitCount(), "404s must not be cached")
}

func TestGatewayGenerationMigration(t *testing.T) {
	up := newUpstream(t)
	dataDir := t.TempDir()
	store, err := storage.NewBoltStore(dataDir)
	require.NoError(t, err)
	defer store.Close()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	oldCache, err := NewCache(store, dataDir, "gen-1", 0)
	require.NoError(t, err)
	oldGw, err := New(Config{Addr: "127.0.0.1:0", UpstreamURL: up.server.URL}, oldCache, broker)
	require.NoError(t, err)
	require.Equal(t, "MISS", get(oldGw, "/app.js", nil).Header().Get("X-Cache"))
	require.Equal(t, "HIT", get(oldGw, "/app.js", nil).Header().Get("X-Cache"))

	// New build, new generation. The old shell is pruned and refetched.
	newCache, err := NewCache(store, dataDir, "gen-2", 0)
	require.NoError(t, err)
	_, err = newCache.Prune()
	require.NoError(t, err)

	newGw, err := New(Config{Addr: "127.0.0.1:0", UpstreamURL: up.server.URL}, newCache, broker)
	require.NoError(t, err)
	w := get(newGw, "/app.js", nil)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, http.StatusOK, w.Code)

	_, err = os.Stat(filepath.Join(dataDir, "cache", "gen-1"))
	assert.True(t, os.IsNotExist(err))
}

func TestGatewayCacheURLs(t *testing.T) {
	up := newUpstream(t)
	gw, cache, broker := newTestGateway(t, up.server.URL, "gen-1")
	sub := broker.Subscribe()

	cached := gw.CacheURLs(context.Background(), []string{"/lesson.mp4", "/does-not-exist.mp4"})
	assert.Equal(t, 1, cached)

	_, data, err := cache.Get(up.server.URL + "/lesson.mp4")
	require.NoError(t, err)
	assert.Equal(t, "videobytes", string(data))

	select {
	case ev := <-sub:
		assert.Equal(t, types.EventCacheURLs, ev.Type)
		assert.Equal(t, "1", ev.Metadata["cached"])
	case <-time.After(time.Second):
		t.Fatal("expected a cache.urls event")
	}
}

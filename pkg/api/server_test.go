package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyanpath/gyanpath-agent/pkg/connectivity"
	"github.com/gyanpath/gyanpath-agent/pkg/downloader"
	"github.com/gyanpath/gyanpath-agent/pkg/events"
	"github.com/gyanpath/gyanpath-agent/pkg/gateway"
	"github.com/gyanpath/gyanpath-agent/pkg/outbox"
	"github.com/gyanpath/gyanpath-agent/pkg/progress"
	"github.com/gyanpath/gyanpath-agent/pkg/remote"
	"github.com/gyanpath/gyanpath-agent/pkg/storage"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

type apiFixture struct {
	server  *Server
	store   storage.Store
	broker  *events.Broker
	tracker *progress.Tracker
	backend *httptest.Server
}

// newFixture wires a full agent component set against a fake backend.
func newFixture(t *testing.T) *apiFixture {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/healthz":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/v1/courses/c1" && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(types.Course{ID: "c1", Title: "Intro to Soil Science"})
		case r.URL.Path == "/v1/courses/c1/lessons":
			json.NewEncoder(w).Encode([]types.Lesson{
				{ID: "l1", CourseID: "c1", Title: "Lesson One", Position: 1, VideoURL: backendAsset(r, "/assets/l1.mp4")},
			})
		case strings.HasPrefix(r.URL.Path, "/assets/"):
			w.Write([]byte("videobytes"))
		case r.URL.Path == "/v1/progress":
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/complete"):
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/v1/enrollments/"):
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(backend.Close)

	dataDir := t.TempDir()
	store, err := storage.NewBoltStore(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	client := remote.NewClient(backend.URL, "")
	dl := downloader.New(store, client, broker, dataDir)
	ob := outbox.New(store, client, broker, time.Hour)
	tracker := progress.NewTracker(store, ob, time.Hour)
	prober := connectivity.NewProber(client.Health, broker, connectivity.DefaultConfig())

	cache, err := gateway.NewCache(store, dataDir, "gen-1", 0)
	require.NoError(t, err)
	gw, err := gateway.New(gateway.Config{Addr: "127.0.0.1:0", UpstreamURL: backend.URL}, cache, broker)
	require.NoError(t, err)

	server := NewServer("127.0.0.1:0", Deps{
		Store:      store,
		Downloader: dl,
		Tracker:    tracker,
		Outbox:     ob,
		Gateway:    gw,
		Prober:     prober,
		Broker:     broker,
	})

	return &apiFixture{server: server, store: store, broker: broker, tracker: tracker, backend: backend}
}

// backendAsset builds an absolute asset URL pointing back at the fake
// backend that served the lesson list.
func backendAsset(r *http.Request, path string) string {
	return "http://" + r.Host + path
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *apiFixture) seedCourse(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.SaveCourse(&types.CachedCourse{ID: "c1", Title: "Intro to Soil Science", LessonsTotal: 2}))
	require.NoError(t, f.store.SaveLesson(&types.CachedLesson{ID: "l1", CourseID: "c1", Title: "Lesson One", Position: 1}))
	require.NoError(t, f.store.SaveLesson(&types.CachedLesson{ID: "l2", CourseID: "c1", Title: "Lesson Two", Position: 2}))
}

func TestListCoursesEmpty(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/courses", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Courses []courseResponse `json:"courses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Courses)
}

func TestGetCourseNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/courses/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCourse(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)

	w := f.do(t, http.MethodGet, "/v1/courses/c1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp courseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Intro to Soil Science", resp.Title)
	assert.True(t, resp.Complete)
}

func TestListLessonsOrderedByPosition(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)

	w := f.do(t, http.MethodGet, "/v1/courses/c1/lessons", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Lessons []lessonResponse `json:"lessons"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Lessons, 2)
	assert.Equal(t, "l1", resp.Lessons[0].ID)
	assert.Equal(t, "l2", resp.Lessons[1].ID)
}

func TestStartDownloadAccepted(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/courses/c1/download", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	// The async download against the fake backend lands the course row.
	require.Eventually(t, func() bool {
		_, err := f.store.GetCourse("c1")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRemoveCourse(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)

	w := f.do(t, http.MethodDelete, "/v1/courses/c1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/v1/courses/c1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveCourseNotFound(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodDelete, "/v1/courses/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordProgressBlockedSkip(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)

	w := f.do(t, http.MethodPost, "/v1/lessons/l1/progress", jsonBody{"course_id": "c1", "position": 10.0})
	assert.Equal(t, http.StatusOK, w.Code)

	// Jumping far past the watched high-water mark is corrected.
	w = f.do(t, http.MethodPost, "/v1/lessons/l1/progress", jsonBody{"course_id": "c1", "position": 120.0})
	var resp struct {
		Position  float64 `json:"position"`
		Corrected bool    `json:"corrected"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Corrected)
	assert.Equal(t, 10.0, resp.Position)
}

func TestRequestSeek(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)

	f.do(t, http.MethodPost, "/v1/lessons/l1/progress", jsonBody{"course_id": "c1", "position": 30.0})

	w := f.do(t, http.MethodPost, "/v1/lessons/l1/seek", jsonBody{"target": 15.0})
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed)

	w = f.do(t, http.MethodPost, "/v1/lessons/l1/seek", jsonBody{"target": 90.0})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Allowed)
}

func TestCompleteLessonEnqueues(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)

	w := f.do(t, http.MethodPost, "/v1/lessons/l1/complete", jsonBody{"course_id": "c1"})
	assert.Equal(t, http.StatusOK, w.Code)

	entries, err := f.store.ListOutbox()
	require.NoError(t, err)
	assert.Len(t, entries, 2, "completion enqueues the lesson write and the enrollment update")
}

func TestTriggerSync(t *testing.T) {
	f := newFixture(t)
	f.seedCourse(t)
	require.NoError(t, f.tracker.Complete("l1", "c1"))

	w := f.do(t, http.MethodPost, "/v1/sync", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Drained int `json:"drained"`
		Failed  int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Greater(t, resp.Drained, 0)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Online      bool               `json:"online"`
		OutboxDepth int                `json:"outbox_depth"`
		Downloads   []downloadResponse `json:"downloads"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Online)
	assert.Equal(t, 0, resp.OutboxDepth)
	assert.Empty(t, resp.Downloads)
}

func TestCacheURLs(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/cache/urls", jsonBody{"urls": []string{"/assets/l1.mp4"}})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Requested int `json:"requested"`
		Cached    int `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Requested)
	assert.Equal(t, 1, resp.Cached)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)

	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the stream a moment to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	f.broker.Emit(types.EventSyncQueue, "sync requested", nil)

	scanner := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data: ") {
			dataLine = line
			break
		}
	}
	assert.Equal(t, fmt.Sprintf("event: %s", types.EventSyncQueue), eventLine)

	var payload eventPayload
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &payload))
	assert.Equal(t, string(types.EventSyncQueue), payload.Type)
	assert.Equal(t, "sync requested", payload.Message)
}

// jsonBody is shorthand for request bodies.
type jsonBody = map[string]any

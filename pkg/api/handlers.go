package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gyanpath/gyanpath-agent/pkg/log"
	"github.com/gyanpath/gyanpath-agent/pkg/storage"
	"github.com/gyanpath/gyanpath-agent/pkg/types"
)

type courseResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL string    `json:"thumbnail_url"`
	InstructorID string    `json:"instructor_id"`
	LessonsTotal int       `json:"lessons_total"`
	AssetsFailed int       `json:"assets_failed"`
	Complete     bool      `json:"complete"`
	CachedAt     time.Time `json:"cached_at"`
}

type lessonResponse struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Position    int       `json:"position"`
	VideoPath   string    `json:"video_path,omitempty"`
	PDFPath     string    `json:"pdf_path,omitempty"`
	CachedAt    time.Time `json:"cached_at"`
}

type downloadResponse struct {
	ID           string `json:"id"`
	CourseID     string `json:"course_id"`
	State        string `json:"state"`
	Percent      int    `json:"percent"`
	LessonsDone  int    `json:"lessons_done"`
	LessonsTotal int    `json:"lessons_total"`
	AssetsFailed int    `json:"assets_failed"`
	Error        string `json:"error,omitempty"`
}

func toCourseResponse(c *types.CachedCourse) courseResponse {
	return courseResponse{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		ThumbnailURL: c.ThumbnailURL,
		InstructorID: c.InstructorID,
		LessonsTotal: c.LessonsTotal,
		AssetsFailed: c.AssetsFailed,
		Complete:     c.AssetsFailed == 0,
		CachedAt:     c.CachedAt,
	}
}

func toLessonResponse(l *types.CachedLesson) lessonResponse {
	return lessonResponse{
		ID:          l.ID,
		CourseID:    l.CourseID,
		Title:       l.Title,
		Description: l.Description,
		Position:    l.Position,
		VideoPath:   l.VideoPath,
		PDFPath:     l.PDFPath,
		CachedAt:    l.CachedAt,
	}
}

func toDownloadResponse(st *types.DownloadStatus) downloadResponse {
	return downloadResponse{
		ID:           st.ID,
		CourseID:     st.CourseID,
		State:        string(st.State),
		Percent:      st.Percent,
		LessonsDone:  st.LessonsDone,
		LessonsTotal: st.LessonsTotal,
		AssetsFailed: st.AssetsFailed,
		Error:        st.Error,
	}
}

func (s *Server) listCourses(c *gin.Context) {
	courses, err := s.deps.Store.ListCourses()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]courseResponse, 0, len(courses))
	for _, course := range courses {
		out = append(out, toCourseResponse(course))
	}
	c.JSON(http.StatusOK, gin.H{"courses": out})
}

func (s *Server) getCourse(c *gin.Context) {
	course, err := s.deps.Store.GetCourse(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "course not downloaded"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toCourseResponse(course))
}

// startDownload kicks off an async course download. The request returns
// immediately; progress arrives over /v1/events.
func (s *Server) startDownload(c *gin.Context) {
	courseID := c.Param("id")

	if st, ok := s.deps.Downloader.Status(courseID); ok {
		c.JSON(http.StatusConflict, gin.H{
			"error":    "download already in progress",
			"download": toDownloadResponse(st),
		})
		return
	}

	go func() {
		if _, err := s.deps.Downloader.DownloadCourse(context.Background(), courseID, nil); err != nil {
			logger := log.WithComponent("api")
			logger.Warn().Err(err).Str("course_id", courseID).Msg("download failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"course_id": courseID, "state": string(types.DownloadStatePending)})
}

func (s *Server) removeCourse(c *gin.Context) {
	err := s.deps.Downloader.RemoveCourse(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "course not downloaded"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("id")})
}

func (s *Server) listLessons(c *gin.Context) {
	courseID := c.Param("id")
	if _, err := s.deps.Store.GetCourse(courseID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "course not downloaded"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	lessons, err := s.deps.Store.ListLessonsByCourse(courseID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Position < lessons[j].Position })

	out := make([]lessonResponse, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, toLessonResponse(l))
	}
	c.JSON(http.StatusOK, gin.H{"lessons": out})
}

type progressRequest struct {
	CourseID string  `json:"course_id" binding:"required"`
	Position float64 `json:"position"`
}

// recordProgress feeds one playback time update through the anti-skip
// guard. The reply carries the position the player must honor: on a blocked
// skip that is the watched high-water mark, not the requested position.
func (s *Server) recordProgress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	effective, blocked := s.deps.Tracker.RecordTime(c.Param("id"), req.CourseID, req.Position)
	c.JSON(http.StatusOK, gin.H{
		"position":  effective,
		"corrected": blocked,
	})
}

type seekRequest struct {
	Target float64 `json:"target"`
}

func (s *Server) requestSeek(c *gin.Context) {
	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	allowed := s.deps.Tracker.RequestSeek(c.Param("id"), req.Target)
	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}

type completeRequest struct {
	CourseID string `json:"course_id" binding:"required"`
}

func (s *Server) completeLesson(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.deps.Tracker.Complete(c.Param("id"), req.CourseID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": c.Param("id")})
}

// triggerSync nudges an immediate outbox drain instead of waiting for the
// next tick.
func (s *Server) triggerSync(c *gin.Context) {
	s.deps.Broker.Emit(types.EventSyncQueue, "sync requested", nil)

	drained, failed, err := s.deps.Outbox.DrainOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"drained": drained, "failed": failed})
}

type cacheURLsRequest struct {
	URLs []string `json:"urls" binding:"required"`
}

func (s *Server) cacheURLs(c *gin.Context) {
	var req cacheURLsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cached := s.deps.Gateway.CacheURLs(c.Request.Context(), req.URLs)
	c.JSON(http.StatusOK, gin.H{"requested": len(req.URLs), "cached": cached})
}

func (s *Server) status(c *gin.Context) {
	depth, err := s.deps.Outbox.Depth()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	active := s.deps.Downloader.Active()
	downloads := make([]downloadResponse, 0, len(active))
	for _, st := range active {
		downloads = append(downloads, toDownloadResponse(st))
	}

	c.JSON(http.StatusOK, gin.H{
		"online":       s.deps.Prober.Online(),
		"outbox_depth": depth,
		"downloads":    downloads,
	})
}

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/plandala/internal/models"
)

// tasksEvent is the payload of a "tasks" SSE event.
type tasksEvent struct {
	Tasks []models.Task `json:"tasks"`
}

// commentsEvent is the payload of a "comments" SSE event.
type commentsEvent struct {
	TaskID   string           `json:"taskId"`
	Comments []models.Comment `json:"comments"`
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

// signal returns a coalescing change channel and the callback that feeds it.
func signal() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	return ch, func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// handleEvents streams the task snapshot after every push. An optional
// ?page= narrows the snapshot.
func (s *Server) handleEvents(c *gin.Context) {
	page := models.Page(c.Query("page"))
	if page != "" && !page.Valid() {
		badRequest(c, "unknown page "+string(page))
		return
	}

	sseHeaders(c)
	cache := s.deps.Cache
	changed, notify := signal()
	release := cache.Observe(notify)
	defer release()

	writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
	c.Writer.Flush()

	send := func() bool {
		if err := cache.Err(); err != nil {
			writeSSE(c.Writer, "error", map[string]string{"error": err.Error()})
			c.Writer.Flush()
			return false
		}
		if cache.Loading() {
			return true
		}
		tasks := cache.Tasks()
		if page != "" {
			tasks = cache.TasksByPage(page)
		}
		writeSSE(c.Writer, "tasks", tasksEvent{Tasks: tasks})
		c.Writer.Flush()
		return true
	}
	if !send() {
		return
	}

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(s.deps.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-changed:
			if !send() {
				return
			}
		}
	}
}

// handleCommentEvents streams one task's comments after every push.
func (s *Server) handleCommentEvents(c *gin.Context) {
	taskID := c.Param("id")
	sseHeaders(c)
	cache := s.deps.Cache
	changed, notify := signal()
	release := cache.ObserveComments(taskID, notify)
	defer release()

	writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
	c.Writer.Flush()

	// A set another observer already loaded will not push again until it
	// changes, so its current snapshot goes out first.
	send := func() bool {
		if err := cache.CommentsErr(taskID); err != nil {
			writeSSE(c.Writer, "error", map[string]string{"error": err.Error()})
			c.Writer.Flush()
			return false
		}
		if cache.CommentsLoading(taskID) {
			return true
		}
		writeSSE(c.Writer, "comments", commentsEvent{TaskID: taskID, Comments: cache.Comments(taskID)})
		c.Writer.Flush()
		return true
	}
	if !send() {
		return
	}

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(s.deps.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-changed:
			if !send() {
				return
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}

// Package server exposes the board core over a JSON and SSE HTTP API.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/plandala/internal/blob"
	"github.com/zulandar/plandala/internal/board"
	"github.com/zulandar/plandala/internal/config"
	"github.com/zulandar/plandala/internal/models"
	"github.com/zulandar/plandala/internal/notify"
	"github.com/zulandar/plandala/internal/projection"
	"github.com/zulandar/plandala/internal/store"
	"github.com/zulandar/plandala/internal/upload"
)

// BlobStore is the blob backend the server writes to and serves from.
type BlobStore interface {
	blob.Store
	Open(path string) (*os.File, error)
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Config  *config.Config
	Store   store.Store
	Cache   *projection.Cache
	Uploads *upload.Orchestrator
	Blobs   BlobStore
	Notify  *notify.Dispatcher
	// Out receives request logs. Nil discards them.
	Out io.Writer
	// Heartbeat is the SSE keep-alive interval. Zero means 15s.
	Heartbeat time.Duration
}

// Server routes HTTP requests to the store, projection, and boards.
type Server struct {
	deps    Deps
	boards  map[models.Page]*board.Board
	release func()
	engine  *gin.Engine
}

// New builds a Server and opens the shared task subscription it reads from.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Store == nil || deps.Cache == nil {
		return nil, fmt.Errorf("server: config, store and cache are required")
	}
	if deps.Heartbeat <= 0 {
		deps.Heartbeat = 15 * time.Second
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}

	s := &Server{deps: deps, boards: make(map[models.Page]*board.Board)}
	for _, page := range models.AllPages {
		b, err := board.New(page, deps.Cache, deps.Store)
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
		b.OnMove = s.onMove
		s.boards[page] = b
	}
	s.release = deps.Cache.Observe(nil)
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Close releases the task subscription.
func (s *Server) Close() {
	if s.release != nil {
		s.release()
	}
}

func (s *Server) onMove(ctx context.Context, task models.Task, to models.Status) {
	from := task.Status
	task.Status = to
	task.Page = to.Page()
	s.deps.Notify.Publish(ctx, notify.TaskMovedEvent(task, from, actorFrom(ctx)))
}

// Degraded returns a handler that answers every request with 503 and the
// configuration error, so a misconfigured deployment explains itself.
func Degraded(cause error) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": cause.Error()})
	})
	return router
}

// StartOpts holds configuration for the HTTP listener.
type StartOpts struct {
	Handler http.Handler
	Port    int
	Out     io.Writer
}

// Start serves opts.Handler. It blocks until ctx is cancelled, then shuts
// down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Handler == nil {
		return fmt.Errorf("server: handler is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           opts.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Plandala API running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

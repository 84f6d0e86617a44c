package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/plandala/internal/blob"
	"github.com/zulandar/plandala/internal/board"
	"github.com/zulandar/plandala/internal/models"
	"github.com/zulandar/plandala/internal/notify"
	"github.com/zulandar/plandala/internal/store"
)

// routes sets up every API route on a new Gin engine.
func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), gin.LoggerWithWriter(s.deps.Out))
	router.Use(cors(allowedOrigin(s.deps.Config.Connection.AuthDomain)))

	router.GET("/api/config", s.handleConfig)
	if s.deps.Blobs != nil {
		router.GET("/blobs/:bucket/*path", s.handleBlob)
	}

	api := router.Group("/api", requireKey(s.deps.Config.Connection.APIKey))
	api.GET("/events", s.handleEvents)
	api.GET("/tasks", s.handleListTasks)
	api.GET("/tasks/:id", s.handleGetTask)
	api.GET("/tasks/:id/comments", s.handleListComments)
	api.GET("/tasks/:id/comments/events", s.handleCommentEvents)
	api.GET("/pages/:page/columns", s.handleColumns)

	mut := api.Group("", requireUser())
	mut.POST("/tasks", s.handleCreateTask)
	mut.PATCH("/tasks/:id", s.handleUpdateTask)
	mut.DELETE("/tasks/:id", s.handleDeleteTask)
	mut.POST("/pages/:page/drag", s.handleDrag)
	mut.POST("/tasks/:id/comments", s.handleCreateComment)
	mut.DELETE("/tasks/:id/comments/:commentId", s.handleDeleteComment)
	if s.deps.Uploads != nil {
		mut.POST("/uploads", s.handleUpload)
		mut.DELETE("/uploads", s.handleDeleteUpload)
	}
	return router
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTask), errors.Is(err, store.ErrInvalidComment),
		errors.Is(err, blob.ErrInvalidPath), errors.Is(err, board.ErrUnknownPage):
		return http.StatusBadRequest
	case errors.Is(err, board.ErrCommitInProgress):
		return http.StatusConflict
	case errors.Is(err, blob.ErrUnauthorized):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Config.PublicConnection())
}

func (s *Server) handleListTasks(c *gin.Context) {
	cache := s.deps.Cache
	if err := cache.Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	page := models.Page(c.Query("page"))
	status := models.Status(c.Query("status"))
	if page != "" && !page.Valid() {
		badRequest(c, "unknown page "+string(page))
		return
	}
	if status != "" && !status.Valid() {
		badRequest(c, "unknown status "+string(status))
		return
	}

	var tasks []models.Task
	switch {
	case page != "" && status != "":
		tasks = cache.TasksByPageAndStatus(page, status)
	case page != "":
		tasks = cache.TasksByPage(page)
	case status != "":
		tasks = cache.TasksByStatus(status)
	default:
		tasks = cache.Tasks()
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "loading": cache.Loading()})
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, ok := s.deps.Cache.TaskByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

type createTaskRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      models.Status `json:"status"`
	AssignedTo  *string       `json:"assignedTo"`
	ImageURLs   []string      `json:"imageUrls"`
	Order       *int64        `json:"order"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	id, err := s.deps.Store.CreateTask(ctx, store.NewTask{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		AssignedTo:  req.AssignedTo,
		CreatedBy:   c.GetString("user"),
		ImageURLs:   req.ImageURLs,
		Order:       req.Order,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	if task, err := s.deps.Store.GetTask(ctx, id); err == nil {
		s.deps.Notify.Publish(ctx, notify.TaskCreatedEvent(*task, c.GetString("user")))
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

type updateTaskRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Status      *models.Status `json:"status"`
	AssignedTo  *string        `json:"assignedTo"`
	ImageURLs   *[]string      `json:"imageUrls"`
	Order       *int64         `json:"order"`
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	err := s.deps.Store.UpdateTask(c.Request.Context(), c.Param("id"), store.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		AssignedTo:  req.AssignedTo,
		ImageURLs:   req.ImageURLs,
		Order:       req.Order,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.deps.Store.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) pageBoard(c *gin.Context) (*board.Board, bool) {
	b, ok := s.boards[models.Page(c.Param("page"))]
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown page " + c.Param("page")})
	}
	return b, ok
}

func (s *Server) handleColumns(c *gin.Context) {
	b, ok := s.pageBoard(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": b.Page(), "columns": b.Columns(), "loading": s.deps.Cache.Loading()})
}

type dragRequest struct {
	DraggedID string `json:"draggedId" binding:"required"`
	TargetID  string `json:"targetId"`
}

func (s *Server) handleDrag(c *gin.Context) {
	b, ok := s.pageBoard(c)
	if !ok {
		return
	}
	var req dragRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	intent, err := b.DragEnd(c.Request.Context(), req.DraggedID, req.TargetID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (s *Server) handleListComments(c *gin.Context) {
	comments, err := s.deps.Store.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

type commentRequest struct {
	Text      string   `json:"text"`
	ImageURLs []string `json:"imageUrls"`
}

func (s *Server) handleCreateComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id, err := s.deps.Store.CreateComment(c.Request.Context(), store.NewComment{
		TaskID:    c.Param("id"),
		Text:      req.Text,
		UserName:  c.GetString("user"),
		ImageURLs: req.ImageURLs,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleDeleteComment(c *gin.Context) {
	if err := s.deps.Store.DeleteComment(c.Request.Context(), c.Param("commentId"), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

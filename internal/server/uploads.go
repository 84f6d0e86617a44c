package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/plandala/internal/imaging"
	"github.com/zulandar/plandala/internal/upload"
)

type uploadFailure struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func failuresJSON(fs []upload.FileError) []uploadFailure {
	out := make([]uploadFailure, len(fs))
	for i, f := range fs {
		out[i] = uploadFailure{Index: f.Index, Name: f.Name, Message: f.Message()}
	}
	return out
}

// handleUpload runs the multipart "files" through the orchestrator into
// "folder". When "taskId" is set, the URLs are appended to that task.
func (s *Server) handleUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "expected multipart form: "+err.Error())
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		badRequest(c, "no files")
		return
	}
	folder := strings.Trim(c.PostForm("folder"), "/")
	if folder == "" {
		folder = "tasks"
	}

	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			badRequest(c, fmt.Sprintf("open %s: %v", fh.Filename, err))
			return
		}
		// One byte past the limit is enough for validation to reject it.
		data, err := io.ReadAll(io.LimitReader(f, imaging.MaxFileSize+1))
		f.Close()
		if err != nil {
			badRequest(c, fmt.Sprintf("read %s: %v", fh.Filename, err))
			return
		}
		files = append(files, upload.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	ctx := c.Request.Context()
	res, err := s.deps.Uploads.Upload(ctx, files, folder, nil)
	if err != nil {
		var be *upload.BatchError
		if errors.As(err, &be) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":    be.Error(),
				"failures": failuresJSON(be.Failures),
			})
			return
		}
		abortWithError(c, err)
		return
	}

	if taskID := c.PostForm("taskId"); taskID != "" {
		if err := s.deps.Store.AddTaskImages(ctx, taskID, res.URLs); err != nil {
			abortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"urls":     res.URLs,
		"failures": failuresJSON(res.Failures),
		"partial":  res.Partial(),
	})
}

func (s *Server) handleDeleteUpload(c *gin.Context) {
	u := c.Query("url")
	if u == "" {
		badRequest(c, "url is required")
		return
	}
	if err := s.deps.Uploads.Delete(c.Request.Context(), u); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleBlob serves a stored object.
func (s *Server) handleBlob(c *gin.Context) {
	if c.Param("bucket") != s.deps.Config.Connection.StorageBucket {
		c.Status(http.StatusNotFound)
		return
	}
	path := strings.TrimPrefix(c.Param("path"), "/")
	f, err := s.deps.Blobs.Open(path)
	if err != nil {
		c.Status(statusFor(err))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Header("Content-Type", imaging.ContentTypeFor(path))
	c.Header("X-Content-Type-Options", "nosniff")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}

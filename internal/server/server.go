package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"ragserver/internal/domain"
	"ragserver/internal/engine"
)

// Server exposes the knowledge-base entrypoints over HTTP. Routing and file
// handling live here; all pipeline semantics belong to the engine.
type Server struct {
	engine    *engine.Engine
	uploadDir string
	log       *zap.Logger
}

func New(eng *engine.Engine, uploadDir string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{engine: eng, uploadDir: uploadDir, log: log}
}

// Router builds the echo instance with all routes registered.
func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/", s.root)
	e.POST("/upload", s.upload)
	e.POST("/query", s.query)
	e.GET("/stats", s.stats)
	e.DELETE("/clear", s.clear)
	e.GET("/health", s.health)
	return e
}

// Start runs the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.Router().Start(addr)
}

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Knowledge Base RAG API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"POST /upload":  "Upload documents",
			"POST /query":   "Query the knowledge base",
			"GET /stats":    "Get knowledge base statistics",
			"DELETE /clear": "Clear knowledge base",
		},
	})
}

func (s *Server) upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "file is required"})
	}
	name := filepath.Base(fileHeader.Filename)
	if !supportedUpload(name) {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "Only PDF and TXT files are supported"})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "Upload failed: " + err.Error()})
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "Upload failed: " + err.Error()})
	}

	// Keep a raw copy alongside the index; /clear removes it again.
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "Upload failed: " + err.Error()})
	}
	if err := os.WriteFile(filepath.Join(s.uploadDir, name), data, 0o644); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "Upload failed: " + err.Error()})
	}

	result := s.engine.Ingest(c.Request().Context(), name, data)
	if result.Status == domain.StatusError {
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": result.Message})
	}
	return c.JSON(http.StatusOK, result)
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func (s *Server) query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
	}
	result := s.engine.Query(c.Request().Context(), req.Question, req.TopK)
	return c.JSON(http.StatusOK, result)
}

func (s *Server) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Stats(c.Request().Context()))
}

func (s *Server) clear(c echo.Context) error {
	result := s.engine.Clear(c.Request().Context())
	if result.Status == domain.StatusSuccess {
		s.removeUploads()
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Health())
}

// removeUploads deletes stored raw document copies after a clear.
func (s *Server) removeUploads() {
	files, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.uploadDir, f.Name())); err != nil {
			s.log.Warn("removing uploaded file", zap.String("file", f.Name()), zap.Error(err))
		}
	}
}

func supportedUpload(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md", ".markdown":
		return true
	}
	return false
}

package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/loglink/internal/model"
)

// RecorderSource is the narrow recorder contract required by the HTTP API.
type RecorderSource interface {
	Status() model.RecorderStatus
	FetchLog(ctx context.Context, rank int) (string, error)
	StartingLog(ctx context.Context, rank int) (string, error)
	LineCount(rank int) int
}

// Server provides a read-only HTTP status API for one recorder.
type Server struct {
	addr      string
	rec       RecorderSource
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, rec RecorderSource) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		rec:       rec,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/recorder", s.handleRecorder)
	r.GET("/api/logs/:rank", s.handleLog)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.rec.Status()
	lines := 0
	for rank := 0; rank < st.RankCount; rank++ {
		lines += s.rec.LineCount(rank)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"location":   st.Location,
		"rank_count": st.RankCount,
		"line_count": lines,
	})
}

func (s *Server) handleRecorder(c *gin.Context) {
	c.JSON(http.StatusOK, s.rec.Status())
}

// handleLog serves a rank's buffered text, or its starting log with
// ?starting=true.
func (s *Server) handleLog(c *gin.Context) {
	rank, err := strconv.Atoi(c.Param("rank"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rank must be an integer"})
		return
	}

	fetch := s.rec.FetchLog
	if starting, _ := strconv.ParseBool(c.Query("starting")); starting {
		fetch = s.rec.StartingLog
	}

	text, err := fetch(c.Request.Context(), rank)
	switch {
	case errors.Is(err, model.ErrInvalidRank):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, model.ErrStaleRecorder):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, text)
}

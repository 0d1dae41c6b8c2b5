package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ragqa/config"
	"ragqa/internal/adapter/fs"
	"ragqa/internal/domain"
	"ragqa/internal/usecase"
)

// QA is the question answering service behind the HTTP API.
type QA interface {
	Answer(ctx context.Context, query string) (domain.QueryResult, error)
	Upload(ctx context.Context, uploads []fs.Upload) usecase.UploadResult
	Stats() (domain.Stats, bool)
}

type queryRequest struct {
	Query string `json:"query"`
}

// Breaker reports the state of a circuit breaker guarding a provider.
type Breaker interface {
	State() string
}

type healthResponse struct {
	Status    string            `json:"status"`
	Documents int               `json:"documents"`
	Chunks    int               `json:"chunks"`
	Model     string            `json:"model,omitempty"`
	BuiltAt   *time.Time        `json:"built_at,omitempty"`
	Breakers  map[string]string `json:"breakers,omitempty"`
}

// Server exposes upload, query and health endpoints.
type Server struct {
	qa       QA
	cfg      config.ServerConfig
	log      logrus.FieldLogger
	router   *gin.Engine
	breakers map[string]Breaker
}

func NewServer(qa QA, cfg config.ServerConfig, log logrus.FieldLogger) *Server {
	s := &Server{qa: qa, cfg: cfg, log: log}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	if len(cfg.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
		corsConfig.AllowCredentials = true
		router.Use(cors.New(corsConfig))
	}

	router.GET("/health", s.health)
	router.POST("/upload", s.upload)
	router.POST("/query", s.query)

	s.router = router
	return s
}

// WithBreaker adds a named circuit breaker to the health report.
func (s *Server) WithBreaker(name string, b Breaker) *Server {
	if s.breakers == nil {
		s.breakers = make(map[string]Breaker)
	}
	s.breakers[name] = b
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.log.Info("server exited")
	return nil
}

func (s *Server) health(c *gin.Context) {
	resp := healthResponse{Status: "ok"}
	if stats, ok := s.qa.Stats(); ok {
		resp.Documents = stats.Documents
		resp.Chunks = stats.Chunks
		resp.Model = stats.Model
		builtAt := stats.BuiltAt
		resp.BuiltAt = &builtAt
	}
	if len(s.breakers) > 0 {
		resp.Breakers = make(map[string]string, len(s.breakers))
		for name, b := range s.breakers {
			resp.Breakers[name] = b.State()
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) upload(c *gin.Context) {
	if s.cfg.MaxUploadMB > 0 {
		limit := int64(s.cfg.MaxUploadMB) << 20
		if c.Request.ContentLength > limit {
			s.tooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	form, err := c.MultipartForm()
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		s.tooLarge(c)
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, domain.Failure("Expected a multipart form with files."))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, domain.Failure("No files uploaded."))
		return
	}

	uploads := make([]fs.Upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			closeAll(uploads)
			c.JSON(http.StatusBadRequest, domain.Failure(fmt.Sprintf("Error reading %s.", h.Filename)))
			return
		}
		uploads = append(uploads, fs.Upload{Name: h.Filename, Body: f})
	}
	defer closeAll(uploads)

	result := s.qa.Upload(c.Request.Context(), uploads)
	c.JSON(statusFor(result.Err), result)
}

func (s *Server) tooLarge(c *gin.Context) {
	msg := fmt.Sprintf("Upload exceeds the %d MB limit.", s.cfg.MaxUploadMB)
	c.JSON(http.StatusRequestEntityTooLarge, domain.Failure(msg))
}

func (s *Server) query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.Failure("Request body must be JSON with a query field."))
		return
	}

	result, err := s.qa.Answer(c.Request.Context(), req.Query)
	c.JSON(statusFor(err), result)
}

// statusFor maps a pipeline error to an HTTP status. An empty corpus is a
// normal state and still answers 200 with an error result.
func statusFor(err error) int {
	var ec *domain.EmptyCorpusError
	var es *domain.EmbeddingServiceError
	var fe *fs.NameError
	switch {
	case err == nil, errors.As(err, &ec):
		return http.StatusOK
	case errors.Is(err, domain.ErrEmptyQuery), errors.As(err, &fe):
		return http.StatusBadRequest
	case errors.As(err, &es):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func closeAll(uploads []fs.Upload) {
	for _, u := range uploads {
		if closer, ok := u.Body.(interface{ Close() error }); ok {
			closer.Close()
		}
	}
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request")
	}
}

package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
)

const requestIDHeader = "X-Request-ID"

// reservedPaths never redirect to the station page.
var reservedPaths = map[string]struct{}{
	"api":           {},
	"session":       {},
	"manifest.json": {},
	"sw.js":         {},
	"health":        {},
	"favicon.ico":   {},
	"index.html":    {},
}

// Option configures a Server.
type Option func(*Server)

// WithHTTPClient replaces the client used for webhook calls.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Server) {
		if client != nil {
			s.client = client
		}
	}
}

// Server serves the relay routes.
type Server struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client
	engine *gin.Engine
}

// New builds the router. gin's mode is left to the caller.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Server {
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = 5 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "relay"),
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), s.requestContext())

	corsConfig := cors.DefaultConfig()
	if len(s.cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	router.Use(cors.New(corsConfig))

	router.GET("/health", s.health)

	api := router.Group("/api")
	{
		api.POST("/scan", s.scan)
		api.POST("/session", s.session)
		api.POST("/auth", s.auth)
	}

	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})
	router.NoRoute(s.redirect)
	return router
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening",
			logging.String(logging.FieldEventType, "relay_started"),
			logging.String("addr", s.cfg.Addr),
			logging.Bool("auth_webhook", s.cfg.AuthWebhookURL != ""),
			logging.Bool("session_webhook", s.cfg.SessionWebhookURL != ""),
			logging.Bool("scan_webhook", s.cfg.ScanWebhookURL != ""),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.logger.Info("relay shutting down", logging.String(logging.FieldEventType, "relay_stopping"))
	return srv.Shutdown(shutdownCtx)
}

// requestContext assigns the request id and writes one access log line.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		ctx := services.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		logging.WithContext(ctx, s.logger).Info("request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) requestLogger(c *gin.Context) *slog.Logger {
	return logging.WithContext(c.Request.Context(), s.logger)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// redirect turns /<ID> into /?exhibitor_id=<ID>. Anything else is a 404.
func (s *Server) redirect(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	path := strings.TrimPrefix(c.Request.URL.Path, "/")
	if !redirectable(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, "/?exhibitor_id="+url.QueryEscape(path))
}

func redirectable(path string) bool {
	if path == "" || strings.Contains(path, "/") || strings.Contains(path, ".") {
		return false
	}
	_, reserved := reservedPaths[path]
	return !reserved
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/herdwatch/herdwatch/internal/api/auth"
	"github.com/herdwatch/herdwatch/internal/api/handler"
	"github.com/herdwatch/herdwatch/internal/cache"
	"github.com/herdwatch/herdwatch/internal/config"
	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/herdwatch/herdwatch/internal/export"
	"github.com/herdwatch/herdwatch/internal/static"
	"github.com/herdwatch/herdwatch/internal/storage"
	"github.com/herdwatch/herdwatch/web/templates"
)

const sessionName = "herdwatch_session"

type Server struct {
	cfg            *config.Config
	ginEngine      *gin.Engine
	httpServer     *http.Server
	authProvider   *auth.LocalProvider
	apiKeyProvider *auth.APIKeyProvider
	handler        *handler.Handler
}

// New creates the HTTP server and registers all routes.
func New(cfg *config.Config, db database.DB) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}

	cacheCfg := cfg.Cache
	if cacheCfg == nil {
		cacheCfg = config.DefaultCacheConfig()
	}

	images, err := storage.New(
		cfg.Content.Dir,
		storage.WithUsageCache(cache.NewMemory[storage.Usage](cache.UsageCachePrefix, cacheCfg.UsageTTL)),
	)
	if err != nil {
		return nil, err
	}
	exporter := export.New(
		images,
		cfg.Export.ThumbnailSize,
		export.WithThumbnailCache(cache.NewMemory[[]byte](cache.ThumbnailCachePrefix, cacheCfg.ThumbnailTTL)),
	)

	tpl, err := templates.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	if log.GetLevel() > log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.MaxMultipartMemory = cfg.Upload.MaxSize
	engine.SetHTMLTemplate(tpl)

	authProvider := auth.NewLocalProvider(db)
	s := &Server{
		cfg:            cfg,
		ginEngine:      engine,
		authProvider:   authProvider,
		apiKeyProvider: auth.NewAPIKeyProvider(cfg.Upload.APIKey),
		handler: handler.New(
			db,
			authProvider,
			images,
			exporter,
			cfg,
		),
	}

	s.setupSession()
	s.setupRoutes()
	s.setupAdminRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) setupSession() {
	store := cookie.NewStore([]byte(s.cfg.SessionKey))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   s.cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	s.ginEngine.Use(sessions.Sessions(sessionName, store))
}

func (s *Server) setupRoutes() {
	h := s.handler

	// xlsx files are already compressed
	s.ginEngine.Use(gzip.Gzip(
		gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/download_xlsx", "/images/"}),
	))

	s.ginEngine.StaticFS("/static", http.FS(static.Files()))
	s.ginEngine.GET("/", h.Home)
	s.ginEngine.GET("/login", h.LoginPage)
	s.ginEngine.POST("/login", h.Login)
	s.ginEngine.GET("/logout", h.Logout)
	s.ginEngine.GET("/healthz", h.Healthz)

	// device endpoint
	s.ginEngine.POST("/upload", s.apiKeyProvider.RequireAuth(), h.Upload)

	protected := s.ginEngine.Group("/")
	protected.Use(s.authProvider.RequireAuth())

	protected.GET("/dashboard", h.Dashboard)
	protected.GET("/download_xlsx", h.DownloadXLSX)
	protected.GET("/realtime", h.Realtime)
	protected.GET("/images/*filepath", h.Image)

	api := s.ginEngine.Group("/")
	api.Use(s.authProvider.RequireAuthJSON())
	api.POST("/delete_image/:id", h.DeleteImage)
}

func (s *Server) setupAdminRoutes() {
	h := s.handler

	adminGroup := s.ginEngine.Group("/")
	adminGroup.Use(s.authProvider.RequireAuth(), s.authProvider.RequireAdmin())

	adminGroup.GET("/users", h.Users)
	adminGroup.GET("/add_user", h.AddUserPage)
	adminGroup.POST("/add_user", h.AddUser)
	adminGroup.GET("/edit_user/:username", h.EditUserPage)
	adminGroup.POST("/edit_user/:username", h.EditUser)
	adminGroup.GET("/delete_user/:username", h.DeleteUser)
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.ginEngine
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	log.Info("Starting herdwatch server", "listen", s.cfg.Listen, "content_dir", s.cfg.Content.Dir, "upload_api_key", s.apiKeyProvider.Enabled())
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"remote", c.ClientIP(),
		}
		switch {
		case len(c.Errors) > 0:
			log.Error("Request failed", append(fields, "error", c.Errors.String())...)
		case status >= http.StatusInternalServerError:
			log.Error("Request failed", fields...)
		default:
			log.Debug("Request", fields...)
		}
	}
}

package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ccoveille/go-safecast"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/herdwatch/herdwatch/internal/api/auth"
	"github.com/herdwatch/herdwatch/internal/api/models"
	"github.com/herdwatch/herdwatch/internal/config"
	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/herdwatch/herdwatch/internal/export"
	"github.com/herdwatch/herdwatch/internal/filter/params"
	"github.com/herdwatch/herdwatch/internal/storage"
)

type Handler struct {
	db       database.DB
	auth     *auth.LocalProvider
	images   *storage.Store
	exporter *export.Builder
	config   *config.Config
}

func New(db database.DB, authProvider *auth.LocalProvider, images *storage.Store, exporter *export.Builder, cfg *config.Config) *Handler {
	return &Handler{
		db:       db,
		auth:     authProvider,
		images:   images,
		exporter: exporter,
		config:   cfg,
	}
}

// page is the data passed to every HTML template.
type page struct {
	Title     string
	User      *models.User
	Error     string
	Username  string
	Filter    params.Params
	Query     string
	Readings  []models.ReadingItem
	Accounts  []models.AccountItem
	Account   *models.AccountItem
	Usage     *models.ContentUsage
	StreamURL string
}

func (h *Handler) render(c *gin.Context, status int, name string, data page) {
	if data.User == nil {
		data.User, _ = auth.CurrentUser(c)
	}
	c.HTML(status, name, data)
}

func currentUser(c *gin.Context) *models.User {
	user, ok := auth.CurrentUser(c)
	if !ok {
		// routes using this are always behind the auth middleware
		panic("handler: no user in context")
	}
	return user
}

func internalError(c *gin.Context, msg string, err error) {
	log.Error(msg, "path", c.Request.URL.Path, "error", err)
	c.String(http.StatusInternalServerError, "Internal server error")
}

func (h *Handler) Home(c *gin.Context) {
	c.Redirect(http.StatusFound, "/login")
}

func (h *Handler) LoginPage(c *gin.Context) {
	h.render(c, http.StatusOK, "login.html", page{Title: "Sign in"})
}

func (h *Handler) Login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	account, err := h.auth.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			log.Info("Failed login attempt.", "username", username, "remote", c.ClientIP())
			h.render(c, http.StatusUnauthorized, "login.html", page{
				Title:    "Sign in",
				Error:    "Invalid username or password",
				Username: username,
			})
			return
		}
		internalError(c, "Failed to authenticate", err)
		return
	}

	if err := h.auth.StartSession(c, account); err != nil {
		internalError(c, "Failed to start session", err)
		return
	}
	log.Info("User logged in.", "username", account.Username, "role", account.Role)
	c.Redirect(http.StatusFound, "/dashboard")
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.auth.EndSession(c); err != nil {
		if err := c.AbortWithError(http.StatusInternalServerError, err); err != nil {
			log.Error("Failed to abort with error", "error", err)
		}
		return
	}
	c.Redirect(http.StatusFound, "/login")
}

func (h *Handler) Realtime(c *gin.Context) {
	h.render(c, http.StatusOK, "realtime.html", page{
		Title:     "Live camera",
		StreamURL: h.config.Stream.URL,
	})
}

// Image serves a file from the content directory.
func (h *Handler) Image(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("filepath"), "/")
	if !h.images.Exists(name) {
		c.String(http.StatusNotFound, "Not found")
		return
	}
	path, _ := h.images.Path(name)
	c.File(path)
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseUintParam(param string) (uint, error) {
	id, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		return 0, err
	}
	return safecast.ToUint(id)
}

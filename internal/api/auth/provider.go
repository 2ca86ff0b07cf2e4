package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/herdwatch/herdwatch/internal/api/models"
	"github.com/herdwatch/herdwatch/internal/database"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown username or a wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

const (
	sessionKeyUsername = "username"
	sessionKeyRole     = "role"

	// ContextKeyUser is the gin context key of the *models.User of a request.
	ContextKeyUser = "user"
)

// AccountReader looks up accounts by username.
type AccountReader interface {
	GetAccount(ctx context.Context, username string) (*database.Account, error)
}

// LocalProvider authenticates against the account table and keeps the
// identity in a cookie session.
type LocalProvider struct {
	accounts AccountReader
}

// NewLocalProvider creates a new LocalProvider.
func NewLocalProvider(accounts AccountReader) *LocalProvider {
	return &LocalProvider{accounts: accounts}
}

// Authenticate checks username and password. Unknown users and wrong
// passwords both return ErrInvalidCredentials.
func (p *LocalProvider) Authenticate(ctx context.Context, username, password string) (*database.Account, error) {
	account, err := p.accounts.GetAccount(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			// keep the response time close to that of a known user
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// StartSession stores the identity of account in the session.
func (p *LocalProvider) StartSession(c *gin.Context, account *database.Account) error {
	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionKeyUsername, account.Username)
	session.Set(sessionKeyRole, string(account.Role))
	if err := session.Save(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// EndSession clears the session.
func (p *LocalProvider) EndSession(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	return session.Save()
}

// userFromSession returns the identity stored in the session, if any.
func userFromSession(c *gin.Context) (*models.User, bool) {
	session := sessions.Default(c)
	username := getSessionString(session, sessionKeyUsername)
	if username == "" {
		return nil, false
	}
	role := getSessionString(session, sessionKeyRole)
	return &models.User{
		Username: username,
		Role:     role,
		IsAdmin:  role == string(database.RoleAdmin),
	}, true
}

// RequireAuth redirects requests without a session to the login page.
func (p *LocalProvider) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := userFromSession(c)
		if !ok {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// RequireAuthJSON answers requests without a session with 401 JSON.
func (p *LocalProvider) RequireAuthJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := userFromSession(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
			c.Abort()
			return
		}
		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth or RequireAuthJSON.
func (p *LocalProvider) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || !user.IsAdmin {
			log.Warn("Denied admin route.", "path", c.Request.URL.Path, "user", usernameOf(user))
			c.String(http.StatusForbidden, "Forbidden")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user set by the auth middleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ContextKeyUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

func usernameOf(user *models.User) string {
	if user == nil {
		return ""
	}
	return user.Username
}

// Helper functions to safely get session values.
func getSessionString(session sessions.Session, key string) string {
	if val := session.Get(key); val != nil {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

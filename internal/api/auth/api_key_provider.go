package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the device key on upload requests.
const APIKeyHeader = "X-API-Key"

// APIKeyProvider guards the device endpoints with a shared key.
type APIKeyProvider struct {
	apiKey string
}

// NewAPIKeyProvider creates a new API key authentication provider.
// An empty key disables the check.
func NewAPIKeyProvider(apiKey string) *APIKeyProvider {
	return &APIKeyProvider{
		apiKey: apiKey,
	}
}

// Enabled reports whether a key is configured.
func (ap *APIKeyProvider) Enabled() bool {
	return ap.apiKey != ""
}

// RequireAuth rejects requests without the configured key.
func (ap *APIKeyProvider) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ap.Enabled() {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(APIKeyHeader)), []byte(ap.apiKey)) != 1 {
			log.Warn("Rejected request with invalid API key.", "path", c.Request.URL.Path, "remote", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

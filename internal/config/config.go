package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration for the herdwatch server.
type Config struct {
	// Listen is the address the herdwatch server will listen on.
	Listen string `yaml:"listen" mapstructure:"listen"`
	// LogLevel is the default log level (debug, info, warn, error).
	// The --log-level flag takes precedence.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// SessionKey is the key used to sign the session cookie.
	SessionKey string `yaml:"session_key" mapstructure:"session_key"`
	// SessionMaxAge is the maximum age of a session in seconds.
	SessionMaxAge int `yaml:"session_max_age" mapstructure:"session_max_age"`
	// SecureCookie marks the session cookie as HTTPS only.
	SecureCookie bool `yaml:"secure_cookie" mapstructure:"secure_cookie"`
	// Database holds the database configuration.
	Database *DatabaseConfig `yaml:"database" mapstructure:"database"`
	// Content holds the configuration of the image content area.
	Content *ContentConfig `yaml:"content" mapstructure:"content"`
	// Upload holds the configuration of the device upload endpoint.
	Upload *UploadConfig `yaml:"upload" mapstructure:"upload"`
	// Export holds the spreadsheet export configuration.
	Export *ExportConfig `yaml:"export" mapstructure:"export"`
	// Stream holds the live camera stream configuration.
	Stream *StreamConfig `yaml:"stream" mapstructure:"stream"`
	// Bootstrap holds the initial admin account created on an empty database.
	Bootstrap *BootstrapConfig `yaml:"bootstrap" mapstructure:"bootstrap"`
	// Cache holds the in-memory cache configuration.
	Cache *CacheConfig `yaml:"cache" mapstructure:"cache"`
}

// DatabaseConfig holds the database configuration.
type DatabaseConfig struct {
	// Path is the path to the sqlite database file.
	Path string `yaml:"path" mapstructure:"path"`
}

// ContentConfig holds the configuration of the directory uploaded images are stored in.
type ContentConfig struct {
	// Dir is the directory uploaded images are written to.
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// UploadConfig holds the configuration of the device upload endpoint.
type UploadConfig struct {
	// MaxSize is the maximum accepted size of an upload request in bytes.
	MaxSize int64 `yaml:"max_size" mapstructure:"max_size"`
	// APIKey, if set, must be sent by the device in the X-API-Key header.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// ExportConfig holds the spreadsheet export configuration.
type ExportConfig struct {
	// ThumbnailSize is the bounding box in pixels embedded images are scaled into.
	ThumbnailSize int `yaml:"thumbnail_size" mapstructure:"thumbnail_size"`
}

// StreamConfig holds the live camera stream configuration.
type StreamConfig struct {
	// URL is the base URL of the camera stream embedded in the realtime page.
	URL string `yaml:"url" mapstructure:"url"`
}

// CacheConfig holds the lifetimes of cached values.
type CacheConfig struct {
	// UsageTTL is how long the content directory usage shown to admins is kept.
	UsageTTL time.Duration `yaml:"usage_ttl" mapstructure:"usage_ttl"`
	// ThumbnailTTL is how long encoded export thumbnails are kept.
	ThumbnailTTL time.Duration `yaml:"thumbnail_ttl" mapstructure:"thumbnail_ttl"`
}

// DefaultCacheConfig returns the cache lifetimes used when none are configured.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		UsageTTL:     30 * time.Second,
		ThumbnailTTL: time.Hour,
	}
}

// BootstrapConfig holds the admin account created when no account exists yet.
type BootstrapConfig struct {
	AdminUsername string `yaml:"admin_username" mapstructure:"admin_username"`
	AdminPassword string `yaml:"admin_password" mapstructure:"admin_password"`
}

// Load reads the configuration from the specified path and returns a Config struct.
// If path is empty, it will use default search paths for config files.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to load .env file", "error", err)
	}

	v := viper.New()

	bindNestedEnv(v)
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("HERDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var configFileFound bool
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.herdwatch")
		v.AddConfigPath("/etc/herdwatch")
	}

	if err := v.ReadInConfig(); err != nil {
		// If no config file is found, use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		configFileFound = true
	}

	if configFileFound {
		log.Debug("Using config file", "file", v.ConfigFileUsed())
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	sanitizeConfig(&c)

	if err := validateConfig(&c); err != nil {
		return nil, err
	}

	return &c, nil
}

// setDefaults sets default values for the configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "0.0.0.0:5000")
	v.SetDefault("log_level", "info")
	v.SetDefault("session_key", "")
	v.SetDefault("session_max_age", 43200) // 12 hours
	v.SetDefault("secure_cookie", false)

	v.SetDefault("database.path", "./data/herdwatch.db")
	v.SetDefault("content.dir", "./data/images")

	v.SetDefault("upload.max_size", 16<<20) // 16 MiB
	v.SetDefault("upload.api_key", "")

	v.SetDefault("export.thumbnail_size", 120)

	v.SetDefault("cache.usage_ttl", DefaultCacheConfig().UsageTTL)
	v.SetDefault("cache.thumbnail_ttl", DefaultCacheConfig().ThumbnailTTL)
}

// the auto env function from viper only binds keys it already knows about.
// Keys without a default have to be bound manually.
func bindNestedEnv(v *viper.Viper) {
	v.MustBindEnv("stream.url", "HERDWATCH_STREAM_URL")
	v.MustBindEnv("bootstrap.admin_username", "HERDWATCH_BOOTSTRAP_ADMIN_USERNAME")
	v.MustBindEnv("bootstrap.admin_password", "HERDWATCH_BOOTSTRAP_ADMIN_PASSWORD")
}

// validateConfig validates the configuration.
func validateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("missing herdwatch config")
	}

	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	if c.Database == nil || c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Content == nil || c.Content.Dir == "" {
		return fmt.Errorf("content directory is required")
	}

	if c.Upload == nil {
		c.Upload = &UploadConfig{}
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload max size must be greater than 0")
	}

	if c.Export == nil {
		c.Export = &ExportConfig{}
	}
	if c.Export.ThumbnailSize <= 0 {
		return fmt.Errorf("export thumbnail size must be greater than 0")
	}

	if c.Stream == nil {
		c.Stream = &StreamConfig{}
	}

	if c.Bootstrap != nil {
		if (c.Bootstrap.AdminUsername == "") != (c.Bootstrap.AdminPassword == "") {
			return fmt.Errorf("bootstrap admin username and password must be set together")
		}
	}

	if c.Cache == nil {
		c.Cache = DefaultCacheConfig()
	}
	if c.Cache.UsageTTL <= 0 || c.Cache.ThumbnailTTL <= 0 {
		return fmt.Errorf("cache ttls must be greater than 0")
	}

	return nil
}

// ValidateServer checks the settings only the HTTP server needs. Shell
// commands such as migrate or user do not require them.
func (c *Config) ValidateServer() error {
	if c.SessionKey == "" {
		return fmt.Errorf("session key is required")
	}

	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("session max age must be greater than 0")
	}

	return nil
}

// sanitizeConfig sanitizes the configuration values.
func sanitizeConfig(c *Config) {
	if c == nil {
		return
	}

	c.Listen = strings.TrimSpace(c.Listen)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	if c.Stream != nil {
		c.Stream.URL = urlSanitize(c.Stream.URL)
	}

	if c.Bootstrap != nil {
		c.Bootstrap.AdminUsername = strings.TrimSpace(c.Bootstrap.AdminUsername)
	}
}

func urlSanitize(url string) string {
	return strings.TrimSuffix(strings.TrimSpace(url), "/")
}

// HasBootstrapAdmin reports whether an initial admin account is configured.
func (c *Config) HasBootstrapAdmin() bool {
	return c != nil && c.Bootstrap != nil && c.Bootstrap.AdminUsername != ""
}

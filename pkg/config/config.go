// Package config loads the application configuration from an XDG-compliant
// YAML file with environment variable overrides.
//
// Priority: environment > user config file > defaults. Every key is
// overridable through the AUTHBRIDGE_ prefix with dots replaced by
// underscores, e.g. AUTHBRIDGE_STORAGE_TYPE=keyring.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/authbridge/authbridge/pkg/authclient"
	"github.com/authbridge/authbridge/pkg/credentials"
)

// AppName names the binary and the XDG directories.
const AppName = "authbridge"

// EnvPrefix is the prefix of every override variable.
const EnvPrefix = "AUTHBRIDGE"

// Log configures logging output.
type Log struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// Config is the full application configuration.
type Config struct {
	// BaseURL is the backend API root.
	BaseURL string `yaml:"base_url"`
	// HTTPTimeout bounds every backend round-trip.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// RefreshTimeout bounds the token refresh call.
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
	// PermissionTTL is the permission cache lifetime.
	PermissionTTL time.Duration `yaml:"permission_ttl"`

	Log     Log                     `yaml:"log"`
	Storage credentials.Config      `yaml:"storage"`
	OAuth2  authclient.OAuth2Config `yaml:"oauth2"`
}

// Path returns the user config file location: an explicit override via
// AUTHBRIDGE_CONFIG, otherwise the XDG config home.
func Path() string {
	if custom := os.Getenv(EnvPrefix + "_CONFIG"); custom != "" {
		return custom
	}
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// CacheDir returns the XDG-compliant cache directory.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// StateDir returns the XDG-compliant state directory, which holds the
// persisted session snapshot.
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// Load reads the configuration. path overrides the default location; an
// absent file is not an error, defaults and environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		path = Path()
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment-only overrides are picked
// up during unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("refresh_timeout", "30s")
	v.SetDefault("permission_ttl", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("storage.type", string(credentials.BackendFile))
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.keyring_service", "")
	v.SetDefault("oauth2.client_id", "")
	v.SetDefault("oauth2.client_secret", "")
	v.SetDefault("oauth2.auth_url", "")
	v.SetDefault("oauth2.token_url", "")
	v.SetDefault("oauth2.scopes", []string{})
	v.SetDefault("oauth2.redirect_port", 9998)
	v.SetDefault("oauth2.pkce", true)
	v.SetDefault("oauth2.auto_open_browser", true)
}

// Validate checks the loaded configuration for values that would only fail
// later and less clearly.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("config: base_url is required (set it in %s or via %s_BASE_URL)", Path(), EnvPrefix)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: base_url %q is not a valid URL", c.BaseURL)
	}

	switch credentials.BackendType(c.Storage.Type) {
	case credentials.BackendFile, credentials.BackendKeyring, credentials.BackendMemory, "":
	default:
		return fmt.Errorf("config: unknown storage type %q", c.Storage.Type)
	}
	return nil
}

// Save writes the configuration to the user config path, creating the
// directory when needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("base_url", c.BaseURL)
	v.Set("http_timeout", c.HTTPTimeout.String())
	v.Set("refresh_timeout", c.RefreshTimeout.String())
	v.Set("permission_ttl", c.PermissionTTL.String())
	v.Set("log.level", c.Log.Level)
	v.Set("log.format", c.Log.Format)
	v.Set("storage.type", c.Storage.Type)
	v.Set("storage.path", c.Storage.Path)
	v.Set("storage.keyring_service", c.Storage.KeyringService)
	v.Set("oauth2.client_id", c.OAuth2.ClientID)
	v.Set("oauth2.auth_url", c.OAuth2.AuthURL)
	v.Set("oauth2.token_url", c.OAuth2.TokenURL)
	v.Set("oauth2.scopes", c.OAuth2.Scopes)
	v.Set("oauth2.redirect_port", c.OAuth2.RedirectPort)
	v.Set("oauth2.pkce", c.OAuth2.PKCE)
	v.Set("oauth2.auto_open_browser", c.OAuth2.AutoOpenBrowser)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

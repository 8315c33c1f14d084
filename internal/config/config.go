package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teemow/freetime/internal/retry"
	"github.com/teemow/freetime/internal/session"
	"github.com/teemow/freetime/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. FREETIME_TIMEZONE.
const EnvPrefix = "FREETIME"

// Config is the resolved application configuration.
type Config struct {
	// ConfigFile is the file that was read, empty when none exists.
	ConfigFile string

	Location *time.Location

	Microsoft MicrosoftConfig
	Google    GoogleConfig

	StateDir   string
	DBPath     string
	SessionDir string
	// SessionKey encrypts the session store when set. Base64, 32 bytes.
	SessionKey []byte

	InactivityTimeout time.Duration
	HTTPTimeout       time.Duration
	Retry             RetryConfig

	Debug bool
}

// MicrosoftConfig configures the Microsoft identity platform app.
type MicrosoftConfig struct {
	ClientID string
	TenantID string
	GraphURL string
}

// Enabled reports whether a client ID is configured.
func (c MicrosoftConfig) Enabled() bool { return c.ClientID != "" }

// GoogleConfig configures the Google OAuth desktop client.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	ListenAddr   string
	CalendarID   string
}

// Enabled reports whether a client ID is configured.
func (c GoogleConfig) Enabled() bool { return c.ClientID != "" }

// RetryConfig bounds the throttling backoff.
type RetryConfig struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// Policy builds the retry policy.
func (c RetryConfig) Policy() *retry.Policy {
	return retry.NewPolicy(c.Base, c.Cap, c.MaxAttempts)
}

// DefaultConfigFile returns $XDG_CONFIG_HOME/freetime/config.yaml.
func DefaultConfigFile() (string, error) {
	dir := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "freetime", "config.yaml"), nil
}

// Load reads the config file, when present, and applies FREETIME_*
// environment overrides on top of the defaults. An empty configFile means
// the default location; a missing default file is not an error, a missing
// explicit one is.
func Load(configFile string) (Config, error) {
	v := New()

	explicit := configFile != ""
	if !explicit {
		var err error
		if configFile, err = DefaultConfigFile(); err != nil {
			return Config{}, err
		}
	}
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
		configFile = ""
	}

	cfg, err := FromViper(v)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfigFile = configFile
	return cfg, nil
}

// New returns a viper instance with defaults and environment bindings.
// Commands bind their flags onto it before calling FromViper.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("timezone", "")
	v.SetDefault("microsoft.client_id", "")
	v.SetDefault("microsoft.tenant_id", "common")
	v.SetDefault("microsoft.graph_url", "")
	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.listen_addr", "127.0.0.1:0")
	v.SetDefault("google.calendar_id", "primary")
	v.SetDefault("state_dir", "")
	v.SetDefault("session_dir", "")
	v.SetDefault("session_key", "")
	v.SetDefault("inactivity_timeout", session.DefaultInactivityTimeout)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("retry.base", retry.DefaultBase)
	v.SetDefault("retry.cap", retry.DefaultCap)
	v.SetDefault("retry.max_attempts", retry.DefaultMaxAttempts)
	v.SetDefault("debug", false)
	return v
}

// FromViper resolves a Config from v.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Microsoft: MicrosoftConfig{
			ClientID: strings.TrimSpace(v.GetString("microsoft.client_id")),
			TenantID: strings.TrimSpace(v.GetString("microsoft.tenant_id")),
			GraphURL: strings.TrimSpace(v.GetString("microsoft.graph_url")),
		},
		Google: GoogleConfig{
			ClientID:     strings.TrimSpace(v.GetString("google.client_id")),
			ClientSecret: strings.TrimSpace(v.GetString("google.client_secret")),
			ListenAddr:   strings.TrimSpace(v.GetString("google.listen_addr")),
			CalendarID:   strings.TrimSpace(v.GetString("google.calendar_id")),
		},
		InactivityTimeout: v.GetDuration("inactivity_timeout"),
		HTTPTimeout:       v.GetDuration("http_timeout"),
		Retry: RetryConfig{
			Base:        v.GetDuration("retry.base"),
			Cap:         v.GetDuration("retry.cap"),
			MaxAttempts: v.GetInt("retry.max_attempts"),
		},
		Debug: v.GetBool("debug"),
	}

	loc, err := loadLocation(v.GetString("timezone"))
	if err != nil {
		return Config{}, err
	}
	cfg.Location = loc

	cfg.StateDir = strings.TrimSpace(v.GetString("state_dir"))
	if cfg.StateDir == "" {
		if cfg.StateDir, err = storage.DefaultStateDir(); err != nil {
			return Config{}, err
		}
	}
	cfg.DBPath = filepath.Join(cfg.StateDir, "freetime.db")

	cfg.SessionDir = strings.TrimSpace(v.GetString("session_dir"))
	if cfg.SessionDir == "" {
		cfg.SessionDir = storage.DefaultSessionDir()
	}

	if raw := strings.TrimSpace(v.GetString("session_key")); raw != "" {
		key, err := storage.KeyFromBase64(raw)
		if err != nil {
			return Config{}, fmt.Errorf("session_key: %w", err)
		}
		cfg.SessionKey = key
	}

	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = session.DefaultInactivityTimeout
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.Google.CalendarID == "" {
		cfg.Google.CalendarID = "primary"
	}
	return cfg, nil
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

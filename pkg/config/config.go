package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// ReadOnly defines the read-only interface for Config.
// Immutable
type ReadOnly interface {
	GetBaseURL() string
	GetAPIPrefix() string
	GetToken() string
	GetDownloadDir() string
	GetCacheDir() string
	GetConfigDir() string
	GetStateDir() string
	GetStagingDir() string
	GetHistoryFile() string
	GetInactivityTimeout() time.Duration
	// ResolveURL joins BASE_URL, API_PREFIX and a server-relative path.
	ResolveURL(resourcePath string) string
	Freeze()
	Checkout() Writable
}

// Writable defines the writable interface for Config.
// Mutable
type Writable interface {
	ReadOnly
	SetBaseURL(string)
	SetAPIPrefix(string)
	SetToken(string)
	SetDownloadDir(string)
	SetCacheDir(string)
	SetStateDir(string)
	SetInactivityTimeout(time.Duration)
}

// Config holds the API endpoint and the base directories for dsget.
// Mutable
type Config struct {
	baseURL   string
	apiPrefix string
	token     string

	downloadDir string
	cacheDir    string
	configDir   string
	stateDir    string

	stagingDir  string
	historyFile string

	inactivityTimeout time.Duration

	frozen bool
	edited bool
}

var _ ReadOnly = (*Config)(nil)
var _ Writable = (*Config)(nil)

func (c *Config) GetBaseURL() string                  { return c.baseURL }
func (c *Config) GetAPIPrefix() string                { return c.apiPrefix }
func (c *Config) GetToken() string                    { return c.token }
func (c *Config) GetDownloadDir() string              { return c.downloadDir }
func (c *Config) GetCacheDir() string                 { return c.cacheDir }
func (c *Config) GetConfigDir() string                { return c.configDir }
func (c *Config) GetStateDir() string                 { return c.stateDir }
func (c *Config) GetStagingDir() string               { return c.stagingDir }
func (c *Config) GetHistoryFile() string              { return c.historyFile }
func (c *Config) GetInactivityTimeout() time.Duration { return c.inactivityTimeout }

func (c *Config) ResolveURL(resourcePath string) string {
	if resourcePath != "" && !strings.HasPrefix(resourcePath, "/") {
		resourcePath = "/" + resourcePath
	}
	return c.baseURL + c.apiPrefix + resourcePath
}

func (c *Config) SetBaseURL(s string) {
	c.mustBeEditable()
	c.baseURL = trimSlashes(s)
}

func (c *Config) SetAPIPrefix(s string) {
	c.mustBeEditable()
	c.apiPrefix = normalizePrefix(s)
}

func (c *Config) SetToken(s string) {
	c.mustBeEditable()
	c.token = s
}

func (c *Config) SetDownloadDir(s string) {
	c.mustBeEditable()
	c.downloadDir = s
}

func (c *Config) SetCacheDir(s string) {
	c.mustBeEditable()
	c.cacheDir = s
	c.updateDerived()
}

func (c *Config) SetStateDir(s string) {
	c.mustBeEditable()
	c.stateDir = s
	c.updateDerived()
}

func (c *Config) SetInactivityTimeout(d time.Duration) {
	c.mustBeEditable()
	c.inactivityTimeout = d
}

func (c *Config) Freeze() {
	c.frozen = true
}

func (c *Config) Checkout() Writable {
	if c.frozen {
		panic("cannot checkout from frozen config")
	}
	if c.edited {
		panic("config already checked out")
	}
	c.edited = true
	return c
}

func (c *Config) mustBeEditable() {
	if c.frozen {
		panic("cannot modify frozen config")
	}
}

func (c *Config) updateDerived() {
	c.stagingDir = filepath.Join(c.cacheDir, "blobs")
	c.historyFile = filepath.Join(c.stateDir, "history.json")
}

// New returns a Config with the default API prefix and timeout and no
// endpoint or directories set. Callers fill it in through Checkout.
func New() *Config {
	c := &Config{
		apiPrefix:         DefaultAPIPrefix,
		inactivityTimeout: DefaultInactivityTimeout,
	}
	c.updateDerived()
	return c
}

// Init initializes the configuration using XDG base directories and the
// environment. .env files never override variables that are already set.
func Init() (ReadOnly, error) {
	configDir := filepath.Join(xdg.ConfigHome, AppName)
	for _, f := range []string{".env", filepath.Join(configDir, ".env")} {
		if err := godotenv.Load(f); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("loading %s: %w", f, err)
			}
			continue
		}
		slog.Debug("Loaded environment file", "path", f)
	}

	downloadDir := os.Getenv(EnvDownloadDir)
	if downloadDir == "" {
		downloadDir = xdg.UserDirs.Download
	}

	timeout := DefaultInactivityTimeout
	if v := os.Getenv(EnvInactivityTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvInactivityTimeout, v, err)
		}
		timeout = d
	}

	prefix := DefaultAPIPrefix
	if v, ok := os.LookupEnv(EnvAPIPrefix); ok {
		prefix = v
	}

	c := &Config{
		baseURL:           trimSlashes(os.Getenv(EnvBaseURL)),
		apiPrefix:         normalizePrefix(prefix),
		token:             os.Getenv(EnvAPIToken),
		downloadDir:       downloadDir,
		cacheDir:          filepath.Join(xdg.CacheHome, AppName),
		configDir:         configDir,
		stateDir:          filepath.Join(xdg.StateHome, AppName),
		inactivityTimeout: timeout,
	}

	c.updateDerived()

	return c, nil
}

func trimSlashes(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

func normalizePrefix(s string) string {
	s = trimSlashes(s)
	if s != "" && !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return s
}

// Package config loads memoryd settings.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Validate is run last and is the only place bad
// settings are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pi-llama/memoryd/common/environment"
	"github.com/pi-llama/memoryd/common/redact"
	"github.com/pi-llama/memoryd/internal/memoryd/embedding"
	"github.com/pi-llama/memoryd/internal/memoryd/memory"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Embedding providers.
const (
	ProviderLlama  = "llama"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// DefaultDatabaseFile is joined to DataDir when no explicit path is set.
const DefaultDatabaseFile = "memories.db"

// Config is the complete process configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	// Path overrides DataDir/memories.db. ":memory:" keeps everything in RAM.
	Path        string `yaml:"path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider"`

	// URL is the provider's API root. Empty selects the provider's own
	// default (see ServerURL).
	URL      string        `yaml:"url"`
	Path     string        `yaml:"path"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`

	// CacheSize is the number of vectors kept in memory; 0 disables caching.
	CacheSize int64 `yaml:"cache_size"`

	// WaitReady bounds the startup health probe; 0 skips it.
	WaitReady time.Duration `yaml:"wait_ready"`
}

type SearchConfig struct {
	Limit            int     `yaml:"limit"`
	Threshold        float64 `yaml:"threshold"`
	FoldCaseFallback bool    `yaml:"fold_case_fallback"`
	ListLimit        int     `yaml:"list_limit"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir: ".",
		Storage: StorageConfig{
			Driver: DriverSQLite,
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderLlama,
			Path:     embedding.DefaultLlamaPath,
			Timeout:  embedding.DefaultTimeout,
		},
		Search: SearchConfig{
			Limit:     memory.DefaultSearchLimit,
			Threshold: memory.DefaultThreshold,
			ListLimit: memory.DefaultListLimit,
		},
		HTTP: HTTPConfig{
			Addr:            ":3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatJSON,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment, then validates it. When path is
// empty, MEMORYD_CONFIG is consulted.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = environment.StringOr("MEMORYD_CONFIG", "")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays environment variables on c. DATA_DIR and
// LLAMA_SERVER_URL are the names earlier deployments used; everything else
// is MEMORYD_-prefixed. LLAMA_SERVER_URL only applies to the llama provider.
func (c *Config) ApplyEnv() {
	c.DataDir = environment.StringOr("DATA_DIR", c.DataDir)
	c.DataDir = environment.StringOr("MEMORYD_DATA_DIR", c.DataDir)

	c.Storage.Driver = environment.StringOr("MEMORYD_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Path = environment.StringOr("MEMORYD_DATABASE_PATH", c.Storage.Path)
	c.Storage.PostgresDSN = environment.StringOr("MEMORYD_POSTGRES_DSN", c.Storage.PostgresDSN)

	c.Embedding.Provider = environment.StringOr("MEMORYD_EMBEDDING_PROVIDER", c.Embedding.Provider)
	if c.Embedding.Provider == ProviderLlama {
		c.Embedding.URL = environment.StringOr("LLAMA_SERVER_URL", c.Embedding.URL)
	}
	c.Embedding.URL = environment.StringOr("MEMORYD_EMBEDDING_URL", c.Embedding.URL)
	c.Embedding.Path = environment.StringOr("MEMORYD_EMBEDDING_PATH", c.Embedding.Path)
	c.Embedding.Model = environment.StringOr("MEMORYD_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.APIKey = environment.StringOr("MEMORYD_EMBEDDING_API_KEY", c.Embedding.APIKey)
	c.Embedding.Timeout = environment.DurationOr("MEMORYD_EMBEDDING_TIMEOUT", c.Embedding.Timeout)
	c.Embedding.CacheSize = int64(environment.IntOr("MEMORYD_EMBEDDING_CACHE_SIZE", int(c.Embedding.CacheSize)))
	c.Embedding.WaitReady = environment.DurationOr("MEMORYD_EMBEDDING_WAIT_READY", c.Embedding.WaitReady)

	c.Search.Limit = environment.IntOr("MEMORYD_SEARCH_LIMIT", c.Search.Limit)
	c.Search.Threshold = environment.FloatOr("MEMORYD_SEARCH_THRESHOLD", c.Search.Threshold)
	c.Search.FoldCaseFallback = environment.BoolOr("MEMORYD_FALLBACK_FOLD_CASE", c.Search.FoldCaseFallback)
	c.Search.ListLimit = environment.IntOr("MEMORYD_LIST_LIMIT", c.Search.ListLimit)

	c.HTTP.Addr = environment.StringOr("MEMORYD_HTTP_ADDR", c.HTTP.Addr)

	c.Log.Level = environment.StringOr("MEMORYD_LOG_LEVEL", c.Log.Level)
	c.Log.Format = environment.StringOr("MEMORYD_LOG_FORMAT", c.Log.Format)
}

// Validate reports every invalid setting, each wrapping ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.DatabasePath() == "" {
			bad("storage.path is empty")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			bad("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		bad("unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Embedding.Provider {
	case ProviderLlama, ProviderOllama:
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" && c.Embedding.URL == "" {
			bad("embedding.api_key is required for provider %q unless embedding.url points at a compatible server", ProviderOpenAI)
		}
	case ProviderNone:
	default:
		bad("unknown embedding.provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Timeout <= 0 {
		bad("embedding.timeout must be positive")
	}
	if c.Embedding.CacheSize < 0 {
		bad("embedding.cache_size must not be negative")
	}
	if c.Embedding.WaitReady < 0 {
		bad("embedding.wait_ready must not be negative")
	}

	if c.Search.Limit <= 0 {
		bad("search.limit must be positive")
	}
	if c.Search.ListLimit <= 0 {
		bad("search.list_limit must be positive")
	}
	if c.Search.Threshold < -1 || c.Search.Threshold > 1 {
		bad("search.threshold %v outside [-1, 1]", c.Search.Threshold)
	}

	if c.HTTP.Addr == "" {
		bad("http.addr is empty")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != FormatJSON && c.Log.Format != FormatConsole {
		bad("unknown log.format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// DatabasePath returns the SQLite file to open.
func (c Config) DatabasePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, DefaultDatabaseFile)
}

// ServiceConfig maps the search section onto memory.ServiceConfig.
func (c Config) ServiceConfig() memory.ServiceConfig {
	return memory.ServiceConfig{
		SearchLimit:      c.Search.Limit,
		ListLimit:        c.Search.ListLimit,
		Threshold:        c.Search.Threshold,
		FoldCaseFallback: c.Search.FoldCaseFallback,
	}
}

// ServerURL returns URL, or the default root of the selected provider when
// URL is empty. The OpenAI default is the public API, reported as "".
func (e EmbeddingConfig) ServerURL() string {
	if e.URL != "" {
		return e.URL
	}
	switch e.Provider {
	case ProviderLlama:
		return embedding.DefaultLlamaURL
	case ProviderOllama:
		return embedding.DefaultOllamaURL
	}
	return ""
}

// ParseLevel maps debug/info/warn/error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, s)
	}
	return l, nil
}

// LogValue renders the configuration for logging with secrets redacted.
func (c Config) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("storage.driver", c.Storage.Driver),
		slog.String("embedding.provider", c.Embedding.Provider),
		slog.String("embedding.url", c.Embedding.ServerURL()),
		slog.Duration("embedding.timeout", c.Embedding.Timeout),
		slog.Int("search.limit", c.Search.Limit),
		slog.Float64("search.threshold", c.Search.Threshold),
		slog.String("http.addr", c.HTTP.Addr),
	}
	switch c.Storage.Driver {
	case DriverPostgres:
		attrs = append(attrs, slog.String("storage.postgres_dsn", redact.DSN(c.Storage.PostgresDSN)))
	default:
		attrs = append(attrs, slog.String("storage.path", c.DatabasePath()))
	}
	if c.Embedding.Model != "" {
		attrs = append(attrs, slog.String("embedding.model", c.Embedding.Model))
	}
	if c.Embedding.APIKey != "" {
		attrs = append(attrs, slog.String("embedding.api_key", redact.Secret(c.Embedding.APIKey)))
	}
	return slog.GroupValue(attrs...)
}

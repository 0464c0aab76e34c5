package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appDirName = "kulti"

type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Stream    StreamConfig    `yaml:"stream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	WS        WSConfig        `yaml:"ws"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Fanout    FanoutConfig    `yaml:"fanout"`
}

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

type StreamConfig struct {
	DefaultAgent   string `yaml:"default_agent"`
	TerminalLimit  int    `yaml:"terminal_limit"`
	ThoughtLimit   int    `yaml:"thought_limit"`
	MilestoneLimit int    `yaml:"milestone_limit"`
	ErrorLimit     int    `yaml:"error_limit"`
	PreviewDomain  string `yaml:"preview_domain"`
}

type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	IdleTTL           time.Duration `yaml:"idle_ttl"`
}

type WSConfig struct {
	SendBuffer     int           `yaml:"send_buffer"`
	MaxConnections int           `yaml:"max_connections"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
}

type OutboxConfig struct {
	Capacity         int           `yaml:"capacity"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	HydrateThoughts int    `yaml:"hydrate_thoughts"`
}

// Cache backends.
const (
	CacheNone  = "none"
	CacheFile  = "file"
	CacheRedis = "redis"
)

type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	Dir           string        `yaml:"dir"`
	RedisURL      string        `yaml:"redis_url"`
	TTL           time.Duration `yaml:"ttl"`
	TerminalKeep  int           `yaml:"terminal_keep"`
	ThoughtKeep   int           `yaml:"thought_keep"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type FanoutConfig struct {
	Enabled bool   `yaml:"enabled"`
	Channel string `yaml:"channel"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Stream: StreamConfig{
			DefaultAgent:   "nex",
			TerminalLimit:  100,
			ThoughtLimit:   100,
			MilestoneLimit: 50,
			ErrorLimit:     10,
			PreviewDomain:  "preview.kulti.club",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			IdleTTL:           5 * time.Minute,
		},
		WS: WSConfig{
			SendBuffer:   64,
			PingInterval: 30 * time.Second,
			PongTimeout:  60 * time.Second,
		},
		Outbox: OutboxConfig{
			Capacity:         1024,
			WriteTimeout:     10 * time.Second,
			FailureThreshold: 3,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			HydrateThoughts: 30,
		},
		Cache: CacheConfig{
			Backend:       CacheNone,
			Dir:           defaultStateDir(),
			TTL:           time.Hour,
			TerminalKeep:  50,
			ThoughtKeep:   20,
			FlushInterval: time.Second,
		},
		Fanout: FanoutConfig{
			Channel: "kulti_stream",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config { return defaultConfig() }

// Load reads path over the defaults. An empty path yields the defaults.
// Environment overrides are not applied; see ApplyEnv.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("KULTI_API_KEYS"); v != "" {
		c.Auth.APIKeys = splitList(v)
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
		if c.Cache.Backend == CacheNone {
			c.Cache.Backend = CacheRedis
		}
	}
	if v := getenv("KULTI_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
		if c.Cache.Backend == CacheNone {
			c.Cache.Backend = CacheFile
		}
	}
	if v := getenv("KULTI_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("KULTI_FANOUT"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KULTI_FANOUT: %w", err)
		}
		c.Fanout.Enabled = on
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Stream.DefaultAgent == "" {
		errs = append(errs, errors.New("stream.default_agent must not be empty"))
	}
	if c.Stream.TerminalLimit <= 0 {
		errs = append(errs, errors.New("stream.terminal_limit must be positive"))
	}
	if c.Stream.ThoughtLimit <= 0 {
		errs = append(errs, errors.New("stream.thought_limit must be positive"))
	}
	if c.WS.SendBuffer <= 0 {
		errs = append(errs, errors.New("ws.send_buffer must be positive"))
	}
	if c.WS.PingInterval <= 0 || c.WS.PongTimeout <= c.WS.PingInterval {
		errs = append(errs, errors.New("ws.pong_timeout must exceed a positive ws.ping_interval"))
	}
	if c.Outbox.Capacity <= 0 {
		errs = append(errs, errors.New("outbox.capacity must be positive"))
	}
	if c.Outbox.WriteTimeout <= 0 {
		errs = append(errs, errors.New("outbox.write_timeout must be positive"))
	}
	switch c.Cache.Backend {
	case CacheNone:
	case CacheFile:
		if c.Cache.Dir == "" {
			errs = append(errs, errors.New("cache.dir is required for the file backend"))
		}
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of none, file, redis", c.Cache.Backend))
	}
	if c.Fanout.Enabled {
		if c.Database.URL == "" {
			errs = append(errs, errors.New("fanout requires database.url"))
		}
		if c.Fanout.Channel == "" {
			errs = append(errs, errors.New("fanout.channel must not be empty"))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel maps log_level to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// AuthEnabled reports whether POST requests need an API key.
func (c *Config) AuthEnabled() bool { return len(c.Auth.APIKeys) > 0 }

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// defaultStateDir returns ~/.local/state/kulti, respecting XDG_STATE_HOME.
func defaultStateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}

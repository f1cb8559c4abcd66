package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the gateway.
type Config struct {
	Server   ServerConfig
	FaceAPI  FaceAPIConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Health   HealthConfig
}

type ServerConfig struct {
	Addr             string
	Mode             string
	MaxUploadBytes   int64
	DefaultThreshold float64
	AllowedOrigins   []string
	ShutdownTimeout  time.Duration
}

// FaceAPIConfig describes how the backend is reached.
type FaceAPIConfig struct {
	BaseURL         string
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	MaxConns        int
	IdleTimeout     time.Duration
	MaxBodyBytes    int64
}

type AuthConfig struct {
	JWTSecret   string
	JWTAudience string
}

// Enabled reports whether bearer authentication guards the API.
func (a AuthConfig) Enabled() bool { return a.JWTSecret != "" }

type DatabaseConfig struct {
	DSN string
}

func (d DatabaseConfig) Enabled() bool { return d.DSN != "" }

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type HealthConfig struct {
	GRPCAddr      string
	CheckInterval time.Duration
}

func (h HealthConfig) Enabled() bool { return h.GRPCAddr != "" }

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; variables already set
// in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	p := parser{lookup: lookup}

	cfg := &Config{
		Server: ServerConfig{
			Addr:             p.str("HTTP_ADDR", ":8080"),
			Mode:             p.mode(),
			MaxUploadBytes:   p.int64("MAX_UPLOAD_BYTES", 10<<20),
			DefaultThreshold: p.float("DEFAULT_THRESHOLD", 0.6),
			AllowedOrigins:   p.list("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ShutdownTimeout:  p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		FaceAPI: FaceAPIConfig{
			BaseURL:         strings.TrimRight(p.str("FACE_API_BASE_URL", "http://localhost:5000/api"), "/"),
			ConnectTimeout:  p.duration("FACE_API_CONNECT_TIMEOUT", 30*time.Second),
			ResponseTimeout: p.duration("FACE_API_RESPONSE_TIMEOUT", 60*time.Second),
			MaxConns:        p.int("FACE_API_MAX_CONNS", 10),
			IdleTimeout:     p.duration("FACE_API_IDLE_TIMEOUT", 20*time.Second),
			MaxBodyBytes:    p.int64("FACE_API_MAX_BODY_BYTES", 16<<20),
		},
		Auth: AuthConfig{
			JWTSecret:   p.str("JWT_SECRET", ""),
			JWTAudience: p.str("JWT_AUDIENCE", ""),
		},
		Database: DatabaseConfig{
			DSN: p.str("DATABASE_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     p.str("REDIS_ADDR", ""),
			Password: p.str("REDIS_PASSWORD", ""),
			DB:       p.int("REDIS_DB", 0),
			TTL:      p.duration("CACHE_TTL", 30*time.Second),
		},
		Health: HealthConfig{
			GRPCAddr:      p.str("GRPC_HEALTH_ADDR", ""),
			CheckInterval: p.duration("HEALTH_CHECK_INTERVAL", 15*time.Second),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that parsing alone cannot express.
func (c *Config) Validate() error {
	u, err := url.Parse(c.FaceAPI.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("FACE_API_BASE_URL: %q is not an absolute URL", c.FaceAPI.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("FACE_API_BASE_URL: unsupported scheme %q", u.Scheme)
	}
	if math.IsNaN(c.Server.DefaultThreshold) || c.Server.DefaultThreshold < 0 || c.Server.DefaultThreshold > 1 {
		return fmt.Errorf("DEFAULT_THRESHOLD: %v outside [0,1]", c.Server.DefaultThreshold)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES: must be positive")
	}
	if c.FaceAPI.MaxConns <= 0 {
		return fmt.Errorf("FACE_API_MAX_CONNS: must be positive")
	}
	if c.FaceAPI.MaxBodyBytes <= 0 {
		return fmt.Errorf("FACE_API_MAX_BODY_BYTES: must be positive")
	}
	if c.Health.Enabled() && c.Health.CheckInterval <= 0 {
		return fmt.Errorf("HEALTH_CHECK_INTERVAL: must be positive")
	}
	return nil
}

// parser records the first conversion failure so Load can report it once.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: invalid value %q: %w", key, value, err)
	}
}

func (p *parser) str(key, fallback string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return fallback
}

func (p *parser) mode() string {
	if v, ok := p.raw("LOG_MODE"); ok {
		return v
	}
	return p.str("GIN_MODE", "release")
}

func (p *parser) int(key string, fallback int) int {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) int64(key string, fallback int64) int64 {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return f
}

// duration accepts Go duration syntax or a bare number of seconds.
func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

func (p *parser) list(key string, fallback []string) []string {
	v, ok := p.raw(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	defaultLLMBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// Config holds every runtime setting of the API process.
type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string

	DatabaseURL string

	Auth      AuthConfig
	LLM       LLMConfig
	Storage   StorageConfig
	RedisURL  string
	CacheTTL  time.Duration
	AMQPURL   string
	LeadQueue string
	SentryDSN string

	CORSOrigins []string
	// TrustedProxies are the peers whose X-Forwarded-For is believed.
	TrustedProxies []netip.Prefix
	RateBurst      int
	RatePerSecond  int
	MaxBodyBytes   int64
	MaxUploadBytes int64
}

// AuthConfig configures token issuance and the bootstrap administrator.
type AuthConfig struct {
	Secret            string
	Algorithm         string
	Issuer            string
	Audience          string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	RefreshCookie     string
	CookieSecure      bool
	SuperuserName     string
	SuperuserPassword string
}

// LLMConfig configures the lesson drafting client.
type LLMConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	CacheSize int
	CacheTTL  time.Duration
}

// StorageConfig points at an S3-compatible bucket for media objects.
type StorageConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// Enabled reports whether enough settings are present to talk to the bucket.
func (s StorageConfig) Enabled() bool {
	return s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

// IsDevelopment reports whether the process runs in development mode.
func (c Config) IsDevelopment() bool { return c.Env == EnvDevelopment }

// Load reads a .env file when present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}

	cfg := Config{
		Env:            r.str("APP_ENV", EnvDevelopment),
		HTTPAddr:       r.str("HTTP_ADDR", ":8080"),
		GRPCAddr:       r.str("GRPC_ADDR", ""),
		DatabaseURL:    r.required("DATABASE_URL"),
		RedisURL:       r.str("REDIS_URL", ""),
		CacheTTL:       r.seconds("RESPONSE_CACHE_TTL_SECONDS", 60),
		AMQPURL:        r.str("AMQP_URL", ""),
		LeadQueue:      r.str("AMQP_LEADS_QUEUE", "leads.created"),
		SentryDSN:      r.str("SENTRY_DSN", ""),
		CORSOrigins:    r.list("CORS_ALLOWED_ORIGINS"),
		TrustedProxies: r.prefixes("TRUSTED_PROXIES"),
		RateBurst:      r.integer("RATE_LIMIT_BURST", 40),
		RatePerSecond:  r.integer("RATE_LIMIT_PER_SECOND", 20),
		MaxBodyBytes:   int64(r.integer("MAX_BODY_BYTES", 1<<20)),
		MaxUploadBytes: int64(r.integer("MAX_UPLOAD_BYTES", 50<<20)),
	}

	cfg.Auth = AuthConfig{
		Secret:            r.required("SECRET_KEY"),
		Algorithm:         r.str("ALGORITHM", "HS256"),
		Issuer:            r.str("TOKEN_ISSUER", "ahc-backend"),
		Audience:          r.str("TOKEN_AUDIENCE", "ahc-admin"),
		AccessTTL:         r.minutes("ACCESS_TOKEN_EXPIRE_MINUTES", 60),
		RefreshTTL:        r.minutes("REFRESH_TOKEN_EXPIRE_MINUTES", 21*24*60),
		RefreshCookie:     r.str("REFRESH_COOKIE_NAME", "refresh_token"),
		CookieSecure:      r.boolean("COOKIE_SECURE", cfg.Env != EnvDevelopment),
		SuperuserName:     r.str("FIRST_SUPERUSER", ""),
		SuperuserPassword: r.str("FIRST_SUPERUSER_PASSWORD", ""),
	}
	if cfg.Auth.Algorithm != "HS256" {
		r.fail(fmt.Errorf("ALGORITHM: unsupported signing algorithm %q", cfg.Auth.Algorithm))
	}
	if cfg.Auth.SuperuserName != "" && cfg.Auth.SuperuserPassword == "" {
		r.fail(errors.New("FIRST_SUPERUSER_PASSWORD: required when FIRST_SUPERUSER is set"))
	}

	cfg.LLM = LLMConfig{
		APIKey:    r.str("LLM_API_KEY", ""),
		Model:     r.str("LLM_MODEL", "gemini-2.5-flash"),
		BaseURL:   r.str("LLM_BASE_URL", defaultLLMBaseURL),
		MaxTokens: r.integer("LLM_MAX_TOKENS", 4096),
		CacheSize: r.integer("LLM_CLIENT_CACHE_SIZE", 128),
		CacheTTL:  r.seconds("LLM_CLIENT_CACHE_TTL_SECONDS", 1800),
	}

	cfg.Storage = StorageConfig{
		Endpoint:        r.str("S3_ENDPOINT", ""),
		Region:          r.str("S3_REGION", "auto"),
		Bucket:          r.str("S3_BUCKET", ""),
		AccessKeyID:     r.str("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: r.str("S3_SECRET_ACCESS_KEY", ""),
		PublicBaseURL:   strings.TrimRight(r.str("S3_PUBLIC_BASE_URL", ""), "/"),
	}

	if len(r.errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(r.errs...))
	}
	return cfg, nil
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) fail(err error) { r.errs = append(r.errs, err) }

func (r *reader) raw(name string) string {
	v, ok := r.lookup(name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func (r *reader) str(name, fallback string) string {
	if v := r.raw(name); v != "" {
		return v
	}
	return fallback
}

func (r *reader) required(name string) string {
	v := r.raw(name)
	if v == "" {
		r.fail(fmt.Errorf("%s: required", name))
	}
	return v
}

func (r *reader) integer(name string, fallback int) int {
	v := r.raw(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", name, err))
		return fallback
	}
	return n
}

func (r *reader) boolean(name string, fallback bool) bool {
	v := r.raw(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", name, err))
		return fallback
	}
	return b
}

func (r *reader) minutes(name string, fallback int) time.Duration {
	return time.Duration(r.integer(name, fallback)) * time.Minute
}

func (r *reader) seconds(name string, fallback int) time.Duration {
	return time.Duration(r.integer(name, fallback)) * time.Second
}

func (r *reader) list(name string) []string {
	v := r.raw(name)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// prefixes reads a list of CIDR ranges. A bare address is a single host.
func (r *reader) prefixes(name string) []netip.Prefix {
	var out []netip.Prefix
	for _, v := range r.list(name) {
		if !strings.Contains(v, "/") {
			addr, err := netip.ParseAddr(v)
			if err != nil {
				r.fail(fmt.Errorf("%s: %w", name, err))
				continue
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(v)
		if err != nil {
			r.fail(fmt.Errorf("%s: %w", name, err))
			continue
		}
		out = append(out, p.Masked())
	}
	return out
}

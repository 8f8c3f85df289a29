package config

import (
	"strings"
	"testing"
	"time"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestFromLookupDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"DATABASE_URL": "postgres://localhost/ahc",
		"SECRET_KEY":   "s3cret",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.AccessTTL != 60*time.Minute {
		t.Fatalf("access ttl = %v", cfg.Auth.AccessTTL)
	}
	if cfg.Auth.RefreshTTL != 21*24*time.Hour {
		t.Fatalf("refresh ttl = %v", cfg.Auth.RefreshTTL)
	}
	if cfg.Auth.Issuer != "ahc-backend" || cfg.Auth.Audience != "ahc-admin" {
		t.Fatalf("unexpected issuer/audience %q/%q", cfg.Auth.Issuer, cfg.Auth.Audience)
	}
	if cfg.Auth.CookieSecure {
		t.Fatal("development cookies should not be secure by default")
	}
	if cfg.LLM.CacheSize != 128 || cfg.LLM.CacheTTL != 30*time.Minute {
		t.Fatalf("unexpected llm cache settings %d/%v", cfg.LLM.CacheSize, cfg.LLM.CacheTTL)
	}
	if cfg.Storage.Enabled() {
		t.Fatal("storage should be disabled without credentials")
	}
}

func TestFromLookupReportsAllProblems(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"ACCESS_TOKEN_EXPIRE_MINUTES": "sixty",
		"ALGORITHM":                   "RS256",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"DATABASE_URL", "SECRET_KEY", "ACCESS_TOKEN_EXPIRE_MINUTES", "ALGORITHM"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestFromLookupProductionCookiesAndOrigins(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"APP_ENV":              EnvProduction,
		"DATABASE_URL":         "postgres://db/ahc",
		"SECRET_KEY":           "k",
		"CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example ,",
		"S3_PUBLIC_BASE_URL":   "https://cdn.example/",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Auth.CookieSecure {
		t.Fatal("expected secure cookies in production")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
	if cfg.Storage.PublicBaseURL != "https://cdn.example" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.Storage.PublicBaseURL)
	}
}

func TestSuperuserNeedsPassword(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{
		"DATABASE_URL":    "postgres://db/ahc",
		"SECRET_KEY":      "k",
		"FIRST_SUPERUSER": "admin",
	}))
	if err == nil || !strings.Contains(err.Error(), "FIRST_SUPERUSER_PASSWORD") {
		t.Fatalf("expected superuser password error, got %v", err)
	}
}

func TestTrustedProxies(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"DATABASE_URL":    "postgres://db/ahc",
		"SECRET_KEY":      "k",
		"TRUSTED_PROXIES": "10.0.0.0/8, 192.168.1.7",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.TrustedProxies) != 2 {
		t.Fatalf("trusted proxies = %v", cfg.TrustedProxies)
	}
	if cfg.TrustedProxies[1].String() != "192.168.1.7/32" {
		t.Fatalf("bare address should be a host prefix, got %v", cfg.TrustedProxies[1])
	}

	_, err = FromLookup(lookupFrom(map[string]string{
		"DATABASE_URL":    "postgres://db/ahc",
		"SECRET_KEY":      "k",
		"TRUSTED_PROXIES": "not-an-ip",
	}))
	if err == nil || !strings.Contains(err.Error(), "TRUSTED_PROXIES") {
		t.Fatalf("expected TRUSTED_PROXIES error, got %v", err)
	}
}

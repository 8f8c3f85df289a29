package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType separates access tokens from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Reason explains why a token failed to decode.
type Reason string

const (
	ReasonExpired      Reason = "expired"
	ReasonBadSignature Reason = "bad_signature"
	ReasonInvalidClaim Reason = "invalid_claim"
	ReasonDecodeError  Reason = "decode_error"
	ReasonOther        Reason = "other"
)

const (
	defaultAccessTTL  = 60 * time.Minute
	defaultRefreshTTL = 21 * 24 * time.Hour
)

// Identity is what a token says about its bearer.
type Identity struct {
	Subject  string
	Username string
	Role     Role
}

// Claims are the verified contents of a token.
type Claims struct {
	Identity
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Raw keeps every claim as decoded, including legacy subject keys.
	Raw map[string]any
}

// DecodeResult is either OK with usable Claims or carries the Reason.
type DecodeResult struct {
	OK     bool
	Claims Claims
	Reason Reason
	// Err holds the decoder's detail for logs; it is never shown to clients.
	Err error
}

// CodecConfig configures a Codec.
type CodecConfig struct {
	Secret     string
	Algorithm  string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Codec signs and verifies HS256 tokens.
type Codec struct {
	secret     []byte
	method     jwt.SigningMethod
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg CodecConfig, opts ...CodecOption) (*Codec, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	if alg != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", cfg.Algorithm)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("auth: issuer and audience are required")
	}
	c := &Codec{
		secret:     []byte(cfg.Secret),
		method:     jwt.SigningMethodHS256,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	if c.accessTTL <= 0 {
		c.accessTTL = defaultAccessTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = defaultRefreshTTL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// CreateAccessToken signs an access token. A zero ttl uses the configured
// access lifetime.
func (c *Codec) CreateAccessToken(id Identity, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = c.accessTTL
	}
	return c.create(id, TokenAccess, ttl)
}

// CreateRefreshToken signs a refresh token. A zero ttl uses the configured
// refresh lifetime.
func (c *Codec) CreateRefreshToken(id Identity, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = c.refreshTTL
	}
	return c.create(id, TokenRefresh, ttl)
}

func (c *Codec) create(id Identity, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(id.Subject) == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":      id.Subject,
		"username": id.Username,
		"role":     string(id.Role),
		"iss":      c.issuer,
		"aud":      c.audience,
		"type":     string(typ),
		"iat":      now.Unix(),
		"exp":      exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Decode verifies the signature, then iss, aud, exp, iat and type. Expected
// failures come back as a Reason, never as a panic or a bare error.
func (c *Codec) Decode(token string, expected TokenType) DecodeResult {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	raw := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(strings.TrimSpace(token), raw, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}); err != nil {
		return DecodeResult{Reason: reasonFor(err), Err: err}
	}

	iat, err := raw.GetIssuedAt()
	if err != nil || iat == nil {
		return invalidClaim("iat is required")
	}
	exp, _ := raw.GetExpirationTime()
	typ, _ := raw["type"].(string)
	if TokenType(typ) != expected {
		return invalidClaim(fmt.Sprintf("token type %q, want %q", typ, expected))
	}
	sub, _ := raw["sub"].(string)
	username, _ := raw["username"].(string)
	role, _ := raw["role"].(string)

	return DecodeResult{OK: true, Claims: Claims{
		Identity:  Identity{Subject: sub, Username: username, Role: Role(role)},
		Type:      TokenType(typ),
		IssuedAt:  iat.Time,
		ExpiresAt: exp.Time,
		Raw:       raw,
	}}
}

func invalidClaim(detail string) DecodeResult {
	return DecodeResult{Reason: ReasonInvalidClaim, Err: errors.New(detail)}
}

func reasonFor(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonDecodeError
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		return ReasonInvalidClaim
	default:
		return ReasonOther
	}
}

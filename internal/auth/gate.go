package auth

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
)

// Gate failure codes.
const (
	CodeMissingAccessToken  = "missing_access_token"
	CodeAccessTokenExpired  = "access_token_expired"
	CodeInvalidAccessToken  = "invalid_access_token"
	CodeMissingRefreshToken = "missing_refresh_token"
	CodeRefreshTokenExpired = "refresh_token_expired"
	CodeInvalidRefreshToken = "invalid_refresh_token"
	CodeForbidden           = "forbidden"
	CodeUserNotFound        = "user_not_found"
)

// GateError is a credential failure with a stable code and HTTP status.
type GateError struct {
	Code    string
	Status  int
	Expired bool
}

func (e *GateError) Error() string { return "auth: " + e.Code }

// Challenge is the WWW-Authenticate value for 401 failures, empty otherwise.
func (e *GateError) Challenge() string {
	if e.Status != http.StatusUnauthorized {
		return ""
	}
	if e.Expired {
		return `Bearer error="invalid_token", error_description="expired"`
	}
	return `Bearer error="invalid_token"`
}

// recordFailure counts rejected credentials.
var recordFailure = obs.AuthFailure

func fail(code string, status int, expired bool) *GateError {
	recordFailure(code)
	return reject(code, status, expired)
}

func reject(code string, status int, expired bool) *GateError {
	return &GateError{Code: code, Status: status, Expired: expired}
}

// legacySubjectKeys are accepted in order when resolving the subject.
var legacySubjectKeys = []string{"sub", "user_id", "id", "uid"}

// UserLookup finds users by id; a missing user is (nil, nil).
type UserLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*User, error)
}

// Gate turns bearer credentials into authorized users.
type Gate struct {
	codec *Codec
	users UserLookup
}

func NewGate(codec *Codec, users UserLookup) *Gate {
	return &Gate{codec: codec, users: users}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate checks an access token and, when allowed is not empty, the
// role it carries, then loads the user it names. Role is checked before the
// user is loaded. Storage failures are returned as they are.
func (g *Gate) Authenticate(ctx context.Context, token string, allowed ...Role) (*User, error) {
	user, gerr, err := g.authenticate(ctx, token, allowed)
	if gerr != nil {
		recordFailure(gerr.Code)
		return nil, gerr
	}
	return user, err
}

// Identify resolves the optional caller of a public endpoint. Missing,
// expired or invalid tokens and unknown users all read as anonymous (nil)
// and are not counted as failures. Only storage errors are returned.
func (g *Gate) Identify(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	user, gerr, err := g.authenticate(ctx, token, nil)
	if gerr != nil {
		return nil, nil
	}
	return user, err
}

func (g *Gate) authenticate(ctx context.Context, token string, allowed []Role) (*User, *GateError, error) {
	if strings.TrimSpace(token) == "" {
		return nil, reject(CodeMissingAccessToken, http.StatusUnauthorized, false), nil
	}
	res := g.codec.Decode(token, TokenAccess)
	if !res.OK {
		if res.Reason == ReasonExpired {
			return nil, reject(CodeAccessTokenExpired, http.StatusUnauthorized, true), nil
		}
		return nil, reject(CodeInvalidAccessToken, http.StatusUnauthorized, false), nil
	}
	if len(allowed) > 0 && !slices.Contains(allowed, res.Claims.Role) {
		return nil, reject(CodeForbidden, http.StatusForbidden, false), nil
	}
	id, ok := subjectOf(res.Claims)
	if !ok {
		return nil, reject(CodeInvalidAccessToken, http.StatusUnauthorized, false), nil
	}
	user, err := g.users.Get(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, reject(CodeUserNotFound, http.StatusNotFound, false), nil
	}
	return user, nil, nil
}

// RefreshClaims checks a refresh token read from its cookie.
func (g *Gate) RefreshClaims(token string) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return Claims{}, fail(CodeMissingRefreshToken, http.StatusUnauthorized, false)
	}
	res := g.codec.Decode(token, TokenRefresh)
	if !res.OK {
		if res.Reason == ReasonExpired {
			return Claims{}, fail(CodeRefreshTokenExpired, http.StatusUnauthorized, true)
		}
		return Claims{}, fail(CodeInvalidRefreshToken, http.StatusUnauthorized, false)
	}
	if _, ok := subjectOf(res.Claims); !ok {
		return Claims{}, fail(CodeInvalidRefreshToken, http.StatusUnauthorized, false)
	}
	return res.Claims, nil
}

func subjectOf(c Claims) (uuid.UUID, bool) {
	for _, key := range legacySubjectKeys {
		v, ok := c.Raw[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	}
	return uuid.Nil, false
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
)

// UserStore is the user persistence the service needs.
type UserStore interface {
	UserLookup
	ByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, u *User) (*User, error)
}

// Service signs users in and rotates their tokens.
type Service struct {
	codec *Codec
	gate  *Gate
	users UserStore
}

// NewService wires the codec and user store; the gate shares both.
func NewService(codec *Codec, users UserStore) *Service {
	return &Service{codec: codec, gate: NewGate(codec, users), users: users}
}

func (s *Service) Gate() *Gate   { return s.gate }
func (s *Service) Codec() *Codec { return s.codec }

// TokenPair is a freshly issued access and refresh token. The refresh token
// travels in a cookie and is never serialized into a body.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"expires_at"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// Login checks a username and password. Unknown users and wrong passwords
// fail the same way.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, *User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	user, err := s.users.ByUsername(ctx, username)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if user == nil {
		burnPassword(password)
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	pair, err := s.issue(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Refresh validates a refresh token, reloads its user so role changes take
// effect and issues a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	claims, err := s.gate.RefreshClaims(refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}
	id, _ := subjectOf(claims)
	user, err := s.users.Get(ctx, id)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return TokenPair{}, nil, fail(CodeUserNotFound, http.StatusNotFound, false)
	}
	pair, err := s.issue(user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

func (s *Service) issue(u *User) (TokenPair, error) {
	id := Identity{Subject: u.ID.String(), Username: u.Username, Role: u.Role}
	access, accessExp, err := s.codec.CreateAccessToken(id, 0)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.codec.CreateRefreshToken(id, 0)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		TokenType:        "bearer",
		ExpiresIn:        int64(s.codec.AccessTTL() / time.Second),
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// EnsureSuperuser creates the bootstrap admin unless the username exists.
// name may be an email address; its local part then becomes the username.
func (s *Service) EnsureSuperuser(ctx context.Context, name, password string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}
	username, email := name, name
	if local, _, ok := strings.Cut(name, "@"); ok {
		username = local
	} else {
		email = name + "@localhost"
	}
	existing, err := s.users.ByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	user, err := NewUser(NewUserInput{
		Username: username,
		Email:    email,
		FullName: "Administrator",
		Password: password,
		Role:     RoleAdmin,
	})
	if err != nil {
		return false, err
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		return false, err
	}
	obs.Info("superuser created", map[string]any{"username": username})
	return true, nil
}

// IsGateError unwraps err into a *GateError.
func IsGateError(err error) (*GateError, bool) {
	var ge *GateError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

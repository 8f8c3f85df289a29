package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Be1newinner/asaan-hai-coding/internal/auth"
	"github.com/Be1newinner/asaan-hai-coding/internal/store/pg"
)

const refreshCookiePath = "/api/v1/auth"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	auth.TokenPair
	User *auth.User `json:"user"`
}

func (a *API) mountAuth(r chi.Router) {
	r.With(a.strict.Middleware).Post("/login", a.login)
	r.Post("/refresh", a.refresh)
	r.Post("/logout", a.logout)
	r.With(RequireRole(a.auth.Gate())).Get("/me", a.me)
}

// login accepts a JSON body or an OAuth2 password form.
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			handleError(w, r, badRequest("malformed form"))
			return
		}
		req.Username, req.Password = r.PostForm.Get("username"), r.PostForm.Get("password")
	} else if err := decodeJSON(r, &req, true); err != nil {
		handleError(w, r, err)
		return
	}
	pair, user, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{TokenPair: pair, User: user})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(a.cfg.Auth.RefreshCookie); err == nil {
		token = c.Value
	}
	pair, user, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		if ge, ok := auth.IsGateError(err); ok && ge.Status == http.StatusUnauthorized {
			a.clearRefreshCookie(w)
		}
		handleError(w, r, err)
		return
	}
	a.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{TokenPair: pair, User: user})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	a.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (a *API) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.Auth.RefreshCookie,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(a.auth.Codec().RefreshTTL() / time.Second),
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.Auth.RefreshCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// userResource serves the admin user endpoints. Passwords arrive in plain
// text and are hashed before they reach the repository.
func (a *API) userResource() *resource[auth.User] {
	return &resource[auth.User]{
		name: "user",
		repo: a.users.Repository(),
		build: func(p pg.Patch) (*auth.User, error) {
			raw, err := json.Marshal(p)
			if err != nil {
				return nil, badRequest("malformed user")
			}
			var in auth.NewUserInput
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&in); err != nil {
				return nil, badRequest("malformed user: %v", err)
			}
			return auth.NewUser(in)
		},
		prepare: auth.PreparePatch,
	}
}

package httpapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/Be1newinner/asaan-hai-coding/internal/auth"
	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
)

const authHeader = "Authorization"

// RequireRole authenticates the bearer token and, when roles are given,
// checks the role it carries. The resolved user is put into the context.
func RequireRole(gate *auth.Gate, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.BearerToken(r.Header.Get(authHeader))
			user, err := gate.Authenticate(r.Context(), token, roles...)
			if err != nil {
				handleError(w, r, err)
				return
			}
			ctx := auth.ContextWithUser(r.Context(), user)
			ctx = auth.ContextWithToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type viewerKey struct{}

type viewerSlot struct {
	once sync.Once
	user *auth.User
}

// Viewer lets the optional caller of a public endpoint be resolved at most
// once per request, on first use.
func Viewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewerKey{}, &viewerSlot{})))
	})
}

// viewer resolves the caller of a public endpoint. A missing or unusable
// token makes the caller anonymous.
func (a *API) viewer(r *http.Request) *auth.User {
	if u, ok := auth.UserFromContext(r.Context()); ok {
		return u
	}
	slot, ok := r.Context().Value(viewerKey{}).(*viewerSlot)
	if !ok {
		return a.identify(r)
	}
	slot.once.Do(func() { slot.user = a.identify(r) })
	return slot.user
}

func (a *API) identify(r *http.Request) *auth.User {
	token := auth.BearerToken(r.Header.Get(authHeader))
	if token == "" {
		return nil
	}
	user, err := a.auth.Gate().Identify(r.Context(), token)
	if err != nil {
		obs.Warn("viewer lookup failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err,
		})
		return nil
	}
	return user
}

func (a *API) viewerIsAdmin(r *http.Request) bool {
	u := a.viewer(r)
	return u != nil && u.IsAdmin()
}

func currentUser(r *http.Request) *auth.User {
	u, _ := auth.UserFromContext(r.Context())
	return u
}

// Package httpapi exposes the content service over HTTP.
package httpapi

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Be1newinner/asaan-hai-coding/internal/audit"
	"github.com/Be1newinner/asaan-hai-coding/internal/auth"
	"github.com/Be1newinner/asaan-hai-coding/internal/cache"
	"github.com/Be1newinner/asaan-hai-coding/internal/config"
	"github.com/Be1newinner/asaan-hai-coding/internal/content"
	"github.com/Be1newinner/asaan-hai-coding/internal/media"
	"github.com/Be1newinner/asaan-hai-coding/internal/obs"
)

const (
	serviceName = "asaan-hai-coding-api"
	apiPrefix   = "/api/v1"

	// Login, lead submission and lesson drafting share a tighter budget.
	strictBurst = 5
	strictEvery = 12 * time.Second
)

var adminRoles = []auth.Role{auth.RoleAdmin}

// Cached groups under the API prefix.
var cachedGroups = []string{"courses", "projects", "profile", "skills", "tags", "media"}

// NewResponseCache caches the public catalog reads in store.
func NewResponseCache(store cache.Store, ttl time.Duration) *cache.Responses {
	return cache.NewResponses(store, ttl, apiPrefix, cachedGroups...)
}

// ReadyProbe pings the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the services behind the HTTP layer.
type Deps struct {
	Config  config.Config
	Auth    *auth.Service
	Users   *auth.PGStore
	Content *content.Store
	Leads   *content.Leads
	Media   *media.Service
	Drafter LessonDrafter
	// Cache is optional; nil disables response caching.
	Cache   *cache.Responses
	Probe   ReadyProbe
	Version string
}

// API is the HTTP layer.
type API struct {
	cfg     config.Config
	auth    *auth.Service
	users   *auth.PGStore
	content *content.Store
	leads   *content.Leads
	media   *media.Service
	drafter LessonDrafter
	cache   *cache.Responses
	probe   ReadyProbe
	version string

	limiter *RateLimiter
	strict  *RateLimiter
	router  chi.Router
}

// New builds the router.
func New(d Deps) *API {
	a := &API{
		cfg:     d.Config,
		auth:    d.Auth,
		users:   d.Users,
		content: d.Content,
		leads:   d.Leads,
		media:   d.Media,
		drafter: d.Drafter,
		cache:   d.Cache,
		probe:   d.Probe,
		version: d.Version,
		limiter: NewRateLimiter(rate.Limit(d.Config.RatePerSecond), d.Config.RateBurst),
		strict:  NewRateLimiter(rate.Every(strictEvery), strictBurst),
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, ClientIP(a.cfg.TrustedProxies), LoggingJSON, Recover)
	r.Use(func(next http.Handler) http.Handler { return obs.Instrument(next, routePattern) })
	r.Use(SecurityHeaders, CORS(a.cfg.CORSOrigins, a.cfg.IsDevelopment()))
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route(apiPrefix, func(r chi.Router) {
		r.Use(a.limiter.Middleware, MaxBodyBytes(a.cfg.MaxBodyBytes), Viewer)
		if a.cache != nil {
			r.Use(a.cache.Middleware)
		}
		r.Get("/info", a.Info)
		r.Route("/auth", a.mountAuth)
		r.Route("/users", func(r chi.Router) {
			r.Use(RequireRole(a.auth.Gate(), adminRoles...))
			users := a.userResource()
			users.mountRead(r)
			users.mountWrite(r)
		})
		a.mountContent(r)
		a.mountMedia(r)
		if a.drafter != nil {
			a.mountAI(r)
		}
	})
	return r
}

// Handler returns the root handler.
func (a *API) Handler() http.Handler { return a.router }

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.probe.Check(ctx); err != nil {
		obs.SetReady(false)
		obs.Warn("readiness check failed", map[string]any{"error": err})
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func wrapNotFound(resource string, id uuid.UUID) error {
	return fmt.Errorf("%s %s: %w", resource, id, errNotFound)
}

// recordAudit logs an admin write. Failures never fail the request.
func recordAudit(r *http.Request, action, resource string, id uuid.UUID, fields map[string]any) {
	e := audit.Event{Action: action, Resource: resource, Fields: fields}
	if id != uuid.Nil {
		e.ID = id.String()
	}
	if err := audit.Record(r.Context(), e); err != nil {
		obs.Warn("audit record failed", map[string]any{"resource": resource, "error": err})
	}
}

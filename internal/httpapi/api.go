// Package httpapi is the browser-facing HTTP layer of the session
// gateway.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"nusalink.id/internal/authn"
	"nusalink.id/internal/obs"
	"nusalink.id/internal/session"
)

// ReadyProbe checks downstream readiness (DB ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// ValueTierFactory yields the durable value tier for one browser session.
type ValueTierFactory func(sid string) (session.ValueTier, error)

// API wires routes, middleware and the auth manager together.
type API struct {
	mux        *http.ServeMux
	manager    *authn.Manager
	values     ValueTierFactory
	readyProbe ReadyProbe
	version    string

	cookieCfg  CookieConfig
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Options configures the API.
type Options struct {
	Manager    *authn.Manager
	Values     ValueTierFactory
	ReadyProbe ReadyProbe
	Version    string
	CookieCfg  CookieConfig
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// New constructs the API. A nil value factory falls back to per-sid
// in-memory tiers, which suits single-node deployments without Postgres.
func New(opts Options) (*API, error) {
	if opts.Manager == nil {
		return nil, errors.New("httpapi: auth manager is required")
	}
	values := opts.Values
	if values == nil {
		values = MemoryValueTiers()
	}
	a := &API{
		mux:        http.NewServeMux(),
		manager:    opts.Manager,
		values:     values,
		readyProbe: opts.ReadyProbe,
		version:    opts.Version,
		cookieCfg:  opts.CookieCfg,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.Handle("/v1/session/login", RateLimit(http.HandlerFunc(a.handleLogin), 10, 5))
	a.mux.HandleFunc("/v1/session/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/session/me", a.handleMe)
	a.mux.HandleFunc("/v1/session/permissions", a.handlePermissions)
	a.mux.HandleFunc("/v1/session/impersonate/", a.handleImpersonate)
	a.mux.HandleFunc("/v1/authz/check", a.handleAuthzCheck)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a, nil
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// MemoryValueTiers returns a factory handing out one in-memory value
// tier per sid.
func MemoryValueTiers() ValueTierFactory {
	var mu sync.Mutex
	tiers := make(map[string]*session.MemoryValues)
	return func(sid string) (session.ValueTier, error) {
		mu.Lock()
		defer mu.Unlock()
		tier, ok := tiers[sid]
		if !ok {
			tier = session.NewMemoryValues()
			tiers[sid] = tier
		}
		return tier, nil
	}
}

// PGValueTiers returns a factory backed by the shared Postgres pool.
func PGValueTiers(db *sql.DB) ValueTierFactory {
	return func(sid string) (session.ValueTier, error) {
		return session.NewPGValues(db, sid)
	}
}

// sessionStore builds the per-request store: cookies as the token tier,
// the sid-scoped durable tier underneath.
func (a *API) sessionStore(w http.ResponseWriter, r *http.Request) (*session.Store, error) {
	sid := ensureSID(w, r, a.cookieCfg)
	values, err := a.values(sid)
	if err != nil {
		return nil, err
	}
	return session.New(
		newCookieTokens(w, r, a.cookieCfg),
		values,
		session.WithAccessTTL(a.accessTTL),
		session.WithRefreshTTL(a.refreshTTL),
	)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "nusalink-gateway",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "nusalink-gateway",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]any{"error": msg}
	if rid := requestIDFrom(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, code, body)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

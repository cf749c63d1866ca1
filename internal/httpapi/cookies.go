package httpapi

import (
	"net/http"
	"time"

	"nusalink.id/internal/ids"
	"nusalink.id/internal/session"
)

const sidCookieName = "portal_sid"

// sidCookie lifetime. The sid only namespaces the server-side value tier;
// it carries no authority of its own.
const sidTTL = 30 * 24 * time.Hour

// CookieConfig controls the attributes of every cookie the gateway sets.
type CookieConfig struct {
	Domain string
	Secure bool
}

// cookieTokens implements session.TokenTier over the request/response
// cookie pair. Writes go out as Set-Cookie immediately and are overlaid
// on reads so that a mutation earlier in the same request is visible to
// later reads (the impersonation swap relies on this).
type cookieTokens struct {
	r       *http.Request
	w       http.ResponseWriter
	cfg     CookieConfig
	pending map[string]*string
}

var _ session.TokenTier = (*cookieTokens)(nil)

func newCookieTokens(w http.ResponseWriter, r *http.Request, cfg CookieConfig) *cookieTokens {
	return &cookieTokens{r: r, w: w, cfg: cfg, pending: make(map[string]*string)}
}

func (c *cookieTokens) Token(name string) (string, bool) {
	if value, ok := c.pending[name]; ok {
		if value == nil {
			return "", false
		}
		return *value, true
	}
	cookie, err := c.r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (c *cookieTokens) SetToken(name, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = session.DefaultAccessTTL
	}
	c.pending[name] = &value
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.cfg.Domain,
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *cookieTokens) DeleteToken(name string) {
	c.pending[name] = nil
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   c.cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ensureSID returns the browser session ID, minting and setting one when
// the request carries none.
func ensureSID(w http.ResponseWriter, r *http.Request, cfg CookieConfig) string {
	if cookie, err := r.Cookie(sidCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	sid := ids.New()
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookieName,
		Value:    sid,
		Path:     "/",
		Domain:   cfg.Domain,
		Expires:  time.Now().Add(sidTTL),
		MaxAge:   int(sidTTL / time.Second),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

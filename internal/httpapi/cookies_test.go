package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nusalink.id/internal/session"
)

func TestCookieTokensOverlay(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.KeyAuthToken, Value: "from-browser"})
	rec := httptest.NewRecorder()
	tokens := newCookieTokens(rec, req, CookieConfig{})

	if got, ok := tokens.Token(session.KeyAuthToken); !ok || got != "from-browser" {
		t.Fatalf("Token = %q, %v", got, ok)
	}

	// A write in this request wins over the inbound cookie.
	tokens.SetToken(session.KeyAuthToken, "rotated", time.Hour)
	if got, ok := tokens.Token(session.KeyAuthToken); !ok || got != "rotated" {
		t.Fatalf("after SetToken: %q, %v", got, ok)
	}

	// A delete hides the inbound cookie too.
	tokens.DeleteToken(session.KeyAuthToken)
	if _, ok := tokens.Token(session.KeyAuthToken); ok {
		t.Fatal("deleted token still readable")
	}
}

func TestCookieTokensSetCookieAttributes(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	tokens := newCookieTokens(rec, req, CookieConfig{Domain: "portal.nusalink.id", Secure: true})

	tokens.SetToken(session.KeyAuthToken, "tok", time.Hour)

	resp := rec.Result()
	cookies := resp.Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 Set-Cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != session.KeyAuthToken || c.Value != "tok" {
		t.Fatalf("unexpected cookie %q=%q", c.Name, c.Value)
	}
	if !c.HttpOnly || !c.Secure {
		t.Fatalf("cookie must be HttpOnly and Secure: %+v", c)
	}
	if c.Domain != "portal.nusalink.id" {
		t.Fatalf("domain = %q", c.Domain)
	}
	if c.MaxAge != 3600 {
		t.Fatalf("max-age = %d", c.MaxAge)
	}
}

func TestDeleteTokenExpiresCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	tokens := newCookieTokens(rec, req, CookieConfig{})

	tokens.DeleteToken(session.KeyRefreshToken)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 Set-Cookie, got %d", len(cookies))
	}
	if cookies[0].MaxAge >= 0 {
		t.Fatalf("expected negative max-age, got %d", cookies[0].MaxAge)
	}
}

func TestEnsureSIDMintsOnce(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	sid := ensureSID(rec, req, CookieConfig{})
	if sid == "" {
		t.Fatal("expected a minted sid")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sidCookieName || cookies[0].Value != sid {
		t.Fatalf("unexpected cookies: %v", cookies)
	}

	// A request already carrying the cookie keeps its sid and gets no
	// new Set-Cookie.
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(&http.Cookie{Name: sidCookieName, Value: sid})
	rec2 := httptest.NewRecorder()
	if got := ensureSID(rec2, req2, CookieConfig{}); got != sid {
		t.Fatalf("expected sid %q kept, got %q", sid, got)
	}
	if n := len(rec2.Result().Cookies()); n != 0 {
		t.Fatalf("expected no Set-Cookie on reuse, got %d", n)
	}
}

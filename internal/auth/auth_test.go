package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func TestSessionRoundtrip(t *testing.T) {
	rec := httptest.NewRecorder()
	CreateSession(rec, 42)
	c := sessionCookie(rec)
	if c == nil {
		t.Fatal("no session cookie set")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	uid, ok := ParseSession(req)
	if !ok || uid != 42 {
		t.Fatalf("parse = %d/%v, want 42/true", uid, ok)
	}
}

func TestTamperedSessionRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	CreateSession(rec, 42)
	c := sessionCookie(rec)

	// swap the uid while keeping the old signature
	parts := strings.SplitN(c.Value, ".", 2)
	c.Value = "43." + parts[1]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	if _, ok := ParseSession(req); ok {
		t.Fatal("tampered session accepted")
	}
}

func TestRequireAuthWithoutSession(t *testing.T) {
	h := Middleware(RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached without session")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotes", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	var called bool
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))

	t.Run("browser preflight is answered without the handler", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodOptions, "/functions/v1/generate-image", nil)
		req.Header.Set("Origin", "https://standardthought.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "content-type, authorization")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rr.Code)
		}
		if called {
			t.Error("handler must not run for preflight")
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := rr.Header().Get("Access-Control-Allow-Methods"); got != http.MethodPost {
			t.Errorf("Allow-Methods = %q", got)
		}
		if got := rr.Header().Get("Access-Control-Max-Age"); got != "86400" {
			t.Errorf("Max-Age = %q", got)
		}
	})

	t.Run("preflight for a disallowed method gets no grant", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodOptions, "/functions/v1/generate-image", nil)
		req.Header.Set("Origin", "https://standardthought.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if called {
			t.Error("handler must not run for preflight")
		}
		if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "" {
			t.Errorf("Allow-Methods = %q, want none", got)
		}
	})

	t.Run("bare OPTIONS answers ok", func(t *testing.T) {
		called = false
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/functions/v1/generate-image", nil))

		if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
			t.Errorf("got %d %q, want 200 ok", rr.Code, rr.Body.String())
		}
		if called {
			t.Error("handler must not run for OPTIONS")
		}
		if got := rr.Header().Get("Access-Control-Allow-Headers"); got != "authorization, x-client-info, apikey, content-type" {
			t.Errorf("Allow-Headers = %q", got)
		}
	})

	t.Run("cross-origin request carries headers", func(t *testing.T) {
		called = false
		req := httptest.NewRequest(http.MethodPost, "/functions/v1/generate-image", nil)
		req.Header.Set("Origin", "https://standardthought.com")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if !called || rr.Code != http.StatusCreated {
			t.Errorf("handler not reached: called=%v status=%d", called, rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := rr.Header().Get("Vary"); got != "Origin" {
			t.Errorf("Vary = %q, want Origin", got)
		}
	})

	t.Run("request without origin still carries headers", func(t *testing.T) {
		called = false
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/functions/v1/generate-image", nil))

		if !called || rr.Code != http.StatusCreated {
			t.Errorf("handler not reached: called=%v status=%d", called, rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q", got)
		}
	})
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// Headers the browser client sends to the functions endpoints.
var corsAllowHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

var corsPolicy = cors.Handler(cors.Options{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	AllowedHeaders: corsAllowHeaders,
	MaxAge:         86400,
})

// CORS allows any origin to call the wrapped routes. Browser preflights are
// answered by the policy and never reach the handler.
func CORS(next http.Handler) http.Handler {
	return corsPolicy(allowAnyOrigin(next))
}

// allowAnyOrigin stamps the allow headers on responses to callers that send
// no Origin, and answers a bare OPTIONS with 200 "ok".
func allowAnyOrigin(next http.Handler) http.Handler {
	allowHeaders := strings.Join(corsAllowHeaders, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", allowHeaders)

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
